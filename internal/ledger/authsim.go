package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"flightledger/internal/chain"
	"flightledger/internal/logging"
)

// Simulated AKA-style challenge/response: the long-term key never crosses
// the wire, both sides derive RES*/XRES* and the session key from it.

var (
	ErrNoPendingAuth = errors.New("no pending authentication")
	ErrAuthMismatch  = errors.New("RES* mismatch")
)

type pendingAuth struct {
	rand     int64
	xresStar string
	ktx      string
}

// Challenge carries the values sent to the UAV in step one.
type Challenge struct {
	Rand int64  `json:"rand"`
	AUTN string `json:"autn"`
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func deriveSessionKey(longTermKey string, rand int64) string {
	return sha256Hex(longTermKey + strconv.FormatInt(rand, 10))[:16]
}

// ComputeResStar derives the response the UAV must return for a challenge.
// Exported so client implementations and tests share one derivation.
func ComputeResStar(longTermKey string, rand int64) string {
	return sha256Hex(longTermKey + strconv.FormatInt(rand, 10) + "Expected")[:10]
}

// BeginAuth issues the challenge vector for the flight's UAV.
func (l *Ledger) BeginAuth(flightID int64, uavSupi string) (Challenge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.active[flightID]
	if !ok {
		return Challenge{}, ErrUnknownFlight
	}
	if st.uavSupi != uavSupi {
		return Challenge{}, fmt.Errorf("flight %d belongs to %s", flightID, st.uavSupi)
	}
	key, ok := l.uavKeys[uavSupi]
	if !ok {
		return Challenge{}, ErrUnknownUAV
	}

	rand := time.Now().UnixMilli()
	autn := sha256Hex(key + uavSupi + strconv.FormatInt(rand, 10))
	st.pending = &pendingAuth{
		rand:     rand,
		xresStar: ComputeResStar(key, rand),
		ktx:      deriveSessionKey(key, rand),
	}
	logging.Debug("auth challenge issued", logging.Ledger, "flight_id", flightID, "uav", uavSupi)
	return Challenge{Rand: rand, AUTN: autn}, nil
}

// CompleteAuth checks the UAV's RES*; success records an AUTH transaction
// and mines it immediately so the authentication marker is on-chain before
// any telemetry.
func (l *Ledger) CompleteAuth(flightID int64, uavSupi, resStar string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.active[flightID]
	if !ok {
		return "", ErrUnknownFlight
	}
	if st.pending == nil {
		return "", ErrNoPendingAuth
	}
	if resStar != st.pending.xresStar {
		logging.Warn("auth failed", logging.Ledger, "flight_id", flightID, "uav", uavSupi)
		return "", ErrAuthMismatch
	}

	sessionKey := st.pending.ktx
	st.sessionKey = sessionKey
	st.pool = append(st.pool, chain.Transaction{
		TxID:       fmt.Sprintf("AUTH_SUCCESS_%s_%d", uavSupi, time.Now().Unix()),
		Kind:       chain.TxAuth,
		UAVSupi:    uavSupi,
		SessionKey: sessionKey,
		AuthRand:   st.pending.rand,
	})
	st.pending = nil
	if _, err := l.mineLocked(flightID, st); err != nil {
		return "", err
	}

	logging.Info("flight authenticated", logging.Ledger, "flight_id", flightID, "uav", uavSupi)
	l.publish(Event{Type: "auth_success", FlightID: flightID, UAVSupi: uavSupi,
		Message: fmt.Sprintf("flight %d authenticated", flightID), At: time.Now()})
	return sessionKey, nil
}
