package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"flightledger/internal/chain"
)

func TestAuthChallengeRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)

	ch, err := l.BeginAuth(id, "UAV_A1")
	require.NoError(t, err)
	require.NotZero(t, ch.Rand)
	require.Len(t, ch.AUTN, 64)

	key, err := l.CompleteAuth(id, "UAV_A1", ComputeResStar("K_LongTerm_A1", ch.Rand))
	require.NoError(t, err)
	require.Len(t, key, 16)
	require.Equal(t, deriveSessionKey("K_LongTerm_A1", ch.Rand), key)

	// The AUTH transaction is mined immediately.
	info, err := l.Info(id)
	require.NoError(t, err)
	require.Equal(t, 2, info.Blocks)
	require.Equal(t, key, info.SessionKey)
}

func TestAuthRejectsWrongResStar(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)

	_, err = l.CompleteAuth(id, "UAV_A1", "deadbeef00")
	require.ErrorIs(t, err, ErrNoPendingAuth)

	_, err = l.BeginAuth(id, "UAV_A1")
	require.NoError(t, err)
	_, err = l.CompleteAuth(id, "UAV_A1", "deadbeef00")
	require.ErrorIs(t, err, ErrAuthMismatch)
}

func TestAuthChecksFlightOwnership(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)

	_, err = l.BeginAuth(id, "UAV_B2")
	require.Error(t, err)
	_, err = l.BeginAuth(99, "UAV_A1")
	require.ErrorIs(t, err, ErrUnknownFlight)
}

func TestAuthBlockCarriesSessionKey(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_B2", "bob")
	require.NoError(t, err)

	ch, err := l.BeginAuth(id, "UAV_B2")
	require.NoError(t, err)
	key, err := l.CompleteAuth(id, "UAV_B2", ComputeResStar("K_LongTerm_B2", ch.Rand))
	require.NoError(t, err)
	require.NoError(t, l.EndFlight(id))

	path, err := l.ArchivePath("Flight_1.json")
	require.NoError(t, err)
	verdict, blocks, err := chain.VerifyFile(path)
	require.NoError(t, err)
	require.True(t, verdict.Secured, verdict.Message)

	tx := blocks[1].Transactions[0]
	require.Equal(t, chain.TxAuth, tx.Kind)
	require.Equal(t, key, tx.SessionKey)
	require.Equal(t, ch.Rand, tx.AuthRand)
}
