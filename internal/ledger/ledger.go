package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flightledger/internal/chain"
	"flightledger/internal/logging"
)

var (
	ErrUnknownFlight = errors.New("unknown flight")
	ErrUnknownUAV    = errors.New("unknown UAV")
)

type flightState struct {
	blocks     []chain.Block
	pool       []chain.Transaction
	uavSupi    string
	operator   string
	sessionKey string
	startTime  time.Time
	seq        *chain.Sequencer
	pending    *pendingAuth
}

// Ledger owns every active flight chain and the archive of finished ones.
// Active chains live in memory and are mirrored to active_ledgers/ on every
// mined block; ending a flight moves the file into flight_archives/.
type Ledger struct {
	mu         sync.Mutex
	activeDir  string
	archiveDir string
	backupsDir string
	countPath  string
	minePool   int
	difficulty int
	uavKeys    map[string]string

	active map[int64]*flightState

	subMu sync.Mutex
	subs  map[int64]chan Event
	subID int64
}

type Options struct {
	DataDir      string
	MinePoolSize int
	Difficulty   int
	UAVKeys      map[string]string
}

func New(opts Options) (*Ledger, error) {
	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}
	if opts.MinePoolSize <= 0 {
		opts.MinePoolSize = 3
	}
	l := &Ledger{
		activeDir:  filepath.Join(opts.DataDir, "active_ledgers"),
		archiveDir: filepath.Join(opts.DataDir, "flight_archives"),
		backupsDir: filepath.Join(opts.DataDir, "backups"),
		countPath:  filepath.Join(opts.DataDir, "flight_count.txt"),
		minePool:   opts.MinePoolSize,
		difficulty: opts.Difficulty,
		uavKeys:    opts.UAVKeys,
		active:     map[int64]*flightState{},
		subs:       map[int64]chan Event{},
	}
	for _, dir := range []string{l.activeDir, l.archiveDir, l.backupsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) ArchiveDir() string { return l.archiveDir }

// KnownUAV reports whether the SUPI is registered.
func (l *Ledger) KnownUAV(supi string) bool {
	_, ok := l.uavKeys[supi]
	return ok
}

func (l *Ledger) UAVs() []string {
	out := make([]string, 0, len(l.uavKeys))
	for supi := range l.uavKeys {
		out = append(out, supi)
	}
	sort.Strings(out)
	return out
}

// nextFlightID bumps the persisted counter; callers hold the lock.
func (l *Ledger) nextFlightID() (int64, error) {
	next := int64(1)
	if data, err := os.ReadFile(l.countPath); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			next = n + 1
		}
	}
	if err := os.WriteFile(l.countPath, []byte(strconv.FormatInt(next, 10)), 0o644); err != nil {
		return 0, err
	}
	return next, nil
}

// StartFlight opens a new chain with a genesis block and persists it.
func (l *Ledger) StartFlight(uavSupi, operator string) (int64, chain.Block, error) {
	if !l.KnownUAV(uavSupi) {
		return 0, chain.Block{}, ErrUnknownUAV
	}
	if operator == "" {
		operator = "system"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	flightID, err := l.nextFlightID()
	if err != nil {
		return 0, chain.Block{}, err
	}

	genesis := chain.Block{
		Index:        0,
		Timestamp:    chain.NowSeconds(),
		PreviousHash: chain.GenesisPrevHash,
		EventLog: []chain.EventRecord{{
			EventType: "CHAIN_START",
			FlightID:  flightID,
			UAVSupi:   uavSupi,
			Operator:  operator,
		}},
		Transactions: []chain.Transaction{{
			TxID:     "GENESIS_TX",
			Kind:     chain.TxGenesis,
			UAVSupi:  uavSupi,
			Operator: operator,
			Note:     fmt.Sprintf("Flight %d initialized - UAV: %s", flightID, uavSupi),
		}},
	}
	hash, err := chain.HashBlock(genesis)
	if err != nil {
		return 0, chain.Block{}, err
	}
	genesis.CurrentHash = hash

	st := &flightState{
		blocks:    []chain.Block{genesis},
		uavSupi:   uavSupi,
		operator:  operator,
		startTime: time.Now(),
		seq:       chain.NewSequencer(l.difficulty),
	}
	l.active[flightID] = st
	if err := l.saveLocked(flightID, st); err != nil {
		delete(l.active, flightID)
		return 0, chain.Block{}, err
	}

	logging.Info("flight started", logging.Ledger, "flight_id", flightID, "uav", uavSupi, "operator", operator)
	l.publish(Event{Type: "flight_started", FlightID: flightID, UAVSupi: uavSupi,
		Message: fmt.Sprintf("flight %d started by %s", flightID, operator), At: time.Now()})
	return flightID, genesis, nil
}

// Submit pools a transaction for the flight. The pool is mined into a block
// when it reaches the configured size. Returns the new block's hash when
// one was mined.
func (l *Ledger) Submit(flightID int64, tx chain.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.active[flightID]
	if !ok {
		return "", ErrUnknownFlight
	}
	if tx.TxID == "" {
		tx.TxID = uuid.NewString()
	}
	st.pool = append(st.pool, tx)

	if len(st.pool) >= l.minePool {
		return l.mineLocked(flightID, st)
	}
	return "", nil
}

// mineLocked drains the pool into a block; callers hold the lock.
func (l *Ledger) mineLocked(flightID int64, st *flightState) (string, error) {
	if len(st.pool) == 0 {
		return "", nil
	}
	prev := st.blocks[len(st.blocks)-1]
	block, err := st.seq.BuildBlock(st.pool, prev.CurrentHash, prev.Timestamp, prev.Index+1, flightID)
	if err != nil {
		return "", err
	}
	st.blocks = append(st.blocks, block)
	st.pool = nil
	if err := l.saveLocked(flightID, st); err != nil {
		return "", err
	}
	logging.Debug("block mined", logging.Ledger, "flight_id", flightID, "index", block.Index, "hash", block.CurrentHash)
	l.publish(Event{Type: "block_mined", FlightID: flightID, UAVSupi: st.uavSupi,
		Message: fmt.Sprintf("block %d mined (%d txs)", block.Index, len(block.Transactions)), At: time.Now()})
	return block.CurrentHash, nil
}

// EndFlight mines any pooled residue and archives the chain.
func (l *Ledger) EndFlight(flightID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endLocked(flightID)
}

func (l *Ledger) endLocked(flightID int64) error {
	st, ok := l.active[flightID]
	if !ok {
		return ErrUnknownFlight
	}
	if _, err := l.mineLocked(flightID, st); err != nil {
		return err
	}
	src := l.activePath(flightID)
	dst := l.archivePath(flightID)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive flight %d: %w", flightID, err)
	}
	delete(l.active, flightID)

	logging.Info("flight archived", logging.Ledger, "flight_id", flightID, "uav", st.uavSupi, "blocks", len(st.blocks))
	l.publish(Event{Type: "flight_ended", FlightID: flightID, UAVSupi: st.uavSupi,
		Message: fmt.Sprintf("flight %d archived (%d blocks)", flightID, len(st.blocks)), At: time.Now()})
	return nil
}

func (l *Ledger) activePath(flightID int64) string {
	return filepath.Join(l.activeDir, fmt.Sprintf("flight_%d.json", flightID))
}

func (l *Ledger) archivePath(flightID int64) string {
	return filepath.Join(l.archiveDir, fmt.Sprintf("Flight_%d.json", flightID))
}

func (l *Ledger) saveLocked(flightID int64, st *flightState) error {
	data, err := json.MarshalIndent(st.blocks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.activePath(flightID), data, 0o644)
}

// FlightInfo is the state the API layer needs without reaching into the
// chain itself.
type FlightInfo struct {
	FlightID   int64
	UAVSupi    string
	Operator   string
	SessionKey string
	Blocks     int
	StartTime  time.Time
}

func (l *Ledger) Info(flightID int64) (FlightInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.active[flightID]
	if !ok {
		return FlightInfo{}, ErrUnknownFlight
	}
	return FlightInfo{
		FlightID:   flightID,
		UAVSupi:    st.uavSupi,
		Operator:   st.operator,
		SessionKey: st.sessionKey,
		Blocks:     len(st.blocks),
		StartTime:  st.startTime,
	}, nil
}

type ActiveFlight struct {
	FlightID  int64   `json:"flight_id"`
	UAVSupi   string  `json:"uav_supi"`
	Operator  string  `json:"operator"`
	Blocks    int     `json:"blocks"`
	StartTime float64 `json:"start_time"`
	Duration  int64   `json:"duration"`
}

// ActiveFlights snapshots the in-flight sessions, oldest first.
func (l *Ledger) ActiveFlights() []ActiveFlight {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ActiveFlight, 0, len(l.active))
	for id, st := range l.active {
		out = append(out, ActiveFlight{
			FlightID:  id,
			UAVSupi:   st.uavSupi,
			Operator:  st.operator,
			Blocks:    len(st.blocks),
			StartTime: float64(st.startTime.UnixNano()) / 1e9,
			Duration:  int64(time.Since(st.startTime).Seconds()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlightID < out[j].FlightID })
	return out
}

// ActivityEntry is one dashboard line derived from recent transactions.
type ActivityEntry struct {
	Timestamp   float64 `json:"timestamp"`
	Type        string  `json:"type"`
	Coordinates string  `json:"coordinates,omitempty"`
	Altitude    string  `json:"altitude,omitempty"`
	Speed       string  `json:"speed,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// FlightActivity renders the last blocks' transactions as typed activity
// entries, dispatching on the transaction kind tag.
func (l *Ledger) FlightActivity(flightID int64, limit int) ([]ActivityEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.active[flightID]
	if !ok {
		return nil, ErrUnknownFlight
	}
	if limit <= 0 {
		limit = 10
	}

	blocks := st.blocks
	if len(blocks) > 5 {
		blocks = blocks[len(blocks)-5:]
	}
	entries := []ActivityEntry{}
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			switch tx.Kind {
			case chain.TxTelemetry:
				if tx.Telemetry == nil {
					continue
				}
				entries = append(entries, ActivityEntry{
					Timestamp:   b.Timestamp,
					Type:        "telemetry",
					Coordinates: fmt.Sprintf("(%.2f, %.2f)", tx.Telemetry.XPos, tx.Telemetry.YPos),
					Altitude:    fmt.Sprintf("%.2fm", tx.Telemetry.ZAlt),
					Speed:       fmt.Sprintf("%.2f m/s", tx.Telemetry.VelMag),
				})
			case chain.TxAuth:
				entries = append(entries, ActivityEntry{
					Timestamp: b.Timestamp,
					Type:      "authentication",
					Message:   "UAV authenticated successfully",
				})
			}
		}
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// FlightFile describes one archived flight for the listing endpoint.
type FlightFile struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Blocks    int     `json:"blocks"`
	UAVSupi   string  `json:"uav_supi"`
	Operator  string  `json:"operator"`
	Timestamp float64 `json:"timestamp"`
}

// ListArchives reads the archive directory sorted by flight number.
func (l *Ledger) ListArchives() ([]FlightFile, error) {
	entries, err := os.ReadDir(l.archiveDir)
	if err != nil {
		return nil, err
	}
	out := []FlightFile{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "Flight_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.archiveDir, name))
		if err != nil {
			continue
		}
		var blocks []chain.Block
		if err := json.Unmarshal(data, &blocks); err != nil || len(blocks) == 0 {
			logging.Warn("skipping unreadable archive", logging.Ledger, "file", name, "error", err)
			continue
		}
		supi, operator := genesisOrigin(blocks[0])
		out = append(out, FlightFile{
			ID:        name,
			Name:      strings.TrimSuffix(name, ".json"),
			Blocks:    len(blocks),
			UAVSupi:   supi,
			Operator:  operator,
			Timestamp: blocks[0].Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return flightNumber(out[i].ID) < flightNumber(out[j].ID) })
	return out, nil
}

// ArchivePath maps a client-supplied archive name to a path, rejecting
// traversal attempts.
func (l *Ledger) ArchivePath(filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid archive name %q", filename)
	}
	return filepath.Join(l.archiveDir, filename), nil
}

func genesisOrigin(genesis chain.Block) (supi, operator string) {
	supi, operator = "Unknown", "Unknown"
	for _, ev := range genesis.EventLog {
		if ev.EventType == "CHAIN_START" {
			if ev.UAVSupi != "" {
				supi = ev.UAVSupi
			}
			if ev.Operator != "" {
				operator = ev.Operator
			}
			return supi, operator
		}
	}
	return supi, operator
}

func flightNumber(name string) int64 {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "Flight_"), ".json")
	n, _ := strconv.ParseInt(trimmed, 10, 64)
	return n
}
