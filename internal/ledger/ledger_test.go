package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flightledger/internal/chain"
)

var testUAVs = map[string]string{
	"UAV_A1": "K_LongTerm_A1",
	"UAV_B2": "K_LongTerm_B2",
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(Options{DataDir: t.TempDir(), MinePoolSize: 3, Difficulty: 1, UAVKeys: testUAVs})
	require.NoError(t, err)
	return l
}

func telemetryTx(x, y, z, v float64) chain.Transaction {
	return chain.Transaction{Kind: chain.TxTelemetry, Telemetry: &chain.Telemetry{XPos: x, YPos: y, ZAlt: z, VelMag: v}}
}

func TestStartFlightCreatesGenesis(t *testing.T) {
	l := newTestLedger(t)
	id, genesis, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.Equal(t, int64(0), genesis.Index)
	require.Equal(t, chain.GenesisPrevHash, genesis.PreviousHash)
	require.NotEmpty(t, genesis.CurrentHash)
	require.Equal(t, chain.TxGenesis, genesis.Transactions[0].Kind)

	_, _, err = l.StartFlight("UAV_X9", "alice")
	require.ErrorIs(t, err, ErrUnknownUAV)

	id2, _, err := l.StartFlight("UAV_B2", "bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), id2)
}

func TestFlightCounterPersists(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{DataDir: dir, UAVKeys: testUAVs})
	require.NoError(t, err)
	id, _, err := l.StartFlight("UAV_A1", "")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	l2, err := New(Options{DataDir: dir, UAVKeys: testUAVs})
	require.NoError(t, err)
	id2, _, err := l2.StartFlight("UAV_A1", "")
	require.NoError(t, err)
	require.Equal(t, int64(2), id2)
}

func TestSubmitMinesAtPoolSize(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)

	hash, err := l.Submit(id, telemetryTx(1, 1, -10, 3))
	require.NoError(t, err)
	require.Empty(t, hash)
	hash, err = l.Submit(id, telemetryTx(2, 2, -10, 3))
	require.NoError(t, err)
	require.Empty(t, hash)
	hash, err = l.Submit(id, telemetryTx(3, 3, -10, 3))
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	info, err := l.Info(id)
	require.NoError(t, err)
	require.Equal(t, 2, info.Blocks)
}

func TestEndFlightArchivesVerifiableChain(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := l.Submit(id, telemetryTx(float64(i), 0, -10, 2))
		require.NoError(t, err)
	}
	require.NoError(t, l.EndFlight(id))

	_, err = l.Info(id)
	require.ErrorIs(t, err, ErrUnknownFlight)

	archive := filepath.Join(l.ArchiveDir(), "Flight_1.json")
	verdict, blocks, err := chain.VerifyFile(archive)
	require.NoError(t, err)
	require.True(t, verdict.Secured, verdict.Message)
	// genesis + one full pool block + residue block
	require.Len(t, blocks, 3)

	// The active ledger file must be gone.
	_, err = os.Stat(filepath.Join(filepath.Dir(l.ArchiveDir()), "active_ledgers", "flight_1.json"))
	require.True(t, os.IsNotExist(err))
}

func TestTamperedArchiveDetected(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := l.Submit(id, telemetryTx(float64(i), 0, -10, 2))
		require.NoError(t, err)
	}
	require.NoError(t, l.EndFlight(id))

	archive := filepath.Join(l.ArchiveDir(), "Flight_1.json")
	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	var blocks []chain.Block
	require.NoError(t, json.Unmarshal(data, &blocks))

	// Rewrite telemetry inside a non-final block; its successor's link
	// must now fail.
	blocks[1].Transactions[0].Telemetry.XPos += 100
	verdict, err := chain.Verify(blocks)
	require.NoError(t, err)
	require.False(t, verdict.Secured)
	require.Equal(t, "tampered: hash mismatch at block 2", verdict.Message)
}

func TestListArchives(t *testing.T) {
	l := newTestLedger(t)
	for _, uav := range []string{"UAV_A1", "UAV_B2"} {
		id, _, err := l.StartFlight(uav, "alice")
		require.NoError(t, err)
		_, err = l.Submit(id, telemetryTx(1, 1, -10, 2))
		require.NoError(t, err)
		require.NoError(t, l.EndFlight(id))
	}

	files, err := l.ListArchives()
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "Flight_1.json", files[0].ID)
	require.Equal(t, "UAV_A1", files[0].UAVSupi)
	require.Equal(t, "alice", files[0].Operator)
	require.Equal(t, "UAV_B2", files[1].UAVSupi)
}

func TestArchivePathRejectsTraversal(t *testing.T) {
	l := newTestLedger(t)
	for _, name := range []string{"../secret", "a/b.json", `a\b.json`, ""} {
		_, err := l.ArchivePath(name)
		require.Error(t, err, name)
	}
	_, err := l.ArchivePath("Flight_1.json")
	require.NoError(t, err)
}

func TestFlightActivityDispatchesOnKind(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)

	ch, err := l.BeginAuth(id, "UAV_A1")
	require.NoError(t, err)
	_, err = l.CompleteAuth(id, "UAV_A1", ComputeResStar("K_LongTerm_A1", ch.Rand))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Submit(id, telemetryTx(float64(i), float64(-i), -12, 3.5))
		require.NoError(t, err)
	}

	entries, err := l.FlightActivity(id, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, "authentication", entries[0].Type)
	last := entries[len(entries)-1]
	require.Equal(t, "telemetry", last.Type)
	require.Equal(t, "(2.00, -2.00)", last.Coordinates)
	require.Equal(t, "-12.00m", last.Altitude)
	require.Equal(t, "3.50 m/s", last.Speed)
}

func TestSubscribeReceivesLedgerEvents(t *testing.T) {
	l := newTestLedger(t)
	ch, cancel := l.Subscribe()
	defer cancel()

	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)
	require.NoError(t, l.EndFlight(id))

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	require.Equal(t, []string{"flight_started", "flight_ended"}, types)
}
