package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStuckFlightsFindsOldAndOrphaned(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)

	stuck, err := l.StuckFlights(time.Hour)
	require.NoError(t, err)
	require.Empty(t, stuck)

	// Age the in-memory session past the limit.
	l.mu.Lock()
	l.active[id].startTime = time.Now().Add(-2 * time.Hour)
	l.mu.Unlock()

	// Drop an orphaned ledger file with no in-memory state.
	orphan := filepath.Join(l.activeDir, "flight_7.json")
	require.NoError(t, os.WriteFile(orphan, []byte("[]"), 0o644))

	stuck, err = l.StuckFlights(time.Hour)
	require.NoError(t, err)
	require.Len(t, stuck, 2)
	require.Equal(t, int64(1), stuck[0].FlightID)
	require.False(t, stuck[0].Orphaned)
	require.Equal(t, "UAV_A1", stuck[0].UAVSupi)
	require.Equal(t, int64(7), stuck[1].FlightID)
	require.True(t, stuck[1].Orphaned)
}

func TestForceEndActiveAndOrphaned(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)
	require.NoError(t, l.ForceEnd(id))
	_, err = l.Info(id)
	require.ErrorIs(t, err, ErrUnknownFlight)

	orphan := filepath.Join(l.activeDir, "flight_9.json")
	require.NoError(t, os.WriteFile(orphan, []byte("[]"), 0o644))
	require.NoError(t, l.ForceEnd(9))
	_, err = os.Stat(filepath.Join(l.archiveDir, "Flight_9.json"))
	require.NoError(t, err)

	require.ErrorIs(t, l.ForceEnd(42), ErrUnknownFlight)
}

func TestResetBacksUpEverything(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{DataDir: dir, MinePoolSize: 3, UAVKeys: testUAVs})
	require.NoError(t, err)

	id, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)
	require.NoError(t, l.EndFlight(id))
	_, _, err = l.StartFlight("UAV_B2", "bob")
	require.NoError(t, err)

	report, err := l.Reset()
	require.NoError(t, err)
	require.Equal(t, 1, report.ArchivedMoved)
	require.Equal(t, 1, report.ActiveMoved)
	require.Equal(t, 1, report.ActiveForgotten)
	require.True(t, report.CounterRemoved)

	_, err = os.Stat(filepath.Join(report.BackupDir, "flight_archives", "Flight_1.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(report.BackupDir, "active_ledgers", "flight_2.json"))
	require.NoError(t, err)

	// Numbering restarts at one.
	freshID, _, err := l.StartFlight("UAV_A1", "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), freshID)

	files, err := l.ListArchives()
	require.NoError(t, err)
	require.Empty(t, files)
}
