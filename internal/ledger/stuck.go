package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"flightledger/internal/logging"
)

// StuckFlight is an active session that was never terminated: either an
// in-memory flight older than the limit, or an orphaned on-disk ledger left
// behind by a crashed run.
type StuckFlight struct {
	FlightID int64  `json:"flight_id"`
	UAVSupi  string `json:"uav_supi,omitempty"`
	Operator string `json:"operator,omitempty"`
	AgeSecs  int64  `json:"age_seconds"`
	Orphaned bool   `json:"orphaned"`
}

// StuckFlights lists active sessions older than maxAge plus on-disk active
// ledgers with no in-memory state.
func (l *Ledger) StuckFlights(maxAge time.Duration) ([]StuckFlight, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []StuckFlight{}
	for id, st := range l.active {
		if age := time.Since(st.startTime); age > maxAge {
			out = append(out, StuckFlight{
				FlightID: id,
				UAVSupi:  st.uavSupi,
				Operator: st.operator,
				AgeSecs:  int64(age.Seconds()),
			})
		}
	}

	entries, err := os.ReadDir(l.activeDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "flight_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := flightNumber(strings.TrimPrefix(name, "flight_"))
		if _, ok := l.active[id]; ok {
			continue
		}
		var age int64
		if info, err := entry.Info(); err == nil {
			age = int64(time.Since(info.ModTime()).Seconds())
		}
		out = append(out, StuckFlight{FlightID: id, AgeSecs: age, Orphaned: true})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FlightID < out[j].FlightID })
	return out, nil
}

// ForceEnd archives a stuck flight. In-memory sessions go through the
// normal end path; orphaned ledger files are moved into the archive as-is.
func (l *Ledger) ForceEnd(flightID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[flightID]; ok {
		return l.endLocked(flightID)
	}

	src := l.activePath(flightID)
	if _, err := os.Stat(src); err != nil {
		return ErrUnknownFlight
	}
	if err := os.Rename(src, l.archivePath(flightID)); err != nil {
		return fmt.Errorf("archive orphaned flight %d: %w", flightID, err)
	}
	logging.Info("orphaned flight archived", logging.Ledger, "flight_id", flightID)
	return nil
}

// ResetReport summarizes a Reset run.
type ResetReport struct {
	BackupDir       string `json:"backup_dir"`
	ArchivedMoved   int    `json:"archived_moved"`
	ActiveMoved     int    `json:"active_moved"`
	CounterRemoved  bool   `json:"counter_removed"`
	ActiveForgotten int    `json:"active_forgotten"`
}

// Reset backs up every archive and active ledger into a stamped backup
// directory, forgets in-memory flights, and removes the flight counter so
// numbering restarts at one. Intended for operator use while clients are
// stopped.
func (l *Ledger) Reset() (ResetReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := time.Now().Format("20060102_150405")
	backupDir := filepath.Join(l.backupsDir, "flight_reset_"+stamp)
	report := ResetReport{BackupDir: backupDir}

	moved, err := moveMatches(l.archiveDir, filepath.Join(backupDir, "flight_archives"), "Flight_")
	if err != nil {
		return report, err
	}
	report.ArchivedMoved = moved

	moved, err = moveMatches(l.activeDir, filepath.Join(backupDir, "active_ledgers"), "flight_")
	if err != nil {
		return report, err
	}
	report.ActiveMoved = moved

	report.ActiveForgotten = len(l.active)
	l.active = map[int64]*flightState{}

	if err := os.Remove(l.countPath); err == nil {
		report.CounterRemoved = true
	} else if !os.IsNotExist(err) {
		return report, err
	}

	logging.Info("flight data reset", logging.Ledger,
		"backup_dir", backupDir, "archived", report.ArchivedMoved, "active", report.ActiveMoved)
	return report, nil
}

func moveMatches(srcDir, dstDir, prefix string) (int, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return 0, err
	}
	moved := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := os.Rename(filepath.Join(srcDir, name), filepath.Join(dstDir, name)); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
