package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flightledger/internal/chain"
)

func testManager() *Manager {
	return NewManager(
		Geofence{MaxX: 50, MaxY: 50, MinAlt: -20, MaxAlt: 0},
		SpeedLimit{MaxSpeed: 8},
		AltitudeSafety{WarnThreshold: -3, CritThreshold: -1},
		FlightDuration{MaxDuration: 2 * time.Minute},
	)
}

func TestCompliantSampleHasNoViolations(t *testing.T) {
	m := testManager()
	got := m.EvaluateAll(1, chain.Telemetry{XPos: 10, YPos: -10, ZAlt: -10, VelMag: 4}, time.Now())
	require.Empty(t, got)

	st := m.Stats()
	require.Equal(t, 4, st.TotalContracts)
	require.Equal(t, 0, st.TotalViolations)
	require.Equal(t, 1, st.Contracts[0].Executions)
}

func TestGeofenceBreach(t *testing.T) {
	m := testManager()
	got := m.EvaluateAll(1, chain.Telemetry{XPos: 75, ZAlt: -10, VelMag: 1}, time.Now())
	require.Len(t, got, 1)
	require.Equal(t, "Geofence Compliance", got[0].Contract)
	require.Equal(t, SeverityHigh, got[0].Severity)
	require.Contains(t, got[0].Message, "x-axis violation")
}

func TestSpeedAndAltitudeBreaches(t *testing.T) {
	m := testManager()
	got := m.EvaluateAll(2, chain.Telemetry{ZAlt: -0.5, VelMag: 12}, time.Now())
	require.Len(t, got, 2)

	byContract := map[string]Violation{}
	for _, v := range got {
		byContract[v.Contract] = v
	}
	require.Equal(t, SeverityMedium, byContract["Speed Limit Enforcement"].Severity)
	require.Equal(t, SeverityCritical, byContract["Altitude Safety Monitor"].Severity)
}

func TestAltitudeWarningBelowCritical(t *testing.T) {
	m := testManager()
	got := m.EvaluateAll(2, chain.Telemetry{ZAlt: -2, VelMag: 1}, time.Now())
	require.Len(t, got, 1)
	require.Equal(t, SeverityWarning, got[0].Severity)
}

func TestFlightDurationBreach(t *testing.T) {
	m := testManager()
	started := time.Now().Add(-3 * time.Minute)
	got := m.EvaluateAll(3, chain.Telemetry{ZAlt: -10, VelMag: 1}, started)
	require.Len(t, got, 1)
	require.Equal(t, "Flight Duration Limit", got[0].Contract)
}

func TestViolationHistoryNewestFirst(t *testing.T) {
	m := testManager()
	m.EvaluateAll(1, chain.Telemetry{XPos: 75, ZAlt: -10}, time.Now())
	m.EvaluateAll(2, chain.Telemetry{YPos: 90, ZAlt: -10}, time.Now())

	got := m.Violations(10)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].FlightID)
	require.Equal(t, int64(1), got[1].FlightID)

	require.Equal(t, 2, m.Stats().TotalViolations)
}
