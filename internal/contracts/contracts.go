package contracts

import (
	"fmt"
	"sync"
	"time"

	"flightledger/internal/chain"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Violation is one rule breach observed while evaluating a telemetry
// sample. Breaches are returned to the caller and retained in the
// manager's history for the dashboard.
type Violation struct {
	Contract  string    `json:"contract"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	FlightID  int64     `json:"flight_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Rule is one flight-safety contract evaluated against every telemetry
// sample.
type Rule interface {
	Name() string
	Describe() string
	Evaluate(flightID int64, sample chain.Telemetry, flightStart time.Time, now time.Time) *Violation
}

// Geofence keeps the UAV inside the allowed box. Altitude is in the
// original's NED-style convention: more negative z is higher.
type Geofence struct {
	MaxX, MaxY     float64
	MinAlt, MaxAlt float64
}

func (g Geofence) Name() string     { return "Geofence Compliance" }
func (g Geofence) Describe() string { return "keeps the UAV inside the allowed boundary box" }

func (g Geofence) Evaluate(flightID int64, s chain.Telemetry, _, now time.Time) *Violation {
	var msg string
	switch {
	case s.XPos > g.MaxX || s.XPos < -g.MaxX:
		msg = fmt.Sprintf("x-axis violation: %.2fm (limit: ±%.0fm)", s.XPos, g.MaxX)
	case s.YPos > g.MaxY || s.YPos < -g.MaxY:
		msg = fmt.Sprintf("y-axis violation: %.2fm (limit: ±%.0fm)", s.YPos, g.MaxY)
	case s.ZAlt < g.MinAlt:
		msg = fmt.Sprintf("altitude too high: %.2fm (limit: %.0fm)", s.ZAlt, g.MinAlt)
	case s.ZAlt > g.MaxAlt:
		msg = fmt.Sprintf("altitude below floor: %.2fm (limit: %.0fm)", s.ZAlt, g.MaxAlt)
	default:
		return nil
	}
	return &Violation{Contract: g.Name(), Severity: SeverityHigh, Message: msg, FlightID: flightID, Timestamp: now}
}

type SpeedLimit struct {
	MaxSpeed float64
}

func (r SpeedLimit) Name() string     { return "Speed Limit Enforcement" }
func (r SpeedLimit) Describe() string { return "caps the UAV's velocity magnitude" }

func (r SpeedLimit) Evaluate(flightID int64, s chain.Telemetry, _, now time.Time) *Violation {
	if s.VelMag <= r.MaxSpeed {
		return nil
	}
	return &Violation{
		Contract:  r.Name(),
		Severity:  SeverityMedium,
		Message:   fmt.Sprintf("speed limit exceeded: %.2f m/s (limit: %.1f m/s)", s.VelMag, r.MaxSpeed),
		FlightID:  flightID,
		Timestamp: now,
	}
}

// AltitudeSafety warns when the UAV flies dangerously close to the ground
// (z approaching zero from below).
type AltitudeSafety struct {
	WarnThreshold, CritThreshold float64
}

func (r AltitudeSafety) Name() string     { return "Altitude Safety Monitor" }
func (r AltitudeSafety) Describe() string { return "warns when the UAV flies too low" }

func (r AltitudeSafety) Evaluate(flightID int64, s chain.Telemetry, _, now time.Time) *Violation {
	switch {
	case s.ZAlt > r.CritThreshold:
		return &Violation{
			Contract:  r.Name(),
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("altitude dangerously low: %.2fm", s.ZAlt),
			FlightID:  flightID,
			Timestamp: now,
		}
	case s.ZAlt > r.WarnThreshold:
		return &Violation{
			Contract:  r.Name(),
			Severity:  SeverityWarning,
			Message:   fmt.Sprintf("low altitude detected: %.2fm", s.ZAlt),
			FlightID:  flightID,
			Timestamp: now,
		}
	}
	return nil
}

type FlightDuration struct {
	MaxDuration time.Duration
}

func (r FlightDuration) Name() string     { return "Flight Duration Limit" }
func (r FlightDuration) Describe() string { return "flags flights running past the allowed duration" }

func (r FlightDuration) Evaluate(flightID int64, _ chain.Telemetry, flightStart, now time.Time) *Violation {
	if flightStart.IsZero() {
		return nil
	}
	elapsed := now.Sub(flightStart)
	if elapsed <= r.MaxDuration {
		return nil
	}
	return &Violation{
		Contract:  r.Name(),
		Severity:  SeverityMedium,
		Message:   fmt.Sprintf("flight duration exceeded: %.1fs (limit: %.0fs)", elapsed.Seconds(), r.MaxDuration.Seconds()),
		FlightID:  flightID,
		Timestamp: now,
	}
}

type ruleState struct {
	rule       Rule
	executions int
	violations int
}

// Manager evaluates every registered rule against incoming samples and
// retains the violation history for the dashboard.
type Manager struct {
	mu      sync.Mutex
	rules   []*ruleState
	history []Violation
	keep    int
	now     func() time.Time
}

func NewManager(rules ...Rule) *Manager {
	m := &Manager{keep: 500, now: time.Now}
	for _, r := range rules {
		m.rules = append(m.rules, &ruleState{rule: r})
	}
	return m
}

// EvaluateAll runs the sample through every rule and returns the breaches.
func (m *Manager) EvaluateAll(flightID int64, sample chain.Telemetry, flightStart time.Time) []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Violation
	for _, st := range m.rules {
		st.executions++
		if v := st.rule.Evaluate(flightID, sample, flightStart, now); v != nil {
			st.violations++
			out = append(out, *v)
			m.history = append(m.history, *v)
		}
	}
	if len(m.history) > m.keep {
		m.history = m.history[len(m.history)-m.keep:]
	}
	return out
}

// Violations returns the most recent breaches, newest first.
func (m *Manager) Violations(limit int) []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]Violation, 0, limit)
	for i := len(m.history) - 1; i >= len(m.history)-limit; i-- {
		out = append(out, m.history[i])
	}
	return out
}

type RuleStats struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Executions  int    `json:"executions"`
	Violations  int    `json:"violations"`
}

type Stats struct {
	TotalContracts  int         `json:"total_contracts"`
	TotalViolations int         `json:"total_violations"`
	Contracts       []RuleStats `json:"contracts"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{TotalContracts: len(m.rules)}
	for _, rs := range m.rules {
		st.TotalViolations += rs.violations
		st.Contracts = append(st.Contracts, RuleStats{
			Name:        rs.rule.Name(),
			Description: rs.rule.Describe(),
			Executions:  rs.executions,
			Violations:  rs.violations,
		})
	}
	return st
}
