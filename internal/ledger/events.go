package ledger

import "time"

// Event is one ledger activity notification pushed to live subscribers.
type Event struct {
	Type     string    `json:"type"`
	FlightID int64     `json:"flight_id"`
	UAVSupi  string    `json:"uav_supi,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Subscribe registers a live event feed. The returned cancel func must be
// called when the consumer goes away.
func (l *Ledger) Subscribe() (<-chan Event, func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subID++
	id := l.subID
	ch := make(chan Event, 32)
	l.subs[id] = ch
	return ch, func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
}

// publish fans the event out without blocking; slow subscribers drop
// events rather than stalling the ledger.
func (l *Ledger) publish(ev Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
