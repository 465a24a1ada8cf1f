package chain

import "time"

// TxKind tags a transaction's variant explicitly instead of sniffing
// payload fields.
type TxKind string

const (
	TxGenesis   TxKind = "GENESIS"
	TxAuth      TxKind = "AUTH"
	TxTelemetry TxKind = "TELEMETRY"
)

// Telemetry is one position/velocity sample reported by a UAV.
type Telemetry struct {
	XPos   float64 `json:"x_pos"`
	YPos   float64 `json:"y_pos"`
	ZAlt   float64 `json:"z_alt"`
	VelMag float64 `json:"vel_mag"`
}

// Transaction is one payload record inside a block. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type Transaction struct {
	TxID       string                 `json:"tx_id"`
	Kind       TxKind                 `json:"kind"`
	UAVSupi    string                 `json:"uav_supi,omitempty"`
	Operator   string                 `json:"operator,omitempty"`
	Note       string                 `json:"note,omitempty"`
	SessionKey string                 `json:"session_key,omitempty"`
	AuthRand   int64                  `json:"auth_rand,omitempty"`
	Telemetry  *Telemetry             `json:"telemetry,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// EventRecord is a proof-of-history timeline entry produced while a
// transaction was embedded into the sequential hash stream.
type EventRecord struct {
	EventType   string  `json:"event_type"`
	Timestamp   float64 `json:"timestamp,omitempty"`
	HashAtEvent string  `json:"hash_at_event,omitempty"`
	TxID        string  `json:"tx_id,omitempty"`
	FlightID    int64   `json:"flight_id,omitempty"`
	UAVSupi     string  `json:"uav_supi,omitempty"`
	Operator    string  `json:"operator,omitempty"`
}

// Block is one unit of append-only flight history.
type Block struct {
	Index        int64         `json:"index"`
	Timestamp    float64       `json:"timestamp"`
	PreviousHash string        `json:"previous_hash"`
	EventLog     []EventRecord `json:"event_log"`
	Transactions []Transaction `json:"transactions"`
	CurrentHash  string        `json:"current_hash"`
}

// GenesisPrevHash is the previous-hash value carried by block 0.
const GenesisPrevHash = "0"

// NowSeconds returns the current wall clock as float seconds since epoch,
// the timestamp representation blocks are recorded with.
func NowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
