package chain

// Sequencer generates the proof-of-history hash stream a flight's blocks
// are built from. Each embedded transaction is preceded by a fixed number
// of sequential hash steps, which ties the transaction to a point in the
// stream and makes the recorded timeline order-dependent.
type Sequencer struct {
	latestHash string
	steps      int
	difficulty int
}

const DefaultDifficulty = 2

func NewSequencer(difficulty int) *Sequencer {
	if difficulty <= 0 {
		difficulty = DefaultDifficulty
	}
	return &Sequencer{difficulty: difficulty}
}

// Seed resets the stream onto the given hash, normally the previous
// block's current_hash.
func (s *Sequencer) Seed(hash string) {
	s.latestHash = hash
	s.steps = 0
}

// Step advances the stream by one sequential hash.
func (s *Sequencer) Step() string {
	s.latestHash = hashBytes([]byte(s.latestHash))
	s.steps++
	return s.latestHash
}

// Embed folds a transaction's canonical form into the stream and returns
// the embed time and the hash at that point.
func (s *Sequencer) Embed(tx Transaction) (float64, string, error) {
	payload, err := CanonicalJSON(tx)
	if err != nil {
		return 0, "", err
	}
	s.latestHash = hashBytes([]byte(s.latestHash), payload)
	s.steps++
	return NowSeconds(), s.latestHash, nil
}

// BuildBlock assembles the next block from the pooled transactions. The
// block timestamp is forced strictly past the predecessor's so chains
// produced here always satisfy the chronology invariant, even when two
// blocks are mined within the same clock tick.
func (s *Sequencer) BuildBlock(pool []Transaction, prevHash string, prevTimestamp float64, index, flightID int64) (Block, error) {
	s.Seed(prevHash)

	events := make([]EventRecord, 0, len(pool))
	for _, tx := range pool {
		for i := 0; i < s.difficulty; i++ {
			s.Step()
		}
		at, h, err := s.Embed(tx)
		if err != nil {
			return Block{}, err
		}
		events = append(events, EventRecord{
			EventType:   "TRANSACTION_EMBEDDED",
			Timestamp:   at,
			HashAtEvent: h,
			TxID:        tx.TxID,
			FlightID:    flightID,
		})
	}

	ts := NowSeconds()
	if ts <= prevTimestamp {
		ts = prevTimestamp + 1e-6
	}

	block := Block{
		Index:        index,
		Timestamp:    ts,
		PreviousHash: prevHash,
		EventLog:     events,
		Transactions: pool,
	}
	hash, err := HashBlock(block)
	if err != nil {
		return Block{}, err
	}
	block.CurrentHash = hash
	s.latestHash = hash
	return block, nil
}
