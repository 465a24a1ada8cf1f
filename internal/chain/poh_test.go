package chain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequencerBuildsVerifiableChain(t *testing.T) {
	genesis := Block{
		Index:        0,
		Timestamp:    NowSeconds(),
		PreviousHash: GenesisPrevHash,
		EventLog:     []EventRecord{{EventType: "CHAIN_START", FlightID: 7}},
		Transactions: []Transaction{{TxID: "GENESIS_TX", Kind: TxGenesis}},
	}
	h, err := HashBlock(genesis)
	require.NoError(t, err)
	genesis.CurrentHash = h

	seq := NewSequencer(2)
	blocks := []Block{genesis}
	for i := 1; i <= 4; i++ {
		pool := []Transaction{
			{TxID: fmt.Sprintf("TELEM_%d_a", i), Kind: TxTelemetry, Telemetry: &Telemetry{XPos: float64(i)}},
			{TxID: fmt.Sprintf("TELEM_%d_b", i), Kind: TxTelemetry, Telemetry: &Telemetry{YPos: float64(i)}},
		}
		prev := blocks[len(blocks)-1]
		b, err := seq.BuildBlock(pool, prev.CurrentHash, prev.Timestamp, int64(i), 7)
		require.NoError(t, err)
		require.Len(t, b.EventLog, 2)
		require.Equal(t, "TRANSACTION_EMBEDDED", b.EventLog[0].EventType)
		require.Greater(t, b.Timestamp, prev.Timestamp)
		blocks = append(blocks, b)
	}

	verdict, err := Verify(blocks)
	require.NoError(t, err)
	require.True(t, verdict.Secured, verdict.Message)
	require.Equal(t, blocks[len(blocks)-1].CurrentHash, verdict.LastHash)
}

func TestSequencerEmbedAdvancesStream(t *testing.T) {
	seq := NewSequencer(1)
	seq.Seed("seed")
	first := seq.Step()
	_, second, err := seq.Embed(Transaction{TxID: "T1", Kind: TxTelemetry})
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
