package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"flightledger/internal/chain"
)

func writeArchive(t *testing.T, dir, name string, blocks []chain.Block) {
	t.Helper()
	data, err := json.MarshalIndent(blocks, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func flightBlocks(supi string, startTS float64, speeds, alts []float64) []chain.Block {
	genesis := chain.Block{
		Index:        0,
		Timestamp:    startTS,
		PreviousHash: chain.GenesisPrevHash,
		EventLog:     []chain.EventRecord{{EventType: "CHAIN_START", UAVSupi: supi}},
		Transactions: []chain.Transaction{{TxID: "GENESIS_TX", Kind: chain.TxGenesis, UAVSupi: supi}},
	}
	txs := make([]chain.Transaction, len(speeds))
	for i := range speeds {
		txs[i] = chain.Transaction{
			Kind:      chain.TxTelemetry,
			Telemetry: &chain.Telemetry{ZAlt: alts[i], VelMag: speeds[i]},
		}
	}
	return []chain.Block{genesis, {
		Index:        1,
		Timestamp:    startTS + 5,
		PreviousHash: "x",
		Transactions: txs,
		EventLog:     []chain.EventRecord{},
	}}
}

func TestSummarizeAggregatesPerUAV(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "Flight_1.json", flightBlocks("UAV_A1", 100, []float64{3, 7.5}, []float64{-10, -22}))
	writeArchive(t, dir, "Flight_2.json", flightBlocks("UAV_A1", 200, []float64{5}, []float64{-5}))
	writeArchive(t, dir, "Flight_3.json", flightBlocks("UAV_B2", 150, []float64{2}, []float64{-8}))

	s, err := Summarize(dir)
	require.NoError(t, err)
	require.Equal(t, 3, s.TotalFlights)
	require.Equal(t, 6, s.TotalBlocks)
	require.Equal(t, 4, s.TotalSamples)
	require.Len(t, s.UAVs, 2)

	a1 := s.UAVs[0]
	require.Equal(t, "UAV_A1", a1.UAVSupi)
	require.Equal(t, 2, a1.Flights)
	require.Equal(t, 3, a1.Samples)
	require.Equal(t, 7.5, a1.MaxSpeed)
	require.Equal(t, -22.0, a1.MinAltitude)
	require.Equal(t, 200.0, a1.LastFlightTime)
	require.Equal(t, "UAV_B2", s.UAVs[1].UAVSupi)
}

func TestSummarizeSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "Flight_1.json", flightBlocks("UAV_A1", 100, []float64{3}, []float64{-10}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Flight_2.json"), []byte("not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	s, err := Summarize(dir)
	require.NoError(t, err)
	require.Equal(t, 1, s.TotalFlights)
}

func TestSummarizeMissingDir(t *testing.T) {
	s, err := Summarize(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, s.UAVs)
	require.Zero(t, s.TotalFlights)
}
