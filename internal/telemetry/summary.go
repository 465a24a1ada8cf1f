package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flightledger/internal/chain"
)

// UAVSummary aggregates one UAV's archived flight history.
type UAVSummary struct {
	UAVSupi        string  `json:"uav_supi"`
	Flights        int     `json:"flights"`
	Blocks         int     `json:"blocks"`
	Samples        int     `json:"samples"`
	MaxSpeed       float64 `json:"max_speed"`
	MinAltitude    float64 `json:"min_altitude"`
	LastFlightTime float64 `json:"last_flight_time"`
}

type Summary struct {
	UAVs         []UAVSummary `json:"uavs"`
	TotalFlights int          `json:"total_flights"`
	TotalBlocks  int          `json:"total_blocks"`
	TotalSamples int          `json:"total_samples"`
}

// Summarize walks the archive directory and aggregates telemetry per UAV.
// Unreadable or undecodable archives are skipped; the summary is a
// dashboard statistic, not an integrity check.
func Summarize(archiveDir string) (Summary, error) {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{UAVs: []UAVSummary{}}, nil
		}
		return Summary{}, err
	}

	perUAV := map[string]*UAVSummary{}
	summary := Summary{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "Flight_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(archiveDir, name))
		if err != nil {
			continue
		}
		var blocks []chain.Block
		if err := json.Unmarshal(data, &blocks); err != nil || len(blocks) == 0 {
			continue
		}

		supi := flightUAV(blocks)
		agg, ok := perUAV[supi]
		if !ok {
			agg = &UAVSummary{UAVSupi: supi, MinAltitude: 0}
			perUAV[supi] = agg
		}

		agg.Flights++
		agg.Blocks += len(blocks)
		if ts := blocks[0].Timestamp; ts > agg.LastFlightTime {
			agg.LastFlightTime = ts
		}
		for _, b := range blocks {
			for _, tx := range b.Transactions {
				if tx.Kind != chain.TxTelemetry || tx.Telemetry == nil {
					continue
				}
				agg.Samples++
				if tx.Telemetry.VelMag > agg.MaxSpeed {
					agg.MaxSpeed = tx.Telemetry.VelMag
				}
				if tx.Telemetry.ZAlt < agg.MinAltitude {
					agg.MinAltitude = tx.Telemetry.ZAlt
				}
			}
		}
		summary.TotalFlights++
		summary.TotalBlocks += len(blocks)
	}

	summary.UAVs = make([]UAVSummary, 0, len(perUAV))
	for _, agg := range perUAV {
		summary.TotalSamples += agg.Samples
		summary.UAVs = append(summary.UAVs, *agg)
	}
	sort.Slice(summary.UAVs, func(i, j int) bool {
		return summary.UAVs[i].UAVSupi < summary.UAVs[j].UAVSupi
	})
	return summary, nil
}

// flightUAV pulls the UAV SUPI from the genesis block's chain-start event.
func flightUAV(blocks []chain.Block) string {
	for _, ev := range blocks[0].EventLog {
		if ev.UAVSupi != "" {
			return ev.UAVSupi
		}
	}
	for _, tx := range blocks[0].Transactions {
		if tx.UAVSupi != "" {
			return tx.UAVSupi
		}
	}
	return "unknown"
}
