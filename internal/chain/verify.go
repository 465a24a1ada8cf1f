package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Verdict is the outcome of verifying one chain.
type Verdict struct {
	Secured  bool   `json:"secured"`
	Message  string `json:"message"`
	LastHash string `json:"last_hash,omitempty"`
}

// ErrMalformedBlock reports a structurally invalid block. A malformed chain
// is an input error, never a tamper verdict.
var ErrMalformedBlock = errors.New("malformed block")

// Verify walks the chain in index order, recomputing each block's canonical
// digest and checking the successor's previous-hash link and timestamp
// ordering. It stops at the first violation. The chain is read-only input;
// Verify is pure and safe to call concurrently on independent chains.
func Verify(blocks []Block) (Verdict, error) {
	if len(blocks) < 2 {
		return Verdict{Secured: false, Message: "chain too short for verification"}, nil
	}

	for i, b := range blocks {
		if b.Timestamp == 0 {
			return Verdict{}, fmt.Errorf("%w: block %d missing timestamp", ErrMalformedBlock, i)
		}
		if b.Transactions == nil {
			return Verdict{}, fmt.Errorf("%w: block %d missing transactions", ErrMalformedBlock, i)
		}
	}

	for i := 1; i < len(blocks); i++ {
		expected, err := HashBlock(blocks[i-1])
		if err != nil {
			return Verdict{}, fmt.Errorf("recompute block %d: %w", i-1, err)
		}
		if blocks[i].PreviousHash != expected {
			return Verdict{
				Secured:  false,
				Message:  fmt.Sprintf("tampered: hash mismatch at block %d", i),
				LastHash: blocks[i].PreviousHash,
			}, nil
		}
		if blocks[i].Timestamp <= blocks[i-1].Timestamp {
			return Verdict{
				Secured:  false,
				Message:  fmt.Sprintf("tampered: chronology violation at block %d", i),
				LastHash: blocks[i].PreviousHash,
			}, nil
		}
	}

	return Verdict{
		Secured:  true,
		Message:  "integrity verified",
		LastHash: blocks[len(blocks)-1].CurrentHash,
	}, nil
}

// LoadFile reads an archived flight ledger, a bare JSON array of blocks.
func LoadFile(path string) ([]Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("decode chain: %w", err)
	}
	return blocks, nil
}

// VerifyFile loads an archive and verifies it. Load failures are errors,
// distinct from tamper verdicts.
func VerifyFile(path string) (Verdict, []Block, error) {
	blocks, err := LoadFile(path)
	if err != nil {
		return Verdict{}, nil, err
	}
	verdict, err := Verify(blocks)
	if err != nil {
		return Verdict{}, blocks, err
	}
	return verdict, blocks, nil
}
