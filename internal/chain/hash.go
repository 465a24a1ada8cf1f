package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashBlock computes the block's canonical SHA-256 digest as lowercase hex.
// The block's own current_hash field is excluded, so the digest is stable
// whether or not the hash has been filled in yet.
func HashBlock(b Block) (string, error) {
	generic, err := toGeneric(b)
	if err != nil {
		return "", err
	}
	m, ok := generic.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("hash block: expected object, got %T", generic)
	}
	delete(m, "current_hash")

	buf := &bytes.Buffer{}
	if err := writeCanonical(buf, m); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func hashBytes(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
