package server

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru"

	"flightledger/internal/chain"
)

// verdictCache memoizes archive verification results. Archives are
// immutable once written, so the cache key folds in the file's mtime: a
// rewritten (possibly tampered) file never hits a stale verdict.
type verdictCache struct {
	cache *lru.Cache
}

func newVerdictCache(size int) (*verdictCache, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &verdictCache{cache: c}, nil
}

func (v *verdictCache) key(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size()), nil
}

// Verify returns the cached verdict for the archive when its key still
// matches, verifying and caching otherwise. The chain itself is always
// re-read so the response can carry the blocks.
func (v *verdictCache) Verify(path string) (chain.Verdict, []chain.Block, error) {
	key, err := v.key(path)
	if err != nil {
		return chain.Verdict{}, nil, err
	}
	if cached, ok := v.cache.Get(key); ok {
		blocks, err := chain.LoadFile(path)
		if err != nil {
			return chain.Verdict{}, nil, err
		}
		return cached.(chain.Verdict), blocks, nil
	}
	verdict, blocks, err := chain.VerifyFile(path)
	if err != nil {
		return chain.Verdict{}, nil, err
	}
	v.cache.Add(key, verdict)
	return verdict, blocks, nil
}
