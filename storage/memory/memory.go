// Package memory provides an in-process CAS used for tests and for the mock
// storage mode of the provenance pipeline.
package memory

import (
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/veritext/veritext/cidutil"
	"github.com/veritext/veritext/storage"
)

// CAS stores blocks in a process-local map. Safe for concurrent use.
type CAS struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

func New() *CAS {
	return &CAS{blocks: make(map[string][]byte)}
}

func (c *CAS) Put(bytes []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	cp := append([]byte(nil), bytes...)
	c.mu.Lock()
	c.blocks[id.String()] = cp
	c.mu.Unlock()
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.blocks[id.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	_, ok := c.blocks[id.String()]
	c.mu.RUnlock()
	return ok
}

// Len reports the number of stored blocks.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}
