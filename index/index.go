// Package index maps output hashes to the signed envelopes that bind them.
//
// The index is a best-effort discovery aid, never a source of truth: lookups
// return candidate CIDs that callers must verify against the CAS.
package index

import (
	"sort"
	"sync"
)

// Index records and looks up signed-envelope CIDs by output hash.
type Index interface {
	// Record associates an output hash with a signed envelope CID.
	// Recording the same pair twice is a no-op.
	Record(outputHash, signedCID string) error
	// Lookup returns the signed CIDs recorded for an output hash, in
	// insertion order. An unknown hash yields an empty slice, not an error.
	Lookup(outputHash string) ([]string, error)
}

// Memory is an in-process Index.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]string
}

func NewMemory() *Memory {
	return &Memory{entries: map[string][]string{}}
}

func (m *Memory) Record(outputHash, signedCID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries[outputHash] {
		if existing == signedCID {
			return nil
		}
	}
	m.entries[outputHash] = append(m.entries[outputHash], signedCID)
	return nil
}

func (m *Memory) Lookup(outputHash string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries[outputHash]))
	copy(out, m.entries[outputHash])
	return out, nil
}

// Hashes returns all indexed output hashes, sorted. Test helper.
func (m *Memory) Hashes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for h := range m.entries {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
