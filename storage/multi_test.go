package storage_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/veritext/veritext/cidutil"
	"github.com/veritext/veritext/storage"
	"github.com/veritext/veritext/storage/memory"
)

// readOnlyCAS fails every Put with ErrReadOnly and delegates reads.
type readOnlyCAS struct{ inner storage.CAS }

func (r readOnlyCAS) Put([]byte) (cid.Cid, error)    { return cid.Undef, storage.ErrReadOnly }
func (r readOnlyCAS) Get(id cid.Cid) ([]byte, error) { return r.inner.Get(id) }
func (r readOnlyCAS) Has(id cid.Cid) bool            { return r.inner.Has(id) }

func TestMultiCASPutGoesToFirst(t *testing.T) {
	a := memory.New()
	b := memory.New()
	m := storage.MultiCAS{Adapters: []storage.CAS{a, b}}

	id, err := m.Put([]byte("first only"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !a.Has(id) {
		t.Fatalf("first adapter should hold the block")
	}
	if b.Has(id) {
		t.Fatalf("second adapter should not hold the block")
	}
}

func TestMultiCASGetFallsBack(t *testing.T) {
	a := memory.New()
	b := memory.New()
	want := []byte("only in second")
	id, err := b.Put(want)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	m := storage.MultiCAS{Adapters: []storage.CAS{a, b}}
	got, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("wrong bytes from fallback")
	}
	if !m.Has(id) {
		t.Fatalf("Has should see the second adapter")
	}
}

func TestMultiCASMissEverywhere(t *testing.T) {
	m := storage.MultiCAS{Adapters: []storage.CAS{memory.New(), memory.New()}}
	id, err := cidutil.Sum([]byte("nowhere"))
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if _, err := m.Get(id); !storage.IsNotFound(err) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestMultiCASNoAdapters(t *testing.T) {
	m := storage.MultiCAS{}
	if _, err := m.Put([]byte("x")); err == nil {
		t.Fatalf("Put with no adapters must fail")
	}
}

func TestReplicatingCASPutAll(t *testing.T) {
	a := memory.New()
	b := memory.New()
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "a", CAS: a},
		{Name: "b", CAS: b},
	}}

	payload := []byte("replicated")
	id, perBackend, err := r.PutAll(payload)
	if err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	if len(perBackend) != 2 {
		t.Fatalf("want 2 backend CIDs, got %d", len(perBackend))
	}
	for name, got := range perBackend {
		if got != id {
			t.Fatalf("backend %s returned divergent CID", name)
		}
	}
	if !a.Has(id) || !b.Has(id) {
		t.Fatalf("both backends should hold the block")
	}
}

func TestReplicatingCASWriteFailureIsFatal(t *testing.T) {
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "ro", CAS: readOnlyCAS{inner: memory.New()}},
		{Name: "mem", CAS: memory.New()},
	}}
	if _, err := r.Put([]byte("x")); !errors.Is(err, storage.ErrReadOnly) {
		t.Fatalf("got %v want ErrReadOnly", err)
	}
}
