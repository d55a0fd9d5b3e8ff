package index

import (
	"reflect"
	"testing"
)

func TestMemoryRecordLookup(t *testing.T) {
	m := NewMemory()
	if err := m.Record("0xaaa", "cid1"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := m.Record("0xaaa", "cid2"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := m.Lookup("0xaaa")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"cid1", "cid2"}) {
		t.Fatalf("lookup order: got %v", got)
	}
}

func TestMemoryRecordIdempotent(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 3; i++ {
		if err := m.Record("0xbbb", "same"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	got, err := m.Lookup("0xbbb")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("duplicate pair should record once, got %v", got)
	}
}

func TestMemoryLookupUnknown(t *testing.T) {
	m := NewMemory()
	got, err := m.Lookup("0xccc")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unknown hash should yield no candidates, got %v", got)
	}
}
