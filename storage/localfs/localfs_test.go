package localfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/veritext/veritext/cidutil"
	"github.com/veritext/veritext/storage"
	"github.com/veritext/veritext/storage/testkit"
)

func TestConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		cas, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	})
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("empty root must be rejected")
	}
}

func TestImmutableOnDivergentRewrite(t *testing.T) {
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b := []byte("original")
	id, err := cas.Put(b)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored file out of band.
	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if _, err := cas.Put(b); !errors.Is(err, storage.ErrImmutable) {
		t.Fatalf("rewrite over divergent bytes: got %v want ErrImmutable", err)
	}
	if _, err := cas.Get(id); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("get of tampered block: got %v want ErrCIDMismatch", err)
	}
}

func TestFanoutLayout(t *testing.T) {
	root := t.TempDir()
	cas, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b := []byte("fanout")
	id, err := cas.Put(b)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	want := filepath.Join(root, id.String()[:2], id.String())
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("block not at fanout path %s: %v", want, err)
	}
}

func TestGetValidatesBytes(t *testing.T) {
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id, err := cidutil.Sum([]byte("expected"))
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	// Plant wrong bytes under the right path.
	path := cas.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("unexpected"), 0o444); err != nil {
		t.Fatalf("plant: %v", err)
	}
	if _, err := cas.Get(id); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("got %v want ErrCIDMismatch", err)
	}
}
