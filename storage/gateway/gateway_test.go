package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veritext/veritext/cidutil"
	"github.com/veritext/veritext/storage"
)

func TestGetValidatesAgainstCID(t *testing.T) {
	payload := []byte("gateway block")
	id, err := cidutil.Sum(payload)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/"+id.String() {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cas, err := New(Options{Base: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := cas.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("wrong bytes")
	}
	if !cas.Has(id) {
		t.Fatalf("Has should be true")
	}
}

func TestGetRejectsTamperedBytes(t *testing.T) {
	id, err := cidutil.Sum([]byte("what was published"))
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("what the gateway claims"))
	}))
	defer srv.Close()

	cas, err := New(Options{Base: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := cas.Get(id); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("got %v want ErrCIDMismatch", err)
	}
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cas, err := New(Options{Base: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id, err := cidutil.Sum([]byte("absent"))
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if _, err := cas.Get(id); !storage.IsNotFound(err) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestPutReadOnlyWithoutAPI(t *testing.T) {
	cas, err := New(Options{Base: "http://127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := cas.Put([]byte("x")); !errors.Is(err, storage.ErrReadOnly) {
		t.Fatalf("got %v want ErrReadOnly", err)
	}
}

func TestPutThroughAPI(t *testing.T) {
	payload := []byte("pinned block")
	id, err := cidutil.Sum(payload)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/block/put" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"Key": id.String(), "Size": len(payload)})
	}))
	defer api.Close()

	cas, err := New(Options{Base: "http://127.0.0.1:0", APIBase: api.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := cas.Put(payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got != id {
		t.Fatalf("Put CID mismatch: got %s want %s", got, id)
	}
}

func TestPutRejectsDivergentAPIKey(t *testing.T) {
	other, err := cidutil.Sum([]byte("different bytes"))
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"Key": other.String()})
	}))
	defer api.Close()

	cas, err := New(Options{Base: "http://127.0.0.1:0", APIBase: api.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := cas.Put([]byte("payload")); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("got %v want ErrCIDMismatch", err)
	}
}
