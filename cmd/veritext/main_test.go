package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veritext/veritext/cidutil"
)

func TestRunNoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, &out, &errOut); code != 2 {
		t.Fatalf("exit code: got %d want 2", code)
	}
	if !strings.Contains(errOut.String(), "Usage:") {
		t.Fatalf("usage not printed")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("exit code: got %d want 2", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("missing diagnostic: %s", errOut.String())
	}
}

func TestDocCID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	payload := []byte("document bytes")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out, errOut bytes.Buffer
	if code := run([]string{"doc-cid", path}, &out, &errOut); code != 0 {
		t.Fatalf("exit code: got %d, stderr=%s", code, errOut.String())
	}
	want, err := cidutil.Sum(payload)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if strings.TrimSpace(out.String()) != want.String() {
		t.Fatalf("doc-cid: got %q want %q", out.String(), want)
	}
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"temperature=0.7", "stream=true", "stop=END"})
	if err != nil {
		t.Fatalf("parseParams failed: %v", err)
	}
	if got["temperature"] != 0.7 {
		t.Fatalf("temperature: %v", got["temperature"])
	}
	if got["stream"] != true {
		t.Fatalf("stream: %v", got["stream"])
	}
	if got["stop"] != "END" {
		t.Fatalf("stop: %v", got["stop"])
	}
	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Fatalf("missing = must fail")
	}
}
