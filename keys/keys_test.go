package keys

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func randomSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return seed
}

func TestKeyFromSeed(t *testing.T) {
	seed := randomSeed(t)
	key, err := KeyFromSeed(seed)
	if err != nil {
		t.Fatalf("KeyFromSeed failed: %v", err)
	}
	if key == nil {
		t.Fatalf("nil key")
	}
	if _, err := KeyFromSeed(seed[:16]); err == nil {
		t.Fatalf("short seed must be rejected")
	}
	if _, err := KeyFromSeed(make([]byte, SeedSize)); err == nil {
		t.Fatalf("zero seed must be rejected")
	}
}

func TestAddressFromSeedDeterministic(t *testing.T) {
	seed := randomSeed(t)
	a, err := AddressFromSeed(seed)
	if err != nil {
		t.Fatalf("AddressFromSeed failed: %v", err)
	}
	b, err := AddressFromSeed(seed)
	if err != nil {
		t.Fatalf("AddressFromSeed failed: %v", err)
	}
	if a != b {
		t.Fatalf("address not deterministic")
	}
	if !strings.HasPrefix(a, "0x") || len(a) != 42 {
		t.Fatalf("address shape: %s", a)
	}
}

func TestDeriveRoleSeed(t *testing.T) {
	root := randomSeed(t)
	a, err := DeriveRoleSeed(root, "publisher")
	if err != nil {
		t.Fatalf("DeriveRoleSeed failed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "publisher")
	if err != nil {
		t.Fatalf("DeriveRoleSeed failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("derivation not deterministic")
	}
	c, err := DeriveRoleSeed(root, "reviewer")
	if err != nil {
		t.Fatalf("DeriveRoleSeed failed: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatalf("different roles derived the same seed")
	}
	if bytes.Equal(a, root) {
		t.Fatalf("role seed equals root seed")
	}
	if _, err := DeriveRoleSeed(root, "bad role!"); err == nil {
		t.Fatalf("invalid role must be rejected")
	}
}

func TestParseSeedHex(t *testing.T) {
	hexSeed := strings.Repeat("ab", SeedSize)
	for _, in := range []string{hexSeed, "0x" + hexSeed, "  " + hexSeed + "\n"} {
		seed, err := ParseSeedHex(in)
		if err != nil {
			t.Fatalf("ParseSeedHex(%q) failed: %v", in, err)
		}
		if len(seed) != SeedSize {
			t.Fatalf("wrong seed length")
		}
	}
	if _, err := ParseSeedHex("abcd"); err == nil {
		t.Fatalf("short hex must be rejected")
	}
	if _, err := ParseSeedHex("zz" + hexSeed[2:]); err == nil {
		t.Fatalf("non-hex must be rejected")
	}
}

func TestCheckNames(t *testing.T) {
	if err := CheckKeyName("alice_dev-1"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, bad := range []string{"", "has space", "sl/ash", "dot."} {
		if err := CheckKeyName(bad); err == nil {
			t.Fatalf("bad name %q accepted", bad)
		}
	}
}

func TestStoreInitDeriveExport(t *testing.T) {
	ks := &KeyStore{Directory: t.TempDir()}
	seed := randomSeed(t)

	addr, path, err := ks.InitializeRootKey("alice", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey failed: %v", err)
	}
	if addr == "" || path == "" {
		t.Fatalf("empty result")
	}

	// No overwrite without force.
	if _, _, err := ks.InitializeRootKey("alice", randomSeed(t), false); err == nil {
		t.Fatalf("overwrite without force must fail")
	}

	roleAddr, _, err := ks.DeriveKeyFromRole("alice", "publisher", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole failed: %v", err)
	}
	if roleAddr == addr {
		t.Fatalf("role key address equals root address")
	}

	exported, err := ks.ExportKey("alice", "publisher")
	if err != nil {
		t.Fatalf("ExportKey failed: %v", err)
	}
	if exported != roleAddr {
		t.Fatalf("export mismatch: %s vs %s", exported, roleAddr)
	}

	entries, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Identifier != "alice" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if len(entries[0].Roles) != 1 || entries[0].Roles[0] != "publisher" {
		t.Fatalf("unexpected roles: %+v", entries[0].Roles)
	}
}

func TestLoadSeedPrecedence(t *testing.T) {
	ks := &KeyStore{Directory: t.TempDir()}
	stored := randomSeed(t)
	if _, _, err := ks.InitializeRootKey("bob", stored, false); err != nil {
		t.Fatalf("init: %v", err)
	}

	explicit := strings.Repeat("cd", SeedSize)
	seed, err := ks.LoadSeed(explicit, "bob", "", "")
	if err != nil {
		t.Fatalf("LoadSeed failed: %v", err)
	}
	parsed, _ := ParseSeedHex(explicit)
	if !bytes.Equal(seed, parsed) {
		t.Fatalf("explicit seed-hex should win over the stored key")
	}

	seed, err = ks.LoadSeed("", "bob", "", "")
	if err != nil {
		t.Fatalf("LoadSeed failed: %v", err)
	}
	if !bytes.Equal(seed, stored) {
		t.Fatalf("stored seed not loaded")
	}

	if _, err := ks.LoadSeed("", "", "", ""); err == nil {
		t.Fatalf("no signer must fail")
	}
}
