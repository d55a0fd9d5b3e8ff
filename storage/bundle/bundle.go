// Package bundle exports and imports deterministic TAR evidence bundles.
//
// An evidence bundle carries the blocks needed to re-verify a published
// record offline: the signed envelope, the content, and any attestation
// artifacts. Bundle bytes are deterministic for a given block set, so two
// parties exporting the same evidence get byte-identical bundles.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/veritext/veritext/cidutil"
	"github.com/veritext/veritext/storage"
)

// FormatVersion is the current manifest schema version.
const FormatVersion = 1

// Kind identifies the bundle flavor in the manifest.
const Kind = "veritext/evidence"

// Well-known role names used in manifest labels.
const (
	RoleSigned  = "signed"
	RoleContent = "content"
	RolePrompt  = "prompt"
	RoleJournal = "journal"
	RoleProof   = "proof"
)

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Roles is optional, non-authoritative metadata mapping role names to CIDs.
	Roles map[string]cid.Cid
	// IncludeManifest controls whether manifest.json is included.
	IncludeManifest bool
}

// Export writes a deterministic TAR bundle containing the blocks for the
// given CIDs. Entry order is lexicographic and TAR headers are normalized.
// All exported bytes are validated against their CIDs.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}

	keys := make([]string, 0, len(uniq))
	for s := range uniq {
		keys = append(keys, s)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)

	blocks := make([]manifestBlock, 0, len(keys))
	for _, s := range keys {
		id := uniq[s]
		b, err := cas.Get(id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		got, err := cidutil.Sum(b)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if got.String() != id.String() {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}

		if err := writeFile(tw, "blocks/"+id.String(), b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, manifestBlock{CID: id.String(), Size: len(b)})
	}

	if opts.IncludeManifest {
		m := manifestJSON{
			Version:   FormatVersion,
			Kind:      Kind,
			CIDCodec:  "raw",
			Multihash: "sha2-256",
			Blocks:    blocks,
		}

		if len(opts.Roles) > 0 {
			names := make([]string, 0, len(opts.Roles))
			for k := range opts.Roles {
				names = append(names, k)
			}
			sort.Strings(names)

			roles := make([]manifestRole, 0, len(names))
			for _, name := range names {
				if name == "" {
					_ = tw.Close()
					return fmt.Errorf("bundle: empty role name")
				}
				v := opts.Roles[name]
				if !v.Defined() {
					_ = tw.Close()
					return storage.ErrInvalidCID
				}
				roles = append(roles, manifestRole{Name: name, CID: v.String()})
			}
			m.Roles = roles
		}

		b, err := json.Marshal(m)
		if err != nil {
			_ = tw.Close()
			return err
		}
		b = append(b, '\n')
		if err := writeFile(tw, "manifest.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	// Default (false) is fail-closed.
	IgnoreUnknown bool
}

// Import reads a bundle from r and imports all blocks into cas.
// Default behavior is fail-closed: unknown entries cause an error.
func Import(r io.Reader, cas storage.CAS) error {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and imports all blocks into cas.
// Every block's bytes must match both the filename CID and the computed CID.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "manifest.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !id.Defined() {
			return storage.ErrInvalidCID
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return rerr
		}
		got, herr := cidutil.Sum(payload)
		if herr != nil {
			return herr
		}
		if got.String() != id.String() {
			return storage.ErrCIDMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		putID, perr := cas.Put(payload)
		if perr != nil {
			return perr
		}
		if putID.String() != id.String() {
			return storage.ErrCIDMismatch
		}
	}
}

type manifestJSON struct {
	Version   int             `json:"version"`
	Kind      string          `json:"kind"`
	CIDCodec  string          `json:"cidCodec"`
	Multihash string          `json:"multihash"`
	Blocks    []manifestBlock `json:"blocks"`
	Roles     []manifestRole  `json:"roles,omitempty"`
}

type manifestBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type manifestRole struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
