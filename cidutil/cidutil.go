// Package cidutil fixes the repository's CID contract: CIDv1 with the "raw"
// multicodec and a sha2-256 multihash, derived directly from the stored bytes.
//
// Every artifact this system publishes (content, prompt, journal, proof,
// envelope) is addressed this way, so independent parties derive the same
// identifier from the same bytes.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Sum returns a CIDv1 (raw + sha2-256) derived from data.
func Sum(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SumString is Sum rendered as a string. It returns "" only in the
// unreachable case of multihash.Sum failing for SHA2_256 at default length.
func SumString(data []byte) string {
	id, err := Sum(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Parse decodes a CID string and requires it to be defined.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, fmt.Errorf("cidutil: undefined cid %q", s)
	}
	return id, nil
}
