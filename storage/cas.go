package storage

import "github.com/ipfs/go-cid"

// CAS is the minimal content-addressable storage interface the provenance
// pipeline writes artifacts to and the verifier reads them back from.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable; there is no update or delete.
// - CIDs MUST be derived from the bytes written (cidutil.Sum contract).
// - Get MUST return ErrNotFound when the CID is absent.
//
// Adapters that talk to the network own their timeouts; a slow or hung
// backend must surface as an error, never block forever.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
