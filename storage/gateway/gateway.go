// Package gateway is a CAS adapter backed by an IPFS HTTP gateway, with
// optional write support through a Kubo RPC API endpoint.
//
// Gateways are plain HTTP object servers: Get fetches the raw block at
// /ipfs/<cid> and validates the returned bytes against the requested CID, so
// a misbehaving or tampering gateway is detected rather than trusted. Put is
// only available when APIBase is configured; a gateway-only adapter returns
// storage.ErrReadOnly, which MultiCAS skips during write fallback.
//
// Transport/reachability is not validity; CID verification is.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/veritext/veritext/cidutil"
	"github.com/veritext/veritext/storage"
)

// DefaultTimeout bounds every gateway round trip unless overridden.
const DefaultTimeout = 30 * time.Second

type Options struct {
	// Base is the gateway root, e.g. "https://ipfs.io". Required.
	Base string
	// APIBase is an optional Kubo RPC API root, e.g. "http://127.0.0.1:5001".
	// When empty the adapter is read-only.
	APIBase string
	// Timeout applies per HTTP request; DefaultTimeout when zero.
	Timeout time.Duration
	// HTTPClient overrides the transport (tests). A nil client gets a
	// timeout-bounded default.
	HTTPClient *http.Client
}

type CAS struct {
	base    string
	apiBase string
	client  *http.Client
}

func New(opts Options) (*CAS, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.Base), "/")
	if base == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("gateway: invalid base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &CAS{
		base:    base,
		apiBase: strings.TrimRight(strings.TrimSpace(opts.APIBase), "/"),
		client:  client,
	}, nil
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	if c.apiBase == "" {
		return cid.Undef, storage.ErrReadOnly
	}
	want, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	if !want.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("data", "block")
	if err != nil {
		return cid.Undef, err
	}
	if _, err := part.Write(data); err != nil {
		return cid.Undef, err
	}
	if err := mw.Close(); err != nil {
		return cid.Undef, err
	}

	// Explicit block parameters keep the returned CID on the repo contract.
	u := c.apiBase + "/api/v0/block/put?cid-codec=raw&mhtype=sha2-256&mhlen=32&pin=true"
	req, err := http.NewRequest(http.MethodPost, u, &body)
	if err != nil {
		return cid.Undef, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return cid.Undef, fmt.Errorf("gateway: block put: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cid.Undef, fmt.Errorf("gateway: block put: unexpected status %s", resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return cid.Undef, err
	}
	got, err := parseBlockPutKey(raw)
	if err != nil {
		return cid.Undef, err
	}
	if got.String() != want.String() {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	req, err := http.NewRequest(http.MethodGet, c.base+"/ipfs/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.ipld.raw")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: get: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, storage.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("gateway: get: unexpected status %s", resp.Status)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	got, err := cidutil.Sum(b)
	if err != nil {
		return nil, err
	}
	if got.String() != id.String() {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	req, err := http.NewRequest(http.MethodHead, c.base+"/ipfs/"+id.String(), nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// parseBlockPutKey extracts the CID from a Kubo block/put JSON reply
// ({"Key":"<cid>","Size":n}) without binding to the full response schema.
func parseBlockPutKey(raw []byte) (cid.Cid, error) {
	var reply struct {
		Key string `json:"Key"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return cid.Undef, fmt.Errorf("gateway: block put: malformed response: %w", err)
	}
	if reply.Key == "" {
		return cid.Undef, fmt.Errorf("gateway: block put: missing Key in response")
	}
	id, err := cid.Decode(reply.Key)
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	return id, nil
}
