package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContentID addresses a stored blob by the keccak256 of its bytes.
type ContentID [32]byte

// ComputeID hashes data into its content id.
func ComputeID(data []byte) ContentID {
	return ContentID(crypto.Keccak256Hash(data))
}

// ParseContentID accepts the hex form printed by String, with or without 0x.
func ParseContentID(s string) (ContentID, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return ContentID{}, fmt.Errorf("content id: %w", err)
	}
	if len(b) != len(ContentID{}) {
		return ContentID{}, fmt.Errorf("content id: want 32 bytes, got %d", len(b))
	}
	return ContentID(b), nil
}

func (id ContentID) String() string {
	return hexutil.Encode(id[:])[2:]
}

// ContentType namespaces blobs inside a backend.
type ContentType int

const (
	SnapshotType ContentType = iota
	ShareType
)

func (ct ContentType) String() string {
	switch ct {
	case SnapshotType:
		return "snapshot"
	case ShareType:
		return "share"
	default:
		return "unknown"
	}
}

// Schemes understood by the storage factory.
const (
	SchemeFile  = "file"
	SchemeS3    = "s3"
	SchemeIPFS  = "ipfs"
	SchemeVault = "vault"
)

// StorageBackendLocation is a parsed --storage URI.
type StorageBackendLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Auth   string
	query  url.Values
}

// ParseStorageLocation parses scheme://[auth@]host/path?params for one of
// the supported schemes.
func ParseStorageLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %w", ErrInvalidLocationURI, err)
	}
	switch parsed.Scheme {
	case SchemeFile, SchemeS3, SchemeIPFS, SchemeVault:
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	loc := StorageBackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		query:  parsed.Query(),
	}
	if parsed.User != nil {
		loc.Auth = parsed.User.String()
	}
	return loc, nil
}

func (loc StorageBackendLocation) String() string { return loc.Raw }

// Param returns a query parameter, or "" when absent.
func (loc StorageBackendLocation) Param(name string) string {
	return loc.query.Get(name)
}

// Flag reports whether a query parameter is set to a true value.
func (loc StorageBackendLocation) Flag(name string) bool {
	switch loc.query.Get(name) {
	case "true", "1", "yes":
		return true
	}
	return false
}

var (
	ErrContentNotFound    = errors.New("content not found")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend stores ledger snapshots and payload share bundles by
// content id.
type StorageBackend interface {
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)
	Available(ctx context.Context) bool
	// Name identifies the backend in logs.
	Name() string
	LocationURI() string
}
