// Package storage keeps ledger snapshots and payload shares in
// content-addressed backends selected by URI:
//
//	file:///var/lib/capsule-ledger
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=eu-west-1&endpoint=minio:9000
//	ipfs://127.0.0.1:5001/capsule-ledger
//	vault://vault.internal:8200/secret/capsule-ledger?token=...
//
// Content is identified by the SHA-256 hash of its bytes, and each content
// type lives in its own namespace within a backend. Several backends can be
// combined with NewMultiStorageBackend, which stores to every available
// backend and fetches from the first one holding the content.
package storage
