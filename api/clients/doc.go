/*
Package clients provides a Go client for the ledger HTTP API.

LedgerClient signs every operation with the caller's secp256k1 key as
described in package api, using a strictly increasing nonce seeded from the
clock so restarts do not collide with nonces the server still remembers.

Rejections come back as *APIError. An APIError matches the ledger sentinel
it names, so callers can test results the same way they would against an
in-process ledger:

	_, err := client.Transfer(ctx, id, bob)
	if errors.Is(err, interfaces.ErrCannotTransferNotSyncedSecretItems) {
		// wait for the enclaves to acknowledge their shards
	}
*/
package clients
