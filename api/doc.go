// Package api holds the wire types of the ledger HTTP API and the request
// signing scheme shared by the server and its clients.
//
// Mutating requests are signed by the calling account. The caller sends its
// address in X-Account, a fresh nonce in X-Nonce and, in X-Signature, the
// hex-encoded secp256k1 signature of RequestDigest(method, path, nonce,
// body). The server recovers the signer, checks it against X-Account and
// refuses nonces it has already seen.
package api
