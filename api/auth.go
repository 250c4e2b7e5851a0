package api

import (
	"crypto/ecdsa"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
)

// Headers authenticating a signed request.
const (
	AccountHeader   = "X-Account"
	NonceHeader     = "X-Nonce"
	SignatureHeader = "X-Signature"
)

// RequestDigest is the hash a caller signs: keccak256 over the method, the
// path, the decimal nonce and the body.
func RequestDigest(method, path string, nonce uint64, body []byte) []byte {
	return crypto.Keccak256(
		[]byte(method),
		[]byte(path),
		[]byte(strconv.FormatUint(nonce, 10)),
		body,
	)
}

// SignRequest returns the 65-byte recoverable signature of a request.
func SignRequest(key *ecdsa.PrivateKey, method, path string, nonce uint64, body []byte) ([]byte, error) {
	return crypto.Sign(RequestDigest(method, path, nonce, body), key)
}
