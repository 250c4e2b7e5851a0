package httpserver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/patrickmn/go-cache"
	"github.com/ruteri/tee-capsule-ledger/api"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

var (
	errMissingAuth    = errors.New("missing authentication headers")
	errBadSignature   = errors.New("signature does not match account")
	errReplayedNonce  = errors.New("nonce already used")
	errMalformedNonce = errors.New("malformed nonce")
)

// Authenticator verifies signed requests and remembers nonces for a TTL.
type Authenticator struct {
	nonces *cache.Cache
}

func NewAuthenticator(ttl time.Duration) *Authenticator {
	return &Authenticator{nonces: cache.New(ttl, 2*ttl)}
}

func unauthorized(err error) error {
	return &RequestError{StatusCode: http.StatusUnauthorized, Err: err}
}

// Authenticate returns the account that signed r with the given body.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (interfaces.AccountID, error) {
	accountHex := r.Header.Get(api.AccountHeader)
	nonceStr := r.Header.Get(api.NonceHeader)
	sigHex := r.Header.Get(api.SignatureHeader)
	if accountHex == "" || nonceStr == "" || sigHex == "" {
		return interfaces.AccountID{}, unauthorized(errMissingAuth)
	}

	account, err := interfaces.NewAccountIDFromHex(accountHex)
	if err != nil {
		return interfaces.AccountID{}, unauthorized(err)
	}
	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return interfaces.AccountID{}, unauthorized(errMalformedNonce)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return interfaces.AccountID{}, unauthorized(errBadSignature)
	}

	pub, err := crypto.SigToPub(api.RequestDigest(r.Method, r.URL.Path, nonce, body), sig)
	if err != nil || crypto.PubkeyToAddress(*pub) != account {
		return interfaces.AccountID{}, unauthorized(errBadSignature)
	}

	// Add fails when the key is already present and unexpired.
	if err := a.nonces.Add(fmt.Sprintf("%s/%d", account.Hex(), nonce), struct{}{}, cache.DefaultExpiration); err != nil {
		return interfaces.AccountID{}, unauthorized(errReplayedNonce)
	}
	return account, nil
}
