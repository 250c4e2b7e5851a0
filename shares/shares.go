// Package shares is client tooling that splits a confidential payload into
// Shamir shares, one per enclave of the cluster a hand-off is addressed to,
// each sealed to the enclave's secp256k1 key with ECIES. The ledger never
// sees the payload; it only records the reference and the enclaves'
// acknowledgements.
package shares

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

var (
	ErrThreshold      = errors.New("threshold must be between 2 and the number of recipients")
	ErrNotARecipient  = errors.New("bundle holds no share for this key")
	ErrNotEnoughParts = errors.New("not enough shares to recover the payload")
)

// Share is one sealed share addressed to an enclave.
type Share struct {
	Enclave    interfaces.AccountID `json:"enclave"`
	Ciphertext []byte               `json:"ciphertext"`
}

// Bundle is the set of shares produced for one payload.
type Bundle struct {
	ItemID    interfaces.ItemID      `json:"item_id"`
	Kind      interfaces.PayloadKind `json:"kind"`
	Threshold int                    `json:"threshold"`
	Shares    []Share                `json:"shares"`
}

// Split splits payload so that any threshold of the recipients can recover it.
func Split(item interfaces.ItemID, kind interfaces.PayloadKind, payload []byte, threshold int, recipients []*ecdsa.PublicKey) (Bundle, error) {
	if threshold < 2 || threshold > len(recipients) {
		return Bundle{}, ErrThreshold
	}
	parts, err := shamir.Split(payload, len(recipients), threshold)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to split payload: %w", err)
	}

	b := Bundle{ItemID: item, Kind: kind, Threshold: threshold}
	for i, pub := range recipients {
		sealed, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), parts[i], nil, nil)
		if err != nil {
			return Bundle{}, fmt.Errorf("failed to seal share %d: %w", i, err)
		}
		b.Shares = append(b.Shares, Share{Enclave: crypto.PubkeyToAddress(*pub), Ciphertext: sealed})
	}
	return b, nil
}

// Open unseals the share addressed to key's account.
func (b Bundle) Open(key *ecdsa.PrivateKey) ([]byte, error) {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	for _, s := range b.Shares {
		if s.Enclave != addr {
			continue
		}
		part, err := ecies.ImportECDSA(key).Decrypt(s.Ciphertext, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal share: %w", err)
		}
		return part, nil
	}
	return nil, ErrNotARecipient
}

// Combine recovers a payload from unsealed shares.
func Combine(threshold int, parts [][]byte) ([]byte, error) {
	if len(parts) < threshold {
		return nil, ErrNotEnoughParts
	}
	payload, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	return payload, nil
}

func (b Bundle) Marshal() ([]byte, error) { return json.Marshal(b) }

func UnmarshalBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("invalid share bundle: %w", err)
	}
	return b, nil
}
