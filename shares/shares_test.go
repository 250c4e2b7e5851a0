package shares

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(t *testing.T, n int) ([]*ecdsa.PrivateKey, []*ecdsa.PublicKey) {
	t.Helper()
	var privs []*ecdsa.PrivateKey
	var pubs []*ecdsa.PublicKey
	for range n {
		k, err := crypto.GenerateKey()
		require.NoError(t, err)
		privs = append(privs, k)
		pubs = append(pubs, &k.PublicKey)
	}
	return privs, pubs
}

func TestSplitOpenCombine(t *testing.T) {
	privs, pubs := keys(t, 3)
	payload := []byte("capsule key material")

	b, err := Split(7, interfaces.CapsulePayload, payload, 2, pubs)
	require.NoError(t, err)
	require.Len(t, b.Shares, 3)
	assert.Equal(t, crypto.PubkeyToAddress(*pubs[1]), b.Shares[1].Enclave)

	data, err := b.Marshal()
	require.NoError(t, err)
	b, err = UnmarshalBundle(data)
	require.NoError(t, err)

	p0, err := b.Open(privs[0])
	require.NoError(t, err)
	p2, err := b.Open(privs[2])
	require.NoError(t, err)

	got, err := Combine(b.Threshold, [][]byte{p0, p2})
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = Combine(b.Threshold, [][]byte{p0})
	require.ErrorIs(t, err, ErrNotEnoughParts)
}

func TestOpenRejectsStranger(t *testing.T) {
	_, pubs := keys(t, 2)
	stranger, _ := keys(t, 1)

	b, err := Split(1, interfaces.SecretPayload, []byte("secret"), 2, pubs)
	require.NoError(t, err)
	_, err = b.Open(stranger[0])
	require.ErrorIs(t, err, ErrNotARecipient)
}

func TestSplitThreshold(t *testing.T) {
	_, pubs := keys(t, 2)
	_, err := Split(1, interfaces.SecretPayload, []byte("secret"), 1, pubs)
	require.ErrorIs(t, err, ErrThreshold)
	_, err = Split(1, interfaces.SecretPayload, []byte("secret"), 3, pubs)
	require.ErrorIs(t, err, ErrThreshold)
}
