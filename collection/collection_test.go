package collection

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	alice = common.HexToAddress("0xa1")
	bob   = common.HexToAddress("0xb0")
)

func u32(v uint32) *uint32 { return &v }

func TestCreate(t *testing.T) {
	var got []interfaces.Event
	r := New(DefaultConfig(), interfaces.EventSinkFunc(func(e interfaces.Event) { got = append(got, e) }))

	id, err := r.Create(alice, interfaces.OffchainData("meta"), nil)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CollectionID(0), id)

	id, err = r.Create(alice, nil, u32(5))
	require.NoError(t, err)
	assert.Equal(t, interfaces.CollectionID(1), id)

	c, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint32(5), *c.Limit)
	require.Len(t, got, 2)
	assert.Equal(t, interfaces.CollectionCreated{CollectionID: 1, Owner: alice, Limit: u32(5)}, got[1])

	_, err = r.Create(alice, nil, u32(DefaultConfig().MaxCollectionSize+1))
	assert.ErrorIs(t, err, interfaces.ErrCollectionLimitExceededMaximumAllowed)
	_, err = r.Create(alice, make(interfaces.OffchainData, 151), nil)
	assert.ErrorIs(t, err, interfaces.ErrOffchainDataTooLong)
}

func TestCreateStopsAtLastID(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.nextID = math.MaxUint32 - 1

	id, err := r.Create(alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CollectionID(math.MaxUint32-1), id)

	_, err = r.Create(alice, nil, nil)
	assert.ErrorIs(t, err, interfaces.ErrIDsExhausted)
	_, ok := r.Get(0)
	assert.False(t, ok)
}

// A limit of one admits one item and can never be changed.
func TestLimitOnce(t *testing.T) {
	r := New(DefaultConfig(), nil)
	id, err := r.Create(alice, nil, u32(1))
	require.NoError(t, err)

	require.NoError(t, r.CheckAdd(alice, id))
	r.Add(id, 10)
	assert.ErrorIs(t, r.CheckAdd(alice, id), interfaces.ErrCollectionHasReachedLimit)

	assert.ErrorIs(t, r.Limit(alice, id, 0), interfaces.ErrCollectionLimitAlreadySet)
	assert.ErrorIs(t, r.Limit(alice, id, 2), interfaces.ErrCollectionLimitAlreadySet)
}

func TestLimit(t *testing.T) {
	r := New(Config{MaxCollectionSize: 3, MaxOffchainDataLen: 10}, nil)
	id, err := r.Create(alice, nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Limit(bob, id, 1), interfaces.ErrNotTheCollectionOwner)
	assert.ErrorIs(t, r.Limit(alice, 9, 1), interfaces.ErrCollectionNotFound)
	assert.ErrorIs(t, r.Limit(alice, id, 4), interfaces.ErrCollectionLimitExceededMaximumAllowed)

	r.Add(id, 1)
	r.Add(id, 2)
	assert.ErrorIs(t, r.Limit(alice, id, 1), interfaces.ErrCollectionHasTooManyItems)
	require.NoError(t, r.Limit(alice, id, 2))
	assert.ErrorIs(t, r.CheckAdd(alice, id), interfaces.ErrCollectionHasReachedLimit)
}

func TestGlobalMaximumBoundsUnlimitedCollections(t *testing.T) {
	r := New(Config{MaxCollectionSize: 2, MaxOffchainDataLen: 10}, nil)
	id, err := r.Create(alice, nil, nil)
	require.NoError(t, err)
	r.Add(id, 1)
	r.Add(id, 2)
	assert.ErrorIs(t, r.CheckAdd(alice, id), interfaces.ErrCollectionHasReachedLimit)
}

func TestCloseAndBurn(t *testing.T) {
	r := New(DefaultConfig(), nil)
	id, err := r.Create(alice, nil, nil)
	require.NoError(t, err)
	r.Add(id, 4)

	assert.ErrorIs(t, r.Close(bob, id), interfaces.ErrNotTheCollectionOwner)
	require.NoError(t, r.Close(alice, id))
	assert.ErrorIs(t, r.Close(alice, id), interfaces.ErrCollectionIsClosed)
	assert.ErrorIs(t, r.CheckAdd(alice, id), interfaces.ErrCollectionIsClosed)
	assert.ErrorIs(t, r.Limit(alice, id, 5), interfaces.ErrCollectionIsClosed)

	assert.ErrorIs(t, r.Burn(alice, id), interfaces.ErrCollectionIsNotEmpty)
	r.Remove(id, 4)
	assert.ErrorIs(t, r.Burn(bob, id), interfaces.ErrNotTheCollectionOwner)
	require.NoError(t, r.Burn(alice, id))
	_, ok := r.Get(id)
	assert.False(t, ok)
	assert.ErrorIs(t, r.Burn(alice, id), interfaces.ErrCollectionNotFound)
}

func TestSetMetadata(t *testing.T) {
	r := New(DefaultConfig(), nil)
	id, err := r.Create(alice, interfaces.OffchainData("v1"), nil)
	require.NoError(t, err)

	require.NoError(t, r.SetMetadata(alice, id, interfaces.OffchainData("v2")))
	c, _ := r.Get(id)
	assert.Equal(t, interfaces.OffchainData("v2"), c.OffchainData)
	assert.ErrorIs(t, r.SetMetadata(bob, id, nil), interfaces.ErrNotTheCollectionOwner)
}

func TestStateRoundTrip(t *testing.T) {
	r := New(DefaultConfig(), nil)
	_, err := r.Create(alice, interfaces.OffchainData("a"), u32(3))
	require.NoError(t, err)
	id, err := r.Create(bob, nil, nil)
	require.NoError(t, err)
	r.Add(id, 7)

	restored := Restore(DefaultConfig(), nil, r.State())
	assert.Equal(t, r.State(), restored.State())
	next, err := restored.Create(alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CollectionID(2), next)
}

// A second limit never succeeds, whatever the value.
func TestSecondLimitAlwaysFails(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := New(DefaultConfig(), nil)
		id, err := r.Create(alice, nil, nil)
		if err != nil {
			rt.Fatal(err)
		}
		first := rapid.Uint32Range(0, DefaultConfig().MaxCollectionSize).Draw(rt, "first")
		if err := r.Limit(alice, id, first); err != nil {
			rt.Fatalf("first limit: %v", err)
		}
		second := rapid.Uint32().Draw(rt, "second")
		if err := r.Limit(alice, id, second); err != interfaces.ErrCollectionLimitAlreadySet {
			rt.Fatalf("second limit %d: got %v", second, err)
		}
	})
}
