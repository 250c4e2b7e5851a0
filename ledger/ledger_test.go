package ledger

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = common.HexToAddress("0xad01")
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	operator = []AccountID{common.HexToAddress("0x0901"), common.HexToAddress("0x0902")}
	enclave  = []AccountID{common.HexToAddress("0xe901"), common.HexToAddress("0xe902")}
)

type recordingObserver struct {
	mu  sync.Mutex
	ops map[string][]error
}

func (o *recordingObserver) ObserveOperation(op string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ops == nil {
		o.ops = map[string][]error{}
	}
	o.ops[op] = append(o.ops[op], err)
}

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Admins = []AccountID{admin}
	l, err := New(cfg, slog.New(slog.DiscardHandler), opts...)
	require.NoError(t, err)

	cluster, _, err := l.CreateCluster(admin)
	require.NoError(t, err)
	for i := range operator {
		_, err = l.RegisterEnclave(operator[i], enclave[i], "https://enclave.example")
		require.NoError(t, err)
		_, err = l.AssignEnclave(admin, operator[i], cluster)
		require.NoError(t, err)
	}
	l.Fund(alice, 1_000)
	l.Fund(bob, 1_000)
	return l
}

func eventNames(r Receipt) []string {
	var out []string
	for _, rec := range r.Events {
		out = append(out, rec.Name)
	}
	return out
}

func TestSecretLifecycle(t *testing.T) {
	l := newTestLedger(t)

	id, receipt, err := l.MintSecret(alice, MintParams{OffchainData: []byte("meta")}, []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ItemCreated", "SecretAddedToItem"}, eventNames(receipt))
	assert.Equal(t, interfaces.Balance(1_000-10-75), l.Balance(alice))

	_, err = l.Transfer(alice, id, bob)
	require.ErrorIs(t, err, interfaces.ErrCannotTransferNotSyncedSecretItems)

	_, err = l.AddSecretShard(enclave[0], id)
	require.NoError(t, err)
	receipt, err = l.AddSecretShard(enclave[1], id)
	require.NoError(t, err)
	assert.Equal(t, []string{"SecretShardAdded", "SecretSynced"}, eventNames(receipt))

	payload, ok := l.Payload(id, interfaces.SecretPayload)
	require.True(t, ok)
	assert.Equal(t, interfaces.OffchainData("secret"), payload)

	_, err = l.Transfer(alice, id, bob)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ItemID{id}, l.ItemsOf(bob))
}

func TestRejectedOperationCommitsNothing(t *testing.T) {
	obs := &recordingObserver{}
	l := newTestLedger(t, WithObserver(obs))
	seq := l.LastSeq()
	poor := common.HexToAddress("0x9009")
	l.Fund(poor, 50)

	_, _, err := l.MintSecret(poor, MintParams{}, []byte("secret"))
	require.ErrorIs(t, err, interfaces.ErrInsufficientBalance)

	assert.Equal(t, seq, l.LastSeq())
	assert.Empty(t, l.ItemsOf(poor))
	assert.Equal(t, interfaces.Balance(50), l.Balance(poor))
	assert.Len(t, obs.ops["mint_secret"], 1)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	l := newTestLedger(t)

	_, _, err := l.CreateCluster(alice)
	require.ErrorIs(t, err, interfaces.ErrBadOrigin)
	_, err = l.SetFee(alice, items.MintFee, 0)
	require.ErrorIs(t, err, interfaces.ErrBadOrigin)
	_, err = l.RemoveEnclave(alice, operator[0])
	require.ErrorIs(t, err, interfaces.ErrBadOrigin)

	_, err = l.SetFee(admin, items.MintFee, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Balance(0), l.Fees().Mint)
}

func TestZeroFeeMintFromUnfundedAccount(t *testing.T) {
	l := newTestLedger(t)
	carol := common.HexToAddress("0xca401")

	_, _, err := l.Mint(carol, MintParams{})
	require.ErrorIs(t, err, interfaces.ErrInsufficientBalance)

	_, err = l.SetFee(admin, items.MintFee, 0)
	require.NoError(t, err)
	id, _, err := l.Mint(carol, MintParams{})
	require.NoError(t, err)
	it, ok := l.Item(id)
	require.True(t, ok)
	assert.Equal(t, carol, it.Owner)
	assert.Equal(t, interfaces.Balance(0), l.Balance(carol))
}

func TestRemoveEnclaveCompletesHandOff(t *testing.T) {
	l := newTestLedger(t)

	id, _, err := l.Mint(alice, MintParams{})
	require.NoError(t, err)
	_, err = l.ConvertToCapsule(alice, id, []byte("capsule"))
	require.NoError(t, err)
	_, err = l.AddCapsuleShard(enclave[0], id)
	require.NoError(t, err)

	receipt, err := l.RemoveEnclave(admin, operator[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"EnclaveRemoved", "CapsuleSynced"}, eventNames(receipt))

	it, ok := l.Item(id)
	require.True(t, ok)
	assert.Equal(t, items.PhaseIdle, it.Phase())
	_, open := l.SyncSession(id, interfaces.CapsulePayload)
	assert.False(t, open)
}

func TestEventsAndSubscribers(t *testing.T) {
	l := newTestLedger(t)
	var got []string
	l.Subscribe(interfaces.EventSinkFunc(func(e interfaces.Event) { got = append(got, e.EventName()) }))

	seq := l.LastSeq()
	_, _, err := l.CreateCollection(alice, []byte("c"), nil)
	require.NoError(t, err)
	_, _, err = l.Mint(alice, MintParams{})
	require.NoError(t, err)

	records := l.Events(seq, 0)
	require.Len(t, records, 2)
	assert.Equal(t, seq+1, records[0].Seq)
	assert.Equal(t, []string{"CollectionCreated", "ItemCreated"}, got)
	assert.Len(t, l.Events(seq, 1), 1)
}

func TestEnclaveStatus(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.UnregisterEnclave(operator[0])
	require.NoError(t, err)
	st, ok := l.EnclaveStatus(operator[0])
	require.True(t, ok)
	assert.True(t, st.PendingUnregistration)
	require.NotNil(t, st.ClusterID)

	_, ok = l.EnclaveStatus(alice)
	assert.False(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	id, _, err := l.MintSecret(alice, MintParams{Royalty: 50_000}, []byte("secret"))
	require.NoError(t, err)
	_, err = l.AddSecretShard(enclave[0], id)
	require.NoError(t, err)

	data, err := l.MarshalSnapshot()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Admins = []AccountID{admin}
	restored, err := UnmarshalSnapshot(cfg, slog.New(slog.DiscardHandler), data)
	require.NoError(t, err)

	assert.Equal(t, l.Snapshot(), restored.Snapshot())
	assert.Equal(t, l.LastSeq(), restored.LastSeq())

	receipt, err := restored.AddSecretShard(enclave[1], id)
	require.NoError(t, err)
	assert.Equal(t, []string{"SecretShardAdded", "SecretSynced"}, eventNames(receipt))
}

func TestRestoreRejectsUnknownVersion(t *testing.T) {
	_, err := Restore(DefaultConfig(), slog.New(slog.DiscardHandler), Snapshot{Version: 99})
	require.ErrorIs(t, err, interfaces.ErrUnsupportedSnapshot)
}

func TestInvalidQuorum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quorum = "most"
	_, err := New(cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}
