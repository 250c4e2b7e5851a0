package registry

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice   = common.HexToAddress("0x01")
	bob     = common.HexToAddress("0x02")
	charlie = common.HexToAddress("0x03")
	dave    = common.HexToAddress("0x04")
	eve     = common.HexToAddress("0x05")
	ferdie  = common.HexToAddress("0x06")
)

type recorder struct {
	events []interfaces.Event
}

func (r *recorder) Emit(e interfaces.Event) { r.events = append(r.events, e) }

func (r *recorder) last() interfaces.Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func newTestRegistry(t *testing.T) (*Registry, *recorder) {
	t.Helper()
	rec := &recorder{}
	return New(DefaultConfig(), rec), rec
}

// assigned registers operator with enclave and assigns it to cluster.
func assigned(t *testing.T, r *Registry, operator, enclave AccountID, cluster interfaces.ClusterID) {
	t.Helper()
	require.NoError(t, r.RegisterEnclave(operator, enclave, "https://"+enclave.Hex()))
	require.NoError(t, r.AssignEnclave(operator, cluster))
}

func TestRegisterEnclave(t *testing.T) {
	r, rec := newTestRegistry(t)

	require.NoError(t, r.RegisterEnclave(alice, bob, "https://enclave"))
	reg, ok := r.Registration(alice)
	require.True(t, ok)
	assert.Equal(t, Enclave{Address: bob, APIURI: "https://enclave"}, reg)
	assert.Equal(t, interfaces.EnclaveAddedForRegistration{Operator: alice, Enclave: bob, APIURI: "https://enclave"}, rec.last())

	assert.ErrorIs(t, r.RegisterEnclave(alice, charlie, ""), interfaces.ErrRegistrationAlreadyExists)
	assert.ErrorIs(t, r.RegisterEnclave(dave, dave, ""), interfaces.ErrOperatorAndEnclaveAreSame)

	long := make([]byte, DefaultConfig().MaxURILen+1)
	assert.ErrorIs(t, r.RegisterEnclave(dave, eve, string(long)), interfaces.ErrAPIURITooLong)

	// Pending registrations may share an enclave address.
	require.NoError(t, r.RegisterEnclave(charlie, bob, ""))

	newCluster(t, r)
	require.NoError(t, r.AssignEnclave(alice, 0))
	assert.ErrorIs(t, r.RegisterEnclave(alice, eve, ""), interfaces.ErrOperatorAlreadyExists)
}

func newCluster(t *testing.T, r *Registry) interfaces.ClusterID {
	t.Helper()
	id, err := r.CreateCluster()
	require.NoError(t, err)
	return id
}

func TestClusterIDsExhausted(t *testing.T) {
	r, rec := newTestRegistry(t)
	r.nextClusterID = math.MaxUint32 - 1
	assert.Equal(t, interfaces.ClusterID(math.MaxUint32-1), newCluster(t, r))

	_, err := r.CreateCluster()
	assert.ErrorIs(t, err, interfaces.ErrIDsExhausted)
	assert.Equal(t, []interfaces.ClusterID{math.MaxUint32 - 1}, r.ClusterIDs())
	assert.Equal(t, interfaces.ClusterAdded{ClusterID: math.MaxUint32 - 1}, rec.last())
}

// A cluster of capacity two rejects a third operator.
func TestAssignEnclaveClusterFull(t *testing.T) {
	r, rec := newTestRegistry(t)
	id := newCluster(t, r)
	require.Equal(t, interfaces.ClusterID(0), id)

	assigned(t, r, alice, bob, id)
	assert.Equal(t, interfaces.EnclaveAssigned{Operator: alice, ClusterID: id}, rec.last())
	assigned(t, r, charlie, dave, id)

	require.NoError(t, r.RegisterEnclave(eve, ferdie, ""))
	assert.ErrorIs(t, r.AssignEnclave(eve, id), interfaces.ErrClusterIsFull)

	members, ok := r.ClusterMembers(id)
	require.True(t, ok)
	assert.Equal(t, []AccountID{alice, charlie}, members)
	_, stillPending := r.Registration(eve)
	assert.True(t, stillPending)
}

func TestAssignEnclave(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.ErrorIs(t, r.AssignEnclave(alice, 0), interfaces.ErrRegistrationNotFound)
	require.NoError(t, r.RegisterEnclave(alice, bob, ""))
	assert.ErrorIs(t, r.AssignEnclave(alice, 0), interfaces.ErrClusterNotFound)

	id := newCluster(t, r)
	require.NoError(t, r.AssignEnclave(alice, id))

	_, pending := r.Registration(alice)
	assert.False(t, pending)
	enclave, ok := r.Enclave(alice)
	require.True(t, ok)
	assert.Equal(t, bob, enclave.Address)

	op, ok := r.OperatorOf(bob)
	require.True(t, ok)
	assert.Equal(t, alice, op)
	cid, ok := r.ClusterOf(alice)
	require.True(t, ok)
	assert.Equal(t, id, cid)

	// The address is now taken among assigned enclaves.
	other := newCluster(t, r)
	require.NoError(t, r.RegisterEnclave(charlie, bob, ""))
	assert.ErrorIs(t, r.AssignEnclave(charlie, other), interfaces.ErrEnclaveAddressAlreadyExists)
}

func TestUnregisterEnclave(t *testing.T) {
	r, rec := newTestRegistry(t)
	id := newCluster(t, r)

	assert.ErrorIs(t, r.UnregisterEnclave(alice), interfaces.ErrRegistrationNotFound)

	// A pending registration is dropped immediately.
	require.NoError(t, r.RegisterEnclave(alice, bob, ""))
	require.NoError(t, r.UnregisterEnclave(alice))
	assert.Equal(t, interfaces.RegistrationRemoved{Operator: alice}, rec.last())
	_, ok := r.Registration(alice)
	assert.False(t, ok)

	// An assigned enclave is queued.
	assigned(t, r, alice, bob, id)
	require.NoError(t, r.UnregisterEnclave(alice))
	assert.Equal(t, interfaces.MovedForUnregistration{Operator: alice}, rec.last())
	assert.Equal(t, []AccountID{alice}, r.Unregistrations())
	assert.ErrorIs(t, r.UnregisterEnclave(alice), interfaces.ErrUnregistrationAlreadyExists)
}

func TestUnregistrationLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUnregistrations = 2
	cfg.ClusterSize = 10
	r := New(cfg, nil)
	id := newCluster(t, r)

	assigned(t, r, alice, bob, id)
	assigned(t, r, charlie, dave, id)
	assigned(t, r, eve, ferdie, id)

	require.NoError(t, r.UnregisterEnclave(alice))
	require.NoError(t, r.UnregisterEnclave(charlie))
	assert.ErrorIs(t, r.UnregisterEnclave(eve), interfaces.ErrUnregistrationLimitReached)
}

func TestUpdateEnclave(t *testing.T) {
	r, rec := newTestRegistry(t)
	id := newCluster(t, r)

	require.NoError(t, r.RegisterEnclave(alice, bob, ""))
	assert.ErrorIs(t, r.UpdateEnclave(alice, charlie, ""), interfaces.ErrUpdateProhibitedForUnassignedEnclave)
	require.NoError(t, r.AssignEnclave(alice, id))
	assigned(t, r, dave, eve, id)

	assert.ErrorIs(t, r.UpdateEnclave(alice, alice, ""), interfaces.ErrOperatorAndEnclaveAreSame)
	assert.ErrorIs(t, r.UpdateEnclave(alice, eve, ""), interfaces.ErrEnclaveAddressAlreadyExists)

	// Re-announcing the current address is allowed.
	require.NoError(t, r.UpdateEnclave(alice, bob, "https://new"))
	assert.Equal(t, interfaces.MovedForUpdate{Operator: alice, Enclave: bob, APIURI: "https://new"}, rec.last())
	assert.ErrorIs(t, r.UpdateEnclave(alice, charlie, ""), interfaces.ErrUpdateRequestAlreadyExists)

	require.NoError(t, r.CancelUpdate(alice))
	assert.Equal(t, interfaces.UpdateRequestCancelled{Operator: alice}, rec.last())
	assert.ErrorIs(t, r.CancelUpdate(alice), interfaces.ErrUpdateRequestNotFound)
}

func TestRemoveUpdateAndRegistrationAreIdempotent(t *testing.T) {
	r, rec := newTestRegistry(t)

	r.RemoveUpdate(bob)
	assert.Equal(t, interfaces.UpdateRequestRemoved{Operator: bob}, rec.last())
	r.RemoveRegistration(bob)
	assert.Equal(t, interfaces.RegistrationRemoved{Operator: bob}, rec.last())

	require.NoError(t, r.RegisterEnclave(alice, bob, ""))
	r.RemoveRegistration(alice)
	_, ok := r.Registration(alice)
	assert.False(t, ok)
}

func TestRemoveEnclave(t *testing.T) {
	r, rec := newTestRegistry(t)
	id := newCluster(t, r)

	_, err := r.RemoveEnclave(alice)
	assert.ErrorIs(t, err, interfaces.ErrEnclaveNotFound)

	assigned(t, r, alice, bob, id)
	require.NoError(t, r.UpdateEnclave(alice, charlie, ""))
	require.NoError(t, r.UnregisterEnclave(alice))

	removedFrom, err := r.RemoveEnclave(alice)
	require.NoError(t, err)
	assert.Equal(t, id, removedFrom)
	assert.Equal(t, interfaces.EnclaveRemoved{Operator: alice}, rec.last())

	_, ok := r.Enclave(alice)
	assert.False(t, ok)
	_, ok = r.UpdateRequest(alice)
	assert.False(t, ok)
	_, ok = r.OperatorOf(bob)
	assert.False(t, ok)
	_, ok = r.ClusterOf(alice)
	assert.False(t, ok)
	assert.Empty(t, r.Unregistrations())
	members, _ := r.ClusterMembers(id)
	assert.Empty(t, members)

	// The freed address can be assigned again.
	assigned(t, r, dave, bob, id)
}

func TestForceUpdateEnclave(t *testing.T) {
	r, rec := newTestRegistry(t)
	id := newCluster(t, r)

	assert.ErrorIs(t, r.ForceUpdateEnclave(alice, bob, ""), interfaces.ErrEnclaveNotFound)

	assigned(t, r, alice, bob, id)
	assigned(t, r, dave, eve, id)
	require.NoError(t, r.UpdateEnclave(alice, charlie, "https://charlie"))

	assert.ErrorIs(t, r.ForceUpdateEnclave(alice, alice, ""), interfaces.ErrOperatorAndEnclaveAreSame)
	assert.ErrorIs(t, r.ForceUpdateEnclave(alice, eve, ""), interfaces.ErrEnclaveAddressAlreadyExists)

	require.NoError(t, r.ForceUpdateEnclave(alice, charlie, "https://charlie"))
	assert.Equal(t, interfaces.EnclaveUpdated{Operator: alice, Enclave: charlie, APIURI: "https://charlie"}, rec.last())

	enclave, _ := r.Enclave(alice)
	assert.Equal(t, charlie, enclave.Address)
	_, ok := r.OperatorOf(bob)
	assert.False(t, ok)
	op, ok := r.OperatorOf(charlie)
	require.True(t, ok)
	assert.Equal(t, alice, op)
	_, ok = r.UpdateRequest(alice)
	assert.False(t, ok)
}

func TestClusters(t *testing.T) {
	r, rec := newTestRegistry(t)

	assert.Equal(t, interfaces.ClusterID(0), newCluster(t, r))
	assert.Equal(t, interfaces.ClusterID(1), newCluster(t, r))
	assert.Equal(t, interfaces.ClusterAdded{ClusterID: 1}, rec.last())
	assert.Equal(t, []interfaces.ClusterID{0, 1}, r.ClusterIDs())

	assigned(t, r, alice, bob, 0)
	assert.ErrorIs(t, r.RemoveCluster(0), interfaces.ErrClusterIsNotEmpty)
	assert.ErrorIs(t, r.RemoveCluster(7), interfaces.ErrClusterNotFound)

	require.NoError(t, r.RemoveCluster(1))
	assert.Equal(t, interfaces.ClusterRemoved{ClusterID: 1}, rec.last())

	// Ids are never reused.
	assert.Equal(t, interfaces.ClusterID(2), newCluster(t, r))
}

func TestEnsureEnclave(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := newCluster(t, r)

	_, _, err := r.EnsureEnclave(bob)
	assert.ErrorIs(t, err, interfaces.ErrNotARegisteredEnclave)

	require.NoError(t, r.RegisterEnclave(alice, bob, ""))
	_, _, err = r.EnsureEnclave(bob)
	assert.ErrorIs(t, err, interfaces.ErrNotARegisteredEnclave, "pending registrations are not enclaves yet")

	require.NoError(t, r.AssignEnclave(alice, id))
	op, cid, err := r.EnsureEnclave(bob)
	require.NoError(t, err)
	assert.Equal(t, alice, op)
	assert.Equal(t, id, cid)
}

func TestStateRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := newCluster(t, r)
	newCluster(t, r)
	assigned(t, r, alice, bob, id)
	require.NoError(t, r.RegisterEnclave(charlie, dave, "uri"))
	require.NoError(t, r.UpdateEnclave(alice, eve, ""))
	require.NoError(t, r.UnregisterEnclave(alice))

	restored, err := Restore(DefaultConfig(), nil, r.State())
	require.NoError(t, err)
	assert.Equal(t, r.State(), restored.State())

	op, cid, err := restored.EnsureEnclave(bob)
	require.NoError(t, err)
	assert.Equal(t, alice, op)
	assert.Equal(t, id, cid)
	assert.Equal(t, interfaces.ClusterID(2), newCluster(t, restored))
}

func TestRestoreRejectsInconsistentState(t *testing.T) {
	s := State{
		Enclaves:      map[AccountID]Enclave{alice: {Address: bob}},
		NextClusterID: 1,
		Clusters:      []Cluster{{ID: 0, Capacity: 2}},
	}
	_, err := Restore(DefaultConfig(), nil, s)
	assert.ErrorIs(t, err, interfaces.ErrClusterIDNotFound)

	s.Clusters = []Cluster{{ID: 0, Capacity: 2, Operators: []AccountID{alice, charlie}}}
	_, err = Restore(DefaultConfig(), nil, s)
	assert.ErrorIs(t, err, interfaces.ErrEnclaveNotFound)
}
