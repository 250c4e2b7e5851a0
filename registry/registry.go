package registry

import (
	"fmt"
	"math"
	"slices"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

type AccountID = interfaces.AccountID

// Config bounds the registry.
type Config struct {
	// ClusterSize is the capacity given to newly created clusters.
	ClusterSize int `toml:"cluster_size"`
	// MaxUnregistrations bounds the global pending-unregistration queue.
	MaxUnregistrations int `toml:"max_unregistrations"`
	// MaxURILen bounds enclave API references.
	MaxURILen int `toml:"max_uri_len"`
}

// DefaultConfig returns two-enclave clusters and the default queue and URI limits.
func DefaultConfig() Config {
	return Config{
		ClusterSize:        2,
		MaxUnregistrations: 10,
		MaxURILen:          256,
	}
}

// Enclave is the identity an operator registers: the enclave's own account
// and the URI its API is reachable at.
type Enclave struct {
	Address AccountID `json:"enclave_address"`
	APIURI  string    `json:"api_uri"`
}

// Cluster is a capacity-bounded, ordered group of enclave operators.
type Cluster struct {
	ID        interfaces.ClusterID `json:"id"`
	Capacity  int                  `json:"capacity"`
	Operators []AccountID          `json:"operators"`
}

func (c *Cluster) full() bool { return len(c.Operators) >= c.Capacity }

func (c Cluster) clone() Cluster {
	c.Operators = slices.Clone(c.Operators)
	return c
}

// Registry owns enclave identities, pending requests and cluster membership.
// Every mutating method validates fully before touching state and emits its
// events only once the mutation is applied. Callers serialize access.
type Registry struct {
	cfg    Config
	events interfaces.EventSink

	registrations   map[AccountID]Enclave
	updates         map[AccountID]Enclave
	unregistrations []AccountID
	enclaves        map[AccountID]Enclave
	clusters        map[interfaces.ClusterID]*Cluster
	nextClusterID   interfaces.ClusterID

	// Secondary indexes, maintained alongside enclaves and clusters.
	operatorByAddress map[AccountID]AccountID
	clusterByOperator map[AccountID]interfaces.ClusterID
}

// New creates an empty registry emitting to events; a nil sink discards them.
func New(cfg Config, events interfaces.EventSink) *Registry {
	if events == nil {
		events = interfaces.DiscardEvents
	}
	return &Registry{
		cfg:               cfg,
		events:            events,
		registrations:     make(map[AccountID]Enclave),
		updates:           make(map[AccountID]Enclave),
		enclaves:          make(map[AccountID]Enclave),
		clusters:          make(map[interfaces.ClusterID]*Cluster),
		operatorByAddress: make(map[AccountID]AccountID),
		clusterByOperator: make(map[AccountID]interfaces.ClusterID),
	}
}

func (r *Registry) Config() Config { return r.cfg }

func (r *Registry) checkURI(apiURI string) error {
	if len(apiURI) > r.cfg.MaxURILen {
		return interfaces.ErrAPIURITooLong
	}
	return nil
}

// RegisterEnclave records a pending registration for operator.
func (r *Registry) RegisterEnclave(operator, enclave AccountID, apiURI string) error {
	if operator == enclave {
		return interfaces.ErrOperatorAndEnclaveAreSame
	}
	if err := r.checkURI(apiURI); err != nil {
		return err
	}
	if _, ok := r.enclaves[operator]; ok {
		return interfaces.ErrOperatorAlreadyExists
	}
	if _, ok := r.registrations[operator]; ok {
		return interfaces.ErrRegistrationAlreadyExists
	}

	r.registrations[operator] = Enclave{Address: enclave, APIURI: apiURI}
	r.events.Emit(interfaces.EnclaveAddedForRegistration{Operator: operator, Enclave: enclave, APIURI: apiURI})
	return nil
}

// UnregisterEnclave drops a pending registration immediately, or queues an
// assigned enclave for removal by an administrator.
func (r *Registry) UnregisterEnclave(operator AccountID) error {
	if _, ok := r.registrations[operator]; ok {
		delete(r.registrations, operator)
		r.events.Emit(interfaces.RegistrationRemoved{Operator: operator})
		return nil
	}
	if _, ok := r.enclaves[operator]; !ok {
		return interfaces.ErrRegistrationNotFound
	}
	if slices.Contains(r.unregistrations, operator) {
		return interfaces.ErrUnregistrationAlreadyExists
	}
	if len(r.unregistrations) >= r.cfg.MaxUnregistrations {
		return interfaces.ErrUnregistrationLimitReached
	}

	r.unregistrations = append(r.unregistrations, operator)
	r.events.Emit(interfaces.MovedForUnregistration{Operator: operator})
	return nil
}

// UpdateEnclave records a pending identity change for an assigned enclave.
func (r *Registry) UpdateEnclave(operator, enclave AccountID, apiURI string) error {
	if operator == enclave {
		return interfaces.ErrOperatorAndEnclaveAreSame
	}
	if err := r.checkURI(apiURI); err != nil {
		return err
	}
	if _, ok := r.enclaves[operator]; !ok {
		return interfaces.ErrUpdateProhibitedForUnassignedEnclave
	}
	if _, ok := r.updates[operator]; ok {
		return interfaces.ErrUpdateRequestAlreadyExists
	}
	if owner, ok := r.operatorByAddress[enclave]; ok && owner != operator {
		return interfaces.ErrEnclaveAddressAlreadyExists
	}

	r.updates[operator] = Enclave{Address: enclave, APIURI: apiURI}
	r.events.Emit(interfaces.MovedForUpdate{Operator: operator, Enclave: enclave, APIURI: apiURI})
	return nil
}

// CancelUpdate withdraws the operator's own pending update request.
func (r *Registry) CancelUpdate(operator AccountID) error {
	if _, ok := r.updates[operator]; !ok {
		return interfaces.ErrUpdateRequestNotFound
	}
	delete(r.updates, operator)
	r.events.Emit(interfaces.UpdateRequestCancelled{Operator: operator})
	return nil
}

// AssignEnclave promotes operator's pending registration into clusterID.
func (r *Registry) AssignEnclave(operator AccountID, clusterID interfaces.ClusterID) error {
	reg, ok := r.registrations[operator]
	if !ok {
		return interfaces.ErrRegistrationNotFound
	}
	if _, ok := r.enclaves[operator]; ok {
		return interfaces.ErrOperatorAlreadyExists
	}
	cluster, ok := r.clusters[clusterID]
	if !ok {
		return interfaces.ErrClusterNotFound
	}
	if cluster.full() {
		return interfaces.ErrClusterIsFull
	}
	if _, ok := r.operatorByAddress[reg.Address]; ok {
		return interfaces.ErrEnclaveAddressAlreadyExists
	}

	r.enclaves[operator] = reg
	delete(r.registrations, operator)
	cluster.Operators = append(cluster.Operators, operator)
	r.operatorByAddress[reg.Address] = operator
	r.clusterByOperator[operator] = clusterID
	r.events.Emit(interfaces.EnclaveAssigned{Operator: operator, ClusterID: clusterID})
	return nil
}

// RemoveRegistration drops a pending registration. Removing a registration
// that does not exist still succeeds.
func (r *Registry) RemoveRegistration(operator AccountID) {
	delete(r.registrations, operator)
	r.events.Emit(interfaces.RegistrationRemoved{Operator: operator})
}

// RemoveUpdate drops a pending update. Removing an update that does not
// exist still succeeds.
func (r *Registry) RemoveUpdate(operator AccountID) {
	delete(r.updates, operator)
	r.events.Emit(interfaces.UpdateRequestRemoved{Operator: operator})
}

// RemoveEnclave deletes an assigned enclave together with its cluster
// membership, pending requests and address index entry. It returns the
// cluster the operator was removed from.
func (r *Registry) RemoveEnclave(operator AccountID) (interfaces.ClusterID, error) {
	enclave, ok := r.enclaves[operator]
	if !ok {
		return 0, interfaces.ErrEnclaveNotFound
	}
	clusterID, ok := r.clusterByOperator[operator]
	if !ok {
		return 0, interfaces.ErrClusterIDNotFound
	}
	cluster, ok := r.clusters[clusterID]
	if !ok {
		return 0, interfaces.ErrClusterNotFound
	}

	delete(r.enclaves, operator)
	delete(r.operatorByAddress, enclave.Address)
	delete(r.clusterByOperator, operator)
	delete(r.updates, operator)
	cluster.Operators = slices.DeleteFunc(cluster.Operators, func(op AccountID) bool { return op == operator })
	r.unregistrations = slices.DeleteFunc(r.unregistrations, func(op AccountID) bool { return op == operator })
	r.events.Emit(interfaces.EnclaveRemoved{Operator: operator})
	return clusterID, nil
}

// ForceUpdateEnclave replaces an assigned enclave's identity without a
// pending request, discarding any request that was pending.
func (r *Registry) ForceUpdateEnclave(operator, enclave AccountID, apiURI string) error {
	if operator == enclave {
		return interfaces.ErrOperatorAndEnclaveAreSame
	}
	if err := r.checkURI(apiURI); err != nil {
		return err
	}
	current, ok := r.enclaves[operator]
	if !ok {
		return interfaces.ErrEnclaveNotFound
	}
	if owner, ok := r.operatorByAddress[enclave]; ok && owner != operator {
		return interfaces.ErrEnclaveAddressAlreadyExists
	}

	delete(r.operatorByAddress, current.Address)
	r.operatorByAddress[enclave] = operator
	r.enclaves[operator] = Enclave{Address: enclave, APIURI: apiURI}
	delete(r.updates, operator)
	r.events.Emit(interfaces.EnclaveUpdated{Operator: operator, Enclave: enclave, APIURI: apiURI})
	return nil
}

// CreateCluster creates an empty cluster with the configured capacity. Ids
// are never reused; ErrIDsExhausted is returned once the id space is used up.
func (r *Registry) CreateCluster() (interfaces.ClusterID, error) {
	if r.nextClusterID == math.MaxUint32 {
		return 0, interfaces.ErrIDsExhausted
	}
	id := r.nextClusterID
	r.nextClusterID++
	r.clusters[id] = &Cluster{ID: id, Capacity: r.cfg.ClusterSize}
	r.events.Emit(interfaces.ClusterAdded{ClusterID: id})
	return id, nil
}

// RemoveCluster deletes an empty cluster.
func (r *Registry) RemoveCluster(id interfaces.ClusterID) error {
	cluster, ok := r.clusters[id]
	if !ok {
		return interfaces.ErrClusterNotFound
	}
	if len(cluster.Operators) > 0 {
		return interfaces.ErrClusterIsNotEmpty
	}
	delete(r.clusters, id)
	r.events.Emit(interfaces.ClusterRemoved{ClusterID: id})
	return nil
}

// Registration returns an operator's pending, unassigned registration.
func (r *Registry) Registration(operator AccountID) (Enclave, bool) {
	e, ok := r.registrations[operator]
	return e, ok
}

// UpdateRequest returns an operator's pending update.
func (r *Registry) UpdateRequest(operator AccountID) (Enclave, bool) {
	e, ok := r.updates[operator]
	return e, ok
}

// Enclave returns the assigned enclave of an operator.
func (r *Registry) Enclave(operator AccountID) (Enclave, bool) {
	e, ok := r.enclaves[operator]
	return e, ok
}

// Unregistrations returns the pending-unregistration queue in arrival order.
func (r *Registry) Unregistrations() []AccountID {
	return slices.Clone(r.unregistrations)
}

// Cluster returns a copy of a cluster.
func (r *Registry) Cluster(id interfaces.ClusterID) (Cluster, bool) {
	c, ok := r.clusters[id]
	if !ok {
		return Cluster{}, false
	}
	return c.clone(), true
}

// ClusterIDs returns all cluster ids in ascending order.
func (r *Registry) ClusterIDs() []interfaces.ClusterID {
	ids := make([]interfaces.ClusterID, 0, len(r.clusters))
	for id := range r.clusters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ClusterMembers returns the operators currently assigned to a cluster.
func (r *Registry) ClusterMembers(id interfaces.ClusterID) ([]AccountID, bool) {
	c, ok := r.clusters[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(c.Operators), true
}

// OperatorOf resolves an assigned enclave address to its operator.
func (r *Registry) OperatorOf(enclave AccountID) (AccountID, bool) {
	op, ok := r.operatorByAddress[enclave]
	return op, ok
}

// ClusterOf returns the cluster an operator is assigned to.
func (r *Registry) ClusterOf(operator AccountID) (interfaces.ClusterID, bool) {
	id, ok := r.clusterByOperator[operator]
	return id, ok
}

// EnsureEnclave resolves an enclave address to its operator and cluster,
// failing unless the enclave is currently assigned.
func (r *Registry) EnsureEnclave(enclave AccountID) (AccountID, interfaces.ClusterID, error) {
	operator, ok := r.operatorByAddress[enclave]
	if !ok {
		return AccountID{}, 0, interfaces.ErrNotARegisteredEnclave
	}
	clusterID, ok := r.clusterByOperator[operator]
	if !ok {
		return AccountID{}, 0, fmt.Errorf("operator %s: %w", operator, interfaces.ErrClusterIDNotFound)
	}
	return operator, clusterID, nil
}
