package registry

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// State is the serializable form of a Registry. Secondary indexes are not
// part of it; they are rebuilt on restore.
type State struct {
	Registrations   map[AccountID]Enclave `json:"registrations"`
	Updates         map[AccountID]Enclave `json:"updates"`
	Unregistrations []AccountID           `json:"unregistrations"`
	Enclaves        map[AccountID]Enclave `json:"enclaves"`
	Clusters        []Cluster             `json:"clusters"`
	NextClusterID   interfaces.ClusterID  `json:"next_cluster_id"`
}

// State copies the registry for a snapshot.
func (r *Registry) State() State {
	s := State{
		Registrations:   maps.Clone(r.registrations),
		Updates:         maps.Clone(r.updates),
		Unregistrations: slices.Clone(r.unregistrations),
		Enclaves:        maps.Clone(r.enclaves),
		NextClusterID:   r.nextClusterID,
	}
	for _, id := range r.ClusterIDs() {
		s.Clusters = append(s.Clusters, r.clusters[id].clone())
	}
	return s
}

// Restore rebuilds a registry from a snapshot, checking that every assigned
// enclave belongs to exactly one cluster and that addresses are unique.
func Restore(cfg Config, events interfaces.EventSink, s State) (*Registry, error) {
	r := New(cfg, events)
	maps.Copy(r.registrations, s.Registrations)
	maps.Copy(r.updates, s.Updates)
	maps.Copy(r.enclaves, s.Enclaves)
	r.unregistrations = slices.Clone(s.Unregistrations)
	r.nextClusterID = s.NextClusterID

	for _, c := range s.Clusters {
		if c.ID >= s.NextClusterID {
			return nil, fmt.Errorf("cluster %d is beyond the id sequence %d", c.ID, s.NextClusterID)
		}
		cluster := c.clone()
		r.clusters[c.ID] = &cluster
		for _, op := range c.Operators {
			if _, dup := r.clusterByOperator[op]; dup {
				return nil, fmt.Errorf("operator %s is a member of several clusters", op)
			}
			r.clusterByOperator[op] = c.ID
		}
	}

	for op, enclave := range r.enclaves {
		if _, ok := r.clusterByOperator[op]; !ok {
			return nil, fmt.Errorf("operator %s: %w", op, interfaces.ErrClusterIDNotFound)
		}
		if _, dup := r.operatorByAddress[enclave.Address]; dup {
			return nil, fmt.Errorf("enclave %s: %w", enclave.Address, interfaces.ErrEnclaveAddressAlreadyExists)
		}
		r.operatorByAddress[enclave.Address] = op
	}
	for op := range r.clusterByOperator {
		if _, ok := r.enclaves[op]; !ok {
			return nil, fmt.Errorf("cluster member %s: %w", op, interfaces.ErrEnclaveNotFound)
		}
	}
	return r, nil
}
