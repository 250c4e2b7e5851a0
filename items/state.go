package items

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ruteri/tee-capsule-ledger/collection"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/shardsync"
)

// State is the serializable form of a Machine.
type State struct {
	Items       []Item                                        `json:"items"`
	Delegations map[interfaces.ItemID]AccountID               `json:"delegations"`
	Secrets     map[interfaces.ItemID]interfaces.OffchainData `json:"secrets"`
	Capsules    map[interfaces.ItemID]interfaces.OffchainData `json:"capsules"`
	Fees        Fees                                          `json:"fees"`
	NextID      interfaces.ItemID                             `json:"next_id"`
}

// State copies the machine for a snapshot.
func (m *Machine) State() State {
	s := State{
		Items:       make([]Item, 0, len(m.items)),
		Delegations: maps.Clone(m.delegations),
		Secrets:     maps.Clone(m.payloads[interfaces.SecretPayload]),
		Capsules:    maps.Clone(m.payloads[interfaces.CapsulePayload]),
		Fees:        m.fees,
		NextID:      m.nextID,
	}
	for _, id := range m.ItemIDs() {
		s.Items = append(s.Items, m.items[id].clone())
	}
	return s
}

// Restore rebuilds a machine from a snapshot. The coordinator must already
// hold the restored sessions: every syncing item needs its open session and
// every record must match the item flags it depends on.
func Restore(cfg Config, events interfaces.EventSink, balances interfaces.Balances, collections *collection.Registry, sync *shardsync.Coordinator, s State) (*Machine, error) {
	m := New(cfg, events, balances, collections, sync)
	m.fees = s.Fees
	m.nextID = s.NextID

	for _, it := range s.Items {
		if it.ID >= s.NextID {
			return nil, fmt.Errorf("item %d is beyond the id sequence %d", it.ID, s.NextID)
		}
		it := it.clone()
		m.items[it.ID] = &it
		for _, kind := range []interfaces.PayloadKind{interfaces.SecretPayload, interfaces.CapsulePayload} {
			if _, open := sync.Session(it.ID, kind); open != it.IsSyncing(kind) {
				return nil, fmt.Errorf("item %d: %s session open=%v but phase is %s", it.ID, kind, open, it.phase)
			}
		}
		if it.CollectionID != nil {
			c, ok := collections.Get(*it.CollectionID)
			if !ok {
				return nil, fmt.Errorf("item %d: %w", it.ID, interfaces.ErrCollectionNotFound)
			}
			if !slices.Contains(c.Items, it.ID) {
				return nil, fmt.Errorf("item %d missing from collection %d", it.ID, *it.CollectionID)
			}
		}
	}

	for id, viewer := range s.Delegations {
		it, ok := m.items[id]
		if !ok || !it.Has(MarkerDelegated) {
			return nil, fmt.Errorf("delegation of item %d without a delegated item", id)
		}
		m.delegations[id] = viewer
	}
	for _, it := range m.items {
		if _, ok := m.delegations[it.ID]; it.Has(MarkerDelegated) && !ok {
			return nil, fmt.Errorf("item %d is delegated without a delegation record", it.ID)
		}
	}

	records := map[interfaces.PayloadKind]map[interfaces.ItemID]interfaces.OffchainData{
		interfaces.SecretPayload:  s.Secrets,
		interfaces.CapsulePayload: s.Capsules,
	}
	for kind, byItem := range records {
		for id, data := range byItem {
			it, ok := m.items[id]
			if !ok || !it.HasPayload(kind) {
				return nil, fmt.Errorf("%s payload of item %d without a %s item", kind, id, kind)
			}
			m.payloads[kind][id] = data
		}
	}
	for _, it := range m.items {
		for _, kind := range it.payloads {
			if _, ok := m.payloads[kind][it.ID]; !ok {
				return nil, fmt.Errorf("item %d carries a %s without its payload record", it.ID, kind)
			}
		}
	}
	return m, nil
}
