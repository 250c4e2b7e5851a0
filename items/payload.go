package items

import (
	"slices"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

func (m *Machine) fee(kind interfaces.PayloadKind) interfaces.Balance {
	if kind == interfaces.CapsulePayload {
		return m.fees.Capsule
	}
	return m.fees.Secret
}

// applyPayload stores the payload reference, enters the syncing phase and
// opens the hand-off session against cluster.
func (m *Machine) applyPayload(it *Item, kind interfaces.PayloadKind, data interfaces.OffchainData, cluster interfaces.ClusterID) {
	m.payloads[kind][it.ID] = slices.Clone(data)
	it.beginSync(kind)
	m.sync.Open(it.ID, kind, cluster)

	switch kind {
	case interfaces.SecretPayload:
		m.events.Emit(interfaces.SecretAddedToItem{ItemID: it.ID, OffchainData: data, ClusterID: cluster, Fee: m.fee(kind)})
	case interfaces.CapsulePayload:
		m.events.Emit(interfaces.ItemConvertedToCapsule{ItemID: it.ID, OffchainData: data, ClusterID: cluster, Fee: m.fee(kind)})
	}
}

// attach runs the shared flow of AttachSecret and ConvertToCapsule.
func (m *Machine) attach(caller AccountID, id interfaces.ItemID, kind interfaces.PayloadKind, data interfaces.OffchainData, guards []guard, already error) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if err := m.checkData(data); err != nil {
		return err
	}
	if err := checkGuards(it, guards); err != nil {
		return err
	}
	if it.HasPayload(kind) {
		return already
	}
	cluster, err := m.sync.Plan(id)
	if err != nil {
		return err
	}
	if err := m.balances.Debit(caller, m.fee(kind), true); err != nil {
		return err
	}

	m.applyPayload(it, kind, data, cluster)
	return nil
}

// AttachSecret adds a secret payload to an item and starts its hand-off.
func (m *Machine) AttachSecret(caller AccountID, id interfaces.ItemID, data interfaces.OffchainData) error {
	return m.attach(caller, id, interfaces.SecretPayload, data, attachSecretGuards, interfaces.ErrItemIsAlreadySecret)
}

// ConvertToCapsule turns an item into a capsule and starts its hand-off.
func (m *Machine) ConvertToCapsule(caller AccountID, id interfaces.ItemID, data interfaces.OffchainData) error {
	return m.attach(caller, id, interfaces.CapsulePayload, data, convertGuards, interfaces.ErrItemIsAlreadyCapsule)
}

// SetCapsulePayload replaces the capsule payload reference of a synced capsule.
func (m *Machine) SetCapsulePayload(caller AccountID, id interfaces.ItemID, data interfaces.OffchainData) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if err := m.checkData(data); err != nil {
		return err
	}
	if err := checkGuards(it, capsulePayloadGuards); err != nil {
		return err
	}
	if !it.HasPayload(interfaces.CapsulePayload) {
		return interfaces.ErrItemIsNotCapsule
	}

	m.payloads[interfaces.CapsulePayload][id] = slices.Clone(data)
	m.events.Emit(interfaces.CapsulePayloadSet{ItemID: id, OffchainData: data})
	return nil
}

// NotifyKeyUpdate restarts the capsule hand-off after the owner rotated the
// capsule key.
func (m *Machine) NotifyKeyUpdate(caller AccountID, id interfaces.ItemID) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if err := checkGuards(it, notifyGuards); err != nil {
		return err
	}
	if !it.HasPayload(interfaces.CapsulePayload) {
		return interfaces.ErrItemIsNotCapsule
	}
	cluster, err := m.sync.Plan(id)
	if err != nil {
		return err
	}

	it.beginSync(interfaces.CapsulePayload)
	m.sync.Open(id, interfaces.CapsulePayload, cluster)
	m.events.Emit(interfaces.CapsuleKeyUpdateNotified{ItemID: id, ClusterID: cluster})
	return nil
}

// AddSecretShard records that enclave holds its shard of the item's secret.
func (m *Machine) AddSecretShard(enclave AccountID, id interfaces.ItemID) error {
	return m.addShard(enclave, id, interfaces.SecretPayload)
}

// AddCapsuleShard records that enclave holds its shard of the item's capsule.
func (m *Machine) AddCapsuleShard(enclave AccountID, id interfaces.ItemID) error {
	return m.addShard(enclave, id, interfaces.CapsulePayload)
}

func (m *Machine) addShard(enclave AccountID, id interfaces.ItemID, kind interfaces.PayloadKind) error {
	it, err := m.get(id)
	if err != nil {
		return err
	}
	if _, err := m.sync.ResolveEnclave(enclave); err != nil {
		return err
	}
	if !it.HasPayload(kind) {
		if kind == interfaces.CapsulePayload {
			return interfaces.ErrItemIsNotCapsule
		}
		return interfaces.ErrItemIsNotSecret
	}
	done, err := m.sync.Acknowledge(id, kind, enclave)
	if err != nil {
		return err
	}

	switch kind {
	case interfaces.SecretPayload:
		m.events.Emit(interfaces.SecretShardAdded{ItemID: id, Enclave: enclave})
	case interfaces.CapsulePayload:
		m.events.Emit(interfaces.CapsuleShardAdded{ItemID: id, Enclave: enclave})
	}
	if done {
		m.finishSync(it, kind)
	}
	return nil
}

func (m *Machine) finishSync(it *Item, kind interfaces.PayloadKind) {
	it.finishSync(kind)
	switch kind {
	case interfaces.SecretPayload:
		m.events.Emit(interfaces.SecretSynced{ItemID: it.ID})
	case interfaces.CapsulePayload:
		m.events.Emit(interfaces.CapsuleSynced{ItemID: it.ID})
	}
}

// ReconcileSessions completes hand-offs whose quorum became satisfied through
// a cluster membership change and returns the items that finished syncing.
func (m *Machine) ReconcileSessions() []interfaces.ItemID {
	var done []interfaces.ItemID
	for _, key := range m.sync.Reconcile() {
		if it, ok := m.items[key.ItemID]; ok {
			m.finishSync(it, key.Kind)
			done = append(done, key.ItemID)
		}
	}
	return done
}
