package items

import (
	"maps"
	"math"
	"slices"

	"github.com/ruteri/tee-capsule-ledger/collection"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/shardsync"
)

// AccountID identifies owners, creators, viewers and enclaves.
type AccountID = interfaces.AccountID

// Fees charged on item operations.
type Fees struct {
	Mint    interfaces.Balance `toml:"mint" json:"mint"`
	Secret  interfaces.Balance `toml:"secret" json:"secret"`
	Capsule interfaces.Balance `toml:"capsule" json:"capsule"`
}

// FeeKind names one of the fees in Fees.
type FeeKind string

const (
	MintFee    FeeKind = "mint"
	SecretFee  FeeKind = "secret"
	CapsuleFee FeeKind = "capsule"
)

// Config bounds item data and sets the initial fees.
type Config struct {
	// MaxOffchainDataLen caps item metadata and payload references.
	MaxOffchainDataLen int `toml:"max_offchain_data_len"`
	// Fees are the initial fees; they can be changed with SetFee.
	Fees Fees `toml:"fees"`
}

// DefaultConfig returns the limits and fees used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxOffchainDataLen: 150,
		Fees:               Fees{Mint: 10, Secret: 75, Capsule: 100},
	}
}

// Machine owns items and runs every item operation. Each operation checks
// everything that can fail, including the fee debit, before it changes any
// state, so a rejected operation leaves no trace. Callers serialize access.
type Machine struct {
	cfg         Config
	events      interfaces.EventSink
	balances    interfaces.Balances
	collections *collection.Registry
	sync        *shardsync.Coordinator

	items       map[interfaces.ItemID]*Item
	delegations map[interfaces.ItemID]AccountID
	payloads    map[interfaces.PayloadKind]map[interfaces.ItemID]interfaces.OffchainData
	fees        Fees
	nextID      interfaces.ItemID
}

// New creates an empty machine. Fees are debited through balances, collection
// membership goes through collections and hand-off sessions through sync.
func New(cfg Config, events interfaces.EventSink, balances interfaces.Balances, collections *collection.Registry, sync *shardsync.Coordinator) *Machine {
	if events == nil {
		events = interfaces.DiscardEvents
	}
	return &Machine{
		cfg:         cfg,
		events:      events,
		balances:    balances,
		collections: collections,
		sync:        sync,
		items:       make(map[interfaces.ItemID]*Item),
		delegations: make(map[interfaces.ItemID]AccountID),
		payloads: map[interfaces.PayloadKind]map[interfaces.ItemID]interfaces.OffchainData{
			interfaces.SecretPayload:  {},
			interfaces.CapsulePayload: {},
		},
		fees: cfg.Fees,
	}
}

func (m *Machine) checkData(data interfaces.OffchainData) error {
	if len(data) > m.cfg.MaxOffchainDataLen {
		return interfaces.ErrOffchainDataTooLong
	}
	return nil
}

func (m *Machine) get(id interfaces.ItemID) (*Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, interfaces.ErrItemNotFound
	}
	return it, nil
}

func (m *Machine) owned(caller AccountID, id interfaces.ItemID) (*Item, error) {
	it, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if it.Owner != caller {
		return nil, interfaces.ErrNotTheItemOwner
	}
	return it, nil
}

// MintRequest describes a new item.
type MintRequest struct {
	Owner        AccountID
	OffchainData interfaces.OffchainData
	Royalty      interfaces.Permill
	CollectionID *interfaces.CollectionID
	Soulbound    bool
}

func (m *Machine) checkMint(req MintRequest) error {
	// the last id is never handed out so the counter cannot wrap onto item 0
	if m.nextID == math.MaxUint32 {
		return interfaces.ErrIDsExhausted
	}
	if err := m.checkData(req.OffchainData); err != nil {
		return err
	}
	if !req.Royalty.Valid() {
		return interfaces.ErrInvalidRoyalty
	}
	if req.CollectionID != nil {
		if err := m.collections.CheckAdd(req.Owner, *req.CollectionID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) applyMint(req MintRequest) *Item {
	id := m.nextID
	m.nextID++
	it := Item{
		ID:           id,
		Owner:        req.Owner,
		Creator:      req.Owner,
		Royalty:      req.Royalty,
		CollectionID: req.CollectionID,
		OffchainData: req.OffchainData,
	}.clone()
	if req.Soulbound {
		it.markers = it.markers.With(MarkerSoulbound)
	}
	m.items[id] = &it
	if it.CollectionID != nil {
		m.collections.Add(*it.CollectionID, id)
	}
	m.events.Emit(interfaces.ItemCreated{
		ItemID:       id,
		Owner:        it.Owner,
		OffchainData: it.OffchainData,
		Royalty:      it.Royalty,
		CollectionID: it.CollectionID,
		IsSoulbound:  req.Soulbound,
		MintFee:      m.fees.Mint,
	})
	return &it
}

// Mint creates an item owned and created by req.Owner, charging the mint fee.
func (m *Machine) Mint(req MintRequest) (interfaces.ItemID, error) {
	if err := m.checkMint(req); err != nil {
		return 0, err
	}
	if err := m.balances.Debit(req.Owner, m.fees.Mint, true); err != nil {
		return 0, err
	}
	return m.applyMint(req).ID, nil
}

// MintSecret mints an item and attaches a secret in one operation, charging
// both fees.
func (m *Machine) MintSecret(req MintRequest, secret interfaces.OffchainData) (interfaces.ItemID, error) {
	if err := m.checkMint(req); err != nil {
		return 0, err
	}
	if err := m.checkData(secret); err != nil {
		return 0, err
	}
	cluster, err := m.sync.Plan(m.nextID)
	if err != nil {
		return 0, err
	}
	if err := m.balances.Debit(req.Owner, m.fees.Mint+m.fees.Secret, true); err != nil {
		return 0, err
	}

	it := m.applyMint(req)
	m.applyPayload(it, interfaces.SecretPayload, secret, cluster)
	return it.ID, nil
}

// Burn deletes an item with its delegation, payloads, open sessions and
// collection membership.
func (m *Machine) Burn(caller AccountID, id interfaces.ItemID) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if err := checkGuards(it, burnGuards); err != nil {
		return err
	}

	delete(m.items, id)
	delete(m.delegations, id)
	for _, records := range m.payloads {
		delete(records, id)
	}
	m.sync.Close(id)
	if it.CollectionID != nil {
		m.collections.Remove(*it.CollectionID, id)
	}
	m.events.Emit(interfaces.ItemBurned{ItemID: id})
	return nil
}

// Transfer hands an item to recipient. Soulbound items can only leave their
// creator, and items that are still handing off a payload cannot move.
func (m *Machine) Transfer(caller AccountID, id interfaces.ItemID, recipient AccountID) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if recipient == it.Owner {
		return interfaces.ErrCannotTransferItemsToYourself
	}
	if err := checkGuards(it, transferGuards); err != nil {
		return err
	}

	it.Owner = recipient
	m.events.Emit(interfaces.ItemTransferred{ItemID: id, Sender: caller, Recipient: recipient})
	return nil
}

// Delegate grants viewer access to the item, or revokes delegation when
// viewer is nil.
func (m *Machine) Delegate(caller AccountID, id interfaces.ItemID, viewer *AccountID) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if viewer != nil && *viewer == it.Owner {
		return interfaces.ErrCannotDelegateItemsToYourself
	}
	if err := checkGuards(it, delegateGuards); err != nil {
		return err
	}

	if viewer != nil {
		m.delegations[id] = *viewer
	} else {
		delete(m.delegations, id)
	}
	it.markers = it.markers.Set(MarkerDelegated, viewer != nil)
	m.events.Emit(interfaces.ItemDelegated{ItemID: id, Viewer: viewer})
	return nil
}

// SetRoyalty changes the royalty; only a creator who still owns the item may.
func (m *Machine) SetRoyalty(caller AccountID, id interfaces.ItemID, royalty interfaces.Permill) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if !royalty.Valid() {
		return interfaces.ErrInvalidRoyalty
	}
	if it.Creator != caller {
		return interfaces.ErrNotTheItemCreator
	}
	if err := checkGuards(it, royaltyGuards); err != nil {
		return err
	}

	it.Royalty = royalty
	m.events.Emit(interfaces.ItemRoyaltySet{ItemID: id, Royalty: royalty})
	return nil
}

// AddToCollection places an item, which must not belong to a collection yet,
// into a collection owned by the caller.
func (m *Machine) AddToCollection(caller AccountID, id interfaces.ItemID, collectionID interfaces.CollectionID) error {
	it, err := m.owned(caller, id)
	if err != nil {
		return err
	}
	if it.CollectionID != nil {
		return interfaces.ErrItemBelongToACollection
	}
	if err := m.collections.CheckAdd(caller, collectionID); err != nil {
		return err
	}

	it.CollectionID = &collectionID
	m.collections.Add(collectionID, id)
	m.events.Emit(interfaces.ItemAddedToCollection{ItemID: id, CollectionID: collectionID})
	return nil
}

// SetMarker toggles a marker owned by the marketplace, rent or transmission
// subsystems. Delegation and soulbound are not settable here.
func (m *Machine) SetMarker(id interfaces.ItemID, marker Marker, on bool) error {
	switch marker {
	case MarkerListed, MarkerRented, MarkerInTransmission:
	default:
		return interfaces.ErrMarkerNotSettable
	}
	it, err := m.get(id)
	if err != nil {
		return err
	}
	it.markers = it.markers.Set(marker, on)
	m.events.Emit(interfaces.ItemMarkerSet{ItemID: id, Marker: marker.String(), Value: on})
	return nil
}

// Fees returns the fees currently charged.
func (m *Machine) Fees() Fees { return m.fees }

// SetFee changes one fee and emits FeeUpdated.
func (m *Machine) SetFee(kind FeeKind, fee interfaces.Balance) error {
	switch kind {
	case MintFee:
		m.fees.Mint = fee
	case SecretFee:
		m.fees.Secret = fee
	case CapsuleFee:
		m.fees.Capsule = fee
	default:
		return interfaces.ErrFeeKindNotFound
	}
	m.events.Emit(interfaces.FeeUpdated{Kind: string(kind), Fee: fee})
	return nil
}

// Item returns a copy of an item.
func (m *Machine) Item(id interfaces.ItemID) (Item, bool) {
	it, ok := m.items[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// Delegation returns the viewer an item is delegated to.
func (m *Machine) Delegation(id interfaces.ItemID) (AccountID, bool) {
	v, ok := m.delegations[id]
	return v, ok
}

// Payload returns the secret or capsule reference attached to an item.
func (m *Machine) Payload(id interfaces.ItemID, kind interfaces.PayloadKind) (interfaces.OffchainData, bool) {
	data, ok := m.payloads[kind][id]
	return slices.Clone(data), ok
}

// ItemsOf lists the ids of items owned by account in ascending order.
func (m *Machine) ItemsOf(account AccountID) []interfaces.ItemID {
	var ids []interfaces.ItemID
	for id, it := range m.items {
		if it.Owner == account {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ItemIDs lists every item id in ascending order.
func (m *Machine) ItemIDs() []interfaces.ItemID {
	return slices.Sorted(maps.Keys(m.items))
}
