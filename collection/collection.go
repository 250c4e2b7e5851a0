package collection

import (
	"math"
	"slices"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

type Config struct {
	// MaxCollectionSize caps every collection, limited or not.
	MaxCollectionSize uint32 `toml:"max_collection_size"`
	// MaxOffchainDataLen caps collection metadata.
	MaxOffchainDataLen int `toml:"max_offchain_data_len"`
}

func DefaultConfig() Config {
	return Config{
		MaxCollectionSize:  1_000_000,
		MaxOffchainDataLen: 150,
	}
}

type Collection struct {
	Owner        interfaces.AccountID    `json:"owner"`
	OffchainData interfaces.OffchainData `json:"offchain_data"`
	Items        []interfaces.ItemID     `json:"items"`
	Limit        *uint32                 `json:"limit,omitempty"`
	IsClosed     bool                    `json:"is_closed"`
}

func (c Collection) clone() Collection {
	c.Items = slices.Clone(c.Items)
	c.OffchainData = slices.Clone(c.OffchainData)
	if c.Limit != nil {
		limit := *c.Limit
		c.Limit = &limit
	}
	return c
}

// Registry groups items under owned collections. Mutations validate fully
// before applying. Callers serialize access.
type Registry struct {
	cfg         Config
	events      interfaces.EventSink
	collections map[interfaces.CollectionID]*Collection
	nextID      interfaces.CollectionID
}

func New(cfg Config, events interfaces.EventSink) *Registry {
	if events == nil {
		events = interfaces.DiscardEvents
	}
	return &Registry{
		cfg:         cfg,
		events:      events,
		collections: make(map[interfaces.CollectionID]*Collection),
	}
}

func (r *Registry) capacity(c *Collection) uint32 {
	if c.Limit != nil && *c.Limit < r.cfg.MaxCollectionSize {
		return *c.Limit
	}
	return r.cfg.MaxCollectionSize
}

func (r *Registry) owned(caller interfaces.AccountID, id interfaces.CollectionID) (*Collection, error) {
	c, ok := r.collections[id]
	if !ok {
		return nil, interfaces.ErrCollectionNotFound
	}
	if c.Owner != caller {
		return nil, interfaces.ErrNotTheCollectionOwner
	}
	return c, nil
}

func (r *Registry) Create(owner interfaces.AccountID, data interfaces.OffchainData, limit *uint32) (interfaces.CollectionID, error) {
	if len(data) > r.cfg.MaxOffchainDataLen {
		return 0, interfaces.ErrOffchainDataTooLong
	}
	if limit != nil && *limit > r.cfg.MaxCollectionSize {
		return 0, interfaces.ErrCollectionLimitExceededMaximumAllowed
	}
	if r.nextID == math.MaxUint32 {
		return 0, interfaces.ErrIDsExhausted
	}

	id := r.nextID
	r.nextID++
	c := Collection{Owner: owner, OffchainData: data, Limit: limit}.clone()
	r.collections[id] = &c
	r.events.Emit(interfaces.CollectionCreated{CollectionID: id, Owner: owner, OffchainData: c.OffchainData, Limit: c.Limit})
	return id, nil
}

// Burn deletes an empty collection.
func (r *Registry) Burn(caller interfaces.AccountID, id interfaces.CollectionID) error {
	c, err := r.owned(caller, id)
	if err != nil {
		return err
	}
	if len(c.Items) > 0 {
		return interfaces.ErrCollectionIsNotEmpty
	}
	delete(r.collections, id)
	r.events.Emit(interfaces.CollectionBurned{CollectionID: id})
	return nil
}

// Close stops a collection from accepting new items. It cannot be reopened.
func (r *Registry) Close(caller interfaces.AccountID, id interfaces.CollectionID) error {
	c, err := r.owned(caller, id)
	if err != nil {
		return err
	}
	if c.IsClosed {
		return interfaces.ErrCollectionIsClosed
	}
	c.IsClosed = true
	r.events.Emit(interfaces.CollectionClosed{CollectionID: id})
	return nil
}

// Limit sets the collection's size limit. A limit can be set only once.
func (r *Registry) Limit(caller interfaces.AccountID, id interfaces.CollectionID, limit uint32) error {
	c, err := r.owned(caller, id)
	if err != nil {
		return err
	}
	if c.IsClosed {
		return interfaces.ErrCollectionIsClosed
	}
	if c.Limit != nil {
		return interfaces.ErrCollectionLimitAlreadySet
	}
	if limit > r.cfg.MaxCollectionSize {
		return interfaces.ErrCollectionLimitExceededMaximumAllowed
	}
	if uint32(len(c.Items)) > limit {
		return interfaces.ErrCollectionHasTooManyItems
	}
	c.Limit = &limit
	r.events.Emit(interfaces.CollectionLimited{CollectionID: id, Limit: limit})
	return nil
}

func (r *Registry) SetMetadata(caller interfaces.AccountID, id interfaces.CollectionID, data interfaces.OffchainData) error {
	c, err := r.owned(caller, id)
	if err != nil {
		return err
	}
	if len(data) > r.cfg.MaxOffchainDataLen {
		return interfaces.ErrOffchainDataTooLong
	}
	c.OffchainData = slices.Clone(data)
	r.events.Emit(interfaces.CollectionMetadataSet{CollectionID: id, OffchainData: c.OffchainData})
	return nil
}

// CheckAdd reports whether caller may add one more item to the collection.
func (r *Registry) CheckAdd(caller interfaces.AccountID, id interfaces.CollectionID) error {
	c, err := r.owned(caller, id)
	if err != nil {
		return err
	}
	if c.IsClosed {
		return interfaces.ErrCollectionIsClosed
	}
	if uint32(len(c.Items)) >= r.capacity(c) {
		return interfaces.ErrCollectionHasReachedLimit
	}
	return nil
}

// Add appends item to the collection. CheckAdd must have succeeded in the
// same transition.
func (r *Registry) Add(id interfaces.CollectionID, item interfaces.ItemID) {
	if c, ok := r.collections[id]; ok {
		c.Items = append(c.Items, item)
	}
}

// Remove drops item from the collection's membership list.
func (r *Registry) Remove(id interfaces.CollectionID, item interfaces.ItemID) {
	if c, ok := r.collections[id]; ok {
		c.Items = slices.DeleteFunc(c.Items, func(i interfaces.ItemID) bool { return i == item })
	}
}

func (r *Registry) Get(id interfaces.CollectionID) (Collection, bool) {
	c, ok := r.collections[id]
	if !ok {
		return Collection{}, false
	}
	return c.clone(), true
}

// State is the serializable form of a Registry.
type State struct {
	Collections map[interfaces.CollectionID]Collection `json:"collections"`
	NextID      interfaces.CollectionID                `json:"next_id"`
}

func (r *Registry) State() State {
	s := State{Collections: make(map[interfaces.CollectionID]Collection, len(r.collections)), NextID: r.nextID}
	for id, c := range r.collections {
		s.Collections[id] = c.clone()
	}
	return s
}

func Restore(cfg Config, events interfaces.EventSink, s State) *Registry {
	r := New(cfg, events)
	r.nextID = s.NextID
	for id, c := range s.Collections {
		c := c.clone()
		r.collections[id] = &c
	}
	return r
}
