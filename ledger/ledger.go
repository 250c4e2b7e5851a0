package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ruteri/tee-capsule-ledger/balances"
	"github.com/ruteri/tee-capsule-ledger/collection"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/ruteri/tee-capsule-ledger/registry"
	"github.com/ruteri/tee-capsule-ledger/shardsync"
)

type AccountID = interfaces.AccountID

type Config struct {
	// Admins may run cluster, enclave, fee and marker administration.
	Admins      []AccountID       `toml:"admins"`
	Registry    registry.Config   `toml:"registry"`
	Collections collection.Config `toml:"collections"`
	Items       items.Config      `toml:"items"`
	Balances    balances.Config   `toml:"balances"`
	// Quorum is the sync completion policy: "full" or "threshold:N".
	Quorum string `toml:"quorum"`
	// EventLogSize bounds the number of committed events kept for readers.
	EventLogSize int `toml:"event_log_size"`
}

func DefaultConfig() Config {
	return Config{
		Registry:     registry.DefaultConfig(),
		Collections:  collection.DefaultConfig(),
		Items:        items.DefaultConfig(),
		Balances:     balances.Config{ExistentialDeposit: 1},
		Quorum:       "full",
		EventLogSize: 10_000,
	}
}

// Observer is notified of every operation outcome.
type Observer interface {
	ObserveOperation(op string, err error, took time.Duration)
}

type Option func(*Ledger)

func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// WithAssigner overrides how hand-offs pick their cluster.
func WithAssigner(a shardsync.ClusterAssigner) Option {
	return func(l *Ledger) { l.assigner = a }
}

// Ledger hosts the item machine, the collection registry, the shard sync
// coordinator and the enclave registry. Every operation runs under a single
// lock as one atomic transition: components check everything before
// changing state, and the events they emit are only committed to the event
// log when the operation succeeds.
type Ledger struct {
	mu  sync.RWMutex
	log *slog.Logger
	cfg Config

	admins   map[AccountID]struct{}
	observer Observer
	assigner shardsync.ClusterAssigner

	journal     *journal
	events      *eventLog
	subscribers []interfaces.EventSink

	balances    *balances.Ledger
	registry    *registry.Registry
	collections *collection.Registry
	sync        *shardsync.Coordinator
	items       *items.Machine
}

func newLedger(cfg Config, log *slog.Logger, opts []Option) (*Ledger, shardsync.QuorumPolicy, error) {
	quorum, err := shardsync.ParseQuorum(cfg.Quorum)
	if err != nil {
		return nil, nil, err
	}
	if cfg.EventLogSize <= 0 {
		cfg.EventLogSize = DefaultConfig().EventLogSize
	}
	l := &Ledger{
		log:      log,
		cfg:      cfg,
		admins:   make(map[AccountID]struct{}, len(cfg.Admins)),
		assigner: shardsync.ModuloAssigner{},
		journal:  &journal{},
		events:   &eventLog{size: cfg.EventLogSize},
	}
	for _, admin := range cfg.Admins {
		l.admins[admin] = struct{}{}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, quorum, nil
}

// New creates an empty ledger.
func New(cfg Config, log *slog.Logger, opts ...Option) (*Ledger, error) {
	l, quorum, err := newLedger(cfg, log, opts)
	if err != nil {
		return nil, err
	}
	l.balances = balances.New(cfg.Balances)
	l.registry = registry.New(cfg.Registry, l.journal)
	l.collections = collection.New(cfg.Collections, l.journal)
	l.sync = shardsync.New(l.registry, shardsync.WithAssigner(l.assigner), shardsync.WithQuorum(quorum))
	l.items = items.New(cfg.Items, l.journal, l.balances, l.collections, l.sync)
	return l, nil
}

// Subscribe forwards committed events to sink, in commit order.
func (l *Ledger) Subscribe(sink interfaces.EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, sink)
}

// Receipt lists the events an operation committed.
type Receipt struct {
	Events []Record `json:"events"`
}

// transact runs fn as one transition.
func (l *Ledger) transact(op string, fn func() error) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	l.journal.pending = nil
	err := fn()
	pending := l.journal.take()
	if l.observer != nil {
		l.observer.ObserveOperation(op, err, time.Since(start))
	}
	if err != nil {
		l.log.Debug("operation rejected", slog.String("op", op), slog.String("reason", interfaces.NameOf(err)), "err", err)
		return Receipt{}, err
	}

	records := l.events.append(pending)
	for _, sink := range l.subscribers {
		for _, r := range records {
			sink.Emit(r.Event)
		}
	}
	l.log.Debug("operation applied", slog.String("op", op), slog.Int("events", len(records)))
	return Receipt{Events: records}, nil
}

func (l *Ledger) IsAdmin(account AccountID) bool {
	_, ok := l.admins[account]
	return ok
}

func (l *Ledger) requireAdmin(caller AccountID) error {
	if !l.IsAdmin(caller) {
		return interfaces.ErrBadOrigin
	}
	return nil
}

// Fund credits an account outside of any operation, for genesis and tests.
func (l *Ledger) Fund(account AccountID, amount interfaces.Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances.Credit(account, amount)
}

// Item operations

type MintParams struct {
	OffchainData interfaces.OffchainData  `json:"offchain_data"`
	Royalty      interfaces.Permill       `json:"royalty"`
	CollectionID *interfaces.CollectionID `json:"collection_id,omitempty"`
	Soulbound    bool                     `json:"soulbound"`
}

func (p MintParams) request(owner AccountID) items.MintRequest {
	return items.MintRequest{
		Owner:        owner,
		OffchainData: p.OffchainData,
		Royalty:      p.Royalty,
		CollectionID: p.CollectionID,
		Soulbound:    p.Soulbound,
	}
}

func (l *Ledger) Mint(caller AccountID, p MintParams) (interfaces.ItemID, Receipt, error) {
	var id interfaces.ItemID
	receipt, err := l.transact("mint", func() (err error) {
		id, err = l.items.Mint(p.request(caller))
		return err
	})
	return id, receipt, err
}

func (l *Ledger) MintSecret(caller AccountID, p MintParams, secret interfaces.OffchainData) (interfaces.ItemID, Receipt, error) {
	var id interfaces.ItemID
	receipt, err := l.transact("mint_secret", func() (err error) {
		id, err = l.items.MintSecret(p.request(caller), secret)
		return err
	})
	return id, receipt, err
}

func (l *Ledger) Burn(caller AccountID, id interfaces.ItemID) (Receipt, error) {
	return l.transact("burn", func() error { return l.items.Burn(caller, id) })
}

func (l *Ledger) Transfer(caller AccountID, id interfaces.ItemID, recipient AccountID) (Receipt, error) {
	return l.transact("transfer", func() error { return l.items.Transfer(caller, id, recipient) })
}

func (l *Ledger) Delegate(caller AccountID, id interfaces.ItemID, viewer *AccountID) (Receipt, error) {
	return l.transact("delegate", func() error { return l.items.Delegate(caller, id, viewer) })
}

func (l *Ledger) SetRoyalty(caller AccountID, id interfaces.ItemID, royalty interfaces.Permill) (Receipt, error) {
	return l.transact("set_royalty", func() error { return l.items.SetRoyalty(caller, id, royalty) })
}

func (l *Ledger) AddItemToCollection(caller AccountID, id interfaces.ItemID, collectionID interfaces.CollectionID) (Receipt, error) {
	return l.transact("add_item_to_collection", func() error { return l.items.AddToCollection(caller, id, collectionID) })
}

func (l *Ledger) AttachSecret(caller AccountID, id interfaces.ItemID, data interfaces.OffchainData) (Receipt, error) {
	return l.transact("attach_secret", func() error { return l.items.AttachSecret(caller, id, data) })
}

func (l *Ledger) ConvertToCapsule(caller AccountID, id interfaces.ItemID, data interfaces.OffchainData) (Receipt, error) {
	return l.transact("convert_to_capsule", func() error { return l.items.ConvertToCapsule(caller, id, data) })
}

func (l *Ledger) SetCapsulePayload(caller AccountID, id interfaces.ItemID, data interfaces.OffchainData) (Receipt, error) {
	return l.transact("set_capsule_payload", func() error { return l.items.SetCapsulePayload(caller, id, data) })
}

func (l *Ledger) NotifyKeyUpdate(caller AccountID, id interfaces.ItemID) (Receipt, error) {
	return l.transact("notify_key_update", func() error { return l.items.NotifyKeyUpdate(caller, id) })
}

// AddSecretShard is called by an enclave acknowledging its secret shard.
func (l *Ledger) AddSecretShard(enclave AccountID, id interfaces.ItemID) (Receipt, error) {
	return l.transact("add_secret_shard", func() error { return l.items.AddSecretShard(enclave, id) })
}

// AddCapsuleShard is called by an enclave acknowledging its capsule shard.
func (l *Ledger) AddCapsuleShard(enclave AccountID, id interfaces.ItemID) (Receipt, error) {
	return l.transact("add_capsule_shard", func() error { return l.items.AddCapsuleShard(enclave, id) })
}

// Collection operations

func (l *Ledger) CreateCollection(caller AccountID, data interfaces.OffchainData, limit *uint32) (interfaces.CollectionID, Receipt, error) {
	var id interfaces.CollectionID
	receipt, err := l.transact("create_collection", func() (err error) {
		id, err = l.collections.Create(caller, data, limit)
		return err
	})
	return id, receipt, err
}

func (l *Ledger) BurnCollection(caller AccountID, id interfaces.CollectionID) (Receipt, error) {
	return l.transact("burn_collection", func() error { return l.collections.Burn(caller, id) })
}

func (l *Ledger) CloseCollection(caller AccountID, id interfaces.CollectionID) (Receipt, error) {
	return l.transact("close_collection", func() error { return l.collections.Close(caller, id) })
}

func (l *Ledger) LimitCollection(caller AccountID, id interfaces.CollectionID, limit uint32) (Receipt, error) {
	return l.transact("limit_collection", func() error { return l.collections.Limit(caller, id, limit) })
}

func (l *Ledger) SetCollectionMetadata(caller AccountID, id interfaces.CollectionID, data interfaces.OffchainData) (Receipt, error) {
	return l.transact("set_collection_metadata", func() error { return l.collections.SetMetadata(caller, id, data) })
}

// Enclave operations, called by the operator account

func (l *Ledger) RegisterEnclave(operator, enclave AccountID, apiURI string) (Receipt, error) {
	return l.transact("register_enclave", func() error { return l.registry.RegisterEnclave(operator, enclave, apiURI) })
}

func (l *Ledger) UnregisterEnclave(operator AccountID) (Receipt, error) {
	return l.transact("unregister_enclave", func() error { return l.registry.UnregisterEnclave(operator) })
}

func (l *Ledger) UpdateEnclave(operator, enclave AccountID, apiURI string) (Receipt, error) {
	return l.transact("update_enclave", func() error { return l.registry.UpdateEnclave(operator, enclave, apiURI) })
}

func (l *Ledger) CancelUpdate(operator AccountID) (Receipt, error) {
	return l.transact("cancel_update", func() error { return l.registry.CancelUpdate(operator) })
}

// Administrative operations

func (l *Ledger) CreateCluster(caller AccountID) (interfaces.ClusterID, Receipt, error) {
	var id interfaces.ClusterID
	receipt, err := l.transact("create_cluster", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		var err error
		id, err = l.registry.CreateCluster()
		return err
	})
	return id, receipt, err
}

func (l *Ledger) RemoveCluster(caller AccountID, id interfaces.ClusterID) (Receipt, error) {
	return l.transact("remove_cluster", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		return l.registry.RemoveCluster(id)
	})
}

func (l *Ledger) AssignEnclave(caller, operator AccountID, cluster interfaces.ClusterID) (Receipt, error) {
	return l.transact("assign_enclave", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		return l.registry.AssignEnclave(operator, cluster)
	})
}

func (l *Ledger) RemoveRegistration(caller, operator AccountID) (Receipt, error) {
	return l.transact("remove_registration", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		l.registry.RemoveRegistration(operator)
		return nil
	})
}

func (l *Ledger) RemoveUpdate(caller, operator AccountID) (Receipt, error) {
	return l.transact("remove_update", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		l.registry.RemoveUpdate(operator)
		return nil
	})
}

// RemoveEnclave deletes an assigned enclave. Hand-offs addressed to its
// cluster that the remaining members already acknowledged complete.
func (l *Ledger) RemoveEnclave(caller, operator AccountID) (Receipt, error) {
	return l.transact("remove_enclave", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		if _, err := l.registry.RemoveEnclave(operator); err != nil {
			return err
		}
		if done := l.items.ReconcileSessions(); len(done) > 0 {
			l.log.Info("hand-offs completed by cluster shrink", slog.Int("items", len(done)))
		}
		return nil
	})
}

func (l *Ledger) ForceUpdateEnclave(caller, operator, enclave AccountID, apiURI string) (Receipt, error) {
	return l.transact("force_update_enclave", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		return l.registry.ForceUpdateEnclave(operator, enclave, apiURI)
	})
}

func (l *Ledger) SetFee(caller AccountID, kind items.FeeKind, fee interfaces.Balance) (Receipt, error) {
	return l.transact("set_fee", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		return l.items.SetFee(kind, fee)
	})
}

// SetItemMarker is the hook through which marketplace, rent and
// transmission services flag items.
func (l *Ledger) SetItemMarker(caller AccountID, id interfaces.ItemID, marker items.Marker, on bool) (Receipt, error) {
	return l.transact("set_item_marker", func() error {
		if err := l.requireAdmin(caller); err != nil {
			return err
		}
		return l.items.SetMarker(id, marker, on)
	})
}

// Queries

func (l *Ledger) Item(id interfaces.ItemID) (items.Item, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items.Item(id)
}

func (l *Ledger) ItemsOf(account AccountID) []interfaces.ItemID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items.ItemsOf(account)
}

func (l *Ledger) Delegation(id interfaces.ItemID) (AccountID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items.Delegation(id)
}

func (l *Ledger) Payload(id interfaces.ItemID, kind interfaces.PayloadKind) (interfaces.OffchainData, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items.Payload(id, kind)
}

func (l *Ledger) SyncSession(id interfaces.ItemID, kind interfaces.PayloadKind) (shardsync.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sync.Session(id, kind)
}

func (l *Ledger) Collection(id interfaces.CollectionID) (collection.Collection, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collections.Get(id)
}

// EnclaveStatus is everything the registry knows about one operator.
type EnclaveStatus struct {
	Operator              AccountID             `json:"operator"`
	Registration          *registry.Enclave     `json:"registration,omitempty"`
	Enclave               *registry.Enclave     `json:"enclave,omitempty"`
	Update                *registry.Enclave     `json:"update,omitempty"`
	ClusterID             *interfaces.ClusterID `json:"cluster_id,omitempty"`
	PendingUnregistration bool                  `json:"pending_unregistration"`
}

func (l *Ledger) EnclaveStatus(operator AccountID) (EnclaveStatus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := EnclaveStatus{Operator: operator}
	if e, ok := l.registry.Registration(operator); ok {
		st.Registration = &e
	}
	if e, ok := l.registry.Enclave(operator); ok {
		st.Enclave = &e
	}
	if e, ok := l.registry.UpdateRequest(operator); ok {
		st.Update = &e
	}
	if id, ok := l.registry.ClusterOf(operator); ok {
		st.ClusterID = &id
	}
	st.PendingUnregistration = slices.Contains(l.registry.Unregistrations(), operator)
	known := st.Registration != nil || st.Enclave != nil
	return st, known
}

func (l *Ledger) Unregistrations() []AccountID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.Unregistrations()
}

func (l *Ledger) Clusters() []registry.Cluster {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []registry.Cluster
	for _, id := range l.registry.ClusterIDs() {
		c, _ := l.registry.Cluster(id)
		out = append(out, c)
	}
	return out
}

func (l *Ledger) Cluster(id interfaces.ClusterID) (registry.Cluster, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.Cluster(id)
}

func (l *Ledger) Balance(account AccountID) interfaces.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances.FreeBalance(account)
}

func (l *Ledger) Fees() items.Fees {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items.Fees()
}

// Events returns up to limit committed records after sequence number since.
func (l *Ledger) Events(since uint64, limit int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events.since(since, limit)
}

// LastSeq is the sequence number of the latest committed event.
func (l *Ledger) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events.seq
}

var errNoAdmin = errors.New("no admin configured")

// FirstAdmin returns the first configured admin, used to apply genesis.
func (l *Ledger) FirstAdmin() (AccountID, error) {
	if len(l.cfg.Admins) == 0 {
		return AccountID{}, errNoAdmin
	}
	return l.cfg.Admins[0], nil
}

func (l *Ledger) String() string {
	return fmt.Sprintf("ledger(admins=%d, quorum=%s)", len(l.admins), l.sync.Quorum())
}
