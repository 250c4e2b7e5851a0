package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-capsule-ledger/balances"
	"github.com/ruteri/tee-capsule-ledger/collection"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/ruteri/tee-capsule-ledger/registry"
	"github.com/ruteri/tee-capsule-ledger/shardsync"
)

const snapshotVersion = 1

// Snapshot is the full ledger state at one event sequence number.
type Snapshot struct {
	Version     int                              `json:"version"`
	EventSeq    uint64                           `json:"event_seq"`
	Balances    map[AccountID]interfaces.Balance `json:"balances"`
	Registry    registry.State                   `json:"registry"`
	Collections collection.State                 `json:"collections"`
	Sessions    []shardsync.Session              `json:"sessions"`
	Items       items.State                      `json:"items"`
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Version:     snapshotVersion,
		EventSeq:    l.events.seq,
		Balances:    l.balances.State(),
		Registry:    l.registry.State(),
		Collections: l.collections.State(),
		Sessions:    l.sync.Sessions(),
		Items:       l.items.State(),
	}
}

// MarshalSnapshot encodes the current state.
func (l *Ledger) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(l.Snapshot())
}

// Restore builds a ledger from a snapshot. Configuration comes from cfg;
// the event log restarts empty at the snapshot's sequence number.
func Restore(cfg Config, log *slog.Logger, s Snapshot, opts ...Option) (*Ledger, error) {
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", interfaces.ErrUnsupportedSnapshot, s.Version)
	}
	l, quorum, err := newLedger(cfg, log, opts)
	if err != nil {
		return nil, err
	}

	l.balances = balances.Restore(cfg.Balances, s.Balances)
	if l.registry, err = registry.Restore(cfg.Registry, l.journal, s.Registry); err != nil {
		return nil, fmt.Errorf("restoring registry: %w", err)
	}
	l.collections = collection.Restore(cfg.Collections, l.journal, s.Collections)
	l.sync = shardsync.New(l.registry, shardsync.WithAssigner(l.assigner), shardsync.WithQuorum(quorum))
	l.sync.Load(s.Sessions)
	if l.items, err = items.Restore(cfg.Items, l.journal, l.balances, l.collections, l.sync, s.Items); err != nil {
		return nil, fmt.Errorf("restoring items: %w", err)
	}
	l.events.seq = s.EventSeq
	return l, nil
}

// UnmarshalSnapshot decodes and restores a snapshot produced by MarshalSnapshot.
func UnmarshalSnapshot(cfg Config, log *slog.Logger, data []byte, opts ...Option) (*Ledger, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrUnsupportedSnapshot, err)
	}
	return Restore(cfg, log, s, opts...)
}
