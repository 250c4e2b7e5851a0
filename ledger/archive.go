package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// SaveSnapshot stores the current state in backend and returns its id.
func (l *Ledger) SaveSnapshot(ctx context.Context, backend interfaces.StorageBackend) (interfaces.ContentID, error) {
	data, err := l.MarshalSnapshot()
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	id, err := backend.Store(ctx, data, interfaces.SnapshotType)
	if err != nil {
		return id, fmt.Errorf("storing snapshot: %w", err)
	}
	l.log.Info("snapshot saved",
		slog.String("id", id.String()),
		slog.String("backend", backend.Name()),
		slog.Uint64("event_seq", l.LastSeq()))
	return id, nil
}

// LoadSnapshot fetches a snapshot from backend and restores it.
func LoadSnapshot(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID, cfg Config, log *slog.Logger, opts ...Option) (*Ledger, error) {
	data, err := backend.Fetch(ctx, id, interfaces.SnapshotType)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot %s: %w", id, err)
	}
	if interfaces.ComputeID(data) != id {
		return nil, fmt.Errorf("%w: snapshot content does not match %s", interfaces.ErrUnsupportedSnapshot, id)
	}
	return UnmarshalSnapshot(cfg, log, data, opts...)
}

// RunSnapshots saves a snapshot every interval until ctx is done, skipping
// rounds in which nothing was committed since the last save. It saves a
// final snapshot on exit.
func (l *Ledger) RunSnapshots(ctx context.Context, backend interfaces.StorageBackend, interval time.Duration, saved func(interfaces.ContentID)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeq uint64
	save := func(ctx context.Context) {
		seq := l.LastSeq()
		if seq == lastSeq {
			return
		}
		id, err := l.SaveSnapshot(ctx, backend)
		if err != nil {
			l.log.Error("snapshot failed", "err", err)
			return
		}
		lastSeq = seq
		if saved != nil {
			saved(id)
		}
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			save(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			save(ctx)
		}
	}
}
