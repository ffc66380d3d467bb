package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KevinKickass/ProductionPulse/internal/types"
	"go.uber.org/zap"
)

// Repository stores AppState snapshots in one slot of a BlobStore.
// It satisfies eventlog.Persister.
type Repository struct {
	store     BlobStore
	slot      string
	validator *Validator
	logger    *zap.Logger
	onFailure func(op string, err error)
}

func NewRepository(store BlobStore, slot string, logger *zap.Logger) (*Repository, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: store, slot: slot, validator: validator, logger: logger}, nil
}

// OnFailure registers a hook called for every failed load or save.
func (r *Repository) OnFailure(fn func(op string, err error)) {
	r.onFailure = fn
}

func (r *Repository) Slot() string { return r.slot }

// Load returns the stored state merged over defaults: keys missing from the
// snapshot keep their default value. Load never fails; an unreadable or
// invalid snapshot is logged and defaults are returned with found=false.
func (r *Repository) Load(ctx context.Context, defaults types.AppState) (state types.AppState, found bool) {
	data, err := r.store.Load(ctx, r.slot)
	if errors.Is(err, ErrNotFound) {
		r.logger.Info("No stored snapshot, starting fresh", zap.String("slot", r.slot))
		return defaults.Clone(), false
	}
	if err != nil {
		r.fail("load", err)
		return defaults.Clone(), false
	}

	if err := r.validator.ValidateSnapshot(data); err != nil {
		r.fail("load", err)
		return defaults.Clone(), false
	}

	merged := defaults.Clone()
	if err := json.Unmarshal(data, &merged); err != nil {
		r.fail("load", err)
		return defaults.Clone(), false
	}

	r.logger.Info("Snapshot loaded",
		zap.String("slot", r.slot),
		zap.Int("production_events", len(merged.ProductionEvents)),
		zap.Int("downtime_events", len(merged.DowntimeEvents)))
	return merged, true
}

// Save writes the full state. Errors wrap types.ErrPersistenceFailure.
func (r *Repository) Save(ctx context.Context, state types.AppState) error {
	data, err := json.Marshal(state)
	if err != nil {
		err = fmt.Errorf("%w: encode snapshot: %v", types.ErrPersistenceFailure, err)
		r.notifyFailure("save", err)
		return err
	}
	if err := r.store.Save(ctx, r.slot, data); err != nil {
		err = fmt.Errorf("%w: %v", types.ErrPersistenceFailure, err)
		r.notifyFailure("save", err)
		return err
	}
	return nil
}

func (r *Repository) fail(op string, err error) {
	err = fmt.Errorf("%w: %v", types.ErrPersistenceFailure, err)
	r.logger.Warn("Stored snapshot unusable, falling back to defaults",
		zap.String("slot", r.slot),
		zap.String("op", op),
		zap.Error(err))
	r.notifyFailure(op, err)
}

func (r *Repository) notifyFailure(op string, err error) {
	if r.onFailure != nil {
		r.onFailure(op, err)
	}
}
