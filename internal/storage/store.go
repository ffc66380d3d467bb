package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/ProductionPulse/internal/config"
)

var ErrNotFound = errors.New("snapshot not found")

// BlobStore keeps one opaque snapshot per slot. Save replaces the whole value.
type BlobStore interface {
	Load(ctx context.Context, slot string) ([]byte, error)
	Save(ctx context.Context, slot string, data []byte) error
	Close() error
}

// Open connects the backend selected in cfg.Storage.
func Open(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return OpenSQLite(cfg.Storage.SQLitePath)
	case "postgres":
		return NewPostgresClient(ctx, cfg.Database)
	case "badger":
		return OpenBadger(cfg.Storage.BadgerPath)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
