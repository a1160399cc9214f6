package archiver

import (
	"context"

	"github.com/satori-nvr/satori/internal/satoriconfig"
)

// Store is the object-store capability both drivers expose. Put is
// idempotent on key: a repeated put of identical bytes is a no-op from
// the caller's perspective, and a put that finds a differing object at
// the same key overwrites it (segments are content-stable by filename).
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// NewStore selects a driver by cfg.Kind.
func NewStore(cfg satoriconfig.StorageConfig) (Store, error) {
	switch cfg.Kind {
	case satoriconfig.StorageKindS3:
		return newS3Store(cfg)
	case satoriconfig.StorageKindLocal:
		return newLocalStore(cfg)
	default:
		return nil, &unsupportedStorageKind{kind: string(cfg.Kind)}
	}
}

type unsupportedStorageKind struct{ kind string }

func (e *unsupportedStorageKind) Error() string {
	return "unsupported storage kind: " + e.kind
}
