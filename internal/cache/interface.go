package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/flow-market/internal/domain"
)

// ErrCacheMiss means the room has no cached history; read the database.
var ErrCacheMiss = errors.New("cache miss")

// ErrStaleVersion means the room was invalidated after the version passed to
// Set was read, so the list being written may already be out of date.
var ErrStaleVersion = errors.New("cache version changed")

// MessageCache holds the recent history of each room, oldest first.
//
// A fill reads Version before loading from the database and hands it to
// Set; Set refuses to write once an Invalidate has bumped the version.
type MessageCache interface {
	Get(ctx context.Context, room string) ([]domain.Message, error)
	Version(ctx context.Context, room string) (int64, error)
	Set(ctx context.Context, room string, version int64, messages []domain.Message, ttl time.Duration) error
	// Invalidate drops the room and bumps its version.
	Invalidate(ctx context.Context, room string) error
	Close() error
}
