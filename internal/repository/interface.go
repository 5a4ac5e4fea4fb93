package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/flow-market/internal/domain"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrUsernameExists  = errors.New("username already exists")
)

// UserRepository persists accounts. Users are never updated or deleted.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetByIDs returns the users that exist among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []uint) (map[uint]*domain.User, error)
	// FindConflict reports which unique field, if any, is already taken.
	FindConflict(ctx context.Context, username, email string) error
}

// ProductRepository persists listings. Products are never updated or deleted.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id uint) (*domain.Product, error)
	// ListRecent returns up to limit products, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Product, error)
	// ListAll returns every product in insertion order.
	ListAll(ctx context.Context) ([]*domain.Product, error)
	Count(ctx context.Context) (int64, error)
}

// MessageRepository persists the append-only chat log.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListRecent returns the last limit messages of room, oldest first.
	ListRecent(ctx context.Context, room string, limit int) ([]*domain.Message, error)
	Count(ctx context.Context) (int64, error)
}
