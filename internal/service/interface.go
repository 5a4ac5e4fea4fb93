package service

import (
	"context"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/pkg/middleware"
)

// AuthService registers users and manages their sessions.
type AuthService interface {
	middleware.SessionResolver

	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Session, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error)
	Logout(ctx context.Context, userID uint)
}

// ProductService creates and lists marketplace products.
type ProductService interface {
	Create(ctx context.Context, ownerID uint, req *domain.CreateProductRequest) (*domain.Product, error)
	Feed(ctx context.Context, limit int) ([]*domain.ProductListing, error)
	ListAll(ctx context.Context) ([]*domain.Product, error)
	Get(ctx context.Context, id uint) (*domain.ProductListing, error)
}

// ChatService handles realtime room events and room history.
type ChatService interface {
	Connect(ctx context.Context, client *hub.Client)
	Join(ctx context.Context, client *hub.Client, room string)
	Leave(ctx context.Context, client *hub.Client, room string)
	// Send persists and broadcasts a message. It returns nil, nil when the
	// event is ignored for an empty room or text.
	Send(ctx context.Context, req *domain.SendPayload) (*domain.Message, error)
	History(ctx context.Context, room string) ([]domain.HistoryEntry, error)
}

// UploadService validates an image and hands it to the configured host.
type UploadService interface {
	Upload(ctx context.Context, userID uint, file *domain.UploadFile) (string, error)
}

// HealthService reports liveness and record counts.
type HealthService interface {
	Health(ctx context.Context) (*domain.Health, error)
}
