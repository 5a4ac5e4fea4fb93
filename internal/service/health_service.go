package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/repository"
)

type healthServiceImpl struct {
	products repository.ProductRepository
	messages repository.MessageRepository
}

func NewHealthService(products repository.ProductRepository, messages repository.MessageRepository) HealthService {
	return &healthServiceImpl{products: products, messages: messages}
}

func (s *healthServiceImpl) Health(ctx context.Context) (*domain.Health, error) {
	products, err := s.products.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	messages, err := s.messages.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	return &domain.Health{
		OK:       true,
		Service:  domain.ServiceName,
		Products: products,
		Messages: messages,
		TS:       domain.FormatTS(time.Now()),
	}, nil
}
