package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/weiawesome/flow-market/internal/audit"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/repository"
	"github.com/weiawesome/flow-market/pkg/log"
)

const maxTitleLength = 200

type productServiceImpl struct {
	products repository.ProductRepository
	users    repository.UserRepository
}

func NewProductService(products repository.ProductRepository, users repository.UserRepository) ProductService {
	return &productServiceImpl{products: products, users: users}
}

func (s *productServiceImpl) Create(ctx context.Context, ownerID uint, req *domain.CreateProductRequest) (*domain.Product, error) {
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	imageURL := strings.TrimSpace(req.ImageURL)

	if title == "" || description == "" || imageURL == "" {
		return nil, domain.Invalid("title, description and image are required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, domain.Invalid("title is too long")
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}

	product := &domain.Product{
		Title:       title,
		Price:       price,
		Description: description,
		ImageURL:    imageURL,
	}
	if ownerID != 0 {
		product.OwnerID = &ownerID
	}

	if err := s.products.Create(ctx, product); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Uint(log.FieldUserID, ownerID).Msg("failed to create product")
		return nil, err
	}

	l := log.Ctx(ctx)
	l.Debug().Uint(log.FieldProductID, product.ID).Str(log.FieldRoom, product.Room()).Msg("product created")
	audit.Write(ctx, audit.Entry{
		Action: audit.ActionCreateProduct,
		UserID: ownerID,
		Target: strconv.FormatUint(uint64(product.ID), 10),
		Detail: product.Title,
	}, "product created")
	return product, nil
}

// parsePrice accepts an empty string as zero and rejects negative or non-finite values.
func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, domain.Invalid("price must be a number")
	}
	if price < 0 {
		return 0, domain.Invalid("price must not be negative")
	}
	return price, nil
}

func (s *productServiceImpl) Feed(ctx context.Context, limit int) ([]*domain.ProductListing, error) {
	products, err := s.products.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.withOwners(ctx, products)
}

func (s *productServiceImpl) ListAll(ctx context.Context) ([]*domain.Product, error) {
	return s.products.ListAll(ctx)
}

func (s *productServiceImpl) Get(ctx context.Context, id uint) (*domain.ProductListing, error) {
	product, err := s.products.GetByID(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	listings, err := s.withOwners(ctx, []*domain.Product{product})
	if err != nil {
		return nil, err
	}
	return listings[0], nil
}

// withOwners resolves owner names with one batched lookup.
func (s *productServiceImpl) withOwners(ctx context.Context, products []*domain.Product) ([]*domain.ProductListing, error) {
	ids := make([]uint, 0, len(products))
	seen := make(map[uint]bool)
	for _, p := range products {
		if p.OwnerID != nil && !seen[*p.OwnerID] {
			seen[*p.OwnerID] = true
			ids = append(ids, *p.OwnerID)
		}
	}

	owners, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	listings := make([]*domain.ProductListing, 0, len(products))
	for _, p := range products {
		listing := &domain.ProductListing{Product: *p}
		if p.OwnerID != nil {
			if owner, ok := owners[*p.OwnerID]; ok {
				listing.OwnerName = owner.Username
			}
		}
		listings = append(listings, listing)
	}
	return listings, nil
}
