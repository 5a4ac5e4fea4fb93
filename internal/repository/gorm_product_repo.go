package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/flow-market/internal/domain"
)

// GormProductRepository implements ProductRepository using GORM.
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GORM-based product repository.
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) Create(ctx context.Context, product *domain.Product) error {
	model := domain.ProductToModel(product)
	if err := r.db.WithContext(ctx).Omit("Owner").Create(model).Error; err != nil {
		return err
	}

	product.ID = model.ID
	product.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormProductRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	var model domain.ProductModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormProductRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Product, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

func (r *GormProductRepository) ListAll(ctx context.Context) ([]*domain.Product, error) {
	return r.find(r.db.WithContext(ctx).Order("id ASC"))
}

func (r *GormProductRepository) find(q *gorm.DB) ([]*domain.Product, error) {
	var models []domain.ProductModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	products := make([]*domain.Product, 0, len(models))
	for i := range models {
		products = append(products, models[i].ToDomain())
	}
	return products, nil
}

func (r *GormProductRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.ProductModel{}).Count(&n).Error
	return n, err
}
