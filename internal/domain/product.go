package domain

import (
	"fmt"
	"time"
)

// Product is a marketplace listing.
type Product struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	OwnerID     *uint     `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Room returns the chat room dedicated to this product.
func (p *Product) Room() string {
	return RoomForProduct(p.ID)
}

// RoomForProduct returns the chat room name for a product id.
func RoomForProduct(id uint) string {
	return fmt.Sprintf("product_%d", id)
}

// ProductListing is a product with its owner's display name resolved.
type ProductListing struct {
	Product
	OwnerName string `json:"owner_name,omitempty"`
}

// CreateProductRequest is the add-product form. Price stays raw so that
// parsing errors surface as validation errors rather than binding errors.
type CreateProductRequest struct {
	Title       string `form:"title"`
	Price       string `form:"price"`
	Description string `form:"description"`
	ImageURL    string `form:"image_url"`
}
