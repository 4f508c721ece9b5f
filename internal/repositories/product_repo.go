package repositories

import (
	"storefront/internal/models"
)

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	GetAll() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id string) error
	// DecrementStock atomically reserves qty units, failing with
	// ErrInsufficientStock if fewer than qty are available. Implementations
	// must not read-modify-write in application code.
	DecrementStock(id string, qty int) error
	// IncrementStock atomically returns qty units to stock.
	IncrementStock(id string, qty int) error
}
