package repositories

import (
	"storefront/internal/models"
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	GetAll() ([]models.Order, error)
	GetByID(id string) (*models.Order, error)
	GetByCustomer(customerID string) ([]models.Order, error)
	GetByDeliveryMan(userID string) ([]models.Order, error)
	Create(order *models.Order) error
	// Update persists the whole aggregate. It fails with ErrConflict when the
	// stored version no longer matches the one the caller loaded, so two
	// concurrent transitions cannot silently clobber each other.
	Update(order *models.Order) error
	Delete(ids []string) error
}
