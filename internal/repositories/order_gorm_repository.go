package repositories

import (
	"errors"
	"fmt"
	"storefront/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// GetAll retrieves all orders from the database.
func (r *GORMOrderRepository) GetAll() ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get all orders: %w", err)
	}
	return orders, nil
}

// GetByID retrieves a single order by its ID from the database.
func (r *GORMOrderRepository) GetByID(id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order with ID %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// GetByCustomer retrieves all orders placed by the given customer.
func (r *GORMOrderRepository) GetByCustomer(customerID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Find(&orders, "customer_id = ?", customerID).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders for customer %s: %w", customerID, err)
	}
	return orders, nil
}

// GetByDeliveryMan retrieves all orders assigned to the given delivery man.
func (r *GORMOrderRepository) GetByDeliveryMan(userID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Find(&orders, "assigned_delivery_man = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders for delivery man %s: %w", userID, err)
	}
	return orders, nil
}

// Create creates a new order in the database.
func (r *GORMOrderRepository) Create(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if err := r.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// Update persists the full aggregate, guarded by the version the caller
// loaded. A zero-row update means a concurrent writer got there first.
func (r *GORMOrderRepository) Update(order *models.Order) error {
	loadedVersion := order.Version
	order.Version = loadedVersion + 1

	res := r.db.Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, loadedVersion).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(order)
	if res.Error != nil {
		order.Version = loadedVersion
		return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		order.Version = loadedVersion
		return fmt.Errorf("%w: order %s was modified concurrently", ErrConflict, order.ID)
	}
	return nil
}

// Delete removes the given orders from the database.
func (r *GORMOrderRepository) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	res := r.db.Delete(&models.Order{}, "id IN ?", ids)
	if res.Error != nil {
		return fmt.Errorf("failed to delete orders: %w", res.Error)
	}
	return nil
}
