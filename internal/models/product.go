package models

import "gorm.io/gorm"

// Product is a catalog entry. Stock is the reservation pool: checkout
// decrements it and order deletion restores it, so it may temporarily
// disagree with the physically available count during a rollback.
type Product struct {
	ID          string  `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name        string  `json:"name" validate:"required,min=3,max=100"`
	Description string  `json:"description" validate:"omitempty,max=500"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	gorm.Model
}

// Snapshot freezes the current price into an order line. Later catalog
// edits must not change what an already placed order owes.
func (p *Product) Snapshot(qty int) OrderItem {
	return OrderItem{
		ProductID: p.ID,
		Quantity:  qty,
		UnitPrice: p.Price,
	}
}
