package models

import "gorm.io/gorm"

// Role classifies a principal's base capabilities.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleDelivery  Role = "delivery"
	RoleCustomer  Role = "customer"
)

// Permission is a per-capability grant held by moderators. Admins bypass
// permission checks entirely.
type Permission string

// PermissionManageOrders gates the order verification/edit/assignment surface.
const PermissionManageOrders Permission = "manage_orders"

// User represents a user of the store.
type User struct {
	ID          string       `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username    string       `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email       string       `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password    string       `gorm:"type:varchar(255)" validate:"required,min=6"` // No json tag for security
	Role        Role         `json:"role" gorm:"type:varchar(16);default:customer"`
	Permissions []Permission `json:"permissions,omitempty" gorm:"serializer:json"`
	gorm.Model               // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// HasPermission reports whether the user carries the given grant.
func (u *User) HasPermission(p Permission) bool {
	for _, have := range u.Permissions {
		if have == p {
			return true
		}
	}
	return false
}
