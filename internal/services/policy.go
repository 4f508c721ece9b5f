package services

import (
	"fmt"

	"storefront/internal/models"
)

// Principal is the authenticated caller of an operation, as established by
// the transport layer from the JWT claims.
type Principal struct {
	UserID      string
	Username    string
	Role        models.Role
	Permissions []models.Permission
}

// HasPermission reports whether the principal carries the given grant.
// Admins do not need explicit grants; use Authorize for full checks.
func (p Principal) HasPermission(perm models.Permission) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// Operation names a mutating or reading action on an order, for policy lookup.
type Operation string

const (
	OpViewOrder            Operation = "view_order"
	OpVerifyOrder          Operation = "verify_order"
	OpSetStatus            Operation = "set_status"
	OpAssignDelivery       Operation = "assign_delivery"
	OpEditInternalNotes    Operation = "edit_internal_notes"
	OpUpdateDeliveryStatus Operation = "update_delivery_status"
	OpDeleteOrders         Operation = "delete_orders"
)

// Authorize evaluates the role/permission policy for op against the order.
//
// Two independent gates are applied. The admin role short-circuits the
// moderator permission check for management operations, but it never
// short-circuits the delivery-assignment ownership gate: only the literal
// assignee may report delivery progress, admins included.
func Authorize(p Principal, op Operation, order *models.Order) error {
	switch op {
	case OpVerifyOrder, OpSetStatus, OpAssignDelivery, OpEditInternalNotes:
		if p.Role == models.RoleAdmin {
			return nil
		}
		if p.Role == models.RoleModerator && p.HasPermission(models.PermissionManageOrders) {
			return nil
		}
		return fmt.Errorf("%w: %s requires admin or a moderator with %s", ErrUnauthorized, op, models.PermissionManageOrders)

	case OpUpdateDeliveryStatus:
		if order == nil || order.AssignedDeliveryMan == "" || p.UserID != order.AssignedDeliveryMan {
			return fmt.Errorf("%w: only the assigned delivery man may update delivery progress", ErrNotAssignedToYou)
		}
		return nil

	case OpDeleteOrders:
		if p.Role == models.RoleAdmin {
			return nil
		}
		return fmt.Errorf("%w: %s requires admin", ErrUnauthorized, op)

	case OpViewOrder:
		if p.Role == models.RoleAdmin {
			return nil
		}
		if p.Role == models.RoleModerator && len(p.Permissions) > 0 {
			return nil
		}
		if order != nil && order.CustomerID != "" && p.UserID == order.CustomerID {
			return nil
		}
		if order != nil && order.AssignedDeliveryMan != "" && p.UserID == order.AssignedDeliveryMan {
			return nil
		}
		return fmt.Errorf("%w: not allowed to view this order", ErrUnauthorized)
	}

	return fmt.Errorf("%w: unknown operation %s", ErrUnauthorized, op)
}
