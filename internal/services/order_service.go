package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/google/uuid"
)

// EventPublisher publishes order events to the message broker. Implemented
// by *rabbitmq.Client; tests inject a mock.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// OrderService owns the order lifecycle: creation with stock reservation,
// role-gated transitions, delivery progress and the append-only change history.
type OrderService struct {
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	userRepo    repositories.UserRepository
	publisher   EventPublisher
	now         func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo repositories.OrderRepository, productRepo repositories.ProductRepository, userRepo repositories.UserRepository, publisher EventPublisher) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		publisher:   publisher,
		now:         time.Now,
	}
}

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	Items           []models.OrderItem     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	PaymentMethod   models.PaymentMethod   `json:"payment_method"`
	PaymentDetails  map[string]interface{} `json:"payment_details"`
	ContactConsent  bool                   `json:"contact_consent"`
}

// CreateOrder places a new order: it reserves stock for every line item
// (all-or-nothing), snapshots unit prices, computes the total once and
// publishes an order.created event. Reservation uses atomic decrements with
// compensating increments, so a failing item releases everything reserved
// before it.
func (s *OrderService) CreateOrder(principal Principal, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: an order needs at least one item", ErrValidation)
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			return nil, fmt.Errorf("%w: every item needs a product and a quantity of at least 1", ErrValidation)
		}
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = models.PaymentMethodCard
	}
	switch paymentMethod {
	case models.PaymentMethodCard, models.PaymentMethodCash, models.PaymentMethodOther:
	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, paymentMethod)
	}

	// Reserve stock item by item; roll back on the first failure.
	var totalAmount float64
	items := make([]models.OrderItem, 0, len(req.Items))
	reserved := make([]models.OrderItem, 0, len(req.Items))

	rollback := func() {
		for _, item := range reserved {
			if err := s.productRepo.IncrementStock(item.ProductID, item.Quantity); err != nil {
				log.Printf("Failed to release reservation for product %s: %v", item.ProductID, err)
			}
		}
	}

	for _, item := range req.Items {
		product, err := s.productRepo.GetByID(item.ProductID)
		if err != nil {
			rollback()
			return nil, err
		}
		if err := s.productRepo.DecrementStock(product.ID, item.Quantity); err != nil {
			rollback()
			return nil, err
		}
		reserved = append(reserved, models.OrderItem{ProductID: product.ID, Quantity: item.Quantity})
		items = append(items, product.Snapshot(item.Quantity))
		totalAmount += product.Price * float64(item.Quantity)
	}

	newOrder := &models.Order{
		ID:              uuid.New().String(),
		CustomerID:      principal.UserID,
		Items:           items,
		TotalAmount:     totalAmount,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   paymentMethod,
		PaymentDetails:  req.PaymentDetails,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.OrderStatusNew,
		DeliveryStatus:  models.DeliveryStatusPending,
		ContactConsent:  req.ContactConsent,
	}

	if err := s.orderRepo.Create(newOrder); err != nil {
		rollback()
		return nil, fmt.Errorf("failed to create order in repository: %w", err)
	}

	s.publishEvent("order.created", map[string]interface{}{
		"orderID":    newOrder.ID,
		"customerID": newOrder.CustomerID,
		"status":     newOrder.Status,
		"total":      newOrder.TotalAmount,
	})
	// The contact workflow is fire-and-forget and strictly consent-gated;
	// a publish failure never rolls back the order.
	if newOrder.ContactConsent {
		s.publishEvent("order.contact_requested", map[string]interface{}{
			"orderID":    newOrder.ID,
			"customerID": newOrder.CustomerID,
		})
	}

	return newOrder, nil
}

// GetOrder loads an order the principal is allowed to see.
func (s *OrderService) GetOrder(principal Principal, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, OpViewOrder, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns the orders visible to the principal: staff see all,
// customers their own purchases, delivery men their own assignments.
func (s *OrderService) ListOrders(principal Principal) ([]models.Order, error) {
	switch principal.Role {
	case models.RoleAdmin:
		return s.orderRepo.GetAll()
	case models.RoleModerator:
		if len(principal.Permissions) == 0 {
			return nil, fmt.Errorf("%w: moderator has no permissions", ErrUnauthorized)
		}
		return s.orderRepo.GetAll()
	case models.RoleDelivery:
		return s.orderRepo.GetByDeliveryMan(principal.UserID)
	case models.RoleCustomer:
		return s.orderRepo.GetByCustomer(principal.UserID)
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrUnauthorized, principal.Role)
}

// Verify records the confirm/cancel decision on an order. Calling it again
// re-stamps the decision and appends another history entry: the log records
// actions taken, not just diffs.
func (s *OrderService) Verify(principal Principal, orderID string, decision models.OrderStatus, notes string) (*models.Order, error) {
	if decision != models.OrderStatusConfirmed && decision != models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: verification decision must be confirmed or cancelled, got %q", ErrInvalidTransition, decision)
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, OpVerifyOrder, order); err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, orderID, order.Status)
	}

	changes := map[string]interface{}{
		"status":   map[string]interface{}{"from": order.Status, "to": decision},
		"verified": map[string]interface{}{"from": order.Verified, "to": decision == models.OrderStatusConfirmed},
	}

	now := s.now()
	order.Verified = decision == models.OrderStatusConfirmed
	order.VerifiedBy = principal.UserID
	order.VerifiedAt = &now
	order.Status = decision

	if notes != "" && notes != order.InternalNotes {
		changes["internal_notes"] = map[string]interface{}{"from": order.InternalNotes, "to": notes}
		order.InternalNotes = notes
	}

	order.AppendChange(models.ChangeEntry{
		ChangedBy: principal.UserID,
		ChangedAt: now,
		Action:    models.ActionVerifyOrder,
		Changes:   changes,
		Notes:     notes,
	})

	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}

	s.publishEvent("order.verified", map[string]interface{}{
		"orderID":  order.ID,
		"status":   order.Status,
		"verified": order.Verified,
	})
	return order, nil
}

// SetStatus directly changes the order status. Unlike Verify it has no "new"
// precondition, so staff can correct or revert earlier decisions; setting
// confirmed stamps the verification fields as a side effect.
func (s *OrderService) SetStatus(principal Principal, orderID string, newStatus models.OrderStatus, notes string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, OpSetStatus, order); err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%w: cannot move order %s from %s to %s", ErrInvalidTransition, orderID, order.Status, newStatus)
	}

	changes := map[string]interface{}{
		"status": map[string]interface{}{"from": order.Status, "to": newStatus},
	}

	now := s.now()
	order.Status = newStatus
	if newStatus == models.OrderStatusConfirmed {
		order.Verified = true
		order.VerifiedBy = principal.UserID
		order.VerifiedAt = &now
	}
	if notes != "" && notes != order.InternalNotes {
		changes["internal_notes"] = map[string]interface{}{"from": order.InternalNotes, "to": notes}
		order.InternalNotes = notes
	}

	order.AppendChange(models.ChangeEntry{
		ChangedBy: principal.UserID,
		ChangedAt: now,
		Action:    models.ActionUpdateStatus,
		Changes:   changes,
		Notes:     notes,
	})

	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}

	s.publishEvent("order.status_updated", map[string]interface{}{
		"orderID": order.ID,
		"status":  order.Status,
	})
	return order, nil
}

// Assign sets (or replaces) the delivery man responsible for the order and
// resets the delivery status to pending.
func (s *OrderService) Assign(principal Principal, orderID, deliveryManID, notes string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, OpAssignDelivery, order); err != nil {
		return nil, err
	}

	assignee, err := s.userRepo.GetByID(deliveryManID)
	if err != nil {
		return nil, err
	}
	if assignee.Role != models.RoleDelivery {
		return nil, fmt.Errorf("%w: user %s has role %s", ErrInvalidAssignee, deliveryManID, assignee.Role)
	}

	changes := map[string]interface{}{
		"assigned_delivery_man": map[string]interface{}{"from": order.AssignedDeliveryMan, "to": deliveryManID},
		"delivery_status":       map[string]interface{}{"from": order.DeliveryStatus, "to": models.DeliveryStatusPending},
	}

	order.AssignedDeliveryMan = deliveryManID
	order.DeliveryStatus = models.DeliveryStatusPending

	order.AppendChange(models.ChangeEntry{
		ChangedBy: principal.UserID,
		ChangedAt: s.now(),
		Action:    models.ActionAssignDelivery,
		Changes:   changes,
		Notes:     notes,
	})

	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateDeliveryStatus records delivery progress. Only the assigned delivery
// man may call it; the restriction holds for admins as well. Progress
// propagates to the order status (picked_up/on_the_way mean shipped,
// delivered means delivered, and cash orders settle on delivery) unless the
// order already reached a terminal state. Delivery updates are tracked via
// the delivery fields themselves and do not append to the change history.
func (s *OrderService) UpdateDeliveryStatus(principal Principal, orderID string, newStatus models.DeliveryStatus, notes string) (*models.Order, error) {
	if !models.ValidDeliveryStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown delivery status %q", ErrInvalidTransition, newStatus)
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, OpUpdateDeliveryStatus, order); err != nil {
		return nil, err
	}

	order.DeliveryStatus = newStatus
	if notes != "" {
		order.DeliveryNotes = notes
	}

	if !order.Status.IsTerminal() {
		switch newStatus {
		case models.DeliveryStatusDelivered:
			order.Status = models.OrderStatusDelivered
			if order.PaymentMethod == models.PaymentMethodCash {
				order.PaymentStatus = models.PaymentStatusPaid
			}
		case models.DeliveryStatusPickedUp, models.DeliveryStatusOnTheWay:
			order.Status = models.OrderStatusShipped
		}
	}

	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}
	return order, nil
}

// SetInternalNotes updates the staff-only notes. A history entry is appended
// only when the value actually changes.
func (s *OrderService) SetInternalNotes(principal Principal, orderID, notes string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, OpEditInternalNotes, order); err != nil {
		return nil, err
	}

	if notes == order.InternalNotes {
		return order, nil
	}

	order.AppendChange(models.ChangeEntry{
		ChangedBy: principal.UserID,
		ChangedAt: s.now(),
		Action:    models.ActionUpdateNotes,
		Changes: map[string]interface{}{
			"internal_notes": map[string]interface{}{"from": order.InternalNotes, "to": notes},
		},
	})
	order.InternalNotes = notes

	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteOrders removes the given orders. Every non-cancelled order being
// deleted first returns its line-item quantities to product stock; cancelled
// orders are removed without restoration. The whole batch is validated
// before anything is touched.
func (s *OrderService) DeleteOrders(principal Principal, ids []string) error {
	if err := Authorize(principal, OpDeleteOrders, nil); err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: no order ids given", ErrValidation)
	}

	orders := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		order, err := s.orderRepo.GetByID(id)
		if err != nil {
			return err
		}
		orders = append(orders, order)
	}

	for _, order := range orders {
		if order.Status == models.OrderStatusCancelled {
			continue
		}
		for _, item := range order.Items {
			if err := s.productRepo.IncrementStock(item.ProductID, item.Quantity); err != nil {
				log.Printf("Failed to restore stock for product %s on order %s: %v", item.ProductID, order.ID, err)
			}
		}
	}

	return s.orderRepo.Delete(ids)
}

// publishEvent marshals and publishes a broker event, logging failures
// instead of propagating them: events never fail the operation.
func (s *OrderService) publishEvent(routingKey string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", routingKey, err)
		return
	}
	if err := s.publisher.Publish("orders", routingKey, body); err != nil {
		log.Printf("Warning: Failed to publish %s event: %v", routingKey, err)
	}
}
