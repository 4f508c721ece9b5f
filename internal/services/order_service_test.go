package services_test

import (
	"testing"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockEventPublisher is a mock implementation of services.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(exchange, routingKey string, body []byte) error {
	args := m.Called(exchange, routingKey, body)
	return args.Error(0)
}

type orderServiceFixture struct {
	service     *services.OrderService
	orderRepo   *repositories.MockOrderRepository
	productRepo *repositories.MockProductRepository
	userRepo    *MockUserRepository
}

func newOrderServiceFixture() *orderServiceFixture {
	orderRepo := repositories.NewMockOrderRepository()
	productRepo := repositories.NewMockProductRepository()
	userRepo := new(MockUserRepository)
	return &orderServiceFixture{
		service:     services.NewOrderService(orderRepo, productRepo, userRepo, nil),
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
	}
}

func (f *orderServiceFixture) seedProduct(t *testing.T, id string, price float64, stock int) {
	t.Helper()
	err := f.productRepo.Create(&models.Product{ID: id, Name: "Product " + id, Price: price, Stock: stock})
	assert.NoError(t, err)
}

func (f *orderServiceFixture) stockOf(t *testing.T, id string) int {
	t.Helper()
	product, err := f.productRepo.GetByID(id)
	assert.NoError(t, err)
	return product.Stock
}

var (
	adminPrincipal    = services.Principal{UserID: "admin-1", Role: models.RoleAdmin}
	modPrincipal      = services.Principal{UserID: "mod-1", Role: models.RoleModerator, Permissions: []models.Permission{models.PermissionManageOrders}}
	deliveryPrincipal = services.Principal{UserID: "del-1", Role: models.RoleDelivery}
	customerPrincipal = services.Principal{UserID: "cust-1", Role: models.RoleCustomer}
)

func placeOrder(t *testing.T, f *orderServiceFixture, req services.CreateOrderRequest) *models.Order {
	t.Helper()
	order, err := f.service.CreateOrder(customerPrincipal, req)
	assert.NoError(t, err)
	return order
}

func assignDeliveryMan(t *testing.T, f *orderServiceFixture, orderID string) *models.Order {
	t.Helper()
	f.userRepo.On("GetByID", "del-1").Return(&models.User{ID: "del-1", Role: models.RoleDelivery}, nil).Once()
	order, err := f.service.Assign(adminPrincipal, orderID, "del-1", "")
	assert.NoError(t, err)
	return order
}

func TestOrderService_CreateOrder_ReservesStockAndSnapshotsPrice(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)

	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 3}},
	})

	assert.Equal(t, 7, f.stockOf(t, "prod-1"))
	assert.Equal(t, 150.0, order.TotalAmount)
	assert.Equal(t, 50.0, order.Items[0].UnitPrice)
	assert.Equal(t, models.OrderStatusNew, order.Status)
	assert.Equal(t, models.PaymentMethodCard, order.PaymentMethod)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.DeliveryStatusPending, order.DeliveryStatus)
	assert.Equal(t, "cust-1", order.CustomerID)
	assert.Empty(t, order.ChangeHistory)
}

func TestOrderService_CreateOrder_InsufficientStockRollsBack(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 10.0, 5)
	f.seedProduct(t, "prod-2", 20.0, 1)

	_, err := f.service.CreateOrder(customerPrincipal, services.CreateOrderRequest{
		Items: []models.OrderItem{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-2", Quantity: 3},
		},
	})
	assert.ErrorIs(t, err, services.ErrInsufficientStock)

	// The reservation already taken for prod-1 must be released.
	assert.Equal(t, 5, f.stockOf(t, "prod-1"))
	assert.Equal(t, 1, f.stockOf(t, "prod-2"))
}

func TestOrderService_CreateOrder_Validation(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 10.0, 5)

	_, err := f.service.CreateOrder(customerPrincipal, services.CreateOrderRequest{})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.service.CreateOrder(customerPrincipal, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 0}},
	})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.service.CreateOrder(customerPrincipal, services.CreateOrderRequest{
		Items:         []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
		PaymentMethod: "barter",
	})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.service.CreateOrder(customerPrincipal, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "ghost", Quantity: 1}},
	})
	assert.ErrorIs(t, err, services.ErrNotFound)

	// None of the failures may leak a reservation.
	assert.Equal(t, 5, f.stockOf(t, "prod-1"))
}

func TestOrderService_CreateOrder_PublishesEvents(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 10.0, 5)

	publisher := new(MockEventPublisher)
	publisher.On("Publish", "orders", "order.created", mock.Anything).Return(nil).Twice()
	publisher.On("Publish", "orders", "order.contact_requested", mock.Anything).Return(nil).Once()
	f.service = services.NewOrderService(f.orderRepo, f.productRepo, f.userRepo, publisher)

	_, err := f.service.CreateOrder(customerPrincipal, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})
	assert.NoError(t, err)

	// Contact automation fires only with consent.
	publisher.AssertNotCalled(t, "Publish", "orders", "order.contact_requested", mock.Anything)

	_, err = f.service.CreateOrder(customerPrincipal, services.CreateOrderRequest{
		Items:          []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
		ContactConsent: true,
	})
	assert.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestOrderService_Verify_ConfirmsAndLogs(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})

	verified, err := f.service.Verify(modPrincipal, order.ID, models.OrderStatusConfirmed, "looks good")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, verified.Status)
	assert.True(t, verified.Verified)
	assert.Equal(t, "mod-1", verified.VerifiedBy)
	assert.NotNil(t, verified.VerifiedAt)
	assert.Equal(t, "looks good", verified.InternalNotes)
	assert.Len(t, verified.ChangeHistory, 1)
	assert.Equal(t, models.ActionVerifyOrder, verified.ChangeHistory[0].Action)

	// Verifying again is not suppressed: the log records actions taken,
	// not just diffs.
	verified, err = f.service.Verify(modPrincipal, order.ID, models.OrderStatusConfirmed, "")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, verified.Status)
	assert.Len(t, verified.ChangeHistory, 2)
	assert.Equal(t, models.ActionVerifyOrder, verified.ChangeHistory[1].Action)
}

func TestOrderService_Verify_Unauthorized(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})

	noPerm := services.Principal{UserID: "mod-2", Role: models.RoleModerator}
	_, err := f.service.Verify(noPerm, order.ID, models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	_, err = f.service.Verify(customerPrincipal, order.ID, models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, services.ErrUnauthorized)
}

func TestOrderService_Verify_InvalidDecisionAndTerminal(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})

	_, err := f.service.Verify(modPrincipal, order.ID, models.OrderStatusShipped, "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	_, err = f.service.Verify(modPrincipal, order.ID, models.OrderStatusCancelled, "")
	assert.NoError(t, err)

	// Cancelled is terminal; a second decision is rejected.
	_, err = f.service.Verify(modPrincipal, order.ID, models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	_, err = f.service.Verify(modPrincipal, "ghost", models.OrderStatusConfirmed, "")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestOrderService_SetStatus(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})

	// Shipped cannot be set directly; it is reached via delivery progress.
	_, err := f.service.SetStatus(adminPrincipal, order.ID, models.OrderStatusShipped, "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	// Confirming via setStatus stamps the verification fields too.
	updated, err := f.service.SetStatus(adminPrincipal, order.ID, models.OrderStatusConfirmed, "")
	assert.NoError(t, err)
	assert.True(t, updated.Verified)
	assert.Equal(t, "admin-1", updated.VerifiedBy)
	assert.Len(t, updated.ChangeHistory, 1)
	assert.Equal(t, models.ActionUpdateStatus, updated.ChangeHistory[0].Action)

	// The correction path: confirmed may be reverted to new.
	updated, err = f.service.SetStatus(adminPrincipal, order.ID, models.OrderStatusNew, "")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusNew, updated.Status)
	assert.Len(t, updated.ChangeHistory, 2)

	// Terminal states are sinks.
	_, err = f.service.SetStatus(adminPrincipal, order.ID, models.OrderStatusCancelled, "")
	assert.NoError(t, err)
	_, err = f.service.SetStatus(adminPrincipal, order.ID, models.OrderStatusNew, "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
}

func TestOrderService_Assign(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})

	f.userRepo.On("GetByID", "del-1").Return(&models.User{ID: "del-1", Role: models.RoleDelivery}, nil).Once()
	assigned, err := f.service.Assign(modPrincipal, order.ID, "del-1", "rush delivery")
	assert.NoError(t, err)
	assert.Equal(t, "del-1", assigned.AssignedDeliveryMan)
	assert.Equal(t, models.DeliveryStatusPending, assigned.DeliveryStatus)
	assert.Len(t, assigned.ChangeHistory, 1)
	assert.Equal(t, models.ActionAssignDelivery, assigned.ChangeHistory[0].Action)

	// Assignment target must carry the delivery role.
	f.userRepo.On("GetByID", "cust-9").Return(&models.User{ID: "cust-9", Role: models.RoleCustomer}, nil).Once()
	_, err = f.service.Assign(modPrincipal, order.ID, "cust-9", "")
	assert.ErrorIs(t, err, services.ErrInvalidAssignee)

	f.userRepo.AssertExpectations(t)
}

func TestOrderService_UpdateDeliveryStatus_PropagationAndGate(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items:         []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
		PaymentMethod: models.PaymentMethodCash,
	})
	assignDeliveryMan(t, f, order.ID)

	// Only the assignee may report progress; the admin is denied too.
	_, err := f.service.UpdateDeliveryStatus(adminPrincipal, order.ID, models.DeliveryStatusPickedUp, "")
	assert.ErrorIs(t, err, services.ErrNotAssignedToYou)

	updated, err := f.service.UpdateDeliveryStatus(deliveryPrincipal, order.ID, models.DeliveryStatusPickedUp, "picked up at depot")
	assert.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPickedUp, updated.DeliveryStatus)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)
	assert.Equal(t, "picked up at depot", updated.DeliveryNotes)
	// Delivery actions never touch the change history.
	assert.Len(t, updated.ChangeHistory, 1)

	updated, err = f.service.UpdateDeliveryStatus(deliveryPrincipal, order.ID, models.DeliveryStatusOnTheWay, "")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)

	// Cash-on-delivery settles on delivery.
	updated, err = f.service.UpdateDeliveryStatus(deliveryPrincipal, order.ID, models.DeliveryStatusDelivered, "")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, updated.Status)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	assert.Len(t, updated.ChangeHistory, 1)
}

func TestOrderService_UpdateDeliveryStatus_NoPropagationCases(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})
	assignDeliveryMan(t, f, order.ID)

	// pending/failed carry no order-level propagation.
	updated, err := f.service.UpdateDeliveryStatus(deliveryPrincipal, order.ID, models.DeliveryStatusFailed, "nobody home")
	assert.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, updated.DeliveryStatus)
	assert.Equal(t, models.OrderStatusNew, updated.Status)

	_, err = f.service.UpdateDeliveryStatus(deliveryPrincipal, order.ID, "teleported", "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	// On a terminal order the delivery fields still update but the order
	// status stays put.
	_, err = f.service.SetStatus(adminPrincipal, order.ID, models.OrderStatusCancelled, "")
	assert.NoError(t, err)
	updated, err = f.service.UpdateDeliveryStatus(deliveryPrincipal, order.ID, models.DeliveryStatusPickedUp, "")
	assert.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPickedUp, updated.DeliveryStatus)
	assert.Equal(t, models.OrderStatusCancelled, updated.Status)
}

func TestOrderService_SetInternalNotes_DiffSuppressed(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})

	updated, err := f.service.SetInternalNotes(modPrincipal, order.ID, "call before delivery")
	assert.NoError(t, err)
	assert.Equal(t, "call before delivery", updated.InternalNotes)
	assert.Len(t, updated.ChangeHistory, 1)
	assert.Equal(t, models.ActionUpdateNotes, updated.ChangeHistory[0].Action)

	// Unlike verify/status/assign, the notes path appends only on change.
	updated, err = f.service.SetInternalNotes(modPrincipal, order.ID, "call before delivery")
	assert.NoError(t, err)
	assert.Len(t, updated.ChangeHistory, 1)

	_, err = f.service.SetInternalNotes(customerPrincipal, order.ID, "please hurry")
	assert.ErrorIs(t, err, services.ErrUnauthorized)
}

func TestOrderService_ChangeHistoryIsAppendOnly(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)
	order := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})

	_, err := f.service.Verify(modPrincipal, order.ID, models.OrderStatusConfirmed, "")
	assert.NoError(t, err)
	assignDeliveryMan(t, f, order.ID)
	_, err = f.service.SetInternalNotes(modPrincipal, order.ID, "fragile")
	assert.NoError(t, err)

	final, err := f.service.GetOrder(adminPrincipal, order.ID)
	assert.NoError(t, err)
	assert.Len(t, final.ChangeHistory, 3)
	// Earlier entries are untouched by later operations.
	assert.Equal(t, models.ActionVerifyOrder, final.ChangeHistory[0].Action)
	assert.Equal(t, models.ActionAssignDelivery, final.ChangeHistory[1].Action)
	assert.Equal(t, models.ActionUpdateNotes, final.ChangeHistory[2].Action)
}

func TestOrderService_DeleteOrders_RestoresStock(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)

	kept := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 3}},
	})
	cancelled := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 2}},
	})
	assert.Equal(t, 5, f.stockOf(t, "prod-1"))

	_, err := f.service.SetStatus(adminPrincipal, cancelled.ID, models.OrderStatusCancelled, "")
	assert.NoError(t, err)

	// Deletion is admin only.
	err = f.service.DeleteOrders(modPrincipal, []string{kept.ID})
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	// The non-cancelled order restores its reservation; the cancelled one
	// does not.
	err = f.service.DeleteOrders(adminPrincipal, []string{kept.ID, cancelled.ID})
	assert.NoError(t, err)
	assert.Equal(t, 8, f.stockOf(t, "prod-1"))

	_, err = f.orderRepo.GetByID(kept.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.orderRepo.GetByID(cancelled.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestOrderService_ListOrders_Scoping(t *testing.T) {
	f := newOrderServiceFixture()
	f.seedProduct(t, "prod-1", 50.0, 10)

	mine := placeOrder(t, f, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})
	other, err := f.service.CreateOrder(services.Principal{UserID: "cust-2", Role: models.RoleCustomer}, services.CreateOrderRequest{
		Items: []models.OrderItem{{ProductID: "prod-1", Quantity: 1}},
	})
	assert.NoError(t, err)
	assignDeliveryMan(t, f, other.ID)

	all, err := f.service.ListOrders(adminPrincipal)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.service.ListOrders(customerPrincipal)
	assert.NoError(t, err)
	assert.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	assignments, err := f.service.ListOrders(deliveryPrincipal)
	assert.NoError(t, err)
	assert.Len(t, assignments, 1)
	assert.Equal(t, other.ID, assignments[0].ID)

	_, err = f.service.ListOrders(services.Principal{UserID: "mod-2", Role: models.RoleModerator})
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	// Customers cannot read each other's orders.
	_, err = f.service.GetOrder(services.Principal{UserID: "cust-2", Role: models.RoleCustomer}, mine.ID)
	assert.ErrorIs(t, err, services.ErrUnauthorized)
}
