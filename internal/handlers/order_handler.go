package handlers

import (
	"fmt"
	"log"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleListOrders)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Delete("/", h.HandleDeleteOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/:id/verify", h.HandleVerifyOrder)
	orderRoutes.Patch("/:id/status", h.HandleSetStatus)
	orderRoutes.Post("/:id/assign", h.HandleAssignDelivery)
	orderRoutes.Patch("/:id/delivery-status", h.HandleUpdateDeliveryStatus)
	orderRoutes.Patch("/:id/notes", h.HandleSetInternalNotes)
}

// requirePrincipal fetches the authenticated principal. When it is missing
// (route wired outside AuthRequired) it writes a 401 and returns ok=false.
func requirePrincipal(c *fiber.Ctx) (services.Principal, bool) {
	principal, ok := middleware.PrincipalFromCtx(c)
	if !ok {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authentication required",
		})
	}
	return principal, ok
}

// HandleListOrders returns the orders visible to the caller.
func (h *OrderHandler) HandleListOrders(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	orders, err := h.service.ListOrders(principal)
	if err != nil {
		log.Printf("Error listing orders for %s: %v", principal.UserID, err)
		return errorJSON(c, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	orderID := c.Params("id")
	order, err := h.service.GetOrder(principal, orderID)
	if err != nil {
		log.Printf("Error getting order %s: %v", orderID, err)
		return errorJSON(c, fmt.Sprintf("Could not retrieve order %s", orderID), err)
	}
	return c.JSON(order)
}

// HandleCreateOrder places a new order for the caller.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	var req services.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing create-order request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}

	createdOrder, err := h.service.CreateOrder(principal, req)
	if err != nil {
		log.Printf("Error creating order: %v", err)
		return errorJSON(c, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(createdOrder)
}

// VerifyOrderRequest is the body for the moderator confirm/cancel decision.
type VerifyOrderRequest struct {
	Decision models.OrderStatus `json:"decision" validate:"required"`
	Notes    string             `json:"notes"`
}

// HandleVerifyOrder records the confirm/cancel decision on an order.
func (h *OrderHandler) HandleVerifyOrder(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	var req VerifyOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if req.Decision == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Decision is required (confirmed or cancelled).",
		})
	}

	orderID := c.Params("id")
	order, err := h.service.Verify(principal, orderID, req.Decision, req.Notes)
	if err != nil {
		log.Printf("Error verifying order %s: %v", orderID, err)
		return errorJSON(c, fmt.Sprintf("Could not verify order %s", orderID), err)
	}
	return c.JSON(order)
}

// SetStatusRequest is the body for a direct status change.
type SetStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
	Notes  string             `json:"notes"`
}

// HandleSetStatus directly changes the order status.
func (h *OrderHandler) HandleSetStatus(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	var req SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Status is required for order status update.",
		})
	}

	orderID := c.Params("id")
	order, err := h.service.SetStatus(principal, orderID, req.Status, req.Notes)
	if err != nil {
		log.Printf("Error updating status for order %s: %v", orderID, err)
		return errorJSON(c, fmt.Sprintf("Could not update status of order %s", orderID), err)
	}
	return c.JSON(order)
}

// AssignDeliveryRequest is the body for assigning a delivery man.
type AssignDeliveryRequest struct {
	DeliveryManID string `json:"delivery_man_id" validate:"required"`
	Notes         string `json:"notes"`
}

// HandleAssignDelivery assigns or reassigns the delivery man for an order.
func (h *OrderHandler) HandleAssignDelivery(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	var req AssignDeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if req.DeliveryManID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "delivery_man_id is required.",
		})
	}

	orderID := c.Params("id")
	order, err := h.service.Assign(principal, orderID, req.DeliveryManID, req.Notes)
	if err != nil {
		log.Printf("Error assigning order %s to %s: %v", orderID, req.DeliveryManID, err)
		return errorJSON(c, fmt.Sprintf("Could not assign order %s", orderID), err)
	}
	return c.JSON(order)
}

// UpdateDeliveryStatusRequest is the body for the assignee's progress report.
type UpdateDeliveryStatusRequest struct {
	DeliveryStatus models.DeliveryStatus `json:"delivery_status" validate:"required"`
	Notes          string                `json:"notes"`
}

// HandleUpdateDeliveryStatus records delivery progress reported by the assignee.
func (h *OrderHandler) HandleUpdateDeliveryStatus(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	var req UpdateDeliveryStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if req.DeliveryStatus == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "delivery_status is required.",
		})
	}

	orderID := c.Params("id")
	order, err := h.service.UpdateDeliveryStatus(principal, orderID, req.DeliveryStatus, req.Notes)
	if err != nil {
		log.Printf("Error updating delivery status for order %s: %v", orderID, err)
		return errorJSON(c, fmt.Sprintf("Could not update delivery status of order %s", orderID), err)
	}
	return c.JSON(order)
}

// SetNotesRequest is the body for editing the staff-only notes.
type SetNotesRequest struct {
	Notes string `json:"notes"`
}

// HandleSetInternalNotes updates the internal notes on an order.
func (h *OrderHandler) HandleSetInternalNotes(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	var req SetNotesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	orderID := c.Params("id")
	order, err := h.service.SetInternalNotes(principal, orderID, req.Notes)
	if err != nil {
		log.Printf("Error updating notes for order %s: %v", orderID, err)
		return errorJSON(c, fmt.Sprintf("Could not update notes of order %s", orderID), err)
	}
	return c.JSON(order)
}

// DeleteOrdersRequest is the body for bulk order deletion.
type DeleteOrdersRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// HandleDeleteOrders removes one or more orders, restoring reserved stock
// for every non-cancelled order in the batch.
func (h *OrderHandler) HandleDeleteOrders(c *fiber.Ctx) error {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil
	}

	var req DeleteOrdersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "At least one order id is required.",
		})
	}

	if err := h.service.DeleteOrders(principal, req.IDs); err != nil {
		log.Printf("Error deleting orders %v: %v", req.IDs, err)
		return errorJSON(c, "Could not delete orders", err)
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("%d order(s) deleted successfully", len(req.IDs)),
	})
}
