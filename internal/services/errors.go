package services

import (
	"errors"

	"storefront/internal/repositories"
)

// Domain error kinds. Handlers branch on these with errors.Is and map each
// kind to a transport status; services wrap them with human-readable context.
var (
	// ErrNotFound mirrors the storage-level kind so callers only need to
	// check one sentinel for missing orders, products or users.
	ErrNotFound = repositories.ErrNotFound
	// ErrInsufficientStock mirrors the storage-level reservation failure.
	ErrInsufficientStock = repositories.ErrInsufficientStock

	// ErrUnauthorized indicates the principal lacks the role or permission
	// for the requested operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotAssignedToYou indicates a delivery-status update by anyone other
	// than the order's assigned delivery man. Stricter than ErrUnauthorized:
	// even admins are denied.
	ErrNotAssignedToYou = errors.New("order is not assigned to you")
	// ErrInvalidAssignee indicates an assignment target without the delivery role.
	ErrInvalidAssignee = errors.New("assignee must have the delivery role")
	// ErrInvalidTransition indicates a status change on a terminal order or
	// an out-of-domain status value.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation indicates a malformed or incomplete operation payload.
	ErrValidation = errors.New("validation failed")
)
