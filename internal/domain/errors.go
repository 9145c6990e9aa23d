package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is wrapped by every lookup miss in the storage layers.
var ErrNotFound = errors.New("not found")

// ValidationError rejects input shared by the whole checkout call.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type ProductNotFoundError struct {
	ProductID string
	VariantID string
}

func (e *ProductNotFoundError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("product %s variant %s not found", e.ProductID, e.VariantID)
	}
	return fmt.Sprintf("product %s not found", e.ProductID)
}

type LineShortage struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockError fails one shop order because requested quantities exceed stock.
type StockError struct {
	Shortages []LineShortage
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		id := s.ProductID
		if s.VariantID != "" {
			id += "/" + s.VariantID
		}
		parts = append(parts, fmt.Sprintf("%s requested %d available %d", id, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

type VoucherErrorCode string

const (
	VoucherNotFound          VoucherErrorCode = "NOT_FOUND"
	VoucherInactive          VoucherErrorCode = "INACTIVE"
	VoucherNotYetValid       VoucherErrorCode = "NOT_YET_VALID"
	VoucherExpired           VoucherErrorCode = "EXPIRED"
	VoucherUsageLimitReached VoucherErrorCode = "USAGE_LIMIT_REACHED"
	VoucherBelowMinimum      VoucherErrorCode = "BELOW_MINIMUM"
	VoucherScopeMismatch     VoucherErrorCode = "SCOPE_MISMATCH"
)

type VoucherError struct {
	Code        VoucherErrorCode
	VoucherCode string
}

func (e *VoucherError) Error() string {
	return fmt.Sprintf("voucher %q rejected: %s", e.VoucherCode, e.Code)
}

type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// ForbiddenTransitionError is a valid edge taken by an actor not allowed to take it.
type ForbiddenTransitionError struct {
	Role ActorRole
	From OrderStatus
	To   OrderStatus
}

func (e *ForbiddenTransitionError) Error() string {
	return fmt.Sprintf("%s may not move order from %s to %s", e.Role, e.From, e.To)
}

type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
}
