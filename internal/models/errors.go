package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced entity does not exist
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the missing entity
func NotFound(kind EntityKind, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

// EmptyNameError is returned when a slug source normalizes to nothing
type EmptyNameError struct {
	Kind  EntityKind
	Field string
}

func (e *EmptyNameError) Error() string {
	return fmt.Sprintf("cannot generate slug for %s: %s is empty", e.Kind, e.Field)
}

// InvalidFieldError reports a rejected input field
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CycleError is returned when a move would place a category under itself
type CycleError struct {
	CategoryID  int64
	NewParentID int64
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cannot move category %d under %d: target is the category or one of its descendants",
		e.CategoryID, e.NewParentID)
}

// BlockedError is returned when active dependents prevent deactivation
type BlockedError struct {
	Kind          EntityKind
	ID            int64
	Reason        Relation
	BlockingCount int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("cannot deactivate %s %d: %d %s", e.Kind, e.ID, e.BlockingCount, e.Reason)
}

// ActiveChildrenError is the category flavour of BlockedError
type ActiveChildrenError struct {
	CategoryID    int64
	BlockingCount int
}

func (e *ActiveChildrenError) Error() string {
	return fmt.Sprintf("cannot deactivate category %d: %d active children", e.CategoryID, e.BlockingCount)
}

func (e *ActiveChildrenError) Unwrap() error {
	return &BlockedError{
		Kind:          KindCategory,
		ID:            e.CategoryID,
		Reason:        RelationChildCategories,
		BlockingCount: e.BlockingCount,
	}
}

// MissingProductTypeError is returned when a variant's product has no product type
type MissingProductTypeError struct {
	ProductID int64
}

func (e *MissingProductTypeError) Error() string {
	return fmt.Sprintf("product %d has no product type", e.ProductID)
}

// IllegalAttributeError is returned when an attribute is not legal for a product type
type IllegalAttributeError struct {
	AttributeID   int64
	ProductTypeID int64
}

func (e *IllegalAttributeError) Error() string {
	return fmt.Sprintf("attribute %d is not valid for product type %d", e.AttributeID, e.ProductTypeID)
}

// MismatchedValueError is returned when a value does not belong to the given attribute
type MismatchedValueError struct {
	AttributeID      int64
	AttributeValueID int64
}

func (e *MismatchedValueError) Error() string {
	return fmt.Sprintf("attribute value %d does not belong to attribute %d", e.AttributeValueID, e.AttributeID)
}

// DuplicateAttributeError is returned when a variant already holds another value for an attribute
type DuplicateAttributeError struct {
	VariantID       int64
	AttributeID     int64
	ExistingValueID int64
}

func (e *DuplicateAttributeError) Error() string {
	return fmt.Sprintf("variant %d already has value %d for attribute %d",
		e.VariantID, e.ExistingValueID, e.AttributeID)
}

// ConflictError is returned when concurrent writers kept colliding past the retry budget
type ConflictError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is an input, invariant or dependency error
// that must be surfaced to the caller rather than retried.
func IsValidation(err error) bool {
	var (
		emptyName  *EmptyNameError
		invalid    *InvalidFieldError
		cycle      *CycleError
		blocked    *BlockedError
		missing    *MissingProductTypeError
		illegal    *IllegalAttributeError
		mismatched *MismatchedValueError
		duplicate  *DuplicateAttributeError
	)
	return errors.As(err, &emptyName) ||
		errors.As(err, &invalid) ||
		errors.As(err, &cycle) ||
		errors.As(err, &blocked) ||
		errors.As(err, &missing) ||
		errors.As(err, &illegal) ||
		errors.As(err, &mismatched) ||
		errors.As(err, &duplicate)
}
