package models

import (
	"strconv"
	"time"
)

// Event types
const (
	EventTypeCategoryCreated          = "CATEGORY_CREATED"
	EventTypeCategoryMoved            = "CATEGORY_MOVED"
	EventTypeEntityCreated            = "ENTITY_CREATED"
	EventTypeEntityRenamed            = "ENTITY_RENAMED"
	EventTypeEntityDeactivated        = "ENTITY_DEACTIVATED"
	EventTypeEntityActivated          = "ENTITY_ACTIVATED"
	EventTypeSchemaChanged            = "SCHEMA_CHANGED"
	EventTypeVariantAttributeAssigned = "VARIANT_ATTRIBUTE_ASSIGNED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Header returns the common event fields
func (e BaseEvent) Header() BaseEvent {
	return e
}

// Event is implemented by every catalog event
type Event interface {
	Header() BaseEvent
	PartitionKey() string
}

// CategoryCreatedEvent published when a category is inserted into a tree
type CategoryCreatedEvent struct {
	BaseEvent
	CategoryID int64  `json:"category_id"`
	ParentID   *int64 `json:"parent_id,omitempty"`
	TreeID     int64  `json:"tree_id"`
	Slug       string `json:"slug"`
}

func (e *CategoryCreatedEvent) PartitionKey() string { return treeKey(e.TreeID) }

// CategoryMovedEvent published when a subtree is re-parented
type CategoryMovedEvent struct {
	BaseEvent
	CategoryID  int64  `json:"category_id"`
	OldParentID *int64 `json:"old_parent_id,omitempty"`
	NewParentID *int64 `json:"new_parent_id,omitempty"`
	OldTreeID   int64  `json:"old_tree_id"`
	NewTreeID   int64  `json:"new_tree_id"`
}

func (e *CategoryMovedEvent) PartitionKey() string { return treeKey(e.OldTreeID) }

// EntityEvent published for create, rename and active-state changes of any entity
type EntityEvent struct {
	BaseEvent
	Kind EntityKind `json:"kind"`
	ID   int64      `json:"id"`
	Slug string     `json:"slug,omitempty"`
}

func (e *EntityEvent) PartitionKey() string { return entityKey(e.Kind, e.ID) }

// SchemaChangedEvent published when a product type's legal attribute set changes
type SchemaChangedEvent struct {
	BaseEvent
	ProductTypeID int64 `json:"product_type_id"`
	AttributeID   int64 `json:"attribute_id"`
	Linked        bool  `json:"linked"`
}

func (e *SchemaChangedEvent) PartitionKey() string { return entityKey(KindProductType, e.ProductTypeID) }

// VariantAttributeAssignedEvent published after a variant attribute value is written
type VariantAttributeAssignedEvent struct {
	BaseEvent
	VariantID        int64 `json:"variant_id"`
	AttributeID      int64 `json:"attribute_id"`
	AttributeValueID int64 `json:"attribute_value_id"`
	Replaced         bool  `json:"replaced"`
}

func (e *VariantAttributeAssignedEvent) PartitionKey() string {
	return entityKey(KindProductVariant, e.VariantID)
}

func treeKey(treeID int64) string {
	return "tree-" + strconv.FormatInt(treeID, 10)
}

func entityKey(kind EntityKind, id int64) string {
	return string(kind) + "-" + strconv.FormatInt(id, 10)
}
