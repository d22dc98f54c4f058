package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes catalog events to the catalog topic
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Publish writes event keyed by its partition key
func (ep *EventPublisher) Publish(ctx context.Context, event models.Event) error {
	return ep.producer.PublishEvent(ctx, event.PartitionKey(), event.Header().EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSchemaChanged func(context.Context, *models.SchemaChangedEvent) error
	onCategoryMoved func(context.Context, *models.CategoryMovedEvent) error
	onEntityChanged func(context.Context, *models.EntityEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Component("events")}
}

// OnSchemaChanged registers a handler for SchemaChanged events
func (eh *EventHandler) OnSchemaChanged(handler func(context.Context, *models.SchemaChangedEvent) error) {
	eh.onSchemaChanged = handler
}

// OnCategoryMoved registers a handler for CategoryMoved events
func (eh *EventHandler) OnCategoryMoved(handler func(context.Context, *models.CategoryMovedEvent) error) {
	eh.onCategoryMoved = handler
}

// OnEntityChanged registers a handler for entity create, rename and activity events
func (eh *EventHandler) OnEntityChanged(handler func(context.Context, *models.EntityEvent) error) {
	eh.onEntityChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	eventType := headerValue(msg, HeaderEventType)
	if eventType == "" {
		var base models.BaseEvent
		if err := json.Unmarshal(msg.Value, &base); err != nil {
			return fmt.Errorf("failed to unmarshal base event: %w", err)
		}
		eventType = base.EventType
	}

	eh.logger.Debug("Handling event", zap.String("event_type", eventType), zap.ByteString("key", msg.Key))

	switch eventType {
	case models.EventTypeSchemaChanged:
		if eh.onSchemaChanged != nil {
			var event models.SchemaChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SchemaChanged event: %w", err)
			}
			return eh.onSchemaChanged(ctx, &event)
		}

	case models.EventTypeCategoryMoved:
		if eh.onCategoryMoved != nil {
			var event models.CategoryMovedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CategoryMoved event: %w", err)
			}
			return eh.onCategoryMoved(ctx, &event)
		}

	case models.EventTypeEntityCreated, models.EventTypeEntityRenamed,
		models.EventTypeEntityActivated, models.EventTypeEntityDeactivated:
		if eh.onEntityChanged != nil {
			var event models.EntityEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
			}
			return eh.onEntityChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", eventType))
	}

	return nil
}
