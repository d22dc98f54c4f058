package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestPublisher(w *fakeWriter) *EventPublisher {
	return NewEventPublisher(&Producer{writer: w, logger: util.Component("kafka")})
}

func TestPublishKeysByPartitionKey(t *testing.T) {
	w := &fakeWriter{}
	ep := newTestPublisher(w)

	event := &models.CategoryMovedEvent{
		BaseEvent:  models.BaseEvent{EventID: "e1", EventType: models.EventTypeCategoryMoved, Timestamp: time.Now()},
		CategoryID: 4,
		OldTreeID:  1,
		NewTreeID:  2,
	}
	require.NoError(t, ep.Publish(context.Background(), event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "tree-1", string(msg.Key))
	assert.Equal(t, models.EventTypeCategoryMoved, headerValue(msg, HeaderEventType))

	var decoded models.CategoryMovedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, int64(4), decoded.CategoryID)
	assert.Equal(t, "e1", decoded.EventID)
}

func TestPublishWrapsWriterErrors(t *testing.T) {
	boom := errors.New("leader not available")
	ep := newTestPublisher(&fakeWriter{err: boom})

	err := ep.Publish(context.Background(), &models.EntityEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeEntityCreated},
		Kind:      models.KindTag,
		ID:        1,
	})
	assert.ErrorIs(t, err, boom)
}

func TestHandleMessageRoutesByType(t *testing.T) {
	w := &fakeWriter{}
	ep := newTestPublisher(w)
	ctx := context.Background()

	require.NoError(t, ep.Publish(ctx, &models.SchemaChangedEvent{
		BaseEvent:     models.BaseEvent{EventType: models.EventTypeSchemaChanged},
		ProductTypeID: 7,
		AttributeID:   3,
		Linked:        true,
	}))
	require.NoError(t, ep.Publish(ctx, &models.EntityEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeEntityRenamed},
		Kind:      models.KindTag,
		ID:        9,
		Slug:      "summer",
	}))
	require.NoError(t, ep.Publish(ctx, &models.VariantAttributeAssignedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeVariantAttributeAssigned},
		VariantID: 1,
	}))

	var schemaChanges []int64
	var renamed []string
	h := NewEventHandler()
	h.OnSchemaChanged(func(_ context.Context, e *models.SchemaChangedEvent) error {
		schemaChanges = append(schemaChanges, e.ProductTypeID)
		return nil
	})
	h.OnEntityChanged(func(_ context.Context, e *models.EntityEvent) error {
		renamed = append(renamed, e.Slug)
		return nil
	})

	for _, msg := range w.messages {
		require.NoError(t, h.HandleMessage(ctx, msg))
	}
	assert.Equal(t, []int64{7}, schemaChanges)
	assert.Equal(t, []string{"summer"}, renamed)
}

func TestHandleMessageWithoutHeader(t *testing.T) {
	body, err := json.Marshal(&models.SchemaChangedEvent{
		BaseEvent:     models.BaseEvent{EventType: models.EventTypeSchemaChanged},
		ProductTypeID: 5,
	})
	require.NoError(t, err)

	var got int64
	h := NewEventHandler()
	h.OnSchemaChanged(func(_ context.Context, e *models.SchemaChangedEvent) error {
		got = e.ProductTypeID
		return nil
	})
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: body}))
	assert.Equal(t, int64(5), got)

	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}
