package worker

import (
	"context"

	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// SchemaInvalidator drops a cached product type attribute set
type SchemaInvalidator interface {
	Invalidate(ctx context.Context, productTypeID int64) error
}

// SchemaCacheWorker keeps the shared schema cache consistent with schema changes
// made by any instance of the service.
type SchemaCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	schema       SchemaInvalidator
	logger       *zap.Logger
}

// NewSchemaCacheWorker creates a new schema cache worker
func NewSchemaCacheWorker(consumer *broker.Consumer, schema SchemaInvalidator) *SchemaCacheWorker {
	w := &SchemaCacheWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		schema:       schema,
		logger:       util.Component("worker"),
	}
	w.eventHandler.OnSchemaChanged(w.HandleSchemaChanged)
	return w
}

// HandleSchemaChanged invalidates the cache entry of the changed product type
func (w *SchemaCacheWorker) HandleSchemaChanged(ctx context.Context, event *models.SchemaChangedEvent) error {
	if err := w.schema.Invalidate(ctx, event.ProductTypeID); err != nil {
		w.logger.Error("Failed to invalidate schema cache",
			zap.Int64("product_type_id", event.ProductTypeID),
			zap.Error(err))
		return err
	}
	w.logger.Debug("Schema cache invalidated",
		zap.Int64("product_type_id", event.ProductTypeID),
		zap.String("event_id", event.EventID))
	return nil
}

// Start starts the worker
func (w *SchemaCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting schema cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SchemaCacheWorker) Stop() error {
	w.logger.Info("Stopping schema cache worker")
	return w.consumer.Close()
}
