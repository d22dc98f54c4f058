package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/schema"
	"catalog-service/internal/slug"
	"catalog-service/internal/store"
	"catalog-service/internal/util"
	"catalog-service/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher delivers catalog events after their transaction commits
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.Event) error { return nil }

// kinds whose names are unique regardless of letter case
var caseInsensitiveNames = map[models.EntityKind]bool{
	models.KindProductType: true,
	models.KindAttribute:   true,
	models.KindTag:         true,
}

// CatalogService is the catalog integrity engine. Every mutation runs in one
// store transaction; events are published only after it commits.
type CatalogService struct {
	store  store.Runner
	schema *schema.Schema
	guard  *validation.DeactivationGuard
	events EventPublisher
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service. events may be nil.
func NewCatalogService(runner store.Runner, attrs *schema.Schema, events EventPublisher) *CatalogService {
	if events == nil {
		events = noopPublisher{}
	}
	if attrs == nil {
		attrs = schema.New(nil)
	}
	return &CatalogService{
		store:  runner,
		schema: attrs,
		guard:  validation.NewDeactivationGuard(),
		events: events,
		logger: util.Component("catalog"),
	}
}

// GenerateSlug returns the slug a record of kind named name would get now.
// excludeID identifies the record being renamed, if any.
func (s *CatalogService) GenerateSlug(ctx context.Context, kind models.EntityKind, name string, excludeID *int64) (string, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GenerateSlug")
	var err error
	defer func() { util.EndSpan(span, err) }()

	if !kind.Slugged() {
		err = invalidKind(kind)
		return "", err
	}

	var exclude int64
	if excludeID != nil {
		exclude = *excludeID
	}

	var generated string
	err = s.store.View(ctx, func(tx store.Tx) error {
		generated, err = slug.Generate(ctx, kind, name, s.slugExists(tx, kind, exclude))
		return err
	})
	return generated, err
}

// slugExists is the uniqueness check slug generation runs against tx
func (s *CatalogService) slugExists(tx store.Tx, kind models.EntityKind, excludeID int64) slug.ExistsFunc {
	return func(ctx context.Context, candidate string) (bool, error) {
		taken, err := tx.ExistsWithSlug(ctx, kind, candidate, excludeID)
		if taken {
			util.SlugCollisionsTotal.WithLabelValues(string(kind)).Inc()
		}
		return taken, err
	}
}

// namePipeline validates the slug source of subject and assigns its slug
func (s *CatalogService) namePipeline(tx store.Tx, subject *validation.Subject) validation.Pipeline {
	p := validation.Pipeline{validation.NameLength()}
	if caseInsensitiveNames[subject.Kind] {
		p = append(p, validation.UniqueName(tx.NameTaken))
	}
	return append(p,
		validation.AssignSlug(s.slugExists(tx, subject.Kind, subject.ID)),
		validation.SlugFormat(),
	)
}

// observe records the outcome of a mutation
func (s *CatalogService) observe(op string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	fields = append(fields, zap.String("op", op), zap.Error(err))

	var blocked *models.BlockedError
	switch {
	case errors.As(err, &blocked):
		util.DeactivationsBlockedTotal.WithLabelValues(string(blocked.Kind)).Inc()
		util.ValidationFailuresTotal.WithLabelValues(validation.Reason(err)).Inc()
		s.logger.Warn("Deactivation blocked", fields...)
	case models.IsValidation(err):
		util.ValidationFailuresTotal.WithLabelValues(validation.Reason(err)).Inc()
		s.logger.Warn("Catalog write rejected", fields...)
	case errors.Is(err, models.ErrNotFound):
		s.logger.Warn("Catalog write references missing entity", fields...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Info("Catalog write cancelled", fields...)
	default:
		s.logger.Error("Catalog write failed", fields...)
	}
}

func (s *CatalogService) publish(ctx context.Context, event models.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(event.Header().EventType).Inc()
		s.logger.Error("Failed to publish catalog event",
			zap.String("event_type", event.Header().EventType),
			zap.Error(err))
	}
}

func (s *CatalogService) publishEntity(ctx context.Context, eventType string, kind models.EntityKind, id int64, slugValue string) {
	s.publish(ctx, &models.EntityEvent{
		BaseEvent: newBaseEvent(eventType),
		Kind:      kind,
		ID:        id,
		Slug:      slugValue,
	})
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func invalidKind(kind models.EntityKind) error {
	return &models.InvalidFieldError{Field: "kind", Reason: fmt.Sprintf("unsupported entity kind %q", kind)}
}
