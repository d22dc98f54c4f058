package validation

import (
	"context"
	"errors"
	"fmt"

	"catalog-service/internal/models"
)

// DependentsLookup counts the active dependents of an entity along one relation
type DependentsLookup func(ctx context.Context, kind models.EntityKind, id int64, rel models.Relation) (int, error)

// DeactivationGuard blocks deactivation of entities that active dependents still refer to
type DeactivationGuard struct {
	relations map[models.EntityKind][]models.Relation
}

// NewDeactivationGuard creates a guard with the catalog's dependents table
func NewDeactivationGuard() *DeactivationGuard {
	return &DeactivationGuard{
		relations: map[models.EntityKind][]models.Relation{
			models.KindCategory:       {models.RelationChildCategories},
			models.KindProductType:    {models.RelationProducts},
			models.KindProduct:        {models.RelationVariants},
			models.KindAttribute:      {models.RelationVariantAttributes},
			models.KindAttributeValue: {models.RelationVariantValues},
		},
	}
}

// Relations returns the dependents relations checked for kind
func (g *DeactivationGuard) Relations(kind models.EntityKind) []models.Relation {
	return g.relations[kind]
}

// CanDeactivate returns a *models.BlockedError for the first relation with active
// dependents. For categories the error is a *models.ActiveChildrenError.
func (g *DeactivationGuard) CanDeactivate(ctx context.Context, kind models.EntityKind, id int64, lookup DependentsLookup) error {
	for _, rel := range g.relations[kind] {
		count, err := lookup(ctx, kind, id, rel)
		if err != nil {
			return fmt.Errorf("failed to count %s of %s %d: %w", rel, kind, id, err)
		}
		if count == 0 {
			continue
		}
		if kind == models.KindCategory {
			return &models.ActiveChildrenError{CategoryID: id, BlockingCount: count}
		}
		return &models.BlockedError{Kind: kind, ID: id, Reason: rel, BlockingCount: count}
	}
	return nil
}

// Validator runs the guard for subjects that are being deactivated
func (g *DeactivationGuard) Validator(lookup DependentsLookup) Validator {
	return ValidatorFunc(func(ctx context.Context, s *Subject) error {
		if s.IsActive {
			return nil
		}
		return g.CanDeactivate(ctx, s.Kind, s.ID, lookup)
	})
}

func asType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
