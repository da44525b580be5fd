package tiers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/validation"
	"github.com/sirupsen/logrus"
)

// Service administers membership tiers
type Service struct {
	store    Store
	resolver *Resolver
	trail    *audit.Trail
	log      logrus.FieldLogger
	clock    clockwork.Clock
	validate *validator.Validate
}

// NewService creates a tier service. resolver may be nil when no resolver
// cache needs invalidating.
func NewService(store Store, resolver *Resolver, trail *audit.Trail, log logrus.FieldLogger, clock clockwork.Clock) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if trail == nil {
		trail = audit.NewTrail(nil, log)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		trail:    trail,
		log:      log.WithField("component", "tiers"),
		clock:    clock,
		validate: validation.New(),
	}
}

// Create adds a tier
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in Input) (*Tier, error) {
	if err := rbac.Require(actor, rbac.ResourceTier, rbac.ActionCreate); err != nil {
		return nil, err
	}

	t := &Tier{Name: in.Name, ContributionAmount: in.ContributionAmount, Description: in.Description}
	if err := validation.Check(s.validate, t, ErrInvalidTier); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	if err := s.store.CreateTier(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tier: %w", err)
	}

	s.trail.Record(ctx, actor, audit.ActionCreate, audit.TargetTier, idString(t.ID), nil, t)
	return t, nil
}

// Get returns one tier
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (*Tier, error) {
	if err := rbac.Require(actor, rbac.ResourceTier, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.GetTier(ctx, id)
}

// List returns all tiers ordered by name
func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]*Tier, error) {
	if err := rbac.Require(actor, rbac.ResourceTier, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListTiers(ctx)
}

// Update changes a tier. Invoices already issued keep their amounts; only
// future invoicing sees the new contribution.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, in Input) (*Tier, error) {
	if err := rbac.Require(actor, rbac.ResourceTier, rbac.ActionUpdate); err != nil {
		return nil, err
	}

	current, err := s.store.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *current
	updated := *current
	updated.Name = in.Name
	updated.ContributionAmount = in.ContributionAmount
	updated.Description = in.Description
	if err := validation.Check(s.validate, &updated, ErrInvalidTier); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.UpdateTier(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update tier: %w", err)
	}
	s.invalidate(id)

	if !before.ContributionAmount.Equal(updated.ContributionAmount) {
		s.log.WithFields(logrus.Fields{
			"tier_id": id,
			"from":    before.ContributionAmount.String(),
			"to":      updated.ContributionAmount.String(),
		}).Info("tier contribution changed")
	}
	s.trail.Record(ctx, actor, audit.ActionUpdate, audit.TargetTier, idString(id), before, updated)
	return &updated, nil
}

// Delete removes a tier that no resident references
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := rbac.Require(actor, rbac.ResourceTier, rbac.ActionDelete); err != nil {
		return err
	}

	current, err := s.store.GetTier(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTier(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)

	s.trail.Record(ctx, actor, audit.ActionDelete, audit.TargetTier, idString(id), current, audit.Deleted(idString(id)))
	return nil
}

func (s *Service) invalidate(id int64) {
	if s.resolver != nil {
		s.resolver.Invalidate(id)
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
