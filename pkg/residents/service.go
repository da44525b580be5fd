package residents

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/validation"
	"github.com/sirupsen/logrus"
)

// maxWriteAttempts bounds re-reads after a concurrent status change
const maxWriteAttempts = 3

// Service implements the resident lifecycle: submission, the ordinary and
// privileged edit paths, approval and rejection.
type Service struct {
	store    Store
	trail    *audit.Trail
	log      logrus.FieldLogger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	validate *validator.Validate
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the clock used for timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithMetrics enables business metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a resident service
func NewService(store Store, trail *audit.Trail, log logrus.FieldLogger, opts ...Option) *Service {
	if trail == nil {
		trail = audit.NewTrail(nil, log)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Service{
		store:    store,
		trail:    trail,
		log:      log.WithField("component", "residents"),
		clock:    clockwork.NewRealClock(),
		validate: validation.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create submits a new resident record. Records always start PENDING; a
// member becomes the owner of what they submit, staff entries have no owner.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in Input) (*Resident, error) {
	if err := rbac.Require(actor, rbac.ResourceResident, rbac.ActionCreate); err != nil {
		return nil, err
	}

	r := &Resident{Status: StatusPending}
	in.applyTo(r)
	if !actor.Role.IsStaff() {
		owner := actor.UserID
		r.OwnerUserID = &owner
	}
	if err := s.check(r); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := s.store.CreateResident(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create resident: %w", err)
	}

	s.log.WithFields(logrus.Fields{"resident_id": r.ID, "actor": actor.String()}).Info("resident submitted")
	s.trail.Record(ctx, actor, audit.ActionCreate, audit.TargetResident, idString(r.ID), nil, r)
	return r, nil
}

// Get returns one resident. Members may only read their own submissions.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (*Resident, error) {
	if err := rbac.Require(actor, rbac.ResourceResident, rbac.ActionRead); err != nil {
		return nil, err
	}
	r, err := s.store.GetResident(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && !actor.Owns(r.OwnerUserID) {
		return nil, ErrResidentNotFound
	}
	return r, nil
}

// List returns residents matching filter. Members only see their own submissions.
func (s *Service) List(ctx context.Context, actor rbac.Actor, filter Filter) ([]*Resident, error) {
	if err := rbac.Require(actor, rbac.ResourceResident, rbac.ActionRead); err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() {
		owner := actor.UserID
		filter.OwnerUserID = &owner
	}
	return s.store.ListResidents(ctx, filter)
}

// Update is the ordinary edit path. Approved records are locked; editing a
// rejected record resubmits it (back to PENDING, reason cleared).
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, in Input) (*Resident, error) {
	if err := rbac.Require(actor, rbac.ResourceResident, rbac.ActionUpdate); err != nil {
		return nil, err
	}
	return s.edit(ctx, actor, id, in, PathOrdinary)
}

// ForceUpdate is the administrator override. It bypasses the lock and leaves
// the validation status untouched.
func (s *Service) ForceUpdate(ctx context.Context, actor rbac.Actor, id int64, in Input) (*Resident, error) {
	if err := rbac.Require(actor, rbac.ResourceResident, rbac.ActionForce); err != nil {
		return nil, err
	}
	return s.edit(ctx, actor, id, in, PathPrivileged)
}

func (s *Service) edit(ctx context.Context, actor rbac.Actor, id int64, in Input, path EditPath) (*Resident, error) {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		var updated *Resident
		updated, err = s.tryEdit(ctx, actor, id, in, path)
		if !errors.Is(err, ErrStatusChanged) {
			return updated, err
		}
		s.log.WithField("resident_id", id).Debug("resident status changed during edit, re-reading")
	}
	return nil, err
}

// tryEdit checks the edit against one snapshot and writes it only if the
// status is still the one checked.
func (s *Service) tryEdit(ctx context.Context, actor rbac.Actor, id int64, in Input, path EditPath) (*Resident, error) {
	current, err := s.store.GetResident(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanEdit(current, actor, path); err != nil {
		s.log.WithFields(logrus.Fields{
			"resident_id": id,
			"status":      current.Status,
			"path":        path.String(),
			"actor":       actor.String(),
		}).Debug("resident edit refused")
		return nil, err
	}

	before := current.Clone()
	updated := current.Clone()
	in.applyTo(updated)

	if path == PathOrdinary && updated.Status == StatusRejected {
		if err := transition(updated, StatusPending, ""); err != nil {
			return nil, err
		}
	}
	if err := s.check(updated); err != nil {
		return nil, err
	}

	updated.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateResident(ctx, updated, before.Status); err != nil {
		return nil, fmt.Errorf("failed to update resident: %w", err)
	}

	if before.Status != updated.Status {
		s.metrics.ResidentTransition(string(before.Status), string(updated.Status))
	}
	s.trail.Record(ctx, actor, audit.ActionUpdate, audit.TargetResident, idString(id), before, updated)
	return updated, nil
}

// Approve moves a PENDING record to APPROVED
func (s *Service) Approve(ctx context.Context, actor rbac.Actor, id int64) (*Resident, error) {
	return s.validateRecord(ctx, actor, id, StatusApproved, "")
}

// Reject moves a PENDING record to REJECTED; reason must not be blank
func (s *Service) Reject(ctx context.Context, actor rbac.Actor, id int64, reason string) (*Resident, error) {
	return s.validateRecord(ctx, actor, id, StatusRejected, reason)
}

func (s *Service) validateRecord(ctx context.Context, actor rbac.Actor, id int64, to Status, reason string) (*Resident, error) {
	if err := rbac.Require(actor, rbac.ResourceResident, rbac.ActionValidate); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		var updated *Resident
		updated, err = s.tryValidate(ctx, actor, id, to, reason)
		if !errors.Is(err, ErrStatusChanged) {
			return updated, err
		}
	}
	return nil, err
}

// tryValidate applies one transition; a losing concurrent validation re-reads
// and then fails the workflow check.
func (s *Service) tryValidate(ctx context.Context, actor rbac.Actor, id int64, to Status, reason string) (*Resident, error) {
	current, err := s.store.GetResident(ctx, id)
	if err != nil {
		return nil, err
	}
	before := current.Clone()
	updated := current.Clone()
	if err := transition(updated, to, reason); err != nil {
		return nil, err
	}

	updated.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateResident(ctx, updated, before.Status); err != nil {
		return nil, fmt.Errorf("failed to update resident status: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"resident_id": id,
		"from":        before.Status,
		"to":          updated.Status,
		"actor":       actor.String(),
	}).Info("resident validated")
	s.metrics.ResidentTransition(string(before.Status), string(updated.Status))
	s.trail.Record(ctx, actor, audit.ActionUpdate, audit.TargetResident, idString(id), before, updated)
	return updated, nil
}

// Delete removes a resident. Refused while invoices reference the record.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := rbac.Require(actor, rbac.ResourceResident, rbac.ActionDelete); err != nil {
		return err
	}

	current, err := s.store.GetResident(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteResident(ctx, id); err != nil {
		return err
	}

	s.trail.Record(ctx, actor, audit.ActionDelete, audit.TargetResident, idString(id), current, audit.Deleted(idString(id)))
	return nil
}

func (s *Service) check(r *Resident) error {
	return validation.Check(s.validate, r, ErrInvalidResident)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
