package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/krama-desa/iuran/pkg/billing"

// Deps are the collaborators shared by the Generator and the Ledger
type Deps struct {
	Invoices  InvoiceStore
	Payments  PaymentStore
	Directory ResidentDirectory
	Fees      FeeResolver
	Previews  PreviewCache
	Trail     *audit.Trail
	Logger    logrus.FieldLogger
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
	// Location is the billing time zone; periods are calendar months in it
	Location *time.Location
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Trail == nil {
		d.Trail = audit.NewTrail(nil, d.Logger)
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
}

// Generator creates invoices, singly or as a two-phase bulk run
type Generator struct {
	invoices  InvoiceStore
	directory ResidentDirectory
	fees      FeeResolver
	previews  PreviewCache
	trail     *audit.Trail
	log       logrus.FieldLogger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	loc       *time.Location
	validate  *validator.Validate
	tracer    trace.Tracer
}

// NewGenerator creates an invoice generator. Previews may be nil, in which
// case CommitPreview always reports ErrPreviewNotFound.
func NewGenerator(deps Deps) (*Generator, error) {
	if deps.Invoices == nil || deps.Directory == nil || deps.Fees == nil {
		return nil, fmt.Errorf("generator requires an invoice store, a resident directory and a fee resolver")
	}
	deps.defaults()
	return &Generator{
		invoices:  deps.Invoices,
		directory: deps.Directory,
		fees:      deps.Fees,
		previews:  deps.Previews,
		trail:     deps.Trail,
		log:       deps.Logger.WithField("component", "invoice_generator"),
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		loc:       deps.Location,
		validate:  validation.New(),
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// CreateInvoiceRequest is the input for single invoice creation
type CreateInvoiceRequest struct {
	ResidentID int64 `json:"resident_id" validate:"gt=0"`
	// PeriodDate defaults to today in the billing time zone
	PeriodDate time.Time       `json:"period_date"`
	Peturunan  decimal.Decimal `json:"peturunan" validate:"gte=0"`
	Dedosan    decimal.Decimal `json:"dedosan" validate:"gte=0"`
	Notes      string          `json:"notes,omitempty" validate:"max=500"`
	// RejectDuplicatePeriod opts a single creation into the per-period check
	RejectDuplicatePeriod bool `json:"reject_duplicate_period,omitempty"`
}

// CreateInvoice issues one invoice for an eligible resident. Single creation
// is not subject to the one-per-period rule unless RejectDuplicatePeriod is
// set, so staff can issue manual corrections.
func (g *Generator) CreateInvoice(ctx context.Context, actor rbac.Actor, req CreateInvoiceRequest) (*Invoice, error) {
	ctx, span := g.tracer.Start(ctx, "billing.CreateInvoice",
		trace.WithAttributes(attribute.Int64("resident_id", req.ResidentID)))
	defer span.End()

	inv, err := g.createInvoice(ctx, actor, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("invoice_id", inv.ID))
	return inv, nil
}

func (g *Generator) createInvoice(ctx context.Context, actor rbac.Actor, req CreateInvoiceRequest) (*Invoice, error) {
	if err := rbac.Require(actor, rbac.ResourceInvoice, rbac.ActionCreate); err != nil {
		return nil, err
	}
	if err := validation.Check(g.validate, req, ErrInvalidInvoice); err != nil {
		return nil, err
	}

	res, err := g.directory.Lookup(ctx, req.ResidentID)
	if err != nil {
		return nil, err
	}
	if res.Status != residents.StatusApproved {
		return nil, &IneligibleResidentError{ResidentID: res.ID, Reason: ReasonNotApproved}
	}
	mandatory, ok, err := g.fees.ResolveContribution(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contribution: %w", err)
	}
	if !ok {
		return nil, &IneligibleResidentError{ResidentID: res.ID, Reason: ReasonFeeUnresolved}
	}

	periodDate := req.PeriodDate
	if periodDate.IsZero() {
		periodDate = g.clock.Now()
	}
	inv := g.newInvoice(actor, res.ID, periodDate, mandatory, req.Peturunan, req.Dedosan, SourceSingle)
	inv.Notes = req.Notes

	if req.RejectDuplicatePeriod {
		created, err := g.invoices.CreateInvoiceIfAbsent(ctx, inv)
		if err != nil {
			return nil, fmt.Errorf("failed to create invoice: %w", err)
		}
		if !created {
			return nil, fmt.Errorf("%w: resident %d, %s", ErrDuplicatePeriodInvoice, res.ID, inv.Period)
		}
	} else if err := g.invoices.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	g.metrics.InvoiceCreated(string(SourceSingle))
	g.log.WithFields(logrus.Fields{
		"invoice_id":  inv.ID,
		"resident_id": res.ID,
		"period":      inv.Period.String(),
		"total":       inv.Total.String(),
	}).Info("invoice created")
	g.trail.Record(ctx, actor, audit.ActionCreate, audit.TargetInvoice, idString(inv.ID), nil, inv)
	return inv, nil
}

// UpdateInvoiceRequest is the explicit edit path for an issued invoice
type UpdateInvoiceRequest struct {
	Mandatory decimal.Decimal `json:"mandatory" validate:"gte=0"`
	Peturunan decimal.Decimal `json:"peturunan" validate:"gte=0"`
	Dedosan   decimal.Decimal `json:"dedosan" validate:"gte=0"`
	Notes     string          `json:"notes,omitempty" validate:"max=500"`
}

// UpdateInvoice replaces the fee components and recomputes Total. The
// resident and period of an invoice never change.
func (g *Generator) UpdateInvoice(ctx context.Context, actor rbac.Actor, id int64, req UpdateInvoiceRequest) (*Invoice, error) {
	if err := rbac.Require(actor, rbac.ResourceInvoice, rbac.ActionUpdate); err != nil {
		return nil, err
	}
	if err := validation.Check(g.validate, req, ErrInvalidInvoice); err != nil {
		return nil, err
	}

	current, err := g.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *current
	updated := *current
	updated.Mandatory = req.Mandatory
	updated.Peturunan = req.Peturunan
	updated.Dedosan = req.Dedosan
	updated.Notes = req.Notes
	updated.recomputeTotal()
	updated.UpdatedAt = g.clock.Now().UTC()

	if err := g.invoices.UpdateInvoice(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}

	g.trail.Record(ctx, actor, audit.ActionUpdate, audit.TargetInvoice, idString(id), before, updated)
	return &updated, nil
}

// DeleteInvoice removes an invoice without payments
func (g *Generator) DeleteInvoice(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := rbac.Require(actor, rbac.ResourceInvoice, rbac.ActionDelete); err != nil {
		return err
	}

	current, err := g.invoices.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if err := g.invoices.DeleteInvoice(ctx, id); err != nil {
		return err
	}

	g.log.WithFields(logrus.Fields{"invoice_id": id, "actor": actor.String()}).Info("invoice deleted")
	g.trail.Record(ctx, actor, audit.ActionDelete, audit.TargetInvoice, idString(id), current, audit.Deleted(idString(id)))
	return nil
}

// GetInvoice returns one invoice. Members only see invoices of residents they submitted.
func (g *Generator) GetInvoice(ctx context.Context, actor rbac.Actor, id int64) (*Invoice, error) {
	if err := rbac.Require(actor, rbac.ResourceInvoice, rbac.ActionRead); err != nil {
		return nil, err
	}
	inv, err := g.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := invoiceVisible(ctx, g.directory, actor, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices lists invoices. Members must filter by a resident they submitted.
func (g *Generator) ListInvoices(ctx context.Context, actor rbac.Actor, filter InvoiceFilter) ([]*Invoice, error) {
	if err := rbac.Require(actor, rbac.ResourceInvoice, rbac.ActionRead); err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() {
		if filter.ResidentID == 0 {
			return nil, &rbac.PermissionDeniedError{
				Actor:      actor,
				Permission: rbac.Permission{Resource: rbac.ResourceInvoice, Action: rbac.ActionRead},
			}
		}
		if err := memberMayRead(ctx, g.directory, actor, filter.ResidentID); err != nil {
			return nil, err
		}
	}
	return g.invoices.ListInvoices(ctx, filter)
}

func (g *Generator) newInvoice(actor rbac.Actor, residentID int64, periodDate time.Time, mandatory, peturunan, dedosan decimal.Decimal, source Source) *Invoice {
	now := g.clock.Now().UTC()
	period := PeriodOf(periodDate, g.loc)
	inv := &Invoice{
		Number:     invoiceNumber(period),
		ResidentID: residentID,
		PeriodDate: dateIn(periodDate, g.loc),
		Period:     period,
		Mandatory:  mandatory,
		Peturunan:  peturunan,
		Dedosan:    dedosan,
		Source:     source,
		CreatedBy:  actor.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inv.recomputeTotal()
	return inv
}

// memberMayRead hides residents a member did not submit behind not-found
func memberMayRead(ctx context.Context, dir ResidentDirectory, actor rbac.Actor, residentID int64) error {
	if actor.Role.IsStaff() {
		return nil
	}
	res, err := dir.Lookup(ctx, residentID)
	if err != nil {
		return err
	}
	if !actor.Owns(res.OwnerUserID) {
		return residents.ErrResidentNotFound
	}
	return nil
}

// invoiceVisible hides invoices of other members' residents as not found.
// Directory failures pass through unchanged.
func invoiceVisible(ctx context.Context, dir ResidentDirectory, actor rbac.Actor, inv *Invoice) error {
	err := memberMayRead(ctx, dir, actor, inv.ResidentID)
	if errors.Is(err, residents.ErrResidentNotFound) {
		return ErrInvoiceNotFound
	}
	return err
}

func invoiceNumber(p Period) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("INV/%s/%s", p.Compact(), suffix)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
