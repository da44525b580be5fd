package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxWriteAttempts bounds re-reads after a concurrent status change
const maxWriteAttempts = 3

// Ledger records payments and derives settlement status from them. Status is
// recomputed from the current payment set on every read.
type Ledger struct {
	invoices  InvoiceStore
	payments  PaymentStore
	directory ResidentDirectory
	trail     *audit.Trail
	log       logrus.FieldLogger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	loc       *time.Location
	validate  *validator.Validate
	tracer    trace.Tracer
}

// NewLedger creates a payment ledger
func NewLedger(deps Deps) (*Ledger, error) {
	if deps.Invoices == nil || deps.Payments == nil || deps.Directory == nil {
		return nil, fmt.Errorf("ledger requires invoice and payment stores and a resident directory")
	}
	deps.defaults()
	return &Ledger{
		invoices:  deps.Invoices,
		payments:  deps.Payments,
		directory: deps.Directory,
		trail:     deps.Trail,
		log:       deps.Logger.WithField("component", "payment_ledger"),
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		loc:       deps.Location,
		validate:  validation.New(),
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// RecordPaymentRequest is the input for RecordPayment
type RecordPaymentRequest struct {
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	// PaidAt defaults to today in the billing time zone
	PaidAt time.Time `json:"paid_at"`
	// Method defaults to cash
	Method PaymentMethod `json:"method,omitempty"`
	// Status defaults to paid
	Status PaymentStatus `json:"status,omitempty"`
	Note   string        `json:"note,omitempty"`
}

// RecordPayment attaches a settled payment to an invoice. The amount is not
// capped by the remaining balance; over- and duplicate payments are accepted
// and surface through Reconcile.
func (l *Ledger) RecordPayment(ctx context.Context, actor rbac.Actor, req RecordPaymentRequest) (*Payment, error) {
	ctx, span := l.tracer.Start(ctx, "billing.RecordPayment",
		trace.WithAttributes(attribute.Int64("invoice_id", req.InvoiceID)))
	defer span.End()

	p, err := l.recordPayment(ctx, actor, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("payment_id", p.ID))
	return p, nil
}

func (l *Ledger) recordPayment(ctx context.Context, actor rbac.Actor, req RecordPaymentRequest) (*Payment, error) {
	if err := rbac.Require(actor, rbac.ResourcePayment, rbac.ActionCreate); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: payment amount must not be negative", ErrInvalidAmount)
	}

	inv, err := l.invoices.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	p := &Payment{
		InvoiceID:  inv.ID,
		Amount:     req.Amount,
		PaidAt:     req.PaidAt,
		Method:     req.Method,
		Status:     req.Status,
		RecordedBy: actor.UserID,
		Note:       req.Note,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	p.PaidAt = dateIn(p.PaidAt, l.loc)
	if p.Method == "" {
		p.Method = MethodCash
	}
	if p.Status == "" {
		p.Status = PaymentPaid
	}
	if err := validation.Check(l.validate, p, ErrInvalidPayment); err != nil {
		return nil, err
	}

	if err := l.payments.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	l.metrics.PaymentRecorded(string(p.Method), string(p.Status))
	log := l.log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"invoice_id": inv.ID,
		"amount":     p.Amount.String(),
		"status":     p.Status,
	})
	log.Info("payment recorded")
	if rec, err := l.reconcile(ctx, inv); err == nil && rec.Overpaid.IsPositive() {
		log.WithField("overpaid", rec.Overpaid.String()).Warn("invoice overpaid")
	}

	l.trail.Record(ctx, actor, audit.ActionCreate, audit.TargetPayment, idString(p.ID), nil, p)
	return p, nil
}

// UpdatePaymentStatus changes a payment's verification status, e.g. pending to
// paid once a transfer clears, or paid to invalid for a bounced one.
func (l *Ledger) UpdatePaymentStatus(ctx context.Context, actor rbac.Actor, id int64, status PaymentStatus) (*Payment, error) {
	if err := rbac.Require(actor, rbac.ResourcePayment, rbac.ActionUpdate); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		var p *Payment
		p, err = l.tryUpdatePaymentStatus(ctx, actor, id, status)
		if !errors.Is(err, ErrPaymentChanged) {
			return p, err
		}
	}
	return nil, err
}

func (l *Ledger) tryUpdatePaymentStatus(ctx context.Context, actor rbac.Actor, id int64, status PaymentStatus) (*Payment, error) {
	current, err := l.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *current
	updated := *current
	updated.Status = status
	if err := validation.Check(l.validate, &updated, ErrInvalidPayment); err != nil {
		return nil, err
	}
	if before.Status == updated.Status {
		return current, nil
	}
	updated.UpdatedAt = l.clock.Now().UTC()

	if err := l.payments.UpdatePayment(ctx, &updated, before.Status); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	l.trail.Record(ctx, actor, audit.ActionUpdate, audit.TargetPayment, idString(id), before, updated)
	return &updated, nil
}

// DeletePayment hard-deletes a payment. The invoice status follows
// automatically since it is derived.
func (l *Ledger) DeletePayment(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := rbac.Require(actor, rbac.ResourcePayment, rbac.ActionDelete); err != nil {
		return err
	}

	current, err := l.payments.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if err := l.payments.DeletePayment(ctx, id); err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}

	l.log.WithFields(logrus.Fields{"payment_id": id, "invoice_id": current.InvoiceID}).Info("payment deleted")
	l.trail.Record(ctx, actor, audit.ActionDelete, audit.TargetPayment, idString(id), current, audit.Deleted(idString(id)))
	return nil
}

// ListPayments returns the payments of one invoice
func (l *Ledger) ListPayments(ctx context.Context, actor rbac.Actor, invoiceID int64) ([]*Payment, error) {
	inv, err := l.readableInvoice(ctx, actor, invoiceID)
	if err != nil {
		return nil, err
	}
	return l.payments.ListPayments(ctx, inv.ID)
}

// Status returns the derived status of one invoice
func (l *Ledger) Status(ctx context.Context, actor rbac.Actor, invoiceID int64) (Status, error) {
	rec, err := l.Reconcile(ctx, actor, invoiceID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Reconcile returns the reconciliation view of one invoice
func (l *Ledger) Reconcile(ctx context.Context, actor rbac.Actor, invoiceID int64) (*Reconciliation, error) {
	inv, err := l.readableInvoice(ctx, actor, invoiceID)
	if err != nil {
		return nil, err
	}
	return l.reconcile(ctx, inv)
}

func (l *Ledger) reconcile(ctx context.Context, inv *Invoice) (*Reconciliation, error) {
	payments, err := l.payments.ListPayments(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	rec := Reconcile(inv, payments)
	return &rec, nil
}

// PeriodSummary counts paid, partial and unpaid invoices of a period
func (l *Ledger) PeriodSummary(ctx context.Context, actor rbac.Actor, period Period) (*PeriodSummary, error) {
	ctx, span := l.tracer.Start(ctx, "billing.PeriodSummary",
		trace.WithAttributes(attribute.String("period", period.String())))
	defer span.End()

	if err := rbac.Require(actor, rbac.ResourceInvoice, rbac.ActionRead); err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() {
		return nil, &rbac.PermissionDeniedError{
			Actor:      actor,
			Permission: rbac.Permission{Resource: rbac.ResourceBilling, Action: rbac.ActionRead},
		}
	}

	invoices, err := l.invoices.ListInvoices(ctx, InvoiceFilter{Period: period})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	ids := make([]int64, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	payments, err := l.payments.ListPaymentsForInvoices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	sum := Summarize(period, invoices, payments)
	return &sum, nil
}

func (l *Ledger) readableInvoice(ctx context.Context, actor rbac.Actor, invoiceID int64) (*Invoice, error) {
	if err := rbac.Require(actor, rbac.ResourcePayment, rbac.ActionRead); err != nil {
		return nil, err
	}
	inv, err := l.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := invoiceVisible(ctx, l.directory, actor, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
