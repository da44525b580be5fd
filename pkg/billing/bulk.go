package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BulkRequest selects the period and the surcharges applied to every line
type BulkRequest struct {
	PeriodDate time.Time       `json:"period_date"`
	Peturunan  decimal.Decimal `json:"peturunan" validate:"gte=0"`
	Dedosan    decimal.Decimal `json:"dedosan" validate:"gte=0"`
}

// PreviewLine is one invoice a bulk run would create
type PreviewLine struct {
	ResidentID   int64           `json:"resident_id" validate:"gt=0"`
	ResidentName string          `json:"resident_name,omitempty"`
	KKNumber     string          `json:"kk_number,omitempty"`
	Mandatory    decimal.Decimal `json:"mandatory"`
	Peturunan    decimal.Decimal `json:"peturunan" validate:"gte=0"`
	Dedosan      decimal.Decimal `json:"dedosan" validate:"gte=0"`
	Total        decimal.Decimal `json:"total"`
}

// ExcludedResident is a head of household left out of a preview
type ExcludedResident struct {
	ResidentID   int64  `json:"resident_id"`
	ResidentName string `json:"resident_name,omitempty"`
	Reason       Reason `json:"reason"`
}

// BulkPreview is the dry run an operator reviews before committing
type BulkPreview struct {
	ID         string             `json:"id"`
	Period     Period             `json:"period"`
	PeriodDate time.Time          `json:"period_date"`
	Lines      []PreviewLine      `json:"lines"`
	Excluded   []ExcludedResident `json:"excluded,omitempty"`
	// ExcludedCount counts heads of household whose fee could not be resolved
	ExcludedCount int             `json:"excluded_count"`
	Total         decimal.Decimal `json:"total"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	// Cached is false when the preview could not be stored for CommitPreview
	Cached bool `json:"cached"`
}

// SkippedLine is a preview line that produced no invoice at commit time
type SkippedLine struct {
	ResidentID int64  `json:"resident_id"`
	Reason     Reason `json:"reason"`
}

// BulkResult is the partial-success outcome of a commit
type BulkResult struct {
	Period       Period          `json:"period"`
	Created      []*Invoice      `json:"created"`
	Skipped      []SkippedLine   `json:"skipped,omitempty"`
	CreatedCount int             `json:"created_count"`
	SkippedCount int             `json:"skipped_count"`
	Total        decimal.Decimal `json:"total"`
}

func (r *BulkResult) skip(residentID int64, reason Reason) {
	r.Skipped = append(r.Skipped, SkippedLine{ResidentID: residentID, Reason: reason})
	r.SkippedCount++
}

// PreviewBulk lists the invoices a bulk run for the period would create: one
// per APPROVED head of household without an invoice in the same calendar
// month. Residents whose fee cannot be resolved are excluded, not errors.
func (g *Generator) PreviewBulk(ctx context.Context, actor rbac.Actor, req BulkRequest) (*BulkPreview, error) {
	ctx, span := g.tracer.Start(ctx, "billing.PreviewBulk")
	defer span.End()

	preview, err := g.previewBulk(ctx, actor, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("period", preview.Period.String()),
		attribute.Int("lines", len(preview.Lines)),
		attribute.Int("excluded", preview.ExcludedCount),
	)
	return preview, nil
}

func (g *Generator) previewBulk(ctx context.Context, actor rbac.Actor, req BulkRequest) (*BulkPreview, error) {
	if err := rbac.Require(actor, rbac.ResourceBilling, rbac.ActionCreate); err != nil {
		return nil, err
	}
	if err := validation.Check(g.validate, req, ErrInvalidInvoice); err != nil {
		return nil, err
	}

	periodDate := req.PeriodDate
	if periodDate.IsZero() {
		periodDate = g.clock.Now()
	}
	period := PeriodOf(periodDate, g.loc)

	heads, err := g.directory.HeadsOfHousehold(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list heads of household: %w", err)
	}
	invoiced, err := g.invoices.InvoicedResidents(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoiced residents: %w", err)
	}

	preview := &BulkPreview{
		ID:         uuid.NewString(),
		Period:     period,
		PeriodDate: dateIn(periodDate, g.loc),
		Lines:      []PreviewLine{},
		Total:      decimal.Zero,
		CreatedBy:  actor.UserID,
		CreatedAt:  g.clock.Now().UTC(),
	}

	for _, res := range heads {
		if res.Status != residents.StatusApproved || !res.IsHeadOfHousehold() || invoiced[res.ID] {
			continue
		}
		mandatory, ok, err := g.fees.ResolveContribution(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve contribution for resident %d: %w", res.ID, err)
		}
		if !ok {
			preview.Excluded = append(preview.Excluded, ExcludedResident{
				ResidentID: res.ID, ResidentName: res.Name, Reason: ReasonFeeUnresolved,
			})
			continue
		}

		line := PreviewLine{
			ResidentID:   res.ID,
			ResidentName: res.Name,
			KKNumber:     res.KKNumber,
			Mandatory:    mandatory,
			Peturunan:    req.Peturunan,
			Dedosan:      req.Dedosan,
			Total:        mandatory.Add(req.Peturunan).Add(req.Dedosan),
		}
		preview.Lines = append(preview.Lines, line)
		preview.Total = preview.Total.Add(line.Total)
	}
	preview.ExcludedCount = len(preview.Excluded)

	sort.Slice(preview.Lines, func(i, j int) bool { return preview.Lines[i].ResidentID < preview.Lines[j].ResidentID })

	if g.previews != nil {
		if err := g.previews.Put(ctx, preview); err != nil {
			g.log.WithError(err).WithField("preview_id", preview.ID).Warn("bulk preview not cached")
		} else {
			preview.Cached = true
		}
	}

	g.metrics.BulkRun("preview")
	g.log.WithFields(logrus.Fields{
		"preview_id": preview.ID,
		"period":     period.String(),
		"lines":      len(preview.Lines),
		"excluded":   preview.ExcludedCount,
		"total":      preview.Total.String(),
	}).Info("bulk billing previewed")
	return preview, nil
}

// CommitBulk creates the invoices for the given lines. Every line is
// re-validated at commit time and created through the store's atomic
// create-if-absent; lines that are no longer eligible or already invoiced are
// skipped, never failed. The result reports what was created and skipped.
func (g *Generator) CommitBulk(ctx context.Context, actor rbac.Actor, periodDate time.Time, lines []PreviewLine) (*BulkResult, error) {
	ctx, span := g.tracer.Start(ctx, "billing.CommitBulk", trace.WithAttributes(attribute.Int("lines", len(lines))))
	defer span.End()

	result, err := g.commitBulk(ctx, actor, periodDate, lines)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(
		attribute.Int("created", result.CreatedCount),
		attribute.Int("skipped", result.SkippedCount),
	)
	return result, nil
}

func (g *Generator) commitBulk(ctx context.Context, actor rbac.Actor, periodDate time.Time, lines []PreviewLine) (*BulkResult, error) {
	if err := rbac.Require(actor, rbac.ResourceBilling, rbac.ActionCreate); err != nil {
		return nil, err
	}
	for i := range lines {
		if err := validation.Check(g.validate, lines[i], ErrInvalidInvoice); err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
	}

	if periodDate.IsZero() {
		periodDate = g.clock.Now()
	}
	result := &BulkResult{
		Period:  PeriodOf(periodDate, g.loc),
		Created: []*Invoice{},
		Total:   decimal.Zero,
	}
	log := g.log.WithFields(logrus.Fields{"period": result.Period.String(), "actor": actor.String()})

	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if seen[line.ResidentID] {
			g.skip(result, line.ResidentID, ReasonDuplicateLine)
			continue
		}
		seen[line.ResidentID] = true

		inv, reason, err := g.commitLine(ctx, actor, periodDate, line)
		if err != nil {
			log.WithError(err).WithField("resident_id", line.ResidentID).Warn("bulk line failed")
			g.skip(result, line.ResidentID, ReasonStorageError)
			continue
		}
		if reason != "" {
			g.skip(result, line.ResidentID, reason)
			continue
		}

		result.Created = append(result.Created, inv)
		result.CreatedCount++
		result.Total = result.Total.Add(inv.Total)
		g.metrics.InvoiceCreated(string(SourceBulk))
		g.trail.Record(ctx, actor, audit.ActionCreate, audit.TargetInvoice, idString(inv.ID), nil, inv)
	}

	g.metrics.BulkRun("commit")
	log.WithFields(logrus.Fields{
		"requested": len(lines),
		"created":   result.CreatedCount,
		"skipped":   result.SkippedCount,
		"total":     result.Total.String(),
	}).Info("bulk billing committed")
	return result, nil
}

// commitLine re-checks one line and creates its invoice if still eligible.
// A non-empty reason means the line is skipped.
func (g *Generator) commitLine(ctx context.Context, actor rbac.Actor, periodDate time.Time, line PreviewLine) (*Invoice, Reason, error) {
	res, err := g.directory.Lookup(ctx, line.ResidentID)
	if errors.Is(err, residents.ErrResidentNotFound) {
		return nil, ReasonNotFound, nil
	}
	if err != nil {
		return nil, "", err
	}
	if res.Status != residents.StatusApproved {
		return nil, ReasonNotApproved, nil
	}
	if !res.IsHeadOfHousehold() {
		return nil, ReasonNotHeadOfHousehold, nil
	}

	// The fee schedule is authoritative at commit time
	mandatory, ok, err := g.fees.ResolveContribution(ctx, res)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, ReasonFeeUnresolved, nil
	}
	if !mandatory.Equal(line.Mandatory) {
		g.log.WithFields(logrus.Fields{
			"resident_id": res.ID,
			"previewed":   line.Mandatory.String(),
			"current":     mandatory.String(),
		}).Info("contribution changed since preview")
	}

	inv := g.newInvoice(actor, res.ID, periodDate, mandatory, line.Peturunan, line.Dedosan, SourceBulk)
	created, err := g.invoices.CreateInvoiceIfAbsent(ctx, inv)
	if err != nil {
		return nil, "", err
	}
	if !created {
		return nil, ReasonAlreadyInvoiced, nil
	}
	return inv, "", nil
}

func (g *Generator) skip(result *BulkResult, residentID int64, reason Reason) {
	result.skip(residentID, reason)
	g.metrics.BulkLineSkipped(string(reason))
}

// CommitPreview commits a cached preview by ID. The preview is dropped from
// the cache afterwards; committing the same ID twice yields ErrPreviewNotFound.
func (g *Generator) CommitPreview(ctx context.Context, actor rbac.Actor, previewID string) (*BulkResult, error) {
	if err := rbac.Require(actor, rbac.ResourceBilling, rbac.ActionCreate); err != nil {
		return nil, err
	}
	if g.previews == nil {
		return nil, ErrPreviewNotFound
	}

	preview, err := g.previews.Get(ctx, previewID)
	if err != nil {
		return nil, err
	}
	if err := g.previews.Delete(ctx, previewID); err != nil {
		g.log.WithError(err).WithField("preview_id", previewID).Warn("failed to drop committed preview")
	}

	return g.CommitBulk(ctx, actor, preview.PeriodDate, preview.Lines)
}
