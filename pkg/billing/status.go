package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Status is the derived settlement state of an invoice. It is never stored.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// PaidTotal sums the payments with status paid
func PaidTotal(payments []*Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentPaid {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

// InvoiceStatus derives Paid/Partial/Unpaid from the invoice total and its
// current payments. Paid is checked first, so a zero-total invoice is Paid.
func InvoiceStatus(inv *Invoice, payments []*Payment) Status {
	return statusFor(inv.Total, PaidTotal(payments))
}

func statusFor(total, paid decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// Reconciliation is the read model an administrator uses to settle an invoice
type Reconciliation struct {
	InvoiceID    int64           `json:"invoice_id"`
	Total        decimal.Decimal `json:"total"`
	PaidTotal    decimal.Decimal `json:"paid_total"`
	PendingTotal decimal.Decimal `json:"pending_total"`
	Remaining    decimal.Decimal `json:"remaining"`
	Overpaid     decimal.Decimal `json:"overpaid"`
	Status       Status          `json:"status"`
	PaymentCount int             `json:"payment_count"`
	// SuspectedDuplicates groups paid payments sharing amount, date and method
	SuspectedDuplicates [][]int64 `json:"suspected_duplicates,omitempty"`
}

// Reconcile computes the reconciliation view for one invoice
func Reconcile(inv *Invoice, payments []*Payment) Reconciliation {
	paid := PaidTotal(payments)
	pending := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentPending {
			pending = pending.Add(p.Amount)
		}
	}

	rec := Reconciliation{
		InvoiceID:           inv.ID,
		Total:               inv.Total,
		PaidTotal:           paid,
		PendingTotal:        pending,
		Remaining:           decimal.Max(decimal.Zero, inv.Total.Sub(paid)),
		Overpaid:            decimal.Max(decimal.Zero, paid.Sub(inv.Total)),
		Status:              statusFor(inv.Total, paid),
		PaymentCount:        len(payments),
		SuspectedDuplicates: suspectedDuplicates(payments),
	}
	return rec
}

type dupKey struct {
	amount string
	date   string
	method PaymentMethod
}

func suspectedDuplicates(payments []*Payment) [][]int64 {
	groups := make(map[dupKey][]int64)
	var order []dupKey
	for _, p := range payments {
		if p.Status != PaymentPaid {
			continue
		}
		k := dupKey{amount: p.Amount.String(), date: p.PaidAt.Format("2006-01-02"), method: p.Method}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p.ID)
	}

	var out [][]int64
	for _, k := range order {
		if ids := groups[k]; len(ids) > 1 {
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			out = append(out, ids)
		}
	}
	return out
}

// PeriodSummary aggregates settlement across every invoice of one period
type PeriodSummary struct {
	Period       Period          `json:"period"`
	InvoiceCount int             `json:"invoice_count"`
	PaidCount    int             `json:"paid_count"`
	PartialCount int             `json:"partial_count"`
	UnpaidCount  int             `json:"unpaid_count"`
	Billed       decimal.Decimal `json:"billed"`
	Collected    decimal.Decimal `json:"collected"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	Overpaid     decimal.Decimal `json:"overpaid"`
}

// Summarize folds per-invoice reconciliations into a period summary
func Summarize(period Period, invoices []*Invoice, payments map[int64][]*Payment) PeriodSummary {
	sum := PeriodSummary{
		Period:      period,
		Billed:      decimal.Zero,
		Collected:   decimal.Zero,
		Outstanding: decimal.Zero,
		Overpaid:    decimal.Zero,
	}
	for _, inv := range invoices {
		rec := Reconcile(inv, payments[inv.ID])
		sum.InvoiceCount++
		switch rec.Status {
		case StatusPaid:
			sum.PaidCount++
		case StatusPartial:
			sum.PartialCount++
		default:
			sum.UnpaidCount++
		}
		sum.Billed = sum.Billed.Add(rec.Total)
		sum.Collected = sum.Collected.Add(rec.PaidTotal)
		sum.Outstanding = sum.Outstanding.Add(rec.Remaining)
		sum.Overpaid = sum.Overpaid.Add(rec.Overpaid)
	}
	return sum
}
