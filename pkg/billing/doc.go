// Package billing is the dues engine: invoice generation and the payment ledger.
//
// # Overview
//
// An invoice bills one resident for one period (a calendar month in the
// billing time zone). Its total is always mandatory + peturunan + dedosan;
// the mandatory part comes from the resident's membership tier.
//
// # Invoice Generation
//
// CreateInvoice issues one invoice for an APPROVED resident with a resolvable
// contribution and is not limited to one per period unless the caller asks.
//
// Bulk billing runs in two phases:
//
//	preview, _ := gen.PreviewBulk(ctx, actor, billing.BulkRequest{PeriodDate: march, Peturunan: p})
//	// operator reviews preview.Lines and preview.Excluded
//	result, _ := gen.CommitBulk(ctx, actor, preview.PeriodDate, preview.Lines)
//	// or: gen.CommitPreview(ctx, actor, preview.ID)
//
// Commit re-validates each line and creates it with the store's atomic
// create-if-absent keyed by (resident, year, month). Lines that lost
// eligibility or were invoiced concurrently are reported in result.Skipped.
// Running the same commit twice creates nothing the second time.
//
// # Payment Ledger
//
// Payments are settled facts. Amounts are never capped; Reconcile exposes
// remaining and overpaid balances and flags suspected duplicates. Paid,
// Partial and Unpaid are derived from paid payments on every read:
//
//	paid_total >= total       -> Paid
//	0 < paid_total < total    -> Partial
//	paid_total == 0           -> Unpaid
package billing
