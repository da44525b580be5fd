package billing

import (
	"context"
	"time"

	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/shopspring/decimal"
)

// Source records how an invoice was created
type Source string

const (
	SourceSingle Source = "single"
	SourceBulk   Source = "bulk"
)

// Invoice is one resident's bill for one period
type Invoice struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	ResidentID int64           `json:"resident_id"`
	PeriodDate time.Time       `json:"period_date"`
	Period     Period          `json:"period"`
	Mandatory  decimal.Decimal `json:"mandatory"`
	Peturunan  decimal.Decimal `json:"peturunan"`
	Dedosan    decimal.Decimal `json:"dedosan"`
	Total      decimal.Decimal `json:"total"`
	Source     Source          `json:"source"`
	Notes      string          `json:"notes,omitempty"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ComponentSum is mandatory + peturunan + dedosan
func (i *Invoice) ComponentSum() decimal.Decimal {
	return i.Mandatory.Add(i.Peturunan).Add(i.Dedosan)
}

// recomputeTotal is the only place Total is assigned
func (i *Invoice) recomputeTotal() {
	i.Total = i.ComponentSum()
}

// PaymentMethod is how a payment was settled
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
	MethodQRIS     PaymentMethod = "qris"
	MethodOther    PaymentMethod = "other"
)

// PaymentStatus is the verification state of a payment. Only paid payments
// count toward an invoice.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentInvalid PaymentStatus = "invalid"
)

// Payment is an already-settled amount applied against an invoice
type Payment struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount" validate:"gte=0"`
	PaidAt     time.Time       `json:"paid_at"`
	Method     PaymentMethod   `json:"method" validate:"oneof=cash transfer qris other"`
	Status     PaymentStatus   `json:"status" validate:"oneof=paid pending invalid"`
	RecordedBy int64           `json:"recorded_by"`
	Note       string          `json:"note,omitempty" validate:"max=500"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// InvoiceFilter narrows ListInvoices; zero fields are ignored
type InvoiceFilter struct {
	ResidentID int64
	Period     Period
	Source     Source
	Limit      int
	Offset     int
}

// InvoiceStore persists invoices
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	// CreateInvoiceIfAbsent inserts inv unless the resident already has an
	// invoice in inv.Period. The check and the insert are one atomic unit.
	CreateInvoiceIfAbsent(ctx context.Context, inv *Invoice) (bool, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	// DeleteInvoice returns ErrInvoiceHasPayments while payments reference it.
	DeleteInvoice(ctx context.Context, id int64) error
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*Invoice, error)
	// InvoicedResidents returns the residents holding any invoice in period.
	InvoicedResidents(ctx context.Context, period Period) (map[int64]bool, error)
	HasInvoiceInPeriod(ctx context.Context, residentID int64, period Period) (bool, error)
}

// PaymentStore persists payments
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	// UpdatePayment writes p only while the stored status still equals
	// expected, otherwise ErrPaymentChanged.
	UpdatePayment(ctx context.Context, p *Payment, expected PaymentStatus) error
	DeletePayment(ctx context.Context, id int64) error
	ListPayments(ctx context.Context, invoiceID int64) ([]*Payment, error)
	ListPaymentsForInvoices(ctx context.Context, invoiceIDs []int64) (map[int64][]*Payment, error)
}

// ResidentDirectory is the resident and family-role lookup
type ResidentDirectory interface {
	Lookup(ctx context.Context, id int64) (*residents.Resident, error)
	HeadsOfHousehold(ctx context.Context) ([]*residents.Resident, error)
}

// FeeResolver maps a resident to the mandatory contribution
type FeeResolver interface {
	ResolveContribution(ctx context.Context, r *residents.Resident) (decimal.Decimal, bool, error)
}
