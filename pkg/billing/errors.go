package billing

import (
	"errors"
	"fmt"
)

var (
	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDuplicatePeriodInvoice = errors.New("resident already has an invoice for this period")
	ErrInvoiceHasPayments     = errors.New("invoice has payments")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidInvoice         = errors.New("invalid invoice request")
	ErrInvalidPayment         = errors.New("invalid payment")
	ErrPreviewNotFound        = errors.New("bulk preview not found or expired")
	// ErrPaymentChanged is returned by PaymentStore.UpdatePayment when the
	// stored status no longer matches the one the caller read
	ErrPaymentChanged = errors.New("payment status changed concurrently")
)

// Reason explains why a resident cannot be invoiced or why a bulk line was skipped
type Reason string

const (
	ReasonNotFound           Reason = "resident_not_found"
	ReasonNotApproved        Reason = "not_approved"
	ReasonFeeUnresolved      Reason = "fee_unresolved"
	ReasonNotHeadOfHousehold Reason = "not_head_of_household"
	ReasonAlreadyInvoiced    Reason = "already_invoiced"
	ReasonDuplicateLine      Reason = "duplicate_line"
	ReasonStorageError       Reason = "storage_error"
)

// IneligibleResidentError is returned when a resident cannot be invoiced:
// not APPROVED, or no resolvable contribution.
type IneligibleResidentError struct {
	ResidentID int64
	Reason     Reason
}

func (e *IneligibleResidentError) Error() string {
	return fmt.Sprintf("resident %d is not eligible for invoicing: %s", e.ResidentID, e.Reason)
}

// IsIneligibleResident checks if an error is an IneligibleResidentError
func IsIneligibleResident(err error) bool {
	var target *IneligibleResidentError
	return errors.As(err, &target)
}
