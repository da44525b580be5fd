package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/tiers"
	"github.com/krama-desa/iuran/pkg/validation"
	"github.com/sirupsen/logrus"
)

// Machine-readable error codes
const (
	codeUnauthenticated   = "unauthenticated"
	codeForbidden         = "forbidden"
	codeNotFound          = "not_found"
	codeInvalidInput      = "invalid_input"
	codeRecordLocked      = "record_locked"
	codeConflict          = "conflict"
	codeIneligible        = "ineligible_resident"
	codeInvalidTransition = "invalid_transition"
	codeTimeout           = "timeout"
	codeInternal          = "internal"
)

var (
	notFoundErrors = []error{
		residents.ErrResidentNotFound,
		tiers.ErrTierNotFound,
		billing.ErrInvoiceNotFound,
		billing.ErrPaymentNotFound,
		billing.ErrPreviewNotFound,
	}
	conflictErrors = []error{
		residents.ErrDuplicateNIK,
		residents.ErrResidentInUse,
		tiers.ErrTierInUse,
		billing.ErrInvoiceHasPayments,
		billing.ErrDuplicatePeriodInvoice,
		billing.ErrPaymentChanged,
		residents.ErrStatusChanged,
	}
	invalidErrors = []error{
		residents.ErrInvalidResident,
		tiers.ErrInvalidTier,
		billing.ErrInvalidInvoice,
		billing.ErrInvalidPayment,
		billing.ErrInvalidAmount,
	}
)

// errorStatus maps a service error to its HTTP status and error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden, codeForbidden
	case residents.IsRecordLocked(err):
		return http.StatusConflict, codeRecordLocked
	case residents.IsInvalidTransition(err):
		return http.StatusUnprocessableEntity, codeInvalidTransition
	case billing.IsIneligibleResident(err):
		return http.StatusUnprocessableEntity, codeIneligible
	case isAny(err, notFoundErrors):
		return http.StatusNotFound, codeNotFound
	case isAny(err, conflictErrors):
		return http.StatusConflict, codeConflict
	case isAny(err, invalidErrors):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	}
	return http.StatusInternalServerError, codeInternal
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeServiceError renders err; unexpected errors are logged and hidden
func writeServiceError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		httputil.Logger(r.Context(), log).WithError(err).Error("request failed")
		httputil.WriteInternalError(w)
		return
	}

	body := httputil.ErrorResponse{Error: err.Error(), Code: code}
	var verr *validation.Error
	if errors.As(err, &verr) {
		body.Details = make(map[string]string, len(verr.Fields))
		for _, f := range verr.Fields {
			rule := f.Rule
			if f.Param != "" {
				rule += "=" + f.Param
			}
			body.Details[f.Field] = rule
		}
	}
	var inel *billing.IneligibleResidentError
	if errors.As(err, &inel) {
		body.Details = map[string]string{"reason": string(inel.Reason)}
	}
	httputil.WriteErrorResponse(w, status, body)
}
