package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInvalid = errors.New("invalid record")

type sample struct {
	NIK    string          `json:"nik" validate:"required,civil"`
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
	Method string          `json:"method" validate:"omitempty,oneof=cash transfer"`
}

func TestCheck(t *testing.T) {
	v := New()

	tests := []struct {
		name      string
		in        sample
		wantField string
		wantRule  string
	}{
		{name: "valid", in: sample{NIK: "5171010101900001", Amount: decimal.NewFromInt(50000)}},
		{name: "zero amount allowed", in: sample{NIK: "5171010101900001", Amount: decimal.Zero}},
		{name: "short NIK", in: sample{NIK: "517101", Amount: decimal.Zero}, wantField: "nik", wantRule: "civil"},
		{name: "letters in NIK", in: sample{NIK: "51710101019000AB"}, wantField: "nik", wantRule: "civil"},
		{name: "missing NIK", in: sample{}, wantField: "nik", wantRule: "required"},
		{name: "negative amount", in: sample{NIK: "5171010101900001", Amount: decimal.NewFromInt(-1)}, wantField: "amount", wantRule: "gte"},
		{name: "unknown method", in: sample{NIK: "5171010101900001", Method: "cheque"}, wantField: "method", wantRule: "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(v, tt.in, errInvalid)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, errInvalid)

			var verr *Error
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
			assert.Equal(t, tt.wantRule, verr.Fields[0].Rule)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: errInvalid, Fields: []FieldError{
		{Field: "nik", Rule: "civil"},
		{Field: "amount", Rule: "gte", Param: "0"},
	}}
	assert.Equal(t, "invalid record: nik failed civil; amount failed gte=0", err.Error())
}
