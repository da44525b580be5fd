package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, DriverPostgres)
	require.NoError(t, err)
	return s, mock
}

func TestCreateInvoiceIfAbsent_Postgres(t *testing.T) {
	ctx := context.Background()

	t.Run("locks the resident before checking", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM invoices WHERE resident_id = \$1`).
			WithArgs(int64(7), 2025, 3).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectQuery(`INSERT INTO invoices`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))
		mock.ExpectCommit()

		inv := newInvoice(7, billing.SourceBulk)
		created, err := s.CreateInvoiceIfAbsent(ctx, inv)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(41), inv.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing invoice", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM invoices`).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
		mock.ExpectRollback()

		created, err := s.CreateInvoiceIfAbsent(ctx, newInvoice(7, billing.SourceBulk))
		require.NoError(t, err)
		assert.False(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race on the bulk index", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM invoices`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectQuery(`INSERT INTO invoices`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: bulkPeriodKey})
		mock.ExpectRollback()

		inv := newInvoice(7, billing.SourceBulk)
		created, err := s.CreateInvoiceIfAbsent(ctx, inv)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Zero(t, inv.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invoice number clash is an error", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM invoices`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectQuery(`INSERT INTO invoices`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "invoices_number_key"})
		mock.ExpectRollback()

		_, err := s.CreateInvoiceIfAbsent(ctx, newInvoice(7, billing.SourceBulk))
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown resident", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM invoices`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectQuery(`INSERT INTO invoices`).WillReturnError(&pq.Error{Code: "23503"})
		mock.ExpectRollback()

		_, err := s.CreateInvoiceIfAbsent(ctx, newInvoice(7, billing.SourceBulk))
		assert.ErrorIs(t, err, residents.ErrResidentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock failure", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := s.CreateInvoiceIfAbsent(ctx, newInvoice(7, billing.SourceBulk))
		assert.ErrorContains(t, err, "failed to lock resident 7")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateResident_PostgresDuplicateNIK(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(`INSERT INTO residents`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "residents_nik_key"})

	err := s.CreateResident(context.Background(), &residents.Resident{NIK: "5171010101990001"})
	assert.ErrorIs(t, err, residents.ErrDuplicateNIK)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPaymentsForInvoices_Postgres(t *testing.T) {
	s, mock := setupMock(t)
	paidAt := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM payments WHERE invoice_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "invoice_id", "amount", "paid_at", "method", "status", "recorded_by", "note", "created_at", "updated_at",
		}).
			AddRow(int64(1), int64(10), "30000.00", paidAt, "cash", "paid", int64(2), "", now, now).
			AddRow(int64(2), int64(11), "62500.00", paidAt, "qris", "pending", int64(2), "", now, now))

	grouped, err := s.ListPaymentsForInvoices(context.Background(), []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, grouped[10], 1)
	assert.Equal(t, "30000", grouped[10][0].Amount.String())
	assert.Equal(t, billing.PaymentPending, grouped[11][0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteInvoice_PostgresForeignKeyBackstop(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM payments WHERE invoice_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`DELETE FROM invoices WHERE id = \$1`).
		WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	err := s.DeleteInvoice(context.Background(), 5)
	assert.ErrorIs(t, err, billing.ErrInvoiceHasPayments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateResident_PostgresStatusGuard(t *testing.T) {
	r := &residents.Resident{ID: 7, NIK: "5171010101900001", Status: residents.StatusPending, UpdatedAt: time.Now()}

	t.Run("status moved on", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectExec(`UPDATE residents SET .* WHERE id = \$13 AND status = \$14`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "PENDING",
				sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7), "REJECTED").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM residents WHERE id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		err := s.UpdateResident(context.Background(), r, residents.StatusRejected)
		assert.ErrorIs(t, err, residents.ErrStatusChanged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row gone", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectExec(`UPDATE residents`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM residents WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

		err := s.UpdateResident(context.Background(), r, residents.StatusRejected)
		assert.ErrorIs(t, err, residents.ErrResidentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdatePayment_PostgresStatusGuard(t *testing.T) {
	s, mock := setupMock(t)
	p := &billing.Payment{ID: 3, Status: billing.PaymentInvalid, UpdatedAt: time.Now()}
	mock.ExpectExec(`UPDATE payments SET .* WHERE id = \$7 AND status = \$8`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "invalid", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(3), "paid").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM payments WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := s.UpdatePayment(context.Background(), p, billing.PaymentPaid)
	assert.ErrorIs(t, err, billing.ErrPaymentChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
