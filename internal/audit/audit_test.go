package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO provisioning_audit").
		WithArgs(sqlmock.AnyArg(), "req-1", "jane@x.com", "PRO", "123", "done",
			"9000123", "55", false, false, nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewPostgres(db)
	err = rec.Record(context.Background(), Entry{
		RequestID:        "req-1",
		Email:            "jane@x.com",
		KeyKind:          "PRO",
		Key:              "123",
		State:            "done",
		VendorLocationID: "9000123",
		UserID:           "55",
		At:               at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Record_NullsEmptyColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO provisioning_audit").
		WithArgs(sqlmock.AnyArg(), "req-2", "jane@x.com", "PO", "PO-1", "resolution_failed",
			nil, nil, false, false, "resolver: vendor location not resolved", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgres(db).Record(context.Background(), Entry{
		RequestID: "req-2",
		Email:     "jane@x.com",
		KeyKind:   "PO",
		Key:       "PO-1",
		State:     "resolution_failed",
		Detail:    "resolver: vendor location not resolved",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Record_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO provisioning_audit").WillReturnError(errors.New("relation does not exist"))

	err = NewPostgres(db).Record(context.Background(), Entry{RequestID: "req-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record audit entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Record(context.Background(), Entry{}))
}
