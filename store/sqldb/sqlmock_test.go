package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/adherence-engine/compliance"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, DriverSQLite)), mock
}

func TestStore_DeleteNoRows_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM compliance_records WHERE id = \?`).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), "r1")

	assert.ErrorIs(t, err, compliance.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteDriverError_Wrapped(t *testing.T) {
	s, mock := newMockStore(t)
	ioErr := errors.New("disk I/O error")
	mock.ExpectExec(`DELETE FROM compliance_records`).WillReturnError(ioErr)

	err := s.Delete(context.Background(), "r1")

	assert.ErrorIs(t, err, ioErr)
	assert.NotErrorIs(t, err, compliance.ErrRecordNotFound)
}

func TestStore_FilterQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM compliance_records WHERE client_id = \? AND plan_id = \? ORDER BY stored_at ASC, id ASC`).
		WithArgs("client-1", "plan-1").
		WillReturnError(errors.New("database is locked"))

	_, err := s.Filter(context.Background(), compliance.PairQuery("client-1", "plan-1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FilterCorruptItems(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "client_id", "plan_id", "day", "items_json", "notes", "stored_at", "created_at", "updated_at"}).
		AddRow("r1", "client-1", "plan-1", "2025-03-10", "{not json", nil, "", "", "")
	mock.ExpectQuery(`SELECT (.+) FROM compliance_records`).WillReturnRows(rows)

	_, err := s.Filter(context.Background(), compliance.Query{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "r1")
}

func TestStore_GetPlanNoRows_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM plans WHERE id = \?`).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetPlan(context.Background(), "plan-1")

	assert.ErrorIs(t, err, compliance.ErrPlanNotFound)
}
