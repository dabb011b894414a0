// internal/inventory/infrastructure/ledger_test.go
package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"bazaar/internal/inventory/domain"
)

func newMockLedger(t *testing.T) (*GormStockLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewGormStockLedger(gormDB), mock
}

func TestReserveSucceedsWhenStockFree(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec("UPDATE `stock` SET").
		WithArgs(int64(6), sqlmock.AnyArg(), "p-1", int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ledger.Reserve(context.Background(), "p-1", 6)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveFailsOnInsufficientStock(t *testing.T) {
	ledger, mock := newMockLedger(t)

	// Zero rows affected means the stock - reserved >= qty condition did not
	// hold; the caller treats that as insufficient stock, not an error.
	mock.ExpectExec("UPDATE `stock` SET").
		WithArgs(int64(6), sqlmock.AnyArg(), "p-1", int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ledger.Reserve(context.Background(), "p-1", 6)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseClampsAtZero(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec("UPDATE `stock` SET").
		WithArgs(int64(4), int64(4), sqlmock.AnyArg(), "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.Release(context.Background(), "p-1", 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitDeductsBothCounters(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec("UPDATE `stock` SET").
		WithArgs(int64(4), int64(4), int64(4), sqlmock.AnyArg(), "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.Commit(context.Background(), "p-1", 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsMissingRow(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectQuery("SELECT (.+) FROM `stock`").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "stock", "reserved", "updated_at"}))

	_, err := ledger.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrStockNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsRecord(t *testing.T) {
	ledger, mock := newMockLedger(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM `stock`").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "stock", "reserved", "updated_at"}).
			AddRow("p-1", 10, 6, now))

	record, err := ledger.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", record.ProductID)
	assert.Equal(t, int64(10), record.Stock)
	assert.Equal(t, int64(6), record.Reserved)
	assert.Equal(t, int64(4), record.Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}
