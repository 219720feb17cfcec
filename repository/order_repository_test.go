package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/Syed-Nuhad/automart/models"
	"github.com/Syed-Nuhad/automart/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	assert.NoError(t, err)
	return gormDB, mock
}

func orderRows(id uuid.UUID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "display_number", "user_id", "currency", "total_amount", "status", "gateway", "created_at", "updated_at"}).
		AddRow(id, models.DisplayNumberFor(id), "user-1", "usd", 5000, status, models.GatewayPayPal, now, now)
}

func TestFindByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	o, err := repo.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
	assert.Nil(t, o)
}

func TestFindByExternalID_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WithArgs(models.GatewayPayPal, "PAYPAL-ORDER-1", 1).
		WillReturnRows(orderRows(id, models.OrderStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_items"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id"}))

	o, err := repo.FindByExternalID(context.Background(), models.GatewayPayPal, "PAYPAL-ORDER-1")
	assert.NoError(t, err)
	assert.Equal(t, id, o.ID)
	assert.Equal(t, models.OrderStatusPending, o.Status)
}

func TestMarkPaid_AppliesOnlyFromPending(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()
	ev := repository.PaymentEvidence{CaptureID: "CAP-1", PayerID: "PAYER-1"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.MarkPaid(context.Background(), id, ev)
	assert.NoError(t, err)
	assert.True(t, applied)
}

func TestMarkPaid_LoserObservesNoOp(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()

	// Another caller already moved the order out of pending.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := repo.MarkPaid(context.Background(), id, repository.PaymentEvidence{CaptureID: "CAP-2"})
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestMarkRefunded_RequiresPaid(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := repo.MarkRefunded(context.Background(), id, "REF-1")
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestSetExternalID_FirstAssignment(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SetExternalID(context.Background(), id, "PAYPAL-ORDER-9")
	assert.NoError(t, err)
}

func TestSetExternalID_SameValueIsIdempotent(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "external_id" FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"external_id"}).AddRow("PAYPAL-ORDER-9"))

	err := repo.SetExternalID(context.Background(), id, "PAYPAL-ORDER-9")
	assert.NoError(t, err)
}

func TestSetExternalID_ConflictingValueFails(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "external_id" FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"external_id"}).AddRow("PAYPAL-ORDER-9"))

	err := repo.SetExternalID(context.Background(), id, "PAYPAL-ORDER-10")
	assert.Error(t, err)
}
