package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jobalert/notifier/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (*GormStatusRepo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	return NewGormStatusRepo(gdb), mock
}

func assertExpectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func statusColumns() []string {
	return []string{
		"message_id", "status", "type", "recipient",
		"error", "provider_message_id", "created_at", "updated_at",
	}
}

func TestGormStatusRepoUpdateStatusExistingRow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "delivery_statuses" SET`).
		WithArgs("throttled", domain.StatusFailed.String(), sqlmock.AnyArg(), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "m1", domain.StatusFailed, "throttled"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	assertExpectationsMet(t, mock)
}

func TestGormStatusRepoUpdateStatusCreatesMissingRow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	// Ids are caller-supplied opaque strings, not necessarily UUIDs; an
	// unknown one must still get a row via the upsert fallback.
	const id = "intake-2026-000042"

	mock.ExpectExec(`UPDATE "delivery_statuses" SET`).
		WithArgs(nil, domain.StatusSent.String(), sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "delivery_statuses" .* ON CONFLICT \("message_id"\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), id, domain.StatusSent, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	assertExpectationsMet(t, mock)
}

func TestGormStatusRepoUpdateStatusClearsError(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	// A sent transition after an earlier failure must null the error column.
	mock.ExpectExec(`UPDATE "delivery_statuses" SET`).
		WithArgs(nil, domain.StatusSent.String(), sqlmock.AnyArg(), "m2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "m2", domain.StatusSent, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	assertExpectationsMet(t, mock)
}

func TestGormStatusRepoUpdateStatusPropagatesError(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "delivery_statuses" SET`).
		WillReturnError(errors.New("connection reset"))

	err := repo.UpdateStatus(context.Background(), "m3", domain.StatusFailed, "boom")
	if err == nil {
		t.Fatal("expected the driver error to surface")
	}

	assertExpectationsMet(t, mock)
}

func TestGormStatusRepoCreateUpserts(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO "delivery_statuses" .* ON CONFLICT \("message_id"\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &domain.StatusRecord{
		MessageID: "m4",
		Status:    domain.StatusQueued,
		Type:      domain.ChannelEmail,
		Recipient: "user@example.com",
	}
	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	assertExpectationsMet(t, mock)
}

func TestGormStatusRepoGetByID(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	errText := "throttled"
	rows := sqlmock.NewRows(statusColumns()).
		AddRow("m5", "failed", "sms", "+15550100", &errText, nil, now, now)

	mock.ExpectQuery(`SELECT \* FROM "delivery_statuses" WHERE message_id =`).
		WithArgs("m5", 1).
		WillReturnRows(rows)

	record, err := repo.GetByID(context.Background(), "m5")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.Status != domain.StatusFailed {
		t.Fatalf("status = %q, want failed", record.Status)
	}
	if record.Error == nil || *record.Error != "throttled" {
		t.Fatalf("error = %v, want throttled", record.Error)
	}

	assertExpectationsMet(t, mock)
}

func TestGormStatusRepoGetByIDNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "delivery_statuses" WHERE message_id =`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows(statusColumns()))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}

	assertExpectationsMet(t, mock)
}
