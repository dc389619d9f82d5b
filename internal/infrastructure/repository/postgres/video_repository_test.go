package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*VideoRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &VideoRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, description").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesSensitivityDetails(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "title", "description", "uploaded_by", "tenant_id",
		"storage_ref", "mime_type", "size_bytes",
		"processing_status", "sensitivity_status", "sensitivity_details", "verdict_source",
		"error_message", "views", "created_at", "updated_at",
	}).AddRow(
		"vid-1", "clip", "", "user-1", "tenant-1",
		"vid-1_clip.mp4", "video/mp4", int64(2048),
		"completed", "flagged", []byte(`{"reason":"X","timestamp":"00:12"}`), "model",
		"", int64(7), now, now,
	)

	mock.ExpectQuery("SELECT id, title, description").
		WithArgs("vid-1").
		WillReturnRows(rows)

	video, err := repo.GetByID(context.Background(), "vid-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if video.SensitivityStatus != domain.SensitivityFlagged {
		t.Fatalf("sensitivity = %s", video.SensitivityStatus)
	}
	if video.SensitivityDetails == nil || video.SensitivityDetails.Reason != "X" || video.SensitivityDetails.Timestamp != "00:12" {
		t.Fatalf("details = %+v", video.SensitivityDetails)
	}
	if video.VerdictSource != domain.SourceModel {
		t.Fatalf("verdict source = %s", video.VerdictSource)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimProcessingLosesRace(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE videos").
		WithArgs("vid-1", string(domain.ProcessingInProgress), sqlmock.AnyArg(), string(domain.ProcessingPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ClaimProcessing(context.Background(), "vid-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimProcessingWinsRace(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE videos").
		WithArgs("vid-1", string(domain.ProcessingInProgress), sqlmock.AnyArg(), string(domain.ProcessingPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ClaimProcessing(context.Background(), "vid-1"); err != nil {
		t.Fatalf("ClaimProcessing() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveOutcomeFlaggedPersistsDetailsAndSource(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE videos").
		WithArgs(
			"vid-1", string(domain.ProcessingCompleted), string(domain.SensitivityFlagged),
			[]byte(`{"reason":"Simulated AI Flag: Inappropriate content detected (Fallback Mode)","timestamp":"00:15"}`),
			string(domain.SourceSimulated), sqlmock.AnyArg(), string(domain.ProcessingInProgress),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveOutcome(context.Background(), "vid-1", domain.Outcome{
		Verdict: domain.Verdict{
			IsSafe:    false,
			Reason:    "Simulated AI Flag: Inappropriate content detected (Fallback Mode)",
			Timestamp: "00:15",
		},
		Source: domain.SourceSimulated,
	})
	if err != nil {
		t.Fatalf("SaveOutcome() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveOutcomeSafeStoresNullDetails(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE videos").
		WithArgs(
			"vid-1", string(domain.ProcessingCompleted), string(domain.SensitivitySafe),
			nil, string(domain.SourceModel), sqlmock.AnyArg(), string(domain.ProcessingInProgress),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveOutcome(context.Background(), "vid-1", domain.Outcome{
		Verdict: domain.Verdict{IsSafe: true, Reason: "clean"},
		Source:  domain.SourceModel,
	})
	if err != nil {
		t.Fatalf("SaveOutcome() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveOutcomeRequiresProcessingState(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE videos").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveOutcome(context.Background(), "vid-1", domain.Outcome{
		Verdict: domain.Verdict{IsSafe: true},
		Source:  domain.SourceModel,
	})
	if !domain.IsKind(err, domain.ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListBuildsTenantScopedQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{
		"id", "title", "description", "uploaded_by", "tenant_id",
		"storage_ref", "mime_type", "size_bytes",
		"processing_status", "sensitivity_status", "sensitivity_details", "verdict_source",
		"error_message", "views", "created_at", "updated_at",
	})

	mock.ExpectQuery(`tenant_id = \$1 AND processing_status = \$2 AND sensitivity_status <> \$3`).
		WithArgs("tenant-1", string(domain.ProcessingCompleted), string(domain.SensitivityFlagged)).
		WillReturnRows(rows)

	_, err := repo.List(context.Background(), domain.VideoFilter{
		TenantID:       "tenant-1",
		CompletedOnly:  true,
		ExcludeFlagged: true,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIncrementViewsReturnsNewCount(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE videos").
		WithArgs("vid-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"views"}).AddRow(int64(42)))

	views, err := repo.IncrementViews(context.Background(), "vid-1")
	if err != nil {
		t.Fatalf("IncrementViews() error = %v", err)
	}
	if views != 42 {
		t.Fatalf("views = %d, want 42", views)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteMissingVideoReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM videos").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
