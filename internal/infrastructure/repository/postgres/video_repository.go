package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *VideoRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	uploaded_by TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	storage_ref TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	processing_status TEXT NOT NULL,
	sensitivity_status TEXT NOT NULL,
	sensitivity_details JSONB,
	verdict_source TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	views BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_videos_tenant_created ON videos(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_videos_processing_status ON videos(processing_status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const videoColumns = `id, title, description, uploaded_by, tenant_id, storage_ref, mime_type, size_bytes, processing_status, sensitivity_status, sensitivity_details, verdict_source, error_message, views, created_at, updated_at`

func (r *VideoRepository) Create(ctx context.Context, video *domain.Video) error {
	detailsJSON, err := marshalDetails(video.SensitivityDetails)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO videos (
	`+videoColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		video.ID, video.Title, video.Description, video.UploadedBy, video.TenantID,
		video.StorageRef, video.MimeType, video.SizeBytes,
		string(video.ProcessingStatus), string(video.SensitivityStatus), detailsJSON,
		string(video.VerdictSource), video.ErrorMessage, video.Views,
		video.CreatedAt, video.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+videoColumns+`
FROM videos
WHERE id = $1
`, id)

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("video %s: %w", id, domain.ErrVideoNotFound)
		}
		return nil, err
	}
	return video, nil
}

func (r *VideoRepository) List(ctx context.Context, filter domain.VideoFilter) ([]domain.Video, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.TenantID != "" {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.UploadedBy != "" {
		add("uploaded_by = $%d", filter.UploadedBy)
	}
	if filter.ProcessingStatus != "" {
		add("processing_status = $%d", string(filter.ProcessingStatus))
	}
	if filter.SensitivityStatus != "" {
		add("sensitivity_status = $%d", string(filter.SensitivityStatus))
	}
	if filter.CompletedOnly {
		add("processing_status = $%d", string(domain.ProcessingCompleted))
	}
	if filter.ExcludeFlagged {
		add("sensitivity_status <> $%d", string(domain.SensitivityFlagged))
	}

	query := `SELECT ` + videoColumns + ` FROM videos`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

func (r *VideoRepository) ClaimProcessing(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE videos
SET processing_status = $2, updated_at = $3
WHERE id = $1 AND processing_status = $4
`, id, string(domain.ProcessingInProgress), time.Now().UTC(), string(domain.ProcessingPending))
	if err != nil {
		return fmt.Errorf("claim video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim video rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("claim video %s: %w", id, domain.ErrAlreadyClaimed)
	}
	return nil
}

func (r *VideoRepository) SaveOutcome(ctx context.Context, id string, outcome domain.Outcome) error {
	sensitivity := domain.SensitivitySafe
	var details *domain.SensitivityDetails
	if !outcome.Verdict.IsSafe {
		sensitivity = domain.SensitivityFlagged
		details = &domain.SensitivityDetails{
			Reason:    outcome.Verdict.Reason,
			Timestamp: outcome.Verdict.Timestamp,
		}
	}
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE videos
SET processing_status = $2, sensitivity_status = $3, sensitivity_details = $4, verdict_source = $5, error_message = '', updated_at = $6
WHERE id = $1 AND processing_status = $7
`, id, string(domain.ProcessingCompleted), string(sensitivity), detailsJSON,
		string(outcome.Source), time.Now().UTC(), string(domain.ProcessingInProgress))
	if err != nil {
		return fmt.Errorf("save outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save outcome rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("save outcome for %s: %w", id, domain.ErrVideoNotFound)
	}
	return nil
}

func (r *VideoRepository) MarkFailed(ctx context.Context, id string, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE videos
SET processing_status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.ProcessingFailed), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark video failed: %w", err)
	}
	return nil
}

func (r *VideoRepository) UpdateMeta(ctx context.Context, id, title, description string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE videos
SET title = $2, description = $3, updated_at = $4
WHERE id = $1
`, id, title, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video meta: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update video meta rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("video %s: %w", id, domain.ErrVideoNotFound)
	}
	return nil
}

func (r *VideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE videos
SET views = views + 1, updated_at = $2
WHERE id = $1
RETURNING views
`, id, time.Now().UTC())

	var views int64
	if err := row.Scan(&views); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("video %s: %w", id, domain.ErrVideoNotFound)
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return views, nil
}

func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete video rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("video %s: %w", id, domain.ErrVideoNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*domain.Video, error) {
	var (
		video             domain.Video
		processingStatus  string
		sensitivityStatus string
		detailsRaw        []byte
		verdictSource     string
	)

	err := row.Scan(
		&video.ID, &video.Title, &video.Description, &video.UploadedBy, &video.TenantID,
		&video.StorageRef, &video.MimeType, &video.SizeBytes,
		&processingStatus, &sensitivityStatus, &detailsRaw, &verdictSource,
		&video.ErrorMessage, &video.Views, &video.CreatedAt, &video.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}

	video.ProcessingStatus = domain.ProcessingStatus(processingStatus)
	video.SensitivityStatus = domain.SensitivityStatus(sensitivityStatus)
	video.VerdictSource = domain.VerdictSource(verdictSource)
	if len(detailsRaw) > 0 {
		var details domain.SensitivityDetails
		if err := json.Unmarshal(detailsRaw, &details); err != nil {
			return nil, fmt.Errorf("unmarshal sensitivity details: %w", err)
		}
		video.SensitivityDetails = &details
	}
	return &video, nil
}

func marshalDetails(details *domain.SensitivityDetails) (any, error) {
	if details == nil {
		return nil, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal sensitivity details: %w", err)
	}
	return raw, nil
}
