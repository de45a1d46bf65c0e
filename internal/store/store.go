// Package store wraps Postgres access for jobs and API keys. All
// coordination between concurrently running task handlers happens
// through this store; Mutate provides the per-job serialization the
// stage join depends on.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"reelforge/internal/model"
)

// Store wraps access to the database via a shared *sql.DB with pooling.
type Store struct {
	DB *sql.DB
}

// New creates a new Store on the given database handle.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// hashAPIKey hashes a raw API key string using SHA-256 and returns a hex string.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

const jobColumns = `id, status, prompt, options, content, audio_urls, image_urls,
	video_url, workers, completed_workers, error, created_at, updated_at`

// scanJob decodes one jobs row. jsonb columns arrive as []byte; NULLs
// stay nil.
func scanJob(row interface{ Scan(dest ...any) error }) (model.Job, error) {
	var (
		job        model.Job
		options    []byte
		content    []byte
		audioURLs  []byte
		imageURLs  []byte
		workers    []byte
		completed  []byte
		videoURL   sql.NullString
		errMessage sql.NullString
	)

	err := row.Scan(&job.ID, &job.Status, &job.Prompt, &options, &content,
		&audioURLs, &imageURLs, &videoURL, &workers, &completed,
		&errMessage, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return model.Job{}, err
	}

	job.Options = options
	job.VideoURL = videoURL.String
	job.Error = errMessage.String

	if len(content) > 0 {
		var c model.Content
		if err := json.Unmarshal(content, &c); err != nil {
			return model.Job{}, fmt.Errorf("decode job content: %w", err)
		}
		job.Content = &c
	}
	if err := json.Unmarshal(audioURLs, &job.AudioURLs); err != nil {
		return model.Job{}, fmt.Errorf("decode audio urls: %w", err)
	}
	if err := json.Unmarshal(imageURLs, &job.ImageURLs); err != nil {
		return model.Job{}, fmt.Errorf("decode image urls: %w", err)
	}
	if err := json.Unmarshal(workers, &job.Workers); err != nil {
		return model.Job{}, fmt.Errorf("decode workers: %w", err)
	}
	if err := json.Unmarshal(completed, &job.CompletedWorkers); err != nil {
		return model.Job{}, fmt.Errorf("decode completed workers: %w", err)
	}

	return job, nil
}

func encodeJob(job *model.Job) (options, content, audioURLs, imageURLs, workers, completed []byte, err error) {
	options = job.Options
	if len(options) == 0 {
		options = []byte("{}")
	}
	if job.Content != nil {
		content, err = json.Marshal(job.Content)
		if err != nil {
			return
		}
	}
	if audioURLs, err = marshalOrEmptyArray(job.AudioURLs); err != nil {
		return
	}
	if imageURLs, err = marshalOrEmptyArray(job.ImageURLs); err != nil {
		return
	}
	if workers, err = marshalOrEmptyArray(job.Workers); err != nil {
		return
	}
	completed, err = marshalOrEmptyArray(job.CompletedWorkers)
	return
}

// marshalOrEmptyArray keeps nil slices as [] in jsonb columns.
func marshalOrEmptyArray(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte("[]"), nil
	}
	return data, nil
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	options, content, audioURLs, imageURLs, workers, completed, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, status, prompt, options, content, audio_urls, image_urls,
			video_url, workers, completed_workers, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, NULLIF($11, ''), $12, $13)`,
		job.ID, job.Status, job.Prompt, options, nullableBytes(content),
		audioURLs, imageURLs, job.VideoURL, workers, completed,
		job.Error, job.CreatedAt, job.UpdatedAt)
	return err
}

// GetJob fetches a single job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// JobListFilter narrows and pages ListJobs results.
type JobListFilter struct {
	Status string
	Limit  int32
	Offset int32
}

// ListJobs returns jobs ordered newest-first, with an optional status
// filter, plus the total count matching the filter.
func (s *Store) ListJobs(ctx context.Context, filter JobListFilter) ([]model.Job, int64, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		filter.Status, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM jobs WHERE ($1 = '' OR status = $1)`,
		filter.Status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

// Mutate runs fn against the current job row inside a transaction that
// holds a row lock (SELECT ... FOR UPDATE), then writes every mutable
// field back. Concurrent completions of parallel stages are serialized
// here, so the second writer always observes the first writer's
// completedWorkers membership.
func (s *Store) Mutate(ctx context.Context, id uuid.UUID, fn func(*model.Job) error) (model.Job, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Job{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if err != nil {
		return model.Job{}, err
	}

	if err := fn(&job); err != nil {
		return model.Job{}, err
	}
	job.UpdatedAt = time.Now().UTC()

	_, content, audioURLs, imageURLs, _, completed, err := encodeJob(&job)
	if err != nil {
		return model.Job{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = $2, content = $3, audio_urls = $4, image_urls = $5,
			video_url = NULLIF($6, ''), completed_workers = $7, error = NULLIF($8, ''),
			updated_at = $9
		WHERE id = $1`,
		job.ID, job.Status, nullableBytes(content), audioURLs, imageURLs,
		job.VideoURL, completed, job.Error, job.UpdatedAt)
	if err != nil {
		return model.Job{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// ApiKey is a stored API credential; clients present the raw key, we
// store only its hash.
type ApiKey struct {
	ID                 uuid.UUID
	KeyHash            string
	Label              string
	IsAdmin            bool
	RateLimitPerMinute sql.NullInt32
	CreatedAt          time.Time
}

// GetAPIKeyByRawKey looks up an API key by its raw value.
func (s *Store) GetAPIKeyByRawKey(ctx context.Context, rawKey string) (ApiKey, error) {
	hash := hashAPIKey(rawKey)

	var key ApiKey
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, key_hash, label, is_admin, rate_limit_per_minute, created_at
		FROM api_keys WHERE key_hash = $1`, hash).
		Scan(&key.ID, &key.KeyHash, &key.Label, &key.IsAdmin, &key.RateLimitPerMinute, &key.CreatedAt)
	return key, err
}

// EnsureAdminAPIKey ensures that there is an admin API key for the given
// raw key and label. If it already exists, it is returned; otherwise it
// is created.
func (s *Store) EnsureAdminAPIKey(ctx context.Context, rawKey, label string) (ApiKey, error) {
	key, err := s.GetAPIKeyByRawKey(ctx, rawKey)
	if err == nil {
		return key, nil
	}
	if err != sql.ErrNoRows {
		return ApiKey{}, err
	}

	key = ApiKey{
		ID:        uuid.New(),
		KeyHash:   hashAPIKey(rawKey),
		Label:     label,
		IsAdmin:   true,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, label, is_admin, rate_limit_per_minute, created_at)
		VALUES ($1, $2, $3, $4, NULL, $5)
		ON CONFLICT (key_hash) DO NOTHING`,
		key.ID, key.KeyHash, key.Label, key.IsAdmin, key.CreatedAt)
	if err != nil {
		return ApiKey{}, err
	}
	return s.GetAPIKeyByRawKey(ctx, rawKey)
}
