package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temiboboye/zbai/internal/models"
)

// Postgres persists jobs with results as JSONB, so partial snapshots can
// be re-read after a restart.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects the store to the pool and applies migrations.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total INT NOT NULL DEFAULT 0,
		processed INT NOT NULL DEFAULT 0,
		results JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS jobs_owner_idx ON jobs (owner_id, created_at DESC);`

	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("job store migration failed: %w", err)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, job models.BulkJob) error {
	results, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("marshal job results: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO jobs (id, owner_id, status, total, processed, results, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			processed = EXCLUDED.processed,
			results = EXCLUDED.results,
			completed_at = EXCLUDED.completed_at
	`, job.ID, job.OwnerID, string(job.Status), job.Total, job.Processed, results, job.CreatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, id string) (models.BulkJob, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, owner_id, status, total, processed, results, created_at, completed_at
		FROM jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BulkJob{}, ErrJobNotFound
	}
	return job, err
}

func (p *Postgres) List(ctx context.Context, owner string, f Filter) ([]models.BulkJob, error) {
	query := `
		SELECT id, owner_id, status, total, processed, results, created_at, completed_at
		FROM jobs WHERE owner_id = $1`
	args := []interface{}{owner}
	if f.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", owner, err)
	}
	defer rows.Close()

	var out []models.BulkJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.BulkJob, error) {
	var job models.BulkJob
	var status string
	var results []byte
	var completedAt *time.Time

	if err := row.Scan(&job.ID, &job.OwnerID, &status, &job.Total, &job.Processed,
		&results, &job.CreatedAt, &completedAt); err != nil {
		return models.BulkJob{}, err
	}
	job.Status = models.JobStatus(status)
	job.CompletedAt = completedAt
	if err := json.Unmarshal(results, &job.Results); err != nil {
		return models.BulkJob{}, fmt.Errorf("unmarshal job results: %w", err)
	}
	return job, nil
}
