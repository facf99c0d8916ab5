package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p := &PostgresDB{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) migrate() error {
	schema := `
        CREATE TABLE IF NOT EXISTS files (
            id          TEXT PRIMARY KEY,
            owner_id    TEXT NOT NULL,
            name        TEXT NOT NULL,
            kind        TEXT NOT NULL,
            is_public   BOOLEAN NOT NULL DEFAULT FALSE,
            parent_id   TEXT NOT NULL DEFAULT '0',
            storage_ref TEXT NOT NULL DEFAULT '',
            created_at  TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS files_owner_parent_idx ON files (owner_id, parent_id, id);

        CREATE TABLE IF NOT EXISTS derivative_jobs (
            id              BIGSERIAL PRIMARY KEY,
            owner_id        TEXT NOT NULL,
            file_id         TEXT NOT NULL,
            status          TEXT NOT NULL DEFAULT 'pending',
            retry_count     INT NOT NULL DEFAULT 0,
            last_error      TEXT NOT NULL DEFAULT '',
            next_attempt_at TIMESTAMPTZ NOT NULL,
            created_at      TIMESTAMPTZ NOT NULL,
            updated_at      TIMESTAMPTZ NOT NULL,
            completed_at    TIMESTAMPTZ
        );
        CREATE INDEX IF NOT EXISTS derivative_jobs_pending_idx ON derivative_jobs (status, next_attempt_at, id);
    `
	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Insert assigns an id and persists the record, returning the stored copy.
func (p *PostgresDB) Insert(ctx context.Context, rec *FileRecord) (*FileRecord, error) {
	stored := *rec
	stored.ID = uuid.New().String()
	if stored.ParentID == "" {
		stored.ParentID = RootParent
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO files (id, owner_id, name, kind, is_public, parent_id, storage_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := p.db.ExecContext(ctx, query,
		stored.ID,
		stored.OwnerID,
		stored.Name,
		stored.Kind,
		stored.IsPublic,
		stored.ParentID,
		stored.StorageRef,
		stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert file: %v", ErrUnavailable, err)
	}
	return &stored, nil
}

const fileColumns = "id, owner_id, name, kind, is_public, parent_id, storage_ref, created_at"

func (p *PostgresDB) scanFile(row *sql.Row) (*FileRecord, error) {
	var f FileRecord
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Kind, &f.IsPublic, &f.ParentID, &f.StorageRef, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &f, nil
}

func (p *PostgresDB) GetByID(ctx context.Context, id string) (*FileRecord, error) {
	query := "SELECT " + fileColumns + " FROM files WHERE id = $1"
	return p.scanFile(p.db.QueryRowContext(ctx, query, id))
}

// GetByIDForOwner constrains the lookup to a single owner so a bare id
// cannot leak the existence of another user's file.
func (p *PostgresDB) GetByIDForOwner(ctx context.Context, id, ownerID string) (*FileRecord, error) {
	query := "SELECT " + fileColumns + " FROM files WHERE id = $1 AND owner_id = $2"
	return p.scanFile(p.db.QueryRowContext(ctx, query, id, ownerID))
}

// List returns the owner's files under parentID, ordered by id ascending
// so pagination is stable across calls. An out-of-range page is an empty
// result, not an error.
func (p *PostgresDB) List(ctx context.Context, ownerID, parentID string, page, pageSize int) ([]*FileRecord, error) {
	query := `
        SELECT ` + fileColumns + `
        FROM files
        WHERE owner_id = $1 AND parent_id = $2
        ORDER BY id ASC
        LIMIT $3 OFFSET $4
    `
	rows, err := p.db.QueryContext(ctx, query, ownerID, parentID, pageSize, page*pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Kind, &f.IsPublic, &f.ParentID, &f.StorageRef, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan file: %v", ErrUnavailable, err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return files, nil
}

// UpdateVisibility flips is_public for the (id, owner) pair. Setting a
// record to the state it is already in counts as success.
func (p *PostgresDB) UpdateVisibility(ctx context.Context, id, ownerID string, isPublic bool) error {
	query := "UPDATE files SET is_public = $3 WHERE id = $1 AND owner_id = $2"
	result, err := p.db.ExecContext(ctx, query, id, ownerID, isPublic)
	if err != nil {
		return fmt.Errorf("%w: update visibility: %v", ErrUnavailable, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) CountFiles(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count files: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Enqueue records a derivative job. The row is the durable queue entry:
// it survives restarts and stays claimable until completed or failed.
func (p *PostgresDB) Enqueue(ctx context.Context, ownerID, fileID string) error {
	now := time.Now().UTC()
	query := `
        INSERT INTO derivative_jobs (owner_id, file_id, status, next_attempt_at, created_at, updated_at)
        VALUES ($1, $2, 'pending', $3, $3, $3)
    `
	if _, err := p.db.ExecContext(ctx, query, ownerID, fileID, now); err != nil {
		return fmt.Errorf("%w: enqueue job: %v", ErrUnavailable, err)
	}
	return nil
}

// NextPendingJob claims the oldest due pending job and marks it
// processing. Returns (nil, nil) when nothing is due. SKIP LOCKED keeps
// concurrent workers from claiming the same row.
func (p *PostgresDB) NextPendingJob(ctx context.Context) (*DerivativeJob, error) {
	query := `
        UPDATE derivative_jobs SET status = 'processing', updated_at = NOW()
        WHERE id = (
            SELECT id FROM derivative_jobs
            WHERE status = 'pending' AND next_attempt_at <= NOW()
            ORDER BY id ASC
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, owner_id, file_id, status, retry_count, last_error, next_attempt_at, created_at, updated_at, completed_at
    `
	var j DerivativeJob
	err := p.db.QueryRowContext(ctx, query).Scan(
		&j.ID, &j.OwnerID, &j.FileID, &j.Status, &j.RetryCount,
		&j.LastError, &j.NextAttemptAt, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: claim job: %v", ErrUnavailable, err)
	}
	return &j, nil
}

// RetryJob returns a claimed job to the pending state after a transient
// failure, to be retried no sooner than delay from now.
func (p *PostgresDB) RetryJob(ctx context.Context, jobID int64, reason string, delay time.Duration) error {
	query := `
        UPDATE derivative_jobs
        SET status = 'pending', retry_count = retry_count + 1, last_error = $2,
            next_attempt_at = NOW() + $3 * INTERVAL '1 millisecond', updated_at = NOW()
        WHERE id = $1
    `
	if _, err := p.db.ExecContext(ctx, query, jobID, reason, delay.Milliseconds()); err != nil {
		return fmt.Errorf("%w: retry job: %v", ErrUnavailable, err)
	}
	return nil
}

// FailJob marks a job permanently failed. Failed jobs are never retried;
// they remain visible for operators.
func (p *PostgresDB) FailJob(ctx context.Context, jobID int64, reason string) error {
	query := `
        UPDATE derivative_jobs
        SET status = 'failed', last_error = $2, updated_at = NOW()
        WHERE id = $1
    `
	if _, err := p.db.ExecContext(ctx, query, jobID, reason); err != nil {
		return fmt.Errorf("%w: fail job: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresDB) CompleteJob(ctx context.Context, jobID int64) error {
	query := `
        UPDATE derivative_jobs
        SET status = 'completed', completed_at = NOW(), updated_at = NOW()
        WHERE id = $1
    `
	if _, err := p.db.ExecContext(ctx, query, jobID); err != nil {
		return fmt.Errorf("%w: complete job: %v", ErrUnavailable, err)
	}
	return nil
}

// ReclaimStale returns jobs stuck in processing (a worker died mid-job)
// to the pending state so at-least-once delivery holds across crashes.
func (p *PostgresDB) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
        UPDATE derivative_jobs
        SET status = 'pending', next_attempt_at = NOW(), updated_at = NOW()
        WHERE status = 'processing' AND updated_at < NOW() - $1 * INTERVAL '1 millisecond'
    `
	result, err := p.db.ExecContext(ctx, query, olderThan.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("%w: reclaim stale jobs: %v", ErrUnavailable, err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
