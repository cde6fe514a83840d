package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS job_states (
	job_id     TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteJobStateRepository implements ports.StateStore on an SQLite file.
// Timestamps are stored as unix nanoseconds for ordering.
type SQLiteJobStateRepository struct {
	db *sql.DB
}

func NewSQLiteJobStateRepository(path string) (*SQLiteJobStateRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.open", "open database")
	}
	// One writer at a time; the API and pool goroutines share it.
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "sqlite.open", "initialise database")
		}
	}
	return &SQLiteJobStateRepository{db: db}, nil
}

func (r *SQLiteJobStateRepository) Name() string { return "sqlite" }

func (r *SQLiteJobStateRepository) Get(ctx context.Context, jobID string) (models.JobState, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM job_states WHERE job_id = ?`, jobID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.JobState{}, fmt.Errorf("%s: %w", jobID, ports.ErrStateNotFound)
		}
		return models.JobState{}, errors.Wrap(err, "sqlite.get", "query state")
	}
	var st models.JobState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return models.JobState{}, errors.Wrap(err, "sqlite.get", "decode state").WithField("job_id", jobID)
	}
	return st, nil
}

func (r *SQLiteJobStateRepository) Put(ctx context.Context, st models.JobState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "sqlite.put", "encode state")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_states (job_id, data, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE
		SET data = excluded.data, status = excluded.status, updated_at = excluded.updated_at
	`, st.JobID, string(data), string(st.Status), unixNano(st.CreatedAt), unixNano(st.UpdatedAt))
	if err != nil {
		return errors.Wrap(err, "sqlite.put", "upsert state")
	}
	return nil
}

func (r *SQLiteJobStateRepository) List(ctx context.Context, f ports.ListFilter) ([]models.JobState, error) {
	query := `SELECT data FROM job_states`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.list", "query states")
	}
	defer rows.Close()

	var out []models.JobState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "sqlite.list", "scan state")
		}
		var st models.JobState
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite.list", "iterate states")
	}
	return out, nil
}

func (r *SQLiteJobStateRepository) Delete(ctx context.Context, jobID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM job_states WHERE job_id = ?`, jobID); err != nil {
		return errors.Wrap(err, "sqlite.delete", "delete state")
	}
	return nil
}

func (r *SQLiteJobStateRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "sqlite.ping", "database unavailable")
	}
	return nil
}

func (r *SQLiteJobStateRepository) Close() error {
	return r.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
