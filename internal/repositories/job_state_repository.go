package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS job_states (
	job_id     TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS job_states_status_created_idx ON job_states (status, created_at DESC);
`

// JobStateRepository implements ports.StateStore on PostgreSQL. The full
// state is kept as JSONB; status and timestamps are duplicated into
// columns for filtering and ordering.
type JobStateRepository struct {
	db *pgxpool.Pool
}

func NewJobStateRepository(db *pgxpool.Pool) *JobStateRepository {
	return &JobStateRepository{db: db}
}

// EnsureSchema creates the job_states table if missing.
func (r *JobStateRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, pgSchema); err != nil {
		return errors.Wrap(err, "postgres.schema", "create job_states")
	}
	return nil
}

func (r *JobStateRepository) Name() string { return "postgres" }

func (r *JobStateRepository) Get(ctx context.Context, jobID string) (models.JobState, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM job_states WHERE job_id=$1`, jobID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.JobState{}, fmt.Errorf("%s: %w", jobID, ports.ErrStateNotFound)
		}
		return models.JobState{}, errors.Wrap(err, "postgres.get", "query state")
	}
	var st models.JobState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.JobState{}, errors.Wrap(err, "postgres.get", "decode state").WithField("job_id", jobID)
	}
	return st, nil
}

func (r *JobStateRepository) Put(ctx context.Context, st models.JobState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "postgres.put", "encode state")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO job_states (job_id, data, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (job_id) DO UPDATE
		SET data=EXCLUDED.data, status=EXCLUDED.status, updated_at=EXCLUDED.updated_at
	`, st.JobID, data, string(st.Status), st.CreatedAt, st.UpdatedAt)
	if err != nil {
		if IsUndefinedTable(err) {
			return errors.WrapWithCode(err, errors.CodeFailedPrecond, "postgres.put", "job_states table missing")
		}
		return errors.Wrap(err, "postgres.put", "upsert state")
	}
	return nil
}

func (r *JobStateRepository) List(ctx context.Context, f ports.ListFilter) ([]models.JobState, error) {
	query := `SELECT data FROM job_states`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` WHERE status=$1`
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.list", "query states")
	}
	defer rows.Close()

	var out []models.JobState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "postgres.list", "scan state")
		}
		var st models.JobState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres.list", "iterate states")
	}
	return out, nil
}

func (r *JobStateRepository) Delete(ctx context.Context, jobID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM job_states WHERE job_id=$1`, jobID); err != nil {
		return errors.Wrap(err, "postgres.delete", "delete state")
	}
	return nil
}

func (r *JobStateRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "postgres.ping", "database unreachable")
	}
	return nil
}

func (r *JobStateRepository) Close() error {
	r.db.Close()
	return nil
}
