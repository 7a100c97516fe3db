package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// RunRepo implements ports.RunRepository with pgx.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO runs (id, name, target, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.Name, run.Target, string(run.Status), run.StartedAt)
	return err
}

func (r *RunRepo) Finish(ctx context.Context, id string, summary *domain.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE runs SET status = $2, finished_at = $3, summary = $4, error = ''
		WHERE id = $1
	`, id, string(domain.RunStatusFinished), summary.FinishedAt, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *RunRepo) Fail(ctx context.Context, id string, reason string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE runs SET status = $2, finished_at = now(), error = $3
		WHERE id = $1
	`, id, string(domain.RunStatusFailed), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

const runColumns = `id, name, target, status, error, started_at, finished_at, summary`

func (r *RunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs newest first. The total ignores offset and limit.
func (r *RunRepo) List(ctx context.Context, offset, limit int) ([]domain.Run, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM runs ORDER BY started_at DESC, id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := make([]domain.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run      domain.Run
		status   string
		finished *time.Time
		summary  []byte
	)
	if err := row.Scan(&run.ID, &run.Name, &run.Target, &status, &run.Error,
		&run.StartedAt, &finished, &summary); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.FinishedAt = finished
	if len(summary) > 0 {
		var s domain.RunSummary
		if err := json.Unmarshal(summary, &s); err != nil {
			return nil, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
		}
		run.Summary = &s
	}
	return &run, nil
}
