package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
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

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
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
CREATE TABLE IF NOT EXISTS runs (
	user_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	status TEXT NOT NULL,
	model TEXT,
	file_key TEXT NOT NULL,
	file_name TEXT NOT NULL,
	extracted_text_key TEXT,
	extracted_text_length INTEGER NOT NULL DEFAULT 0,
	extraction_method TEXT,
	analysis_result TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	extracted_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	PRIMARY KEY (user_id, run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_user_created_at ON runs(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const runColumns = `user_id, run_id, status, model, file_key, file_name, extracted_text_key, extracted_text_length, extraction_method, analysis_result, error_message, created_at, extracted_at, completed_at`

func (r *RunRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO runs (`+runColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		run.UserID, run.RunID, string(run.Status), nullIfEmpty(string(run.Model)), run.FileKey, run.FileName,
		nullIfEmpty(run.ExtractedTextKey), run.ExtractedTextLength, nullIfEmpty(run.ExtractionMethod),
		nullIfEmpty(run.AnalysisResult), nullIfEmpty(run.ErrorMessage), run.CreatedAt, run.ExtractedAt, run.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrAlreadyExists, "create run", err)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, userID, runID string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+runColumns+`
FROM runs
WHERE user_id = $1 AND run_id = $2
`, userID, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get run", fmt.Errorf("run_id=%s", runID))
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// UpdateRunConditional applies a mutation only when the stored status still
// equals expectedStatus, the sole concurrency-control primitive of the run
// store. Zero affected rows are re-read to distinguish a missing run from a
// lost race.
func (r *RunRepository) UpdateRunConditional(ctx context.Context, userID, runID string, expectedStatus domain.RunStatus, mutation domain.RunMutation) (*domain.Run, error) {
	if !domain.CanTransition(expectedStatus, mutation.Status) {
		return nil, domain.WrapError(domain.ErrStatusConflict, "update run",
			fmt.Errorf("illegal transition %s -> %s", expectedStatus, mutation.Status))
	}

	assignments := []string{"status = $4"}
	args := []any{userID, runID, string(expectedStatus), string(mutation.Status)}

	appendSet := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if mutation.Model != nil {
		appendSet("model", string(*mutation.Model))
	}
	if mutation.ExtractedTextKey != nil {
		appendSet("extracted_text_key", *mutation.ExtractedTextKey)
	}
	if mutation.ExtractedTextLength != nil {
		appendSet("extracted_text_length", *mutation.ExtractedTextLength)
	}
	if mutation.ExtractionMethod != nil {
		appendSet("extraction_method", *mutation.ExtractionMethod)
	}
	if mutation.AnalysisResult != nil {
		appendSet("analysis_result", *mutation.AnalysisResult)
	}
	if mutation.ErrorMessage != nil {
		appendSet("error_message", *mutation.ErrorMessage)
	}
	if mutation.ExtractedAt != nil {
		appendSet("extracted_at", *mutation.ExtractedAt)
	}
	if mutation.CompletedAt != nil {
		appendSet("completed_at", *mutation.CompletedAt)
	}

	query := fmt.Sprintf(`
UPDATE runs
SET %s
WHERE user_id = $1 AND run_id = $2 AND status = $3
`, strings.Join(assignments, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update run rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := r.GetRun(ctx, userID, runID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, domain.WrapError(domain.ErrStatusConflict, "update run",
			fmt.Errorf("expected status %s, stored status %s", expectedStatus, current.Status))
	}

	return r.GetRun(ctx, userID, runID)
}

func (r *RunRepository) ListRunsByUser(ctx context.Context, userID string, limit int) ([]domain.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM runs
WHERE user_id = $1
ORDER BY created_at DESC, run_id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type runScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row runScanner) (*domain.Run, error) {
	var run domain.Run
	var status string
	var model, textKey, method, result, errMessage sql.NullString
	var extractedAt, completedAt sql.NullTime

	err := row.Scan(
		&run.UserID,
		&run.RunID,
		&status,
		&model,
		&run.FileKey,
		&run.FileName,
		&textKey,
		&run.ExtractedTextLength,
		&method,
		&result,
		&errMessage,
		&run.CreatedAt,
		&extractedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.Model = domain.ModelVariant(model.String)
	run.ExtractedTextKey = textKey.String
	run.ExtractionMethod = method.String
	run.AnalysisResult = result.String
	run.ErrorMessage = errMessage.String
	if extractedAt.Valid {
		t := extractedAt.Time
		run.ExtractedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
