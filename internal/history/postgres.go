package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mergegate/pkg/models"
)

// PostgresStore persists decision records in a merge_decisions table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by an existing connection
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS merge_decisions (
		id BIGSERIAL PRIMARY KEY,
		pr_number INTEGER NOT NULL,
		ai_score INTEGER NOT NULL,
		sonar_issues INTEGER NOT NULL,
		mode TEXT NOT NULL,
		ai_threshold INTEGER NOT NULL,
		sonar_threshold INTEGER NOT NULL,
		decision TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure merge_decisions schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, rec models.DecisionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
	INSERT INTO merge_decisions (
		pr_number, ai_score, sonar_issues, mode, ai_threshold,
		sonar_threshold, decision, details, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.ExecContext(ctx, insert,
		rec.PRNumber, rec.AIScore, rec.SonarIssues, string(rec.Mode),
		rec.AIThreshold, rec.SonarThreshold, string(rec.Decision),
		rec.Details, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append decision record: %w", err)
	}

	// Evict rows past the per-PR cap, oldest first
	trim := `
	DELETE FROM merge_decisions
	WHERE pr_number = $1 AND id NOT IN (
		SELECT id FROM merge_decisions
		WHERE pr_number = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	)`

	if _, err := tx.ExecContext(ctx, trim, rec.PRNumber, MaxRecordsPerPR); err != nil {
		return fmt.Errorf("failed to trim decision history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision record: %w", err)
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context, prNumber int) ([]models.DecisionRecord, error) {
	query := `
	SELECT pr_number, ai_score, sonar_issues, mode, ai_threshold,
	       sonar_threshold, decision, details, created_at
	FROM merge_decisions
	WHERE pr_number = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, prNumber, MaxRecordsPerPR)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision records: %w", err)
	}
	defer rows.Close()

	var records []models.DecisionRecord
	for rows.Next() {
		var rec models.DecisionRecord
		var mode, decision string
		err := rows.Scan(
			&rec.PRNumber, &rec.AIScore, &rec.SonarIssues, &mode,
			&rec.AIThreshold, &rec.SonarThreshold, &decision,
			&rec.Details, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision record: %w", err)
		}
		rec.Mode = models.ThresholdMode(mode)
		rec.Decision = models.Decision(decision)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision records: %w", err)
	}

	return records, nil
}
