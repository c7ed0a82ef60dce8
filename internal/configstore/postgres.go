package configstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// PostgresStore persists configuration blobs in a gate_configs table
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
	CREATE TABLE IF NOT EXISTS gate_configs (
		config_type TEXT PRIMARY KEY,
		blob JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure gate_configs schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, t ConfigType) ([]byte, error) {
	query := `SELECT blob FROM gate_configs WHERE config_type = $1`

	var blob []byte
	err := s.db.QueryRowContext(ctx, query, string(t)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s config: %w", t, err)
	}

	return blob, nil
}

func (s *PostgresStore) Save(ctx context.Context, t ConfigType, blob []byte) error {
	query := `
	INSERT INTO gate_configs (config_type, blob, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (config_type)
	DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, string(t), blob); err != nil {
		return fmt.Errorf("failed to save %s config: %w", t, err)
	}

	log.Debug().
		Str("config_type", string(t)).
		Int("bytes", len(blob)).
		Msg("Saved configuration blob")

	return nil
}
