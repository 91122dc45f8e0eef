package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"
)

const (
	ensureSchemaQuery = `
		CREATE SCHEMA IF NOT EXISTS catalog_client;
		CREATE TABLE IF NOT EXISTS catalog_client.kv_entries (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	getEntryQuery = `
		SELECT value
		FROM catalog_client.kv_entries
		WHERE key = $1;
	`
	setEntryQuery = `
		INSERT INTO catalog_client.kv_entries (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP;
	`
	removeEntriesQuery     = `DELETE FROM catalog_client.kv_entries WHERE key = ANY($1);`
	removeEntriesLikeQuery = `DELETE FROM catalog_client.kv_entries WHERE key LIKE $1;`
)

// PostgresStore implements KeyValueStore on a single PostgreSQL table.
// Values must be valid JSON because the column is JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the schema and table if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ensureSchemaQuery); err != nil {
		return fmt.Errorf("store: EnsureSchema failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, getEntryQuery, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: Get %q failed to scan row: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if _, err := s.db.ExecContext(ctx, setEntryQuery, key, value); err != nil {
		return fmt.Errorf("store: Set %q failed to execute upsert: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, removeEntriesQuery, pq.Array(keys)); err != nil {
		return fmt.Errorf("store: Remove failed to execute delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemovePrefix(ctx context.Context, prefix string) error {
	pattern := escapeLike(prefix) + "%"
	result, err := s.db.ExecContext(ctx, removeEntriesLikeQuery, pattern)
	if err != nil {
		return fmt.Errorf("store: RemovePrefix %q failed to execute delete: %w", prefix, err)
	}
	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("store: RemovePrefix %q failed to get rows affected: %w", prefix, err)
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		log.Println("INFO: Closing database connection pool...")
		err := s.db.Close()
		if err != nil {
			log.Printf("ERROR: Failed to close database connection pool: %v", err)
			return err
		}
		log.Println("INFO: Database connection pool closed successfully.")
		return nil
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE wildcards; "product_" must not match "productX".
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
