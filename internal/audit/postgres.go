package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Config contains database configuration
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS masking_audit (
	id                BIGSERIAL PRIMARY KEY,
	request_id        TEXT NOT NULL,
	operation         TEXT NOT NULL,
	text_length       INTEGER NOT NULL DEFAULT 0,
	items_found       INTEGER NOT NULL DEFAULT 0,
	email_count       INTEGER NOT NULL DEFAULT 0,
	phone_count       INTEGER NOT NULL DEFAULT 0,
	ssn_count         INTEGER NOT NULL DEFAULT 0,
	credit_card_count INTEGER NOT NULL DEFAULT 0,
	duration_ms       BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS masking_audit_created_at_idx ON masking_audit (created_at DESC);`

// PostgresStore writes the audit trail to PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore connects, configures the pool and ensures the schema
func NewPostgresStore(config *Config, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &PostgresStore{
		db:     db,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// EnsureSchema creates the audit table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Record inserts an event and fills its ID and timestamp
func (s *PostgresStore) Record(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO masking_audit (request_id, operation, text_length, items_found,
			email_count, phone_count, ssn_count, credit_card_count, duration_ms)
		VALUES (:request_id, :operation, :text_length, :items_found,
			:email_count, :phone_count, :ssn_count, :credit_card_count, :duration_ms)
		RETURNING id, created_at`

	rows, err := s.db.NamedQueryContext(ctx, query, event)
	if err != nil {
		s.logger.Error("Failed to insert audit event",
			zap.Error(err),
			zap.String("request_id", event.RequestID))
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&event.ID, &event.CreatedAt); err != nil {
			return fmt.Errorf("failed to read audit event id: %w", err)
		}
	}
	return rows.Err()
}

// Recent returns the newest events, newest first
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []Event
	query := `
		SELECT id, request_id, operation, text_length, items_found,
			email_count, phone_count, ssn_count, credit_card_count, duration_ms, created_at
		FROM masking_audit
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return events, nil
}

// CountByRequest returns how many events were recorded for a request ID
func (s *PostgresStore) CountByRequest(ctx context.Context, requestID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM masking_audit WHERE request_id = $1", requestID); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			scheme := "postgres"
			if i := strings.Index(url, "://"); i > 0 {
				scheme = url[:i]
			}
			return scheme + "://***@" + parts[len(parts)-1]
		}
	}
	return url
}
