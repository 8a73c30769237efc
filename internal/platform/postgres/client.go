package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"lascaux-backend/internal/common/config"
	"lascaux-backend/internal/common/logger"
)

type Client struct {
	db *sqlx.DB
}

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	db, err := sqlx.Open("postgres", cfg.Postgres.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Int("max_open_conns", cfg.Postgres.MaxOpenConns).
		Msg("PostgreSQL client initialized")

	return &Client{db: db}, nil
}

func (c *Client) DB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                UUID PRIMARY KEY,
	wallet_address    TEXT NOT NULL,
	display_name      TEXT NOT NULL,
	bio               TEXT NOT NULL DEFAULT '',
	profile_photo_url TEXT NOT NULL DEFAULT '',
	roles             TEXT[] NOT NULL DEFAULT '{}',
	followers         TEXT[] NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL,
	last_login        TIMESTAMPTZ,
	invited_by        UUID,
	rank              TEXT NOT NULL DEFAULT '',
	CONSTRAINT users_wallet_address_key UNIQUE (wallet_address),
	CONSTRAINT users_display_name_key UNIQUE (display_name)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	user_id    UUID NOT NULL,
	token      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, token)
);

CREATE INDEX IF NOT EXISTS refresh_tokens_expires_at_idx ON refresh_tokens (expires_at);
`

// Migrate creates the credential tables if they are missing.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info().Msg("PostgreSQL schema applied")
	return nil
}
