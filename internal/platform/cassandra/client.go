package cassandra

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gocql/gocql"

	"lascaux-backend/internal/common/config"
	"lascaux-backend/internal/common/logger"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// Client owns one gocql session bound to the configured keyspace.
type Client struct {
	session  *gocql.Session
	keyspace string
}

func newCluster(cfg *config.Config) (*gocql.ClusterConfig, error) {
	consistency, err := gocql.ParseConsistencyWrapper(strings.ToUpper(cfg.Cassandra.Consistency))
	if err != nil {
		return nil, fmt.Errorf("invalid CASSANDRA_CONSISTENCY: %w", err)
	}

	cluster := gocql.NewCluster(cfg.Cassandra.Hosts...)
	cluster.Port = cfg.Cassandra.Port
	cluster.ProtoVersion = cfg.Cassandra.ProtoVersion
	cluster.Timeout = cfg.Cassandra.Timeout
	cluster.ConnectTimeout = cfg.Cassandra.Timeout
	cluster.Consistency = consistency
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	if cfg.Cassandra.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Cassandra.Username,
			Password: cfg.Cassandra.Password,
		}
	}
	return cluster, nil
}

// NewClient connects to the cluster. With migrate set, the keyspace and
// tables are created first.
func NewClient(ctx context.Context, cfg *config.Config, migrate bool) (*Client, error) {
	keyspace := cfg.Cassandra.Keyspace
	if !keyspacePattern.MatchString(keyspace) {
		return nil, fmt.Errorf("invalid keyspace name %q", keyspace)
	}

	if migrate {
		if err := createKeyspace(ctx, cfg); err != nil {
			return nil, err
		}
	}

	cluster, err := newCluster(cfg)
	if err != nil {
		return nil, err
	}
	cluster.Keyspace = keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cassandra: %w", err)
	}

	c := &Client{session: session, keyspace: keyspace}
	if migrate {
		if err := c.Migrate(ctx); err != nil {
			session.Close()
			return nil, err
		}
	}

	logger.Info().
		Strs("hosts", cfg.Cassandra.Hosts).
		Str("keyspace", keyspace).
		Str("consistency", cluster.Consistency.String()).
		Msg("Cassandra session initialized")

	return c, nil
}

func createKeyspace(ctx context.Context, cfg *config.Config) error {
	cluster, err := newCluster(cfg)
	if err != nil {
		return err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to cassandra: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, cfg.Cassandra.Keyspace)
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace %s: %w", cfg.Cassandra.Keyspace, err)
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id uuid PRIMARY KEY,
		wallet_address text,
		display_name text,
		bio text,
		profile_photo_url text,
		roles list<text>,
		followers list<uuid>,
		created_at timestamp,
		last_login timestamp,
		invited_by uuid,
		rank text
	)`,
	`CREATE TABLE IF NOT EXISTS users_by_wallet (
		wallet_address text PRIMARY KEY,
		user_id uuid
	)`,
	`CREATE TABLE IF NOT EXISTS users_by_display_name (
		display_name text PRIMARY KEY,
		user_id uuid
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		user_id uuid,
		token text,
		expires_at timestamp,
		created_at timestamp,
		PRIMARY KEY ((user_id, token))
	)`,
}

// Migrate creates the credential tables if they are missing.
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range tables {
		if err := c.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Info().Str("keyspace", c.keyspace).Msg("Cassandra schema applied")
	return nil
}

func (c *Client) Session() *gocql.Session {
	return c.session
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec()
}

func (c *Client) Close() {
	c.session.Close()
}
