// Package postgres provides a PostgreSQL implementation of the
// planguard.Storage interface. Resource ids come from a BIGSERIAL
// column, so creation order is recoverable by ordering on the id.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostware/planguard/pkg/planguard"
)

// Storage implements planguard.Storage using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist. Intended for small
// deployments; larger ones should run the equivalent DDL through their
// migration tooling.
func (s *Storage) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id      TEXT PRIMARY KEY,
			subscription_id TEXT NOT NULL DEFAULT '',
			plan_id         TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS accounts_subscription_idx
			ON accounts (subscription_id)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			subscription_id TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL DEFAULT '',
			status_kind     TEXT NOT NULL,
			status          TEXT NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			resource_id BIGSERIAL PRIMARY KEY,
			account_id  TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS resources_account_idx
			ON resources (account_id, resource_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// GetAccount implements planguard.Storage
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*planguard.Account, error) {
	var acct planguard.Account

	err := s.pool.QueryRow(ctx,
		`SELECT account_id, subscription_id, plan_id
			FROM accounts WHERE account_id = $1`,
		accountID).Scan(&acct.ID, &acct.SubscriptionID, &acct.PlanID)

	if err == pgx.ErrNoRows {
		return nil, planguard.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// UpsertAccount implements planguard.Storage
func (s *Storage) UpsertAccount(ctx context.Context, acct *planguard.Account) error {
	if acct == nil || acct.ID == "" {
		return fmt.Errorf("invalid account")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (account_id, subscription_id, plan_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (account_id) DO UPDATE SET
				subscription_id = EXCLUDED.subscription_id,
				plan_id = EXCLUDED.plan_id`,
		acct.ID, acct.SubscriptionID, acct.PlanID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// AccountBySubscription implements planguard.Storage
func (s *Storage) AccountBySubscription(ctx context.Context, subscriptionID string) (*planguard.Account, error) {
	if subscriptionID == "" {
		return nil, planguard.ErrAccountNotFound
	}

	var acct planguard.Account
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, subscription_id, plan_id
			FROM accounts WHERE subscription_id = $1
			LIMIT 1`,
		subscriptionID).Scan(&acct.ID, &acct.SubscriptionID, &acct.PlanID)

	if err == pgx.ErrNoRows {
		return nil, planguard.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account by subscription: %w", err)
	}
	return &acct, nil
}

// GetSubscription implements planguard.Storage
func (s *Storage) GetSubscription(ctx context.Context, subscriptionID string) (*planguard.Subscription, error) {
	var sub planguard.Subscription
	var kind string

	err := s.pool.QueryRow(ctx,
		`SELECT subscription_id, account_id, status_kind, status, updated_at
			FROM subscriptions WHERE subscription_id = $1`,
		subscriptionID).Scan(&sub.ID, &sub.AccountID, &kind, &sub.Status.Value, &sub.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, planguard.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub.Status.Kind = planguard.StatusKind(kind)
	return &sub, nil
}

// UpsertSubscription implements planguard.Storage
func (s *Storage) UpsertSubscription(ctx context.Context, sub *planguard.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (subscription_id, account_id, status_kind, status, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (subscription_id) DO UPDATE SET
				account_id = EXCLUDED.account_id,
				status_kind = EXCLUDED.status_kind,
				status = EXCLUDED.status,
				updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.AccountID, string(sub.Status.Kind), sub.Status.Value, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// CreateResource implements planguard.Storage. The assigned id is the
// BIGSERIAL value, so ids increase in creation order.
func (s *Storage) CreateResource(ctx context.Context, res *planguard.Resource) (int64, error) {
	if res == nil || res.AccountID == "" {
		return 0, fmt.Errorf("invalid resource")
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO resources (account_id, name)
			VALUES ($1, $2)
			RETURNING resource_id`,
		res.AccountID, res.Name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create resource: %w", err)
	}
	return id, nil
}

// CountResources implements planguard.Storage
func (s *Storage) CountResources(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM resources WHERE account_id = $1`,
		accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return count, nil
}

// ListOldestResources implements planguard.Storage
func (s *Storage) ListOldestResources(ctx context.Context, accountID string, n int) ([]*planguard.Resource, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT resource_id, account_id, name
			FROM resources
			WHERE account_id = $1
			ORDER BY resource_id ASC
			LIMIT $2`,
		accountID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []*planguard.Resource
	for rows.Next() {
		var res planguard.Resource
		if err := rows.Scan(&res.ID, &res.AccountID, &res.Name); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// DeleteResource implements planguard.Storage
func (s *Storage) DeleteResource(ctx context.Context, resourceID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM resources WHERE resource_id = $1`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return planguard.ErrResourceNotFound
	}
	return nil
}
