// Package redis provides a Redis implementation of the planguard.Storage
// interface. Accounts and subscriptions are stored as JSON strings;
// resources live in per-account sorted sets scored by a global INCR
// sequence, so creation order is recoverable by rank.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/hostware/planguard/pkg/planguard"
)

// Storage implements planguard.Storage using Redis.
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "planguard:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "planguard:",
	}
}

// New creates a new Redis storage adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "planguard:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Storage) loadScripts() {
	// createResource: allocate the next id from the sequence, store the
	// resource hash, and index it in the owner's sorted set, atomically.
	// KEYS[1] = sequence key
	// KEYS[2] = resource hash key prefix (id appended inside the script)
	// KEYS[3] = per-account sorted set key
	// ARGV[1] = account id
	// ARGV[2] = resource name
	s.scripts["createResource"] = redis.NewScript(`
		local id = redis.call('INCR', KEYS[1])
		redis.call('HSET', KEYS[2] .. id, 'account_id', ARGV[1], 'name', ARGV[2])
		redis.call('ZADD', KEYS[3], id, id)
		return id
	`)

	// deleteResource: remove the resource hash and its index entry.
	// KEYS[1] = resource hash key
	// KEYS[2] = per-account sorted set key prefix (account appended inside)
	// ARGV[1] = resource id
	s.scripts["deleteResource"] = redis.NewScript(`
		local acct = redis.call('HGET', KEYS[1], 'account_id')
		if not acct then
			return 0
		end
		redis.call('DEL', KEYS[1])
		redis.call('ZREM', KEYS[2] .. acct, ARGV[1])
		return 1
	`)

	// upsertAccount: store the account JSON and move the subscription
	// index entry if the linked subscription changed.
	// KEYS[1] = account key
	// KEYS[2] = subscription index key prefix
	// ARGV[1] = account id
	// ARGV[2] = account JSON
	// ARGV[3] = old subscription id ("" if none)
	// ARGV[4] = new subscription id ("" if none)
	s.scripts["upsertAccount"] = redis.NewScript(`
		redis.call('SET', KEYS[1], ARGV[2])
		if ARGV[3] ~= '' and ARGV[3] ~= ARGV[4] then
			redis.call('DEL', KEYS[2] .. ARGV[3])
		end
		if ARGV[4] ~= '' then
			redis.call('SET', KEYS[2] .. ARGV[4], ARGV[1])
		end
		return 1
	`)
}

// Key helpers

func (s *Storage) accountKey(accountID string) string {
	return s.config.KeyPrefix + "account:" + accountID
}

func (s *Storage) subIndexPrefix() string {
	return s.config.KeyPrefix + "subindex:"
}

func (s *Storage) subscriptionKey(subscriptionID string) string {
	return s.config.KeyPrefix + "subscription:" + subscriptionID
}

func (s *Storage) resourcePrefix() string {
	return s.config.KeyPrefix + "resource:"
}

func (s *Storage) resourceSetPrefix() string {
	return s.config.KeyPrefix + "resources:"
}

func (s *Storage) sequenceKey() string {
	return s.config.KeyPrefix + "seq:resource"
}

// GetAccount implements planguard.Storage
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*planguard.Account, error) {
	data, err := s.client.Get(ctx, s.accountKey(accountID)).Bytes()
	if err == redis.Nil {
		return nil, planguard.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	var acct planguard.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &acct, nil
}

// UpsertAccount implements planguard.Storage. The subscription index is
// kept consistent inside a Lua script so a re-link never leaves a stale
// entry behind.
func (s *Storage) UpsertAccount(ctx context.Context, acct *planguard.Account) error {
	if acct == nil || acct.ID == "" {
		return fmt.Errorf("invalid account")
	}

	oldSubID := ""
	if existing, err := s.GetAccount(ctx, acct.ID); err == nil {
		oldSubID = existing.SubscriptionID
	} else if err != planguard.ErrAccountNotFound {
		return err
	}

	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	err = s.scripts["upsertAccount"].Run(ctx, s.client,
		[]string{s.accountKey(acct.ID), s.subIndexPrefix()},
		acct.ID, string(data), oldSubID, acct.SubscriptionID,
	).Err()
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

	accountID, err := s.client.Get(ctx, s.subIndexPrefix()+subscriptionID).Result()
	if err == redis.Nil {
		return nil, planguard.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account by subscription: %w", err)
	}
	return s.GetAccount(ctx, accountID)
}

// GetSubscription implements planguard.Storage
func (s *Storage) GetSubscription(ctx context.Context, subscriptionID string) (*planguard.Subscription, error) {
	data, err := s.client.Get(ctx, s.subscriptionKey(subscriptionID)).Bytes()
	if err == redis.Nil {
		return nil, planguard.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	var sub planguard.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return &sub, nil
}

// UpsertSubscription implements planguard.Storage
func (s *Storage) UpsertSubscription(ctx context.Context, sub *planguard.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := s.client.Set(ctx, s.subscriptionKey(sub.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	return nil
}

// CreateResource implements planguard.Storage. Ids come from a global
// INCR sequence, so they increase in creation order across accounts.
func (s *Storage) CreateResource(ctx context.Context, res *planguard.Resource) (int64, error) {
	if res == nil || res.AccountID == "" {
		return 0, fmt.Errorf("invalid resource")
	}

	id, err := s.scripts["createResource"].Run(ctx, s.client,
		[]string{s.sequenceKey(), s.resourcePrefix(), s.resourceSetPrefix() + res.AccountID},
		res.AccountID, res.Name,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to create resource: %w", err)
	}
	return id, nil
}

// CountResources implements planguard.Storage
func (s *Storage) CountResources(ctx context.Context, accountID string) (int, error) {
	count, err := s.client.ZCard(ctx, s.resourceSetPrefix()+accountID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return int(count), nil
}

// ListOldestResources implements planguard.Storage
func (s *Storage) ListOldestResources(ctx context.Context, accountID string, n int) ([]*planguard.Resource, error) {
	if n <= 0 {
		return nil, nil
	}

	ids, err := s.client.ZRange(ctx, s.resourceSetPrefix()+accountID, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	resources := make([]*planguard.Resource, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt resource index entry %q: %w", raw, err)
		}

		fields, err := s.client.HGetAll(ctx, s.resourcePrefix()+raw).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load resource %d: %w", id, err)
		}
		if len(fields) == 0 {
			// Index entry without a hash, skip it.
			continue
		}
		resources = append(resources, &planguard.Resource{
			ID:        id,
			AccountID: fields["account_id"],
			Name:      fields["name"],
		})
	}
	return resources, nil
}

// DeleteResource implements planguard.Storage
func (s *Storage) DeleteResource(ctx context.Context, resourceID int64) error {
	id := strconv.FormatInt(resourceID, 10)

	deleted, err := s.scripts["deleteResource"].Run(ctx, s.client,
		[]string{s.resourcePrefix() + id, s.resourceSetPrefix()},
		id,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if deleted == 0 {
		return planguard.ErrResourceNotFound
	}
	return nil
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
