// Package memory provides an in-memory implementation of the
// planguard.Storage interface. This implementation is primarily intended
// for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hostware/planguard/pkg/planguard"
)

// Storage implements planguard.Storage using in-memory maps.
type Storage struct {
	mu            sync.RWMutex
	accounts      map[string]*planguard.Account
	subscriptions map[string]*planguard.Subscription
	resources     map[int64]*planguard.Resource
	nextResource  int64
}

// New creates a new in-memory storage adapter.
func New() *Storage {
	return &Storage{
		accounts:      make(map[string]*planguard.Account),
		subscriptions: make(map[string]*planguard.Subscription),
		resources:     make(map[int64]*planguard.Resource),
	}
}

// GetAccount implements planguard.Storage.
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*planguard.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, planguard.ErrAccountNotFound
	}

	// Return a copy to prevent external mutations
	acctCopy := *acct
	return &acctCopy, nil
}

// UpsertAccount implements planguard.Storage.
func (s *Storage) UpsertAccount(ctx context.Context, acct *planguard.Account) error {
	if acct == nil || acct.ID == "" {
		return fmt.Errorf("invalid account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acctCopy := *acct
	s.accounts[acct.ID] = &acctCopy
	return nil
}

// AccountBySubscription implements planguard.Storage.
func (s *Storage) AccountBySubscription(ctx context.Context, subscriptionID string) (*planguard.Account, error) {
	if subscriptionID == "" {
		return nil, planguard.ErrAccountNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acct := range s.accounts {
		if acct.SubscriptionID == subscriptionID {
			acctCopy := *acct
			return &acctCopy, nil
		}
	}
	return nil, planguard.ErrAccountNotFound
}

// GetSubscription implements planguard.Storage.
func (s *Storage) GetSubscription(ctx context.Context, subscriptionID string) (*planguard.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return nil, planguard.ErrSubscriptionNotFound
	}

	subCopy := *sub
	return &subCopy, nil
}

// UpsertSubscription implements planguard.Storage.
func (s *Storage) UpsertSubscription(ctx context.Context, sub *planguard.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subCopy := *sub
	s.subscriptions[sub.ID] = &subCopy
	return nil
}

// CreateResource implements planguard.Storage. Assigned ids increase
// monotonically in creation order.
func (s *Storage) CreateResource(ctx context.Context, res *planguard.Resource) (int64, error) {
	if res == nil || res.AccountID == "" {
		return 0, fmt.Errorf("invalid resource")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextResource++
	resCopy := *res
	resCopy.ID = s.nextResource
	s.resources[resCopy.ID] = &resCopy
	return resCopy.ID, nil
}

// CountResources implements planguard.Storage.
func (s *Storage) CountResources(ctx context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, res := range s.resources {
		if res.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

// ListOldestResources implements planguard.Storage. Results are ordered by
// ascending resource id.
func (s *Storage) ListOldestResources(ctx context.Context, accountID string, n int) ([]*planguard.Resource, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*planguard.Resource
	for _, res := range s.resources {
		if res.AccountID == accountID {
			resCopy := *res
			owned = append(owned, &resCopy)
		}
	}

	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	if len(owned) > n {
		owned = owned[:n]
	}
	return owned, nil
}

// DeleteResource implements planguard.Storage.
func (s *Storage) DeleteResource(ctx context.Context, resourceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[resourceID]; !ok {
		return planguard.ErrResourceNotFound
	}
	delete(s.resources, resourceID)
	return nil
}

// Clear removes all data (useful for testing).
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*planguard.Account)
	s.subscriptions = make(map[string]*planguard.Subscription)
	s.resources = make(map[int64]*planguard.Resource)
	s.nextResource = 0
}
