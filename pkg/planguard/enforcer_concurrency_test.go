package planguard_test

import (
	"context"
	"sync"
	"testing"

	"github.com/hostware/planguard/storage/memory"
)

// Duplicate webhook delivery can trigger two concurrent enforcement runs
// for the same account. Without per-account serialization both runs would
// observe the pre-deletion count and over-evict; with it, the account must
// end exactly at quota.
func TestEnforcer_ConcurrentDuplicateRuns(t *testing.T) {
	storage := memory.New()
	notifier := &recordingNotifier{}
	enforcer := newTestEnforcer(t, storage, notifier)
	ctx := context.Background()

	provisionResources(t, storage, "acct-race", 10)

	const runs = 8
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := enforcer.Enforce(ctx, "acct-race", "starter"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Enforce failed: %v", err)
	}

	count, err := storage.CountResources(ctx, "acct-race")
	if err != nil {
		t.Fatalf("CountResources failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected exactly 2 resources after concurrent runs, got %d (over-eviction)", count)
	}

	// Only the first run had excess to remove, so only one notification.
	if len(notifier.all()) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(notifier.all()))
	}
}

// Enforcement runs for different accounts do not serialize against each
// other and never touch each other's resources.
func TestEnforcer_ConcurrentDistinctAccounts(t *testing.T) {
	storage := memory.New()
	enforcer := newTestEnforcer(t, storage, &recordingNotifier{})
	ctx := context.Background()

	accounts := []string{"acct-1", "acct-2", "acct-3", "acct-4"}
	for _, acct := range accounts {
		provisionResources(t, storage, acct, 6)
	}

	var wg sync.WaitGroup
	for _, acct := range accounts {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			if _, err := enforcer.Enforce(ctx, accountID, "starter"); err != nil {
				t.Errorf("Enforce(%s) failed: %v", accountID, err)
			}
		}(acct)
	}
	wg.Wait()

	for _, acct := range accounts {
		count, _ := storage.CountResources(ctx, acct)
		if count != 2 {
			t.Errorf("Account %s: expected 2 resources, got %d", acct, count)
		}
	}
}
