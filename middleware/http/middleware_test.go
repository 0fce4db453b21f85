package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hostware/planguard/pkg/planguard"
	"github.com/hostware/planguard/storage/memory"
)

func newTestEnforcer(t *testing.T) (*planguard.Enforcer, *memory.Storage) {
	t.Helper()

	storage := memory.New()
	enforcer, err := planguard.NewEnforcer(storage, planguard.Config{
		PlanQuotas:   map[string]int{"starter": 2},
		DefaultQuota: 1,
	})
	if err != nil {
		t.Fatalf("NewEnforcer failed: %v", err)
	}
	return enforcer, storage
}

func provision(t *testing.T, storage *memory.Storage, accountID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := storage.CreateResource(context.Background(), &planguard.Resource{
			AccountID: accountID,
			Name:      fmt.Sprintf("srv-%d", i+1),
		}); err != nil {
			t.Fatalf("CreateResource failed: %v", err)
		}
	}
}

func headerExtractor(r *http.Request) string {
	return r.Header.Get("X-Account-ID")
}

func TestMiddleware_AllowsUnderQuota(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	_ = storage.UpsertAccount(context.Background(), &planguard.Account{ID: "group-1", PlanID: "starter"})
	provision(t, storage, "group-1", 1)

	called := false
	handler := Middleware(Config{
		Enforcer:     enforcer,
		GetAccountID: headerExtractor,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/servers", http.NoBody)
	req.Header.Set("X-Account-ID", "group-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Expected handler to run")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", w.Code)
	}
}

func TestMiddleware_BlocksAtQuota(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	_ = storage.UpsertAccount(context.Background(), &planguard.Account{ID: "group-1", PlanID: "starter"})
	provision(t, storage, "group-1", 2)

	handler := Middleware(Config{
		Enforcer:     enforcer,
		GetAccountID: headerExtractor,
	})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("Handler should not run at quota")
	}))

	req := httptest.NewRequest(http.MethodPost, "/servers", http.NoBody)
	req.Header.Set("X-Account-ID", "group-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "2/2") {
		t.Errorf("Expected used/limit in body, got %q", w.Body.String())
	}
}

func TestMiddleware_UnknownAccountUsesDefaultQuota(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	provision(t, storage, "group-x", 1)

	handler := Middleware(Config{
		Enforcer:     enforcer,
		GetAccountID: headerExtractor,
	})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/servers", http.NoBody)
	req.Header.Set("X-Account-ID", "group-x")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for unknown account at default quota, got %d", w.Code)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	enforcer, _ := newTestEnforcer(t)

	handler := Middleware(Config{
		Enforcer:     enforcer,
		GetAccountID: headerExtractor,
	})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("Handler should not run without an account")
	}))

	req := httptest.NewRequest(http.MethodPost, "/servers", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestMiddleware_CustomHooks(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	_ = storage.UpsertAccount(context.Background(), &planguard.Account{ID: "group-1", PlanID: "starter"})
	provision(t, storage, "group-1", 2)

	var gotUsed, gotQuota int
	handler := Middleware(Config{
		Enforcer:     enforcer,
		GetAccountID: headerExtractor,
		OnQuotaExceeded: func(w http.ResponseWriter, _ *http.Request, used, quota int) {
			gotUsed, gotQuota = used, quota
			w.WriteHeader(http.StatusPaymentRequired)
		},
	})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/servers", http.NoBody)
	req.Header.Set("X-Account-ID", "group-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected custom status 402, got %d", w.Code)
	}
	if gotUsed != 2 || gotQuota != 2 {
		t.Errorf("Expected hook called with 2/2, got %d/%d", gotUsed, gotQuota)
	}
}

func TestHandlerFunc(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	_ = storage.UpsertAccount(context.Background(), &planguard.Account{ID: "group-1", PlanID: "starter"})

	called := false
	handler := HandlerFunc(Config{
		Enforcer:     enforcer,
		GetAccountID: headerExtractor,
	})(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/servers", http.NoBody)
	req.Header.Set("X-Account-ID", "group-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called || w.Code != http.StatusCreated {
		t.Errorf("Expected wrapped HandlerFunc to run, got %d", w.Code)
	}
}
