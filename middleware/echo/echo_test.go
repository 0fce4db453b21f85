package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

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

func newApp(enforcer *planguard.Enforcer) *echo.Echo {
	e := echo.New()
	e.POST("/servers", func(c echo.Context) error {
		return c.String(http.StatusCreated, "created")
	}, Middleware(Config{
		Enforcer:     enforcer,
		GetAccountID: FromHeader("X-Account-ID"),
	}))
	return e
}

func post(app *echo.Echo, accountID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/servers", http.NoBody)
	if accountID != "" {
		req.Header.Set("X-Account-ID", accountID)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func TestMiddleware_AllowsUnderQuota(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	_ = storage.UpsertAccount(context.Background(), &planguard.Account{ID: "group-1", PlanID: "starter"})
	provision(t, storage, "group-1", 1)

	w := post(newApp(enforcer), "group-1")
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", w.Code)
	}
}

func TestMiddleware_BlocksAtQuota(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	_ = storage.UpsertAccount(context.Background(), &planguard.Account{ID: "group-1", PlanID: "starter"})
	provision(t, storage, "group-1", 2)

	w := post(newApp(enforcer), "group-1")
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if body["used"] != float64(2) || body["limit"] != float64(2) {
		t.Errorf("Expected used/limit 2/2, got %v", body)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	enforcer, _ := newTestEnforcer(t)

	w := post(newApp(enforcer), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestMiddleware_CustomQuotaExceededHook(t *testing.T) {
	enforcer, storage := newTestEnforcer(t)
	_ = storage.UpsertAccount(context.Background(), &planguard.Account{ID: "group-1", PlanID: "starter"})
	provision(t, storage, "group-1", 2)

	e := echo.New()
	e.POST("/servers", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, Middleware(Config{
		Enforcer:     enforcer,
		GetAccountID: FromHeader("X-Account-ID"),
		OnQuotaExceeded: func(c echo.Context, used, quota int) error {
			return c.String(http.StatusPaymentRequired, fmt.Sprintf("%d/%d", used, quota))
		},
	}))

	w := post(e, "group-1")
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected custom status 402, got %d", w.Code)
	}
	if w.Body.String() != "2/2" {
		t.Errorf("Expected custom body, got %q", w.Body.String())
	}
}

func TestMiddleware_PanicsWithoutEnforcer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing Enforcer")
		}
	}()
	Middleware(Config{GetAccountID: FromHeader("X-Account-ID")})
}
