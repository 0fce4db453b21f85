// Package fiber provides Fiber middleware that guards resource
// provisioning endpoints against accounts already at their plan quota.
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hostware/planguard/pkg/planguard"
)

// AccountIDExtractor extracts the account ID from a Fiber context.
// Return empty string if the caller is not authenticated.
type AccountIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Enforcer answers capacity questions (required)
	Enforcer *planguard.Enforcer

	// GetAccountID extracts the account ID from the context (required)
	GetAccountID AccountIDExtractor

	// QuotaExceededStatusCode is the HTTP status code returned when the
	// account is at capacity. Default: 403 (Forbidden)
	QuotaExceededStatusCode int

	// OnQuotaExceeded is called when the account is at capacity.
	// If nil, returns QuotaExceededStatusCode JSON with used/limit
	OnQuotaExceeded func(c *fiber.Ctx, used, quota int) error

	// OnUnauthorized is called when no account ID could be extracted.
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that blocks provisioning for
// accounts already at their plan quota
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Enforcer == nil {
		panic("planguard/fiber: Config.Enforcer is required")
	}
	if cfg.GetAccountID == nil {
		panic("planguard/fiber: Config.GetAccountID is required")
	}
	if cfg.QuotaExceededStatusCode == 0 {
		cfg.QuotaExceededStatusCode = http.StatusForbidden
	}

	return func(c *fiber.Ctx) error {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		used, quota, err := cfg.Enforcer.Capacity(c.UserContext(), accountID)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		if used >= quota {
			if cfg.OnQuotaExceeded != nil {
				return cfg.OnQuotaExceeded(c, used, quota)
			}
			return c.Status(cfg.QuotaExceededStatusCode).JSON(fiber.Map{
				"error": "Plan quota reached",
				"used":  used,
				"limit": quota,
			})
		}

		return c.Next()
	}
}

// Convenience extractors for Account ID

// FromLocals returns an AccountIDExtractor that gets the account ID from
// Fiber locals set by upstream auth middleware.
func FromLocals(key string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the account ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// FromQuery returns an AccountIDExtractor that gets the account ID from a query parameter
func FromQuery(queryName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
