// Package echo provides Echo middleware that guards resource
// provisioning endpoints against accounts already at their plan quota.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hostware/planguard/pkg/planguard"
)

// AccountIDExtractor extracts the account ID from an Echo context.
// Return empty string if the caller is not authenticated.
type AccountIDExtractor func(c echo.Context) string

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
	OnQuotaExceeded func(c echo.Context, used, quota int) error

	// OnUnauthorized is called when no account ID could be extracted.
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that blocks provisioning for
// accounts already at their plan quota
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Enforcer == nil {
		panic("planguard/echo: Config.Enforcer is required")
	}
	if cfg.GetAccountID == nil {
		panic("planguard/echo: Config.GetAccountID is required")
	}
	if cfg.QuotaExceededStatusCode == 0 {
		cfg.QuotaExceededStatusCode = http.StatusForbidden
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID := cfg.GetAccountID(c)
			if accountID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			used, quota, err := cfg.Enforcer.Capacity(c.Request().Context(), accountID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			if used >= quota {
				if cfg.OnQuotaExceeded != nil {
					return cfg.OnQuotaExceeded(c, used, quota)
				}
				return c.JSON(cfg.QuotaExceededStatusCode, map[string]interface{}{
					"error": "Plan quota reached",
					"used":  used,
					"limit": quota,
				})
			}

			return next(c)
		}
	}
}

// Convenience extractors for Account ID

// FromContext returns an AccountIDExtractor that gets the account ID from
// Echo context values set by upstream auth middleware.
func FromContext(key string) AccountIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the account ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns an AccountIDExtractor that gets the account ID from a query parameter
func FromQuery(queryName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
