// Package gin provides Gin middleware that guards resource provisioning
// endpoints against accounts already at their plan quota.
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/hostware/planguard/pkg/planguard"
)

// AccountIDExtractor extracts the account ID from a Gin context.
// Return empty string if the caller is not authenticated.
type AccountIDExtractor func(c *gongin.Context) string

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
	OnQuotaExceeded func(c *gongin.Context, used, quota int)

	// OnUnauthorized is called when no account ID could be extracted.
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that blocks provisioning for
// accounts already at their plan quota
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Enforcer == nil {
		panic("planguard/gin: Config.Enforcer is required")
	}
	if cfg.GetAccountID == nil {
		panic("planguard/gin: Config.GetAccountID is required")
	}
	if cfg.QuotaExceededStatusCode == 0 {
		cfg.QuotaExceededStatusCode = http.StatusForbidden
	}

	return func(c *gongin.Context) {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		used, quota, err := cfg.Enforcer.Capacity(c.Request.Context(), accountID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}

		if used >= quota {
			if cfg.OnQuotaExceeded != nil {
				cfg.OnQuotaExceeded(c, used, quota)
			} else {
				c.JSON(cfg.QuotaExceededStatusCode, gongin.H{
					"error": "Plan quota reached",
					"used":  used,
					"limit": quota,
				})
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// Convenience extractors for Account ID

// FromContext returns an AccountIDExtractor that gets the account ID from
// Gin context values set by upstream auth middleware.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("AccountID", accountID)
//
//	// In guard middleware config:
//	GetAccountID: gin.FromContext("AccountID")
func FromContext(key string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the account ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the account ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns an AccountIDExtractor that gets the account ID from a query parameter
func FromQuery(queryName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
