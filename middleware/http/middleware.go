// Package http provides HTTP middleware that guards resource
// provisioning endpoints: requests are rejected once the account is at
// its plan quota, before the handler creates anything.
package http

import (
	"fmt"
	"net/http"

	"github.com/hostware/planguard/pkg/planguard"
)

// AccountIDExtractor extracts the account ID from an HTTP request.
// Return empty string if the caller is not authenticated.
type AccountIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Enforcer answers capacity questions (required)
	Enforcer *planguard.Enforcer

	// GetAccountID extracts the account ID from the request (required)
	GetAccountID AccountIDExtractor

	// OnQuotaExceeded is called when the account is at capacity.
	// If nil, returns 403 Forbidden with used/limit in the body.
	OnQuotaExceeded func(w http.ResponseWriter, r *http.Request, used, quota int)

	// OnUnauthorized is called when no account ID could be extracted.
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that blocks provisioning for
// accounts already at their plan quota
func Middleware(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := config.GetAccountID(r)
			if accountID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			used, quota, err := config.Enforcer.Capacity(r.Context(), accountID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if used >= quota {
				if config.OnQuotaExceeded != nil {
					config.OnQuotaExceeded(w, r, used, quota)
				} else {
					msg := fmt.Sprintf("Plan quota reached: %d/%d resources in use", used, quota)
					http.Error(w, msg, http.StatusForbidden)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware that blocks provisioning for
// accounts already at their plan quota (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}
