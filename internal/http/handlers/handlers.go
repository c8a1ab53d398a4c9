package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/storehouse/accounts/internal/domain"
	"github.com/storehouse/accounts/internal/http/response"
	"github.com/storehouse/accounts/internal/repository"
	"github.com/storehouse/accounts/internal/service"
	"github.com/storehouse/accounts/pkg/config"
	"github.com/storehouse/accounts/pkg/logger"
)

type ctxKey string

const ctxAccount ctxKey = "account"

type Handlers struct {
	authService   service.AuthService
	rateLimitRepo repository.RateLimitRepository
	config        *config.Config
}

func New(
	authService service.AuthService,
	rateLimitRepo repository.RateLimitRepository,
	config *config.Config,
) *Handlers {
	return &Handlers{
		authService:   authService,
		rateLimitRepo: rateLimitRepo,
		config:        config,
	}
}

// RequireAuth validates the session token from the Authorization header or
// the session cookie and attaches the account to the request context.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(h.config.Auth.SessionCookieName); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			response.WriteError(w, http.StatusUnauthorized, "missing session token", response.CodeUnauthorized)
			return
		}

		account, _, err := h.authService.VerifySession(r.Context(), token)
		if err != nil {
			response.WriteDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), logger.AccountIDKey, account.ID)
		ctx = context.WithValue(ctx, ctxAccount, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole restricts a route to accounts with the given role.
func (h *Handlers) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := currentAccount(r)
			if account == nil {
				response.WriteError(w, http.StatusUnauthorized, "missing session token", response.CodeUnauthorized)
				return
			}
			if account.Role != role {
				response.WriteError(w, http.StatusForbidden, "insufficient permissions", response.CodeForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies a per-IP fixed window limit to an endpoint.
func (h *Handlers) RateLimit(prefix string, requests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := prefix + ":" + getClientIP(r)

			allowed, err := h.rateLimitRepo.CheckRateLimit(r.Context(), key, requests, window)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
				// Allow request on error (fail open)
			} else if !allowed {
				response.RateLimit(w, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Helper functions

func currentAccount(r *http.Request) *domain.Account {
	if account, ok := r.Context().Value(ctxAccount).(*domain.Account); ok {
		return account
	}
	return nil
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
