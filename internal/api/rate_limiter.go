package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/types"
)

// RateLimiter manages per-account rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	userLimit  rate.Limit
	adminLimit rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// NewRateLimiter creates a new rate limiter. A non-positive rate disables limiting for that role.
func NewRateLimiter(userRPS, adminRPS float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		userLimit:  limitFor(userRPS),
		adminLimit: limitFor(adminRPS),
		burstSize:  burst,
	}
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// getLimiter returns the limiter for an account, creating it on first use
func (rl *RateLimiter) getLimiter(accountID string, role types.Role) *rate.Limiter {
	key := string(role) + ":" + accountID

	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	limit := rl.userLimit
	if role == types.RoleAdmin {
		limit = rl.adminLimit
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limit, rl.burstSize)
	rl.limiters[key] = limiter

	return limiter
}

// RateLimitMiddleware enforces the per-account limit. It runs after IdentityMiddleware.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, role := r.RemoteAddr, types.RoleUser
			if acc := accountFromContext(r.Context()); acc != nil {
				key, role = acc.ID, acc.Role
			}

			limiter := rl.getLimiter(key, role)
			if !limiter.Allow() {
				respondServiceError(w, r, apperrors.NewRateLimitError(float64(limiter.Limit())))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
