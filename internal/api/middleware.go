package api

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/models"
)

// Identity headers set by the trusted front end
const (
	HeaderTelegramID       = "X-Telegram-ID"
	HeaderTelegramUsername = "X-Telegram-Username"
	HeaderRequestID        = "X-Request-ID"
)

type accountKey struct{}

// accountFromContext returns the caller resolved by IdentityMiddleware
func accountFromContext(ctx context.Context) *models.Account {
	acc, _ := ctx.Value(accountKey{}).(*models.Account)
	return acc
}

// LoggingMiddleware logs HTTP requests and attaches a request-scoped logger.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)
		logger := logging.GetGlobalLogger().WithField("requestId", requestID)

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r.WithContext(logging.WithLogger(r.Context(), logger)))

		logger.WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     wrapped.statusCode,
			"durationMs": time.Since(start).Milliseconds(),
			"remoteAddr": r.RemoteAddr,
		}).Info("http request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecoveryMiddleware recovers from panics and returns 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(r.Context()).WithField("panic", rec).Error("recovered from panic")
				respondError(w, http.StatusInternalServerError, apperrors.CodeInternalError, "An internal server error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// IdentityMiddleware resolves the caller from the identity headers, creating
// the account on first contact.
func IdentityMiddleware(accounts AccountServiceInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderTelegramID))
			if raw == "" {
				respondServiceError(w, r, apperrors.NewUnauthorizedError("missing "+HeaderTelegramID+" header"))
				return
			}
			telegramID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || telegramID <= 0 {
				respondServiceError(w, r, apperrors.NewUnauthorizedError("invalid "+HeaderTelegramID+" header"))
				return
			}

			acc, err := accounts.GetOrCreate(r.Context(), telegramID, r.Header.Get(HeaderTelegramUsername))
			if err != nil {
				respondServiceError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey{}, acc)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithField("accountId", acc.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers without the ADMIN role
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := accountFromContext(r.Context())
		if acc == nil || !acc.IsAdmin() {
			respondServiceError(w, r, apperrors.NewForbiddenError("administrator role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CompressionMiddleware adds gzip compression to responses.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gz := gzip.NewWriter(w)
		defer gz.Close()

		gzw := &gzipResponseWriter{Writer: gz, ResponseWriter: w}
		next.ServeHTTP(gzw, r)
	})
}

// gzipResponseWriter wraps http.ResponseWriter with gzip compression.
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}
