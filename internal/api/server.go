// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/service"
	"github.com/gem-ledger/internal/types"
)

// Service interfaces for dependency injection and testing

// AccountServiceInterface defines the account ledger operations the API needs
type AccountServiceInterface interface {
	GetOrCreate(ctx context.Context, telegramID int64, displayName string) (*models.Account, error)
	Get(ctx context.Context, accountID string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	SetBanned(ctx context.Context, accountID string, banned bool) (*models.Account, error)
	SetVerified(ctx context.Context, accountID string, verified bool) (*models.Account, error)
	ResetBalance(ctx context.Context, accountID string) (*models.Account, error)
	ResetProgress(ctx context.Context, accountID string) (*models.Account, error)
}

// TaskServiceInterface defines the catalog and claim operations
type TaskServiceInterface interface {
	CreateTask(ctx context.Context, input *service.CreateTaskInput) (*models.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	SetTaskApproved(ctx context.Context, taskID string, approved bool) (*models.Task, error)
	ListTasks(ctx context.Context) ([]*models.Task, error)
	ListAvailable(ctx context.Context, accountID string) ([]*models.Task, error)
	StartTask(ctx context.Context, accountID, taskID string) (*models.TaskStart, error)
	ClaimTask(ctx context.Context, accountID, taskID string) (*models.ClaimResult, error)
}

// WithdrawalServiceInterface defines the withdrawal workflow operations
type WithdrawalServiceInterface interface {
	RequestWithdrawal(ctx context.Context, accountID string, input service.WithdrawalRequest) (*models.Withdrawal, error)
	ResolveWithdrawal(ctx context.Context, withdrawalID string, outcome types.WithdrawalStatus) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error)
}

// SettingsServiceInterface defines the settings operations
type SettingsServiceInterface interface {
	Get(ctx context.Context) (*models.GlobalSettings, error)
	Update(ctx context.Context, settings *models.GlobalSettings) (*models.GlobalSettings, error)
}

// MembershipServiceInterface defines the membership gate
type MembershipServiceInterface interface {
	VerifyMembership(ctx context.Context, accountID string) (*models.VerificationResult, error)
}

// AppServiceInterface defines the client bootstrap operations
type AppServiceInterface interface {
	Init(ctx context.Context, account *models.Account) (*models.InitPayload, error)
	Sync(ctx context.Context, accountID string, input service.ProfileUpdate) (*models.AccountView, error)
}

// HistoryServiceInterface defines the read-only account history
type HistoryServiceInterface interface {
	History(ctx context.Context, accountID string, limit int) (*models.AccountHistory, error)
}

// Services bundles the services behind the API
type Services struct {
	Accounts    AccountServiceInterface
	Tasks       TaskServiceInterface
	Withdrawals WithdrawalServiceInterface
	Settings    SettingsServiceInterface
	Membership  MembershipServiceInterface
	App         AppServiceInterface
	History     HistoryServiceInterface
	// Health reports storage reachability. Optional.
	Health func(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	UserRPS         float64
	UserBurst       int
	AdminRPS        float64
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.UserRPS, s.config.AdminRPS, s.config.UserBurst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CompressionMiddleware)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	s.setupRoutes(rateLimiter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(rateLimiter *RateLimiter) {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(IdentityMiddleware(s.services.Accounts))
	api.Use(RateLimitMiddleware(rateLimiter))

	api.HandleFunc("/init", s.handleInit).Methods("GET")
	api.HandleFunc("/account/sync", s.handleSyncAccount).Methods("POST")
	api.HandleFunc("/account/history", s.handleOwnHistory).Methods("GET")

	api.HandleFunc("/tasks", s.handleListAvailableTasks).Methods("GET")
	api.HandleFunc("/tasks/{id}/start", s.handleStartTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/claim", s.handleClaimTask).Methods("POST")

	api.HandleFunc("/withdrawals", s.handleRequestWithdrawal).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleListOwnWithdrawals).Methods("GET")

	api.HandleFunc("/membership/verify", s.handleVerifyMembership).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin)

	admin.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	admin.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")

	admin.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	admin.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	admin.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods("DELETE")
	admin.HandleFunc("/tasks/{id}/approval", s.handleSetTaskApproval).Methods("PUT")

	admin.HandleFunc("/users", s.handleListUsers).Methods("GET")
	admin.HandleFunc("/users/{id}/history", s.handleUserHistory).Methods("GET")
	admin.HandleFunc("/users/{id}/ban", s.handleSetBanned).Methods("PUT")
	admin.HandleFunc("/users/{id}/verify", s.handleSetVerified).Methods("PUT")
	admin.HandleFunc("/users/{id}/reset-balance", s.handleResetBalance).Methods("POST")
	admin.HandleFunc("/users/{id}/reset-progress", s.handleResetProgress).Methods("POST")

	admin.HandleFunc("/withdrawals", s.handleListWithdrawals).Methods("GET")
	admin.HandleFunc("/withdrawals/{id}/resolve", s.handleResolveWithdrawal).Methods("POST")
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.services.Health != nil {
		if err := s.services.Health(r.Context()); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "gem-ledger",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "gem-ledger",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
