package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gem-ledger/internal/audit"
	"github.com/gem-ledger/internal/config"
	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/service"
	"github.com/gem-ledger/internal/storage/memstore"
)

const adminID = 1001

// stubChecker answers membership from a set of joined chats
type stubChecker struct {
	mu     sync.Mutex
	joined map[string]bool
	err    error
}

func (c *stubChecker) IsMember(_ context.Context, chat string, _ int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.joined[chat], nil
}

// failingSettings always fails with an unclassified error
type failingSettings struct{}

func (failingSettings) Get(context.Context) (*models.GlobalSettings, error) {
	return nil, errors.New("connection reset by peer")
}

func (failingSettings) Update(context.Context, *models.GlobalSettings) (*models.GlobalSettings, error) {
	return nil, errors.New("connection reset by peer")
}

type testEnv struct {
	handler http.Handler
	checker *stubChecker
	ledger  *service.LedgerService
}

func newTestEnv(t *testing.T, cfg *ServerConfig, override func(*Services)) *testEnv {
	t.Helper()

	store := memstore.New()
	checker := &stubChecker{joined: make(map[string]bool)}

	settings := service.NewSettingsService(store.Settings(), nil)
	sink := &audit.MemorySink{}
	ledger := service.NewLedgerService(store, store.Accounts(), settings, sink, config.AdminConfig{TelegramIDs: []int64{adminID}})
	tasks := service.NewTaskService(store, store.Tasks(), store.Claims(), memstore.NewTaskStartStore(0), ledger, service.DefaultXPDivisor, 0)
	withdrawals := service.NewWithdrawalService(store, store.Withdrawals(), ledger)

	services := Services{
		Accounts:    ledger,
		Tasks:       tasks,
		Withdrawals: withdrawals,
		Settings:    settings,
		Membership:  service.NewMembershipService(checker, ledger, settings),
		App:         service.NewAppService(ledger, settings, tasks, withdrawals),
		History:     service.NewHistoryService(ledger, store.Claims(), sink),
	}
	if override != nil {
		override(&services)
	}
	if cfg == nil {
		cfg = &ServerConfig{Host: "localhost", Port: "0"}
	}

	return &testEnv{
		handler: NewServer(cfg, services).Handler(),
		checker: checker,
		ledger:  ledger,
	}
}

// do sends a request as the given telegram user. A zero id sends no identity.
func (e *testEnv) do(t *testing.T, method, path string, telegramID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if telegramID != 0 {
		req.Header.Set(HeaderTelegramID, strconv.FormatInt(telegramID, 10))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, code, resp.Error.Code)
	return resp
}

// verified creates the account and marks it verified through the admin API
func (e *testEnv) verified(t *testing.T, telegramID int64) *models.Account {
	t.Helper()
	acc, err := e.ledger.GetOrCreate(context.Background(), telegramID, "")
	require.NoError(t, err)
	rec := e.do(t, http.MethodPut, "/api/admin/users/"+acc.ID+"/verify", adminID, map[string]bool{"verified": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return acc
}

func (e *testEnv) createTask(t *testing.T, reward int64, timer int) *models.Task {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/admin/tasks", adminID, map[string]interface{}{
		"type":   "youtube",
		"title":  "Watch the launch video",
		"url":    "https://youtube.com/watch?v=abc",
		"reward": reward,
		"timer":  timer,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.Task](t, rec)
}

// earn pays the account reward gems through a zero-timer task
func (e *testEnv) earn(t *testing.T, telegramID int64, reward int64) {
	t.Helper()
	task := e.createTask(t, reward, 0)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/start", telegramID, nil).Code)
	rec := e.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/claim", telegramID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])

	unhealthy := newTestEnv(t, nil, func(s *Services) {
		s.Health = func(context.Context) error { return errors.New("postgres down") }
	})
	rec = unhealthy.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode[map[string]string](t, rec)["status"])
}

func TestIdentityMiddleware(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	t.Run("missing header", func(t *testing.T) {
		assertError(t, env.do(t, http.MethodGet, "/api/init", 0, nil), http.StatusUnauthorized, apperrors.CodeUnauthorized)
	})

	for _, raw := range []string{"abc", "-5", "0"} {
		t.Run("invalid "+raw, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/init", nil)
			req.Header.Set(HeaderTelegramID, raw)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			assertError(t, rec, http.StatusUnauthorized, apperrors.CodeUnauthorized)
		})
	}

	t.Run("first contact uses the supplied username", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/init", nil)
		req.Header.Set(HeaderTelegramID, "77")
		req.Header.Set(HeaderTelegramUsername, "alice")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", decode[models.InitPayload](t, rec).Account.Username)
	})
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))

	rec = env.do(t, http.MethodGet, "/health", 0, nil)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestInit(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/api/init", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode[models.InitPayload](t, rec)
	assert.Equal(t, "User_42", payload.Account.Username)
	assert.Equal(t, int64(0), payload.Account.Balance)
	assert.Equal(t, 1, payload.Account.Level)
	assert.Len(t, payload.Settings.Channels, 5)
	assert.Nil(t, payload.Accounts)

	rec = env.do(t, http.MethodGet, "/api/init", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decode[models.InitPayload](t, rec)
	assert.True(t, payload.Account.IsAdmin())
	assert.Len(t, payload.Accounts, 2)
}

func TestSyncAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/account/sync", 42, map[string]string{
		"username":      "bob",
		"walletAddress": " TXYZ ",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[models.AccountView](t, rec)
	assert.Equal(t, "bob", view.Username)
	assert.Equal(t, "TXYZ", view.WalletAddress)
	assert.Equal(t, int64(500), view.NextLevelXP)

	assertError(t, env.do(t, http.MethodPost, "/api/account/sync", 42, `{"balance": 100000}`),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
	assertError(t, env.do(t, http.MethodPost, "/api/account/sync", 42, `{"username": "  "}`),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/settings"},
		{http.MethodPut, "/api/admin/settings"},
		{http.MethodGet, "/api/admin/tasks"},
		{http.MethodPost, "/api/admin/tasks"},
		{http.MethodDelete, "/api/admin/tasks/t1"},
		{http.MethodGet, "/api/admin/users"},
		{http.MethodPost, "/api/admin/users/u1/reset-balance"},
		{http.MethodGet, "/api/admin/withdrawals"},
		{http.MethodPost, "/api/admin/withdrawals/w1/resolve"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			assertError(t, env.do(t, rt.method, rt.path, 42, nil), http.StatusForbidden, apperrors.CodeForbidden)
		})
	}
}

func TestTaskFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.verified(t, 42)
	task := env.createTask(t, 100, 0)

	rec := env.do(t, http.MethodGet, "/api/tasks", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]*models.Task](t, rec)["tasks"], 1)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/start", 42, nil).Code)
	rec = env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/claim", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.ClaimResult](t, rec)
	assert.Equal(t, int64(100), result.Balance)
	assert.Equal(t, int64(50), result.XPGained)

	assertError(t, env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/claim", 42, nil),
		http.StatusConflict, apperrors.CodeAlreadyClaimed)

	rec = env.do(t, http.MethodGet, "/api/tasks", 42, nil)
	assert.Empty(t, decode[map[string][]*models.Task](t, rec)["tasks"])

	acc, err := env.ledger.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Balance)
}

func TestClaimTooEarlySetsRetryAfter(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.verified(t, 42)
	task := env.createTask(t, 100, 60)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/start", 42, nil).Code)
	rec := env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/claim", 42, nil)
	assertError(t, rec, http.StatusTooEarly, apperrors.CodeTooEarly)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestClaimRequiresMembership(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	task := env.createTask(t, 100, 0)

	assertError(t, env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/start", 42, nil),
		http.StatusForbidden, apperrors.CodeMembershipRequired)
}

func TestBannedAccountCannotEarn(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.verified(t, 42)
	task := env.createTask(t, 100, 0)

	rec := env.do(t, http.MethodPut, "/api/admin/users/"+user.ID+"/ban", adminID, map[string]bool{"banned": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.Account](t, rec).IsBanned)

	assertError(t, env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/start", 42, nil),
		http.StatusForbidden, apperrors.CodeAccountBanned)
}

func TestAccountHistory(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.verified(t, 42)
	env.earn(t, 42, 100)
	env.earn(t, 42, 200)

	rec := env.do(t, http.MethodGet, "/api/account/history", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	history := decode[models.AccountHistory](t, rec)
	assert.Len(t, history.Claims, 2)
	require.Len(t, history.Events, 2)
	assert.Equal(t, int64(200), history.Events[0].BalanceDelta)

	rec = env.do(t, http.MethodGet, "/api/account/history?limit=1", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[models.AccountHistory](t, rec).Events, 1)

	// banned accounts keep read access
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/admin/users/"+user.ID+"/ban", adminID, map[string]bool{"banned": true}).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/account/history", 42, nil).Code)

	rec = env.do(t, http.MethodGet, "/api/admin/users/"+user.ID+"/history", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[models.AccountHistory](t, rec).Claims, 2)

	assertError(t, env.do(t, http.MethodGet, "/api/admin/users/"+user.ID+"/history", 42, nil),
		http.StatusForbidden, apperrors.CodeForbidden)
	assertError(t, env.do(t, http.MethodGet, "/api/admin/users/missing/history", adminID, nil),
		http.StatusNotFound, apperrors.CodeNotFound)
	assertError(t, env.do(t, http.MethodGet, "/api/account/history?limit=-1", 42, nil),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
}

func TestAdminBoolBodiesAreRequired(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.verified(t, 42)
	task := env.createTask(t, 100, 0)

	assertError(t, env.do(t, http.MethodPut, "/api/admin/users/"+user.ID+"/ban", adminID, `{}`),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
	assertError(t, env.do(t, http.MethodPut, "/api/admin/users/"+user.ID+"/verify", adminID, `{}`),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
	assertError(t, env.do(t, http.MethodPut, "/api/admin/tasks/"+task.ID+"/approval", adminID, `{}`),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
	assertError(t, env.do(t, http.MethodPut, "/api/admin/users/missing/ban", adminID, map[string]bool{"banned": true}),
		http.StatusNotFound, apperrors.CodeNotFound)
}

func TestAdminTaskManagement(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.verified(t, 42)
	task := env.createTask(t, 100, 30)

	assertError(t, env.do(t, http.MethodPost, "/api/admin/tasks", adminID, map[string]interface{}{
		"type": "TIKTOK", "title": "x", "url": "https://x", "reward": 1, "timer": 1,
	}), http.StatusBadRequest, apperrors.CodeInvalidParameter)

	rec := env.do(t, http.MethodPut, "/api/admin/tasks/"+task.ID+"/approval", adminID, map[string]bool{"approved": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Task](t, rec).Approved)

	rec = env.do(t, http.MethodGet, "/api/tasks", 42, nil)
	assert.Empty(t, decode[map[string][]*models.Task](t, rec)["tasks"])
	rec = env.do(t, http.MethodGet, "/api/admin/tasks", adminID, nil)
	assert.Len(t, decode[map[string][]*models.Task](t, rec)["tasks"], 1)

	rec = env.do(t, http.MethodDelete, "/api/admin/tasks/"+task.ID, adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, rec)["deleted"])

	assertError(t, env.do(t, http.MethodDelete, "/api/admin/tasks/"+task.ID, adminID, nil),
		http.StatusNotFound, apperrors.CodeNotFound)
}

func TestWithdrawalFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.verified(t, 42)
	env.earn(t, 42, 2000)

	assertError(t, env.do(t, http.MethodPost, "/api/withdrawals", 42, map[string]interface{}{
		"amount": 100, "currency": "TRX", "address": "TXYZ",
	}), http.StatusUnprocessableEntity, apperrors.CodeBelowMinimum)

	assertError(t, env.do(t, http.MethodPost, "/api/withdrawals", 42, map[string]interface{}{
		"amount": 5000, "currency": "USDT", "address": "TXYZ",
	}), http.StatusUnprocessableEntity, apperrors.CodeInsufficientFunds)

	assertError(t, env.do(t, http.MethodPost, "/api/withdrawals", 42, map[string]interface{}{
		"amount": 1500, "currency": "USDT", "address": "  ",
	}), http.StatusBadRequest, apperrors.CodeInvalidAddress)

	rec := env.do(t, http.MethodPost, "/api/withdrawals", 42, map[string]interface{}{
		"amount": 1500, "currency": "usdt", "address": "TXYZ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	w := decode[models.Withdrawal](t, rec)
	assert.Equal(t, "PENDING", string(w.Status))

	rec = env.do(t, http.MethodGet, "/api/withdrawals", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]*models.Withdrawal](t, rec)["withdrawals"], 1)

	rec = env.do(t, http.MethodGet, "/api/admin/withdrawals?status=pending", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]*models.Withdrawal](t, rec)["withdrawals"], 1)

	assertError(t, env.do(t, http.MethodGet, "/api/admin/withdrawals?status=LOST", adminID, nil),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
	assertError(t, env.do(t, http.MethodPost, "/api/admin/withdrawals/"+w.ID+"/resolve", adminID, map[string]string{"status": "PENDING"}),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)

	rec = env.do(t, http.MethodPost, "/api/admin/withdrawals/"+w.ID+"/resolve", adminID, map[string]string{"status": "REJECTED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "REJECTED", string(decode[models.Withdrawal](t, rec).Status))

	acc, err := env.ledger.Get(context.Background(), user.ID)
	require.NoError(t, err)
	// 2000 reward plus the level 2 bonus of 50, with the 1500 debit refunded
	assert.Equal(t, int64(2050), acc.Balance)

	assertError(t, env.do(t, http.MethodPost, "/api/admin/withdrawals/"+w.ID+"/resolve", adminID, map[string]string{"status": "COMPLETED"}),
		http.StatusConflict, apperrors.CodeAlreadyResolved)
}

func TestVerifyMembership(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.checker.joined["@earnbot_news"] = true
	env.checker.joined["@alpha_crypto"] = true

	rec := env.do(t, http.MethodPost, "/api/membership/verify", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.VerificationResult](t, rec)
	assert.False(t, result.Verified)
	assert.Len(t, result.Missing, 3)

	for _, chat := range []string{"@task_updates", "@payment_proofs", "@community"} {
		env.checker.joined[chat] = true
	}
	rec = env.do(t, http.MethodPost, "/api/membership/verify", 42, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.VerificationResult](t, rec).Verified)

	rec = env.do(t, http.MethodGet, "/api/init", 42, nil)
	assert.True(t, decode[models.InitPayload](t, rec).Account.IsVerified)
}

func TestVerifyMembershipUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.checker.err = apperrors.NewUpstreamUnavailableError("telegram", errors.New("dial tcp: timeout"))

	resp := assertError(t, env.do(t, http.MethodPost, "/api/membership/verify", 42, nil),
		http.StatusServiceUnavailable, apperrors.CodeUpstreamUnavailable)
	assert.Equal(t, "telegram", resp.Error.Details["upstream"])
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/api/admin/settings", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decode[models.GlobalSettings](t, rec)
	settings.MinWithdrawalTRX = 250
	settings.Channels = settings.Channels[:1]

	rec = env.do(t, http.MethodPut, "/api/admin/settings", adminID, settings)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.GlobalSettings](t, rec)
	assert.Equal(t, int64(250), updated.MinWithdrawalTRX)
	assert.Len(t, updated.Channels, 1)

	settings.Levels = []models.LevelRequirement{{Level: 1, XPNeeded: 10}}
	resp := assertError(t, env.do(t, http.MethodPut, "/api/admin/settings", adminID, settings),
		http.StatusBadRequest, apperrors.CodeInvalidSettings)
	assert.Equal(t, "levels[0]", resp.Error.Details["field"])
}

func TestAdminAccountManagement(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.verified(t, 42)
	env.earn(t, 42, 1200)

	rec := env.do(t, http.MethodGet, "/api/admin/users?limit=1&offset=0", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string]json.RawMessage](t, rec), 3)

	assertError(t, env.do(t, http.MethodGet, "/api/admin/users?limit=-1", adminID, nil),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)

	rec = env.do(t, http.MethodPost, "/api/admin/users/"+user.ID+"/reset-balance", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acc := decode[models.Account](t, rec)
	assert.Equal(t, int64(0), acc.Balance)
	assert.Equal(t, 2, acc.Level)

	rec = env.do(t, http.MethodPost, "/api/admin/users/"+user.ID+"/reset-progress", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acc = decode[models.Account](t, rec)
	assert.Equal(t, int64(0), acc.XP)
	assert.Equal(t, 1, acc.Level)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &ServerConfig{Host: "localhost", Port: "0", UserRPS: 0.001, UserBurst: 2}, nil)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tasks", 42, nil).Code)
	}
	assertError(t, env.do(t, http.MethodGet, "/api/tasks", 42, nil), http.StatusTooManyRequests, apperrors.CodeRateLimitExceeded)

	// limits are per account
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tasks", 43, nil).Code)
	// admins have their own, unlimited tier here
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/admin/tasks", adminID, nil).Code)
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	env := newTestEnv(t, nil, func(s *Services) { s.Settings = failingSettings{} })

	resp := assertError(t, env.do(t, http.MethodGet, "/api/admin/settings", adminID, nil),
		http.StatusInternalServerError, apperrors.CodeInternalError)
	assert.NotContains(t, resp.Error.Message, "connection reset")
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.verified(t, 42)

	assertError(t, env.do(t, http.MethodPost, "/api/withdrawals", 42, `{"amount": "lots"`),
		http.StatusBadRequest, apperrors.CodeInvalidParameter)
}

func TestUnknownRoutes(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	assertError(t, env.do(t, http.MethodGet, "/nope", 0, nil), http.StatusNotFound, "NOT_FOUND")
	assertError(t, env.do(t, http.MethodDelete, "/health", 0, nil), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
}

func TestCompression(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/init", nil)
	req.Header.Set(HeaderTelegramID, "42")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	var payload models.InitPayload
	require.NoError(t, json.NewDecoder(gz).Decode(&payload))
	assert.Equal(t, "User_42", payload.Account.Username)
}

func TestConcurrentClaimsOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.verified(t, 42)
	task := env.createTask(t, 100, 0)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/start", 42, nil).Code)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := env.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/claim", 42, nil)
			mu.Lock()
			codes[rec.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, codes[http.StatusOK])
	assert.Equal(t, 9, codes[http.StatusConflict])

	acc, err := env.ledger.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Balance)
}
