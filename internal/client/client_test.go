package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/retry"
	"github.com/gem-ledger/internal/service"
	"github.com/gem-ledger/internal/types"
)

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": types.ServiceError{Code: code, Message: code},
	})
}

func newClient(url string) *Client {
	return New(Config{BaseURL: url + "/", TelegramID: 42, Username: "alice", Retry: fastRetry()})
}

func TestInit_RetriesUntilServerAnswers(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/init", r.URL.Path)
		assert.Equal(t, "42", r.Header.Get("X-Telegram-ID"))
		assert.Equal(t, "alice", r.Header.Get("X-Telegram-Username"))
		if atomic.AddInt32(&calls, 1) < 3 {
			writeError(w, http.StatusServiceUnavailable, apperrors.CodeUpstreamUnavailable)
			return
		}
		json.NewEncoder(w).Encode(models.InitPayload{
			Account: models.AccountView{Account: &models.Account{ID: "acc-1", Username: "alice"}},
		})
	}))
	defer srv.Close()

	payload, err := newClient(srv.URL).Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acc-1", payload.Account.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInit_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestTasks_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeError(w, http.StatusTooManyRequests, apperrors.CodeRateLimitExceeded)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tasks": []*models.Task{{ID: "t1"}, {ID: "t2"}},
		})
	}))
	defer srv.Close()

	tasks, err := newClient(srv.URL).Tasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUserErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusForbidden, apperrors.CodeAccountBanned)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Tasks(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrAccountBanned)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMutationsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusServiceUnavailable, apperrors.CodeUpstreamUnavailable)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	_, err := c.ClaimTask(context.Background(), "t1")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	_, err = c.StartTask(context.Background(), "t1")
	assert.Error(t, err)
	_, err = c.RequestWithdrawal(context.Background(), service.WithdrawalRequest{Amount: 1000, Currency: "USDT", Address: "T"})
	assert.Error(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClaimTask_DecodesTypedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/t1/claim", r.URL.Path)
		writeError(w, http.StatusConflict, apperrors.CodeAlreadyClaimed)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).ClaimTask(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyClaimed))
	assert.Equal(t, http.StatusConflict, apperrors.GetHTTPStatusCode(err))
}

func TestRequestWithdrawal_SendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req service.WithdrawalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(1500), req.Amount)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Withdrawal{ID: "w1", Amount: req.Amount, Status: types.WithdrawalPending})
	}))
	defer srv.Close()

	w, err := newClient(srv.URL).RequestWithdrawal(context.Background(), service.WithdrawalRequest{Amount: 1500, Currency: "USDT", Address: "TXYZ"})
	require.NoError(t, err)
	assert.Equal(t, "w1", w.ID)
	assert.Equal(t, types.WithdrawalPending, w.Status)
}

func TestResolveWithdrawal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/withdrawals/w1/resolve", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(models.Withdrawal{ID: "w1", Status: types.WithdrawalStatus(body["status"])})
	}))
	defer srv.Close()

	w, err := newClient(srv.URL).ResolveWithdrawal(context.Background(), "w1", types.WithdrawalRejected)
	require.NoError(t, err)
	assert.Equal(t, types.WithdrawalRejected, w.Status)
}

func TestHistory_SendsLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/account/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		if atomic.AddInt32(&calls, 1) == 1 {
			writeError(w, http.StatusServiceUnavailable, apperrors.CodeUpstreamUnavailable)
			return
		}
		json.NewEncoder(w).Encode(models.AccountHistory{
			Claims: []*models.TaskClaim{{AccountID: "acc-1", TaskID: "t1", Reward: 100}},
			Events: []models.LedgerEvent{{ID: "e1", AccountID: "acc-1", Kind: types.EventTaskReward}},
		})
	}))
	defer srv.Close()

	history, err := newClient(srv.URL).History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, history.Claims, 1)
	assert.Equal(t, "t1", history.Claims[0].TaskID)
	require.Len(t, history.Events, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNonJSONClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.GetHTTPStatusCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInit_StopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, TelegramID: 42, Retry: &retry.RetryConfig{
		MaxAttempts:  10,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Init(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
