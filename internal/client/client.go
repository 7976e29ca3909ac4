// Package client is a Go client for the gem ledger HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/retry"
	"github.com/gem-ledger/internal/service"
	"github.com/gem-ledger/internal/types"
)

// Config holds client settings
type Config struct {
	BaseURL    string
	TelegramID int64
	Username   string
	Timeout    time.Duration
	// Retry applies to idempotent calls only. Nil uses retry.DefaultRetryConfig.
	Retry *retry.RetryConfig
}

// Client calls the ledger API as one telegram user
type Client struct {
	baseURL    string
	telegramID int64
	username   string
	http       *http.Client
	retry      *retry.RetryConfig
}

// New creates a client
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rc := cfg.Retry
	if rc == nil {
		rc = retry.DefaultRetryConfig()
	}
	policy := *rc
	policy.ShouldRetry = Retryable

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		telegramID: cfg.TelegramID,
		username:   cfg.Username,
		http:       &http.Client{Timeout: cfg.Timeout},
		retry:      &policy,
	}
}

// Retryable reports whether a failed idempotent call may be repeated:
// transport failures, rate limiting and server-side errors.
func Retryable(err error) bool {
	return apperrors.IsRetryable(err) || apperrors.IsSystemError(err)
}

// Init loads the bootstrap payload, retrying until the server answers
func (c *Client) Init(ctx context.Context) (*models.InitPayload, error) {
	var out models.InitPayload
	if err := c.idempotent(ctx, http.MethodGet, "/api/init", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync updates the profile. Repeating the same update is harmless, so it is retried.
func (c *Client) Sync(ctx context.Context, update service.ProfileUpdate) (*models.AccountView, error) {
	var out models.AccountView
	if err := c.idempotent(ctx, http.MethodPost, "/api/account/sync", update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tasks lists the tasks the caller may still claim
func (c *Client) Tasks(ctx context.Context) ([]*models.Task, error) {
	var out struct {
		Tasks []*models.Task `json:"tasks"`
	}
	if err := c.idempotent(ctx, http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// StartTask records the dwell start. Not retried: a repeat would restart the timer.
func (c *Client) StartTask(ctx context.Context, taskID string) (*models.TaskStart, error) {
	var out models.TaskStart
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/start", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClaimTask claims the reward once
func (c *Client) ClaimTask(ctx context.Context, taskID string) (*models.ClaimResult, error) {
	var out models.ClaimResult
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/claim", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMembership asks the server to check the mandatory channels
func (c *Client) VerifyMembership(ctx context.Context) (*models.VerificationResult, error) {
	var out models.VerificationResult
	if err := c.idempotent(ctx, http.MethodPost, "/api/membership/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestWithdrawal files a payout request. Never retried since each call debits.
func (c *Client) RequestWithdrawal(ctx context.Context, req service.WithdrawalRequest) (*models.Withdrawal, error) {
	var out models.Withdrawal
	if err := c.do(ctx, http.MethodPost, "/api/withdrawals", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdrawals lists the caller's own requests, newest first
func (c *Client) Withdrawals(ctx context.Context, limit int) ([]*models.Withdrawal, error) {
	path := "/api/withdrawals"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Withdrawals []*models.Withdrawal `json:"withdrawals"`
	}
	if err := c.idempotent(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Withdrawals, nil
}

// History returns the caller's claims and ledger events, newest first
func (c *Client) History(ctx context.Context, limit int) (*models.AccountHistory, error) {
	path := "/api/account/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out models.AccountHistory
	if err := c.idempotent(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingWithdrawals lists withdrawals awaiting review. Admin only.
func (c *Client) PendingWithdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	var out struct {
		Withdrawals []*models.Withdrawal `json:"withdrawals"`
	}
	path := "/api/admin/withdrawals?status=" + string(types.WithdrawalPending)
	if err := c.idempotent(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Withdrawals, nil
}

// ResolveWithdrawal completes or rejects a pending withdrawal. Admin only.
func (c *Client) ResolveWithdrawal(ctx context.Context, withdrawalID string, outcome types.WithdrawalStatus) (*models.Withdrawal, error) {
	var out models.Withdrawal
	body := map[string]types.WithdrawalStatus{"status": outcome}
	if err := c.do(ctx, http.MethodPost, "/api/admin/withdrawals/"+url.PathEscape(withdrawalID)+"/resolve", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) idempotent(ctx context.Context, method, path string, body, out interface{}) error {
	result := retry.WithExponentialBackoff(ctx, c.retry, func(ctx context.Context, attempt int) error {
		return c.do(ctx, method, path, body, out)
	})
	if !result.Success {
		return result.LastError
	}
	return nil
}

// do performs one request. Error bodies decode back into categorized errors.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewInternalError("encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.NewInternalError("build request", err)
	}
	req.Header.Set("X-Telegram-ID", strconv.FormatInt(c.telegramID, 10))
	if c.username != "" {
		req.Header.Set("X-Telegram-Username", c.username)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewUpstreamUnavailableError("gem-ledger", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewUpstreamUnavailableError("gem-ledger", err)
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error *types.ServiceError `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == nil || envelope.Error.Code == "" {
			cause := fmt.Errorf("unexpected status %d", resp.StatusCode)
			if resp.StatusCode >= 500 {
				return apperrors.NewUpstreamUnavailableError("gem-ledger", cause)
			}
			return &apperrors.CategorizedError{
				Category:   apperrors.CategoryUserInput,
				StatusCode: resp.StatusCode,
				Code:       "UNEXPECTED_RESPONSE",
				Message:    cause.Error(),
			}
		}
		return apperrors.Categorize(envelope.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewInternalError("decode response", err)
	}
	return nil
}
