// Package membership checks channel membership through the Telegram Bot API.
package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gem-ledger/internal/circuitbreaker"
	"github.com/gem-ledger/internal/config"
	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/logging"
)

const upstreamName = "telegram"

// errUpstream marks failures that count against the circuit breaker
var errUpstream = errors.New("telegram upstream failure")

// TelegramClient calls getChatMember with a per-call timeout behind a circuit breaker.
// Outbound calls are paced to stay under the Bot API flood limit.
type TelegramClient struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	limiter *rate.Limiter
}

// chatMemberResponse is the getChatMember envelope
type chatMemberResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Result      *struct {
		Status string `json:"status"`
	} `json:"result,omitempty"`
}

// NewTelegramClient creates a client from the telegram config
func NewTelegramClient(cfg config.TelegramConfig) *TelegramClient {
	cbCfg := circuitbreaker.DefaultConfig(upstreamName)
	cbCfg.IsFailure = func(err error) bool { return errors.Is(err, errUpstream) }

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	return &TelegramClient{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.BotToken,
		timeout: cfg.Timeout,
		client:  &http.Client{},
		breaker: circuitbreaker.NewCircuitBreaker(cbCfg),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Breaker exposes the circuit breaker state for health reporting
func (c *TelegramClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// ChannelHandle turns a t.me link into the @handle getChatMember expects.
// Links without a t.me handle report false.
func ChannelHandle(link string) (string, bool) {
	link = strings.TrimSpace(link)
	idx := strings.Index(link, "t.me/")
	if idx < 0 {
		return "", false
	}
	handle := link[idx+len("t.me/"):]
	if i := strings.IndexAny(handle, "/?#"); i >= 0 {
		handle = handle[:i]
	}
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return "", false
	}
	return "@" + handle, true
}

// IsMember reports whether the user belongs to the chat.
// Any failure to get an answer is an UPSTREAM_UNAVAILABLE error.
func (c *TelegramClient) IsMember(ctx context.Context, chat string, userID int64) (bool, error) {
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"chat":   chat,
		"userId": userID,
	})

	if err := c.limiter.Wait(ctx); err != nil {
		log.WithError(err).Warn("membership check not sent")
		return false, apperrors.NewUpstreamUnavailableError(upstreamName, err)
	}

	var member bool
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		member, err = c.getChatMember(ctx, chat, userID)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("membership check failed")
		return false, apperrors.NewUpstreamUnavailableError(upstreamName, err)
	}
	return member, nil
}

func (c *TelegramClient) getChatMember(ctx context.Context, chat string, userID int64) (bool, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("chat_id", chat)
	q.Set("user_id", strconv.FormatInt(userID, 10))
	endpoint := fmt.Sprintf("%s/bot%s/getChatMember?%s", c.baseURL, c.token, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: request failed: %v", errUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: failed to read response: %v", errUpstream, err)
	}

	// Bad Request covers "user not found" and "member list is inaccessible"
	if resp.StatusCode == http.StatusBadRequest {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: HTTP %d", errUpstream, resp.StatusCode)
	}

	var parsed chatMemberResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, fmt.Errorf("%w: failed to decode response: %v", errUpstream, err)
	}
	if !parsed.OK || parsed.Result == nil {
		return false, nil
	}

	switch parsed.Result.Status {
	case "member", "administrator", "creator":
		return true, nil
	default:
		return false, nil
	}
}
