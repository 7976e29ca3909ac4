// Package main provides a command line client for the gem ledger API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gem-ledger/internal/client"
	"github.com/gem-ledger/internal/service"
	"github.com/gem-ledger/internal/types"
)

const usage = `Usage: earnctl [flags] <command> [args]

Commands:
  init                         show account, tasks, settings and withdrawals
  tasks                        list claimable tasks
  watch <taskId>               start a task, wait out its timer and claim it
  verify                       check mandatory channel membership
  withdraw                     request a payout (-amount, -currency, -address)
  withdrawals                  list own withdrawals
  history                      list own claims and ledger events
  pending                      list pending withdrawals (admin)
  resolve <id> <status>        COMPLETED or REJECTED (admin)

Flags:
`

func main() {
	_ = godotenv.Load() // .env is optional

	var (
		baseURL    = flag.String("url", envOr("EARN_API_URL", "http://localhost:8080"), "API base URL")
		telegramID = flag.Int64("id", envInt64("EARN_TELEGRAM_ID"), "Telegram user id to act as")
		username   = flag.String("username", os.Getenv("EARN_TELEGRAM_USERNAME"), "Telegram username sent on first contact")
		amount     = flag.Int64("amount", 0, "Withdrawal amount in gems")
		currency   = flag.String("currency", "USDT", "Withdrawal currency: USDT, TRX")
		address    = flag.String("address", "", "Withdrawal destination address")
		timeout    = flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 || *telegramID <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		BaseURL:    *baseURL,
		TelegramID: *telegramID,
		Username:   *username,
		Timeout:    *timeout,
	})

	var (
		out interface{}
		err error
	)
	args := flag.Args()
	switch args[0] {
	case "init":
		out, err = c.Init(ctx)
	case "tasks":
		out, err = c.Tasks(ctx)
	case "watch":
		if len(args) != 2 {
			fatalf("watch needs a task id")
		}
		out, err = watch(ctx, c, args[1])
	case "verify":
		out, err = c.VerifyMembership(ctx)
	case "withdraw":
		out, err = c.RequestWithdrawal(ctx, service.WithdrawalRequest{
			Amount:   *amount,
			Currency: *currency,
			Address:  *address,
		})
	case "withdrawals":
		out, err = c.Withdrawals(ctx, 0)
	case "history":
		out, err = c.History(ctx, 0)
	case "pending":
		out, err = c.PendingWithdrawals(ctx)
	case "resolve":
		if len(args) != 3 {
			fatalf("resolve needs a withdrawal id and a status")
		}
		out, err = c.ResolveWithdrawal(ctx, args[1], types.WithdrawalStatus(args[2]))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatalf("%s failed: %v", args[0], err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("encode output: %v", err)
	}
}

// watch starts the task, sleeps until the server-side timer allows a claim, then claims
func watch(ctx context.Context, c *client.Client, taskID string) (interface{}, error) {
	start, err := c.StartTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "started %s, claimable at %s\n", taskID, start.ReadyAt.Format(time.RFC3339))

	timer := time.NewTimer(time.Until(start.ReadyAt))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return c.ClaimTask(ctx, taskID)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string) int64 {
	n, _ := strconv.ParseInt(os.Getenv(key), 10, 64)
	return n
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
