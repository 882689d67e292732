package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"option_go/internal/domain"
	"option_go/internal/event"
	"option_go/internal/infra"
)

func initBootstrap(t *testing.T, keeper bool, extra ...string) *Bootstrap {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
engine:
  principal: ENGINE
storage:
  db_path: %s
keeper:
  enabled: %t
  principal: KEEPER
  poll_interval_sec: 1
logging:
  level: error
  dir: %s
`, filepath.Join(dir, "option.db"), keeper, filepath.Join(dir, "logs"))
	for _, e := range extra {
		body += e
	}
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	b := NewBootstrap()
	b.Metrics = &infra.Metrics{}
	require.NoError(t, b.Initialize(path))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestInitialize(t *testing.T) {
	b := initBootstrap(t, false)
	require.Equal(t, domain.Principal("ENGINE"), b.Controller.Engine())
	require.NotNil(t, b.Sequencer)
	require.FileExists(t, filepath.Join(filepath.Dir(b.Config.Logging.Dir), "option.db"))
}

func TestInitializeMissingConfig(t *testing.T) {
	err := NewBootstrap().Initialize(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestServeSettlesExpiredOffers(t *testing.T) {
	b := initBootstrap(t, true)
	ctx := context.Background()
	require.NoError(t, b.Storage.Mint(ctx, "XLM", "S", 1))
	require.NoError(t, b.Storage.Approve(ctx, "XLM", "S", "ENGINE", 1))
	require.NoError(t, b.Controller.Create(ctx, domain.Invocation{Caller: "S", Now: domain.Expiry - 1}, "opt-1",
		domain.CreateParams{Seller: "S", BaseToken: "XLM", QuoteToken: "USDC"}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.Serve(runCtx, domain.FixedClock(domain.Expiry+1)) }()

	require.Eventually(t, func() bool {
		st, err := b.Controller.State(ctx, "opt-1")
		return err == nil && st.Settled
	}, 5*time.Second, 20*time.Millisecond)

	// The sequencer is live for other submitters too.
	res, err := b.Sequencer.Submit(ctx, event.NewCommand(domain.OpExpire, "opt-1", domain.Invocation{Caller: "X", Now: domain.Expiry + 2}))
	require.NoError(t, err)
	require.ErrorIs(t, res.Err, domain.ErrSettled)

	cancel()
	require.NoError(t, <-done)

	bal, err := b.Storage.Balance(ctx, "XLM", "S")
	require.NoError(t, err)
	require.Equal(t, domain.Amount(1), bal)
}

func TestServePostsPolledOraclePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"market":"USDC-XLM","trade_price":"0.61"}]`))
	}))
	defer srv.Close()

	b := initBootstrap(t, false, fmt.Sprintf(`
oracle:
  principal: O
  poll_url: %s
  poll_interval_sec: 1
  symbol: XLM
  decimals: 6
  instances: [opt-b]
`, srv.URL))
	ctx := context.Background()
	require.NoError(t, b.Storage.Mint(ctx, "XLM", "S", 1))
	require.NoError(t, b.Storage.Approve(ctx, "XLM", "S", "ENGINE", 1))
	require.NoError(t, b.Controller.Init(ctx, domain.Invocation{Caller: "S", Now: domain.Expiry - 100}, "opt-b",
		domain.CreateParams{Seller: "S", BaseToken: "XLM", QuoteToken: "USDC", Oracle: "O"}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.Serve(runCtx, domain.FixedClock(domain.Expiry-10)) }()

	require.Eventually(t, func() bool {
		st, err := b.Controller.State(ctx, "opt-b")
		return err == nil && st.Price != nil && *st.Price == 610_000
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.GreaterOrEqual(t, b.Metrics.Snapshot().PricesPosted, uint64(1))
}

type movingClock struct{ now atomic.Int64 }

func (c *movingClock) Now() int64 { return c.now.Load() }

func TestServePostsSteadyPriceOnceWindowOpens(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Write([]byte(`[{"market":"USDC-XLM","trade_price":"0.61"}]`))
	}))
	defer srv.Close()

	b := initBootstrap(t, false, fmt.Sprintf(`
oracle:
  principal: O
  window_seconds: 100
  poll_url: %s
  poll_interval_sec: 1
  symbol: XLM
  decimals: 6
  instances: [opt-b]
`, srv.URL))
	ctx := context.Background()
	require.NoError(t, b.Storage.Mint(ctx, "XLM", "S", 1))
	require.NoError(t, b.Storage.Approve(ctx, "XLM", "S", "ENGINE", 1))
	require.NoError(t, b.Controller.Init(ctx, domain.Invocation{Caller: "S", Now: domain.Expiry - 2000}, "opt-b",
		domain.CreateParams{Seller: "S", BaseToken: "XLM", QuoteToken: "USDC", Oracle: "O"}))

	clock := &movingClock{}
	clock.now.Store(domain.Expiry - 1000)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.Serve(runCtx, clock) }()

	require.Eventually(t, func() bool { return polls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	st, err := b.Controller.State(ctx, "opt-b")
	require.NoError(t, err)
	require.Nil(t, st.Price, "window still closed")

	clock.now.Store(domain.Expiry - 50)
	require.Eventually(t, func() bool {
		st, err := b.Controller.State(ctx, "opt-b")
		return err == nil && st.Price != nil && *st.Price == 610_000
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
