package service

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"option_go/internal/domain"
	"option_go/internal/engine"
	"option_go/internal/host"
	"option_go/internal/infra"
	"option_go/internal/token"
)

const (
	seller domain.Principal = "S"
	buyer  domain.Principal = "B"
	oracle domain.Principal = "O"
	engP   domain.Principal = "ENGINE"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type rig struct {
	host *host.Memory
	ctrl *engine.Controller
	seq  *engine.Sequencer
}

// stepClock is a clock tests move forward by hand.
type stepClock struct{ now atomic.Int64 }

func newStepClock(at int64) *stepClock {
	c := &stepClock{}
	c.now.Store(at)
	return c
}

func (c *stepClock) Now() int64   { return c.now.Load() }
func (c *stepClock) Set(at int64) { c.now.Store(at) }

// newRig runs a sequencer over a funded in-memory host.
func newRig(t *testing.T, opts ...engine.Option) *rig {
	t.Helper()
	ledger := token.NewMemoryLedger()
	require.NoError(t, ledger.Mint("XLM", seller, 10))
	require.NoError(t, ledger.Approve("XLM", seller, engP, 10))
	require.NoError(t, ledger.Mint("USDC", buyer, 10_000_000))
	require.NoError(t, ledger.Approve("USDC", buyer, engP, 10_000_000))

	h := host.NewMemory(ledger)
	opts = append([]engine.Option{engine.WithLogger(quiet), engine.WithMetrics(&infra.Metrics{})}, opts...)
	ctrl := engine.NewController(h, engP, opts...)
	seq := engine.NewSequencer(8, ctrl, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		seq.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &rig{host: h, ctrl: ctrl, seq: seq}
}

func (r *rig) offer(t *testing.T, id domain.InstanceID, variant domain.Variant, sold bool) {
	t.Helper()
	ctx := context.Background()
	inv := domain.Invocation{Caller: seller, Now: domain.Expiry - 1000}
	p := domain.CreateParams{Seller: seller, BaseToken: "XLM", QuoteToken: "USDC"}
	if variant == domain.VariantOracle {
		p.Oracle = oracle
		require.NoError(t, r.ctrl.Init(ctx, inv, id, p))
	} else {
		require.NoError(t, r.ctrl.Create(ctx, inv, id, p))
	}
	if sold {
		require.NoError(t, r.ctrl.Purchase(ctx, domain.Invocation{Caller: buyer, Now: domain.Expiry - 500}, id, buyer))
	}
}
