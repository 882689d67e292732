package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"option_go/internal/domain"
	"option_go/internal/event"
)

func startSequencer(t *testing.T, f *fixture, onApplied func(*event.Command, event.Result)) *Sequencer {
	t.Helper()
	seq := NewSequencer(16, f.ctrl, onApplied)
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
	return seq
}

func TestSequencerSubmit(t *testing.T) {
	f := newFixture(t)
	var applied []domain.Op
	seq := startSequencer(t, f, func(cmd *event.Command, res event.Result) {
		if res.Err == nil {
			applied = append(applied, cmd.Op)
		}
	})
	ctx := context.Background()

	cmd := event.NewCommand(domain.OpInit, optID, at(seller, domain.Expiry-100))
	cmd.Params = params(true)
	res, err := seq.Submit(ctx, cmd)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, uint64(1), res.Seq)

	cmd = event.NewCommand(domain.OpPurchase, optID, at(buyer, domain.Expiry-50))
	cmd.Buyer = buyer
	res, err = seq.Submit(ctx, cmd)
	require.NoError(t, err)
	require.NoError(t, res.Err)

	cmd = event.NewCommand(domain.OpUpdatePrice, optID, at(oracle, domain.Expiry-1))
	cmd.Price = 400_000
	res, err = seq.Submit(ctx, cmd)
	require.NoError(t, err)
	require.NoError(t, res.Err)

	res, err = seq.Submit(ctx, event.NewCommand(domain.OpExercise, optID, at(buyer, domain.Expiry-1)))
	require.NoError(t, err)
	require.ErrorIs(t, res.Err, domain.ErrWrongVariant)

	res, err = seq.Submit(ctx, event.NewCommand(domain.OpClaim, optID, at(seller, domain.Expiry+1)))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, "out_of_the_money", res.Outcome)
	require.Equal(t, uint64(5), res.Seq)

	stats := seq.Stats()
	require.Equal(t, uint64(4), stats.Applied)
	require.Equal(t, uint64(1), stats.Rejected)
	require.Equal(t, uint64(6), stats.NextSeq)
	require.Contains(t, stats.LastErr, "wrong variant")
	require.Equal(t, []domain.Op{domain.OpInit, domain.OpPurchase, domain.OpUpdatePrice, domain.OpClaim}, applied)
}

func TestSequencerUnknownOp(t *testing.T) {
	f := newFixture(t)
	seq := startSequencer(t, f, nil)

	res, err := seq.Submit(context.Background(), event.NewCommand("liquidate", optID, at(seller, 0)))
	require.NoError(t, err)
	require.ErrorIs(t, res.Err, domain.ErrInvalidParams)
}

func TestSequencerRejectsCommandWithoutReplySlot(t *testing.T) {
	f := newFixture(t)
	seq := NewSequencer(1, f.ctrl, nil)
	_, err := seq.Submit(context.Background(), &event.Command{Op: domain.OpClaim})
	require.ErrorIs(t, err, ErrNoReplySlot)
}

func TestSequencerSubmitHonorsContext(t *testing.T) {
	f := newFixture(t)
	seq := NewSequencer(0, f.ctrl, nil) // never run

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := seq.Submit(ctx, event.NewCommand(domain.OpClaim, optID, at(seller, 0)))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// Concurrent buyers race for one offer; exactly one purchase may win.
func TestSequencerSerializesConcurrentPurchases(t *testing.T) {
	f := newExercise(t)
	seq := startSequencer(t, f, nil)

	buyers := []domain.Principal{buyer, buyer2}
	results := make([]event.Result, len(buyers))
	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, b domain.Principal) {
			defer wg.Done()
			cmd := event.AcquireCommand()
			defer event.ReleaseCommand(cmd)
			cmd.Op = domain.OpPurchase
			cmd.Instance = optID
			cmd.Invocation = at(b, domain.Expiry-100)
			cmd.Buyer = b
			results[i], errs[i] = seq.Submit(context.Background(), cmd)
		}(i, b)
	}
	wg.Wait()

	wins := 0
	for i, r := range results {
		require.NoError(t, errs[i])
		if r.Err == nil {
			wins++
		} else {
			require.ErrorIs(t, r.Err, domain.ErrAlreadyPurchased)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, domain.Premium, f.bal(usdc, seller))
}

func TestSequencerDumpState(t *testing.T) {
	f := newFixture(t)
	seq := NewSequencer(1, f.ctrl, nil)
	path := filepath.Join(t.TempDir(), "dump.json")
	seq.DumpState(path)
	require.FileExists(t, path)
}

func TestSequencerStatsWhileRunning(t *testing.T) {
	f := newFixture(t)
	seq := startSequencer(t, f, nil)
	ctx := context.Background()

	stop := make(chan struct{})
	var readers sync.WaitGroup
	var lastSeen uint64
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
				lastSeen = seq.Stats().NextSeq
			}
		}
	}()

	const n = 50
	for i := 0; i < n; i++ {
		res, err := seq.Submit(ctx, event.NewCommand(domain.OpExpire, optID, at(seller, domain.Expiry+1)))
		require.NoError(t, err)
		require.ErrorIs(t, res.Err, domain.ErrNotInitialized)
	}
	close(stop)
	readers.Wait()

	require.LessOrEqual(t, lastSeen, uint64(n+1))
	stats := seq.Stats()
	require.Equal(t, uint64(n+1), stats.NextSeq)
	require.Equal(t, uint64(n), stats.Rejected)
}
