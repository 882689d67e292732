package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"option_go/internal/domain"
	"option_go/internal/event"
)

// ErrNoReplySlot is returned when a command was not built with event.NewCommand or event.AcquireCommand.
var ErrNoReplySlot = errors.New("command has no reply slot")

// Sequencer is the single-threaded command processor. It gives every
// transition in the process a total order, whatever goroutine submitted it.
type Sequencer struct {
	inbox   chan *event.Command
	ctrl    *Controller
	nextSeq uint64

	// Boundary: used to notify the keeper, CLI, or tests of applied commands
	onApplied func(*event.Command, event.Result)

	mu       sync.RWMutex // Guards counters against external reads (Stats)
	applied  uint64
	rejected uint64
	lastErr  string
}

// SequencerStats is a point-in-time view of the sequencer.
type SequencerStats struct {
	NextSeq  uint64 `json:"next_seq"`
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
	LastErr  string `json:"last_error,omitempty"`
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, ctrl *Controller, onApplied func(*event.Command, event.Result)) *Sequencer {
	return &Sequencer{
		inbox:     make(chan *event.Command, inboxSize),
		ctrl:      ctrl,
		nextSeq:   1,
		onApplied: onApplied,
	}
}

// Inbox returns the command channel for fire-and-forget producers.
func (s *Sequencer) Inbox() chan<- *event.Command {
	return s.inbox
}

// Submit enqueues cmd and waits for its result. A nil error means the
// command was processed; the transition's own error is in Result.Err.
func (s *Sequencer) Submit(ctx context.Context, cmd *event.Command) (event.Result, error) {
	if cmd.Done() == nil {
		return event.Result{}, ErrNoReplySlot
	}
	select {
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	case s.inbox <- cmd:
	}
	select {
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	case res := <-cmd.Done():
		return res, nil
	}
}

// Run starts the main command loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started (single-threaded transitions)")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			// A transition panicked mid-flight; halt rather than keep serving.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case cmd := <-s.inbox:
			s.processCommand(ctx, cmd)
		}
	}
}

func (s *Sequencer) processCommand(ctx context.Context, cmd *event.Command) {
	s.mu.Lock()
	cmd.Seq = s.nextSeq
	s.nextSeq++
	s.mu.Unlock()

	res := event.Result{Seq: cmd.Seq}
	switch cmd.Op {
	case domain.OpCreate:
		res.Err = s.ctrl.Create(ctx, cmd.Invocation, cmd.Instance, cmd.Params)
	case domain.OpInit:
		res.Err = s.ctrl.Init(ctx, cmd.Invocation, cmd.Instance, cmd.Params)
	case domain.OpPurchase:
		res.Err = s.ctrl.Purchase(ctx, cmd.Invocation, cmd.Instance, cmd.Buyer)
	case domain.OpExercise:
		res.Err = s.ctrl.Exercise(ctx, cmd.Invocation, cmd.Instance)
	case domain.OpExpire:
		res.Err = s.ctrl.Expire(ctx, cmd.Invocation, cmd.Instance)
	case domain.OpUpdatePrice:
		res.Err = s.ctrl.UpdatePrice(ctx, cmd.Invocation, cmd.Instance, cmd.Price)
	case domain.OpClaim:
		outcome, err := s.ctrl.Claim(ctx, cmd.Invocation, cmd.Instance)
		res.Outcome, res.Err = string(outcome), err
	default:
		slog.Warn("Unknown command", slog.String("op", string(cmd.Op)))
		res.Err = domain.NewOptionError(cmd.Op, cmd.Instance, fmt.Errorf("%w: unknown op", domain.ErrInvalidParams))
	}

	s.mu.Lock()
	if res.Err != nil {
		s.rejected++
		s.lastErr = res.Err.Error()
	} else {
		s.applied++
	}
	s.mu.Unlock()

	if s.onApplied != nil {
		s.onApplied(cmd, res)
	}
	cmd.Reply(res)
}

// Stats returns a snapshot of the sequencer counters (external read).
func (s *Sequencer) Stats() SequencerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SequencerStats{
		NextSeq:  s.nextSeq,
		Applied:  s.applied,
		Rejected: s.rejected,
		LastErr:  s.lastErr,
	}
}

// DumpState writes the sequencer counters to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	b, err := json.MarshalIndent(s.Stats(), "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
