package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"option_go/internal/domain"
	"option_go/internal/token"
)

func TestMemory_CommitOnSuccess(t *testing.T) {
	ctx := context.Background()
	ledger := token.NewMemoryLedger()
	require.NoError(t, ledger.Mint("XLM", "S", 1))
	h := NewMemory(ledger)

	err := h.Transact(ctx, func(tx domain.Tx) error {
		if err := tx.State("opt-1").Set(ctx, "seller", "S"); err != nil {
			return err
		}
		if err := tx.Ledger().Transfer(ctx, "XLM", "S", "ENGINE", 1); err != nil {
			return err
		}
		return tx.Journal(ctx, &domain.JournalEntry{Instance: "opt-1", Op: string(domain.OpCreate)})
	})
	require.NoError(t, err)

	bal, _ := h.Ledger().Balance(ctx, "XLM", "ENGINE")
	require.Equal(t, domain.Amount(1), bal)

	journal := h.Journal()
	require.Len(t, journal, 1)
	require.Equal(t, uint64(1), journal[0].Seq)

	err = h.Transact(ctx, func(tx domain.Tx) error {
		v, ok, err := tx.State("opt-1").Get(ctx, "seller")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "S", v)
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	ledger := token.NewMemoryLedger()
	require.NoError(t, ledger.Mint("XLM", "S", 1))
	h := NewMemory(ledger)
	boom := errors.New("boom")

	err := h.Transact(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.State("opt-1").Set(ctx, "seller", "S"))
		require.NoError(t, tx.Ledger().Transfer(ctx, "XLM", "S", "ENGINE", 1))
		require.NoError(t, tx.Journal(ctx, &domain.JournalEntry{Instance: "opt-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, _ := h.Ledger().Balance(ctx, "XLM", "S")
	require.Equal(t, domain.Amount(1), bal)
	require.Empty(t, h.Journal())

	err = h.Transact(ctx, func(tx domain.Tx) error {
		_, ok, err := tx.State("opt-1").Get(ctx, "seller")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_RollbackOnPanic(t *testing.T) {
	ctx := context.Background()
	h := NewMemory(nil)

	require.Panics(t, func() {
		_ = h.Transact(ctx, func(tx domain.Tx) error {
			_ = tx.State("opt-1").Set(ctx, "seller", "S")
			panic("halt")
		})
	})

	// The lock was released and nothing was committed.
	err := h.Transact(ctx, func(tx domain.Tx) error {
		_, ok, _ := tx.State("opt-1").Get(ctx, "seller")
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}
