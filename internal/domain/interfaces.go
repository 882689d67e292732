package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// KV is the persistent key/value view of one instance.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Ledger is the external token API consumed by the engine.
// Amounts are non-negative; failures abort the enclosing transition.
type Ledger interface {
	Transfer(ctx context.Context, token, from, to Principal, amount Amount) error
	TransferFrom(ctx context.Context, token, spender, owner, to Principal, amount Amount) error
	Balance(ctx context.Context, token, owner Principal) (Amount, error)
	Allowance(ctx context.Context, token, owner, spender Principal) (Amount, error)
}

// Tx is the transactional envelope of a single transition.
type Tx interface {
	State(id InstanceID) KV
	Ledger() Ledger
	Journal(ctx context.Context, entry *JournalEntry) error
}

// Host runs fn atomically: either every write inside fn is committed or none.
type Host interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// Clock supplies UNIX seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock always returns the same instant. Used by tests and dry runs.
type FixedClock int64

func (c FixedClock) Now() int64 { return int64(c) }

// PriceTick is a reference price delivered by a feed.
type PriceTick struct {
	Symbol string
	Price  decimal.Decimal
	Ts     int64 // UNIX milliseconds
}

// PriceFeed defines the interface for streaming reference price sources
type PriceFeed interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}
