package token

import (
	"context"
	"fmt"
	"sync"

	"option_go/internal/domain"
	"option_go/pkg/safe"
)

type account struct {
	token domain.Principal
	owner domain.Principal
}

type grant struct {
	token   domain.Principal
	owner   domain.Principal
	spender domain.Principal
}

// MemoryLedger is an in-process token ledger with allowance semantics.
// It backs tests and the in-memory host.
type MemoryLedger struct {
	mu         sync.RWMutex
	balances   map[account]domain.Amount
	allowances map[grant]domain.Amount
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[account]domain.Amount),
		allowances: make(map[grant]domain.Amount),
	}
}

var _ domain.Ledger = (*MemoryLedger)(nil)

// Mint credits owner with amount of token.
func (l *MemoryLedger) Mint(token, owner domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(account{token, owner}, amount)
}

// Approve sets the allowance spender may move from owner.
func (l *MemoryLedger) Approve(token, owner, spender domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[grant{token, owner, spender}] = amount
	return nil
}

// Balance returns owner's balance of token.
func (l *MemoryLedger) Balance(_ context.Context, token, owner domain.Principal) (domain.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account{token, owner}], nil
}

// Allowance returns what spender may still move from owner.
func (l *MemoryLedger) Allowance(_ context.Context, token, owner, spender domain.Principal) (domain.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[grant{token, owner, spender}], nil
}

// Transfer moves amount from from's own balance to to.
func (l *MemoryLedger) Transfer(_ context.Context, token, from, to domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(token, from, to, amount)
}

// TransferFrom moves amount from owner to to, consuming spender's allowance.
func (l *MemoryLedger) TransferFrom(_ context.Context, token, spender, owner, to domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	g := grant{token, owner, spender}
	if l.allowances[g] < amount {
		return fmt.Errorf("%w: %s allowance %s->%s is %d, need %d",
			domain.ErrInsufficientAllowance, token, owner, spender, l.allowances[g], amount)
	}
	if err := l.move(token, owner, to, amount); err != nil {
		return err
	}
	l.allowances[g] -= amount
	return nil
}

// Must be called with lock held
func (l *MemoryLedger) move(token, from, to domain.Principal, amount domain.Amount) error {
	src := account{token, from}
	if l.balances[src] < amount {
		return fmt.Errorf("%w: %s balance of %s is %d, need %d",
			domain.ErrInsufficientBalance, token, from, l.balances[src], amount)
	}
	l.balances[src] -= amount
	return l.credit(account{token, to}, amount)
}

// Must be called with lock held
func (l *MemoryLedger) credit(a account, amount domain.Amount) error {
	sum, err := safe.Add(int64(l.balances[a]), int64(amount))
	if err != nil {
		return fmt.Errorf("%w: %s balance of %s", domain.ErrOverflow, a.token, a.owner)
	}
	l.balances[a] = domain.Amount(sum)
	return nil
}

// Clone returns an independent copy.
func (l *MemoryLedger) Clone() *MemoryLedger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := NewMemoryLedger()
	for k, v := range l.balances {
		c.balances[k] = v
	}
	for k, v := range l.allowances {
		c.allowances[k] = v
	}
	return c
}

// Restore replaces l's contents with a copy of src.
func (l *MemoryLedger) Restore(src *MemoryLedger) {
	c := src.Clone()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = c.balances
	l.allowances = c.allowances
}

// Supply returns the total balance of token across all owners.
func (l *MemoryLedger) Supply(token domain.Principal) domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total domain.Amount
	for a, v := range l.balances {
		if a.token == token {
			total += v
		}
	}
	return total
}
