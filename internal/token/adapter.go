// Package token is the boundary between the engine and external token ledgers.
package token

import (
	"context"
	"fmt"

	"option_go/internal/domain"
	"option_go/pkg/safe"
)

// Adapter moves tokens on behalf of the engine account.
type Adapter struct {
	ledger domain.Ledger
	engine domain.Principal
}

// NewAdapter binds a ledger to the engine's principal.
func NewAdapter(ledger domain.Ledger, engine domain.Principal) *Adapter {
	return &Adapter{ledger: ledger, engine: engine}
}

// Engine returns the engine principal.
func (a *Adapter) Engine() domain.Principal {
	return a.engine
}

// Transfer pays amount of token from the engine's balance to to.
func (a *Adapter) Transfer(ctx context.Context, token, to domain.Principal, amount domain.Amount) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return a.ledger.Transfer(ctx, token, a.engine, to, amount)
}

// TransferFrom moves amount of token from owner to to using owner's allowance to the engine.
func (a *Adapter) TransferFrom(ctx context.Context, token, owner, to domain.Principal, amount domain.Amount) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return a.ledger.TransferFrom(ctx, token, a.engine, owner, to, amount)
}

type key struct {
	token domain.Principal
	owner domain.Principal
}

// Execute applies movements in order, all or nothing. Every balance and
// allowance the batch touches is checked against a simulated run before
// the first transfer is issued.
func (a *Adapter) Execute(ctx context.Context, moves []domain.Movement) error {
	if err := a.Precheck(ctx, moves); err != nil {
		return err
	}
	for i, m := range moves {
		var err error
		switch m.Kind {
		case domain.MovePull:
			err = a.TransferFrom(ctx, m.Token, m.From, m.To, m.Amount)
		case domain.MovePay:
			err = a.Transfer(ctx, m.Token, m.To, m.Amount)
		}
		if err != nil {
			return fmt.Errorf("movement %d (%s %s): %w", i, m.Kind, m.Token, err)
		}
	}
	return nil
}

// Precheck simulates moves against current balances and allowances without writing.
func (a *Adapter) Precheck(ctx context.Context, moves []domain.Movement) error {
	balances := make(map[key]domain.Amount)
	allowances := make(map[key]domain.Amount)

	balanceOf := func(k key) (domain.Amount, error) {
		if v, ok := balances[k]; ok {
			return v, nil
		}
		v, err := a.ledger.Balance(ctx, k.token, k.owner)
		if err != nil {
			return 0, err
		}
		balances[k] = v
		return v, nil
	}

	for i, m := range moves {
		if m.Amount <= 0 {
			return fmt.Errorf("movement %d: %w", i, domain.ErrInvalidAmount)
		}
		if m.Kind != domain.MovePull && m.Kind != domain.MovePay {
			return fmt.Errorf("movement %d: unknown kind %d: %w", i, m.Kind, domain.ErrInvalidAmount)
		}

		from := m.From
		if m.Kind == domain.MovePay {
			from = a.engine
		} else {
			k := key{m.Token, m.From}
			left, ok := allowances[k]
			if !ok {
				v, err := a.ledger.Allowance(ctx, m.Token, m.From, a.engine)
				if err != nil {
					return err
				}
				left = v
			}
			if left < m.Amount {
				return fmt.Errorf("movement %d: %w: %s allowance of %s is %d, need %d",
					i, domain.ErrInsufficientAllowance, m.Token, m.From, left, m.Amount)
			}
			allowances[k] = left - m.Amount
		}

		src := key{m.Token, from}
		have, err := balanceOf(src)
		if err != nil {
			return err
		}
		if have < m.Amount {
			return fmt.Errorf("movement %d: %w: %s balance of %s is %d, need %d",
				i, domain.ErrInsufficientBalance, m.Token, from, have, m.Amount)
		}
		balances[src] = have - m.Amount

		dst := key{m.Token, m.To}
		got, err := balanceOf(dst)
		if err != nil {
			return err
		}
		sum, err := safe.Add(int64(got), int64(m.Amount))
		if err != nil {
			return fmt.Errorf("movement %d: %w", i, domain.ErrOverflow)
		}
		balances[dst] = domain.Amount(sum)
	}
	return nil
}
