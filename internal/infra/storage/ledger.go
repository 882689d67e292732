package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"option_go/internal/domain"
	"option_go/pkg/safe"
)

// sqlLedger is the token sandbox ledger scoped to one transaction.
type sqlLedger struct {
	db *gorm.DB
}

var _ domain.Ledger = (*sqlLedger)(nil)

func (l *sqlLedger) Balance(ctx context.Context, token, owner domain.Principal) (domain.Amount, error) {
	var row domain.TokenBalance
	err := l.db.WithContext(ctx).
		Where("token = ? AND owner = ?", string(token), string(owner)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read balance %s/%s", token, owner)
	}
	return domain.Amount(row.Amount), nil
}

func (l *sqlLedger) Allowance(ctx context.Context, token, owner, spender domain.Principal) (domain.Amount, error) {
	var row domain.TokenAllowance
	err := l.db.WithContext(ctx).
		Where("token = ? AND owner = ? AND spender = ?", string(token), string(owner), string(spender)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read allowance %s/%s/%s", token, owner, spender)
	}
	return domain.Amount(row.Amount), nil
}

func (l *sqlLedger) setBalance(ctx context.Context, token, owner domain.Principal, amount domain.Amount) error {
	row := domain.TokenBalance{Token: string(token), Owner: string(owner), Amount: int64(amount), UpdatedAt: time.Now()}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrapf(err, "write balance %s/%s", token, owner)
}

func (l *sqlLedger) setAllowance(ctx context.Context, token, owner, spender domain.Principal, amount domain.Amount) error {
	row := domain.TokenAllowance{Token: string(token), Owner: string(owner), Spender: string(spender), Amount: int64(amount), UpdatedAt: time.Now()}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "owner"}, {Name: "spender"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrapf(err, "write allowance %s/%s/%s", token, owner, spender)
}

func (l *sqlLedger) credit(ctx context.Context, token, owner domain.Principal, amount domain.Amount) error {
	have, err := l.Balance(ctx, token, owner)
	if err != nil {
		return err
	}
	sum, err := safe.Add(int64(have), int64(amount))
	if err != nil {
		return fmt.Errorf("%w: %s balance of %s", domain.ErrOverflow, token, owner)
	}
	return l.setBalance(ctx, token, owner, domain.Amount(sum))
}

func (l *sqlLedger) Transfer(ctx context.Context, token, from, to domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	have, err := l.Balance(ctx, token, from)
	if err != nil {
		return err
	}
	if have < amount {
		return fmt.Errorf("%w: %s balance of %s is %d, need %d",
			domain.ErrInsufficientBalance, token, from, have, amount)
	}
	if err := l.setBalance(ctx, token, from, have-amount); err != nil {
		return err
	}
	return l.credit(ctx, token, to, amount)
}

func (l *sqlLedger) TransferFrom(ctx context.Context, token, spender, owner, to domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	left, err := l.Allowance(ctx, token, owner, spender)
	if err != nil {
		return err
	}
	if left < amount {
		return fmt.Errorf("%w: %s allowance %s->%s is %d, need %d",
			domain.ErrInsufficientAllowance, token, owner, spender, left, amount)
	}
	if err := l.Transfer(ctx, token, owner, to, amount); err != nil {
		return err
	}
	return l.setAllowance(ctx, token, owner, spender, left-amount)
}

// ======================================================================================
// Sandbox operations
// ======================================================================================

// Mint credits owner with amount of token.
func (s *Storage) Mint(ctx context.Context, token, owner domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return (&sqlLedger{db: tx}).credit(ctx, token, owner, amount)
	})
}

// Approve sets the allowance spender may move from owner.
func (s *Storage) Approve(ctx context.Context, token, owner, spender domain.Principal, amount domain.Amount) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	return (&sqlLedger{db: s.db}).setAllowance(ctx, token, owner, spender, amount)
}

// Balance returns owner's committed balance of token.
func (s *Storage) Balance(ctx context.Context, token, owner domain.Principal) (domain.Amount, error) {
	return (&sqlLedger{db: s.db}).Balance(ctx, token, owner)
}

// Allowance returns what spender may still move from owner.
func (s *Storage) Allowance(ctx context.Context, token, owner, spender domain.Principal) (domain.Amount, error) {
	return (&sqlLedger{db: s.db}).Allowance(ctx, token, owner, spender)
}
