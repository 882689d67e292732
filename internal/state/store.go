// Package state is the typed view over one instance's persistent keys.
//
// Reads come in two flavours: read-or-fail for keys the state machine
// guarantees to exist (a miss is an invariant failure) and read-or-none
// for keys that are legitimately optional.
package state

import (
	"context"
	"fmt"
	"strconv"

	"option_go/internal/domain"
)

// Persisted keys.
const (
	KeySeller     = "seller"
	KeyBuyer      = "buyer"
	KeyOracle     = "oracle"
	KeyBaseToken  = "base_token"
	KeyQuoteToken = "quote_token"
	KeyPurchased  = "purchased"
	KeyPrice      = "price"
	KeyPriceAt    = "price_at"
	KeyVariant    = "variant"
	KeySettled    = "settled"
)

// Store reads and writes the keys of a single instance.
type Store struct {
	kv domain.KV
	id domain.InstanceID
}

// New scopes kv to instance id.
func New(kv domain.KV, id domain.InstanceID) *Store {
	return &Store{kv: kv, id: id}
}

// ID returns the instance the store is scoped to.
func (s *Store) ID() domain.InstanceID {
	return s.id
}

func (s *Store) require(ctx context.Context, key string) (string, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingKey, key)
	}
	return v, nil
}

// Initialized reports whether a seller has been recorded.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	_, ok, err := s.kv.Get(ctx, KeySeller)
	return ok, err
}

// Principal reads a required principal key.
func (s *Store) Principal(ctx context.Context, key string) (domain.Principal, error) {
	v, err := s.require(ctx, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrCorruptValue, key)
	}
	return domain.Principal(v), nil
}

// OptionalPrincipal reads a principal key that may be unset.
func (s *Store) OptionalPrincipal(ctx context.Context, key string) (domain.Principal, bool, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return domain.Principal(v), true, nil
}

// SetPrincipal writes a principal key.
func (s *Store) SetPrincipal(ctx context.Context, key string, p domain.Principal) error {
	return s.kv.Set(ctx, key, string(p))
}

// Bool reads a required boolean key.
func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	v, err := s.require(ctx, key)
	if err != nil {
		return false, err
	}
	return parseBool(key, v)
}

// OptionalBool reads a boolean key, returning false when unset.
func (s *Store) OptionalBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return parseBool(key, v)
}

// SetBool writes a boolean key.
func (s *Store) SetBool(ctx context.Context, key string, b bool) error {
	return s.kv.Set(ctx, key, strconv.FormatBool(b))
}

// OptionalAmount reads an amount key that may be unset.
func (s *Store) OptionalAmount(ctx context.Context, key string) (*domain.Amount, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", domain.ErrCorruptValue, key, v)
	}
	a := domain.Amount(n)
	return &a, nil
}

// SetAmount writes an amount key.
func (s *Store) SetAmount(ctx context.Context, key string, a domain.Amount) error {
	return s.kv.Set(ctx, key, strconv.FormatInt(int64(a), 10))
}

// OptionalInt reads an integer key, returning 0 when unset.
func (s *Store) OptionalInt(ctx context.Context, key string) (int64, error) {
	a, err := s.OptionalAmount(ctx, key)
	if err != nil || a == nil {
		return 0, err
	}
	return int64(*a), nil
}

// SetInt writes an integer key.
func (s *Store) SetInt(ctx context.Context, key string, n int64) error {
	return s.kv.Set(ctx, key, strconv.FormatInt(n, 10))
}

// Variant reads the settlement variant fixed at creation.
func (s *Store) Variant(ctx context.Context) (domain.Variant, error) {
	v, err := s.require(ctx, KeyVariant)
	if err != nil {
		return "", err
	}
	variant := domain.Variant(v)
	if !variant.Valid() {
		return "", fmt.Errorf("%w: %s=%q", domain.ErrCorruptValue, KeyVariant, v)
	}
	return variant, nil
}

// SetVariant writes the settlement variant.
func (s *Store) SetVariant(ctx context.Context, v domain.Variant) error {
	return s.kv.Set(ctx, KeyVariant, string(v))
}

// Snapshot reads every key into an OptionState. Missing keys are left zero,
// so Snapshot works on uninitialized instances too.
func (s *Store) Snapshot(ctx context.Context) (domain.OptionState, error) {
	st := domain.OptionState{ID: s.id}

	principals := []struct {
		key string
		dst *domain.Principal
	}{
		{KeySeller, &st.Seller},
		{KeyBuyer, &st.Buyer},
		{KeyOracle, &st.Oracle},
		{KeyBaseToken, &st.BaseToken},
		{KeyQuoteToken, &st.QuoteToken},
	}
	for _, p := range principals {
		v, _, err := s.OptionalPrincipal(ctx, p.key)
		if err != nil {
			return st, err
		}
		*p.dst = v
	}

	v, ok, err := s.kv.Get(ctx, KeyVariant)
	if err != nil {
		return st, err
	}
	if ok {
		st.Variant = domain.Variant(v)
	}

	if st.Purchased, err = s.OptionalBool(ctx, KeyPurchased); err != nil {
		return st, err
	}
	if st.Settled, err = s.OptionalBool(ctx, KeySettled); err != nil {
		return st, err
	}
	if st.Price, err = s.OptionalAmount(ctx, KeyPrice); err != nil {
		return st, err
	}
	if st.PriceAt, err = s.OptionalInt(ctx, KeyPriceAt); err != nil {
		return st, err
	}
	return st, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", domain.ErrCorruptValue, key, v)
	}
	return b, nil
}
