package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"option_go/internal/domain"
)

type mapKV map[string]string

func (m mapKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapKV) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestStore_ReadOrFail(t *testing.T) {
	ctx := context.Background()
	s := New(mapKV{}, "opt-1")

	_, err := s.Principal(ctx, KeySeller)
	require.ErrorIs(t, err, domain.ErrMissingKey)
	require.Equal(t, domain.KindInvariant, domain.KindOf(err))

	_, err = s.Bool(ctx, KeyPurchased)
	require.ErrorIs(t, err, domain.ErrMissingKey)

	_, err = s.Variant(ctx)
	require.ErrorIs(t, err, domain.ErrMissingKey)
}

func TestStore_ReadOrNone(t *testing.T) {
	ctx := context.Background()
	s := New(mapKV{}, "opt-1")

	p, ok, err := s.OptionalPrincipal(ctx, KeyBuyer)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, p.IsZero())

	price, err := s.OptionalAmount(ctx, KeyPrice)
	require.NoError(t, err)
	require.Nil(t, price)

	settled, err := s.OptionalBool(ctx, KeySettled)
	require.NoError(t, err)
	require.False(t, settled)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := mapKV{}
	s := New(kv, "opt-1")

	require.NoError(t, s.SetPrincipal(ctx, KeySeller, "S"))
	require.NoError(t, s.SetBool(ctx, KeyPurchased, true))
	require.NoError(t, s.SetAmount(ctx, KeyPrice, 600_000))
	require.NoError(t, s.SetInt(ctx, KeyPriceAt, domain.Expiry-10))
	require.NoError(t, s.SetVariant(ctx, domain.VariantOracle))

	seller, err := s.Principal(ctx, KeySeller)
	require.NoError(t, err)
	require.Equal(t, domain.Principal("S"), seller)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.InstanceID("opt-1"), snap.ID)
	require.True(t, snap.Purchased)
	require.Equal(t, domain.VariantOracle, snap.Variant)
	require.NotNil(t, snap.Price)
	require.Equal(t, domain.Amount(600_000), *snap.Price)
	require.Equal(t, domain.Expiry-10, snap.PriceAt)
	require.Equal(t, domain.LifecycleSold, snap.Lifecycle())
}

func TestStore_CorruptValues(t *testing.T) {
	ctx := context.Background()
	s := New(mapKV{KeyPurchased: "maybe", KeyPrice: "0.5", KeyVariant: "american"}, "opt-1")

	_, err := s.Bool(ctx, KeyPurchased)
	require.ErrorIs(t, err, domain.ErrCorruptValue)

	_, err = s.OptionalAmount(ctx, KeyPrice)
	require.ErrorIs(t, err, domain.ErrCorruptValue)

	_, err = s.Variant(ctx)
	require.ErrorIs(t, err, domain.ErrCorruptValue)
}
