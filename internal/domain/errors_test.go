package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestOptionError(t *testing.T) {
	t.Run("classifies sentinel", func(t *testing.T) {
		err := NewOptionError(OpPurchase, "opt-1", ErrAlreadyPurchased)

		if err.Kind != KindPrecondition {
			t.Errorf("Kind = %s, want precondition", err.Kind)
		}
		if !errors.Is(err, ErrAlreadyPurchased) {
			t.Error("Expected error to wrap ErrAlreadyPurchased")
		}
		want := "purchase_option [opt-1]: precondition: already purchased"
		if err.Error() != want {
			t.Errorf("Error message = %q, want %q", err.Error(), want)
		}
	})

	t.Run("classifies wrapped sentinel", func(t *testing.T) {
		wrapped := fmt.Errorf("usdc: %w", ErrInsufficientAllowance)
		if KindOf(NewOptionError(OpPurchase, "opt-1", wrapped)) != KindExternal {
			t.Error("Expected external kind for allowance failure")
		}
	})

	t.Run("unknown errors are invariant failures", func(t *testing.T) {
		err := NewOptionError(OpClaim, "opt-1", errors.New("disk on fire"))
		if err.Kind != KindInvariant {
			t.Errorf("Kind = %s, want invariant", err.Kind)
		}
	})

	t.Run("does not double wrap", func(t *testing.T) {
		inner := NewOptionError(OpUpdatePrice, "opt-1", ErrUnauthorized)
		outer := NewOptionError(OpClaim, "opt-2", fmt.Errorf("tx: %w", inner))
		if outer != inner {
			t.Error("Expected the inner OptionError to be returned")
		}
	})
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{ErrUnauthorized, KindAuthorization},
		{ErrWrongCaller, KindPrecondition},
		{ErrSettled, KindPrecondition},
		{ErrInsufficientBalance, KindExternal},
		{ErrMissingKey, KindInvariant},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}
		if err.Error() != "connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "connect: connection refused")
		}
		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		if !IsRetriable(NewNetworkError("dial", baseErr)) {
			t.Error("IsRetriable should return true for retriable error")
		}
		if IsRetriable(NewFatalNetworkError("auth", baseErr)) {
			t.Error("IsRetriable should return false for fatal error")
		}
		if IsRetriable(errors.New("plain error")) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "engine.principal", Err: errors.New("missing value")}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [engine.principal]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}
