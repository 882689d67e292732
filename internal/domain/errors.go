package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable discriminator surfaced with every rejected transition.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrecondition
	KindAuthorization
	KindExternal
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindAuthorization:
		return "authorization"
	case KindExternal:
		return "external"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

var (
	// Precondition: state machine violations.
	ErrNotInitialized     = errors.New("not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrAlreadyPurchased   = errors.New("already purchased")
	ErrNotPurchased       = errors.New("not purchased")
	ErrWrongCaller        = errors.New("wrong caller")
	ErrExpired            = errors.New("expired")
	ErrNotExpired         = errors.New("not yet expired")
	ErrSettled            = errors.New("already settled")
	ErrWrongVariant       = errors.New("operation not supported by this variant")
	ErrNoPrice            = errors.New("no settlement price posted")
	ErrOracleWindow       = errors.New("price update outside oracle window")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidParams      = errors.New("invalid parameters")

	// Authorization: caller is not the required principal.
	ErrUnauthorized = errors.New("unauthorized")

	// External: token ledger rejections.
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")

	// Invariant: corrupted or inconsistent state.
	ErrMissingKey   = errors.New("missing state key")
	ErrCorruptValue = errors.New("corrupt state value")
	ErrOverflow     = errors.New("amount overflow")
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotInitialized, KindPrecondition},
	{ErrAlreadyInitialized, KindPrecondition},
	{ErrAlreadyPurchased, KindPrecondition},
	{ErrNotPurchased, KindPrecondition},
	{ErrWrongCaller, KindPrecondition},
	{ErrExpired, KindPrecondition},
	{ErrNotExpired, KindPrecondition},
	{ErrSettled, KindPrecondition},
	{ErrWrongVariant, KindPrecondition},
	{ErrNoPrice, KindPrecondition},
	{ErrOracleWindow, KindPrecondition},
	{ErrInvalidPrice, KindPrecondition},
	{ErrInvalidParams, KindPrecondition},
	{ErrUnauthorized, KindAuthorization},
	{ErrInsufficientBalance, KindExternal},
	{ErrInsufficientAllowance, KindExternal},
	{ErrInvalidAmount, KindExternal},
	{ErrMissingKey, KindInvariant},
	{ErrCorruptValue, KindInvariant},
	{ErrOverflow, KindInvariant},
}

// OptionError is returned by every entry point that aborts a transition.
type OptionError struct {
	Kind     Kind
	Op       Op
	Instance InstanceID
	Err      error
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Instance, e.Kind, e.Err)
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

// NewOptionError classifies err and wraps it. Errors that match no sentinel
// are treated as invariant failures: the host or storage misbehaved.
func NewOptionError(op Op, id InstanceID, err error) *OptionError {
	var oe *OptionError
	if errors.As(err, &oe) {
		return oe
	}
	kind := classify(err)
	if kind == KindUnknown {
		kind = KindInvariant
	}
	return &OptionError{Kind: kind, Op: op, Instance: id, Err: err}
}

// KindOf returns the discriminating kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var oe *OptionError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a price feed failure that may be retriable
type NetworkError struct {
	Op        string // "connect", "read", "subscribe"
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrConfigNotFound is returned when configuration file is missing
var ErrConfigNotFound = errors.New("configuration not found")
