package domain

// Protocol constants. Amounts are minor units of the respective token.
const (
	CollateralBase Amount = 1       // base units locked by the seller
	Strike         Amount = 500_000 // 0.50 USDC at 6 decimals
	Premium        Amount = 100_000 // 0.10 USDC
	CashDiff              = Strike - Premium

	// Expiry is 2026-01-01 00:00:00 UTC in UNIX seconds.
	Expiry int64 = 1767225600
)

// Amount is a signed quantity in a token's minor units.
type Amount int64

// Principal identifies an account or a token ledger.
type Principal string

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool {
	return p == ""
}

func (p Principal) String() string {
	return string(p)
}

// InstanceID addresses one option instance in the host.
type InstanceID string

// Variant selects the settlement protocol of an instance. It is fixed at creation.
type Variant string

const (
	VariantExercise Variant = "exercise" // buyer exercises before expiry
	VariantOracle   Variant = "oracle"   // oracle posts a price, anyone claims after expiry
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v == VariantExercise || v == VariantOracle
}

// Op names an entry point of the invocation surface.
type Op string

const (
	OpCreate      Op = "create"
	OpInit        Op = "init"
	OpPurchase    Op = "purchase_option"
	OpExercise    Op = "exercise"
	OpExpire      Op = "expire"
	OpUpdatePrice Op = "update_price"
	OpClaim       Op = "claim"
)

// Invocation carries the host-supplied caller identity and clock reading
// for one entry-point call.
type Invocation struct {
	Caller Principal
	Now    int64 // UNIX seconds
}

// CreateParams are the immutable parameters fixed at creation.
// Oracle is required for the oracle variant and ignored otherwise.
type CreateParams struct {
	Seller     Principal `validate:"required"`
	BaseToken  Principal `validate:"required"`
	QuoteToken Principal `validate:"required,nefield=BaseToken"`
	Oracle     Principal
}

// Lifecycle is the coarse state of an instance.
type Lifecycle int

const (
	LifecycleUninitialized Lifecycle = iota
	LifecycleOffered                 // collateral locked, no buyer
	LifecycleSold                    // premium paid, buyer fixed
	LifecycleSettled                 // terminal
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleUninitialized:
		return "UNINITIALIZED"
	case LifecycleOffered:
		return "OFFERED"
	case LifecycleSold:
		return "SOLD"
	case LifecycleSettled:
		return "SETTLED"
	default:
		return "UNKNOWN"
	}
}

// OptionState is a read-only snapshot of one instance.
type OptionState struct {
	ID         InstanceID `json:"id"`
	Variant    Variant    `json:"variant,omitempty"`
	Seller     Principal  `json:"seller,omitempty"`
	Buyer      Principal  `json:"buyer,omitempty"`
	Oracle     Principal  `json:"oracle,omitempty"`
	BaseToken  Principal  `json:"base_token,omitempty"`
	QuoteToken Principal  `json:"quote_token,omitempty"`
	Purchased  bool       `json:"purchased"`
	Settled    bool       `json:"settled"`
	Price      *Amount    `json:"price,omitempty"`
	PriceAt    int64      `json:"price_at,omitempty"`
}

// Lifecycle derives the lifecycle from the stored flags.
func (s OptionState) Lifecycle() Lifecycle {
	switch {
	case s.Seller.IsZero():
		return LifecycleUninitialized
	case s.Settled:
		return LifecycleSettled
	case s.Purchased:
		return LifecycleSold
	default:
		return LifecycleOffered
	}
}
