package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"option_go/internal/domain"
	"option_go/internal/infra"
	"option_go/internal/settlement"
	"option_go/internal/state"
	"option_go/internal/token"
)

// Controller enforces the option state machine. Every entry point runs as a
// single host transaction: authorization and state checks first, then state
// writes, then the token movements planned by the settlement package.
type Controller struct {
	host         domain.Host
	engine       domain.Principal
	oracleWindow int64
	validate     *validator.Validate
	logger       *slog.Logger
	metrics      *infra.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithOracleWindow restricts update_price to the last window seconds before expiry.
// Zero accepts updates at any time.
func WithOracleWindow(window int64) Option {
	return func(c *Controller) { c.oracleWindow = window }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics sets the metrics sink. Defaults to infra.GlobalMetrics.
func WithMetrics(m *infra.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a controller acting as the engine account.
func NewController(host domain.Host, engine domain.Principal, opts ...Option) *Controller {
	c := &Controller{
		host:     host,
		engine:   engine,
		validate: validator.New(),
		logger:   slog.Default(),
		metrics:  infra.GlobalMetrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine returns the principal that holds collateral.
func (c *Controller) Engine() domain.Principal {
	return c.engine
}

// txn is the per-transition working set.
type txn struct {
	st     *state.Store
	tokens *token.Adapter
	tx     domain.Tx
}

type result struct {
	outcome   settlement.Outcome
	movements []domain.Movement
}

func (c *Controller) run(ctx context.Context, op domain.Op, inv domain.Invocation, id domain.InstanceID,
	fn func(ctx context.Context, t *txn) (result, error)) (settlement.Outcome, error) {
	start := time.Now()

	var res result
	err := c.host.Transact(ctx, func(tx domain.Tx) error {
		t := &txn{
			st:     state.New(tx.State(id), id),
			tokens: token.NewAdapter(tx.Ledger(), c.engine),
			tx:     tx,
		}
		var err error
		if res, err = fn(ctx, t); err != nil {
			return err
		}
		if err := t.tokens.Execute(ctx, res.movements); err != nil {
			return err
		}
		moves, err := json.Marshal(res.movements)
		if err != nil {
			return err
		}
		return tx.Journal(ctx, &domain.JournalEntry{
			Instance:  string(id),
			Op:        string(op),
			Caller:    string(inv.Caller),
			At:        inv.Now,
			Outcome:   string(res.outcome),
			Movements: string(moves),
		})
	})
	if err != nil {
		oe := domain.NewOptionError(op, id, err)
		c.metrics.RecordRejection(oe.Kind)
		c.logger.WarnContext(ctx, "transition rejected",
			slog.String("op", string(op)),
			slog.String("instance", string(id)),
			slog.String("caller", string(inv.Caller)),
			slog.String("kind", oe.Kind.String()),
			slog.Any("error", oe.Err))
		return settlement.OutcomeNone, oe
	}

	c.metrics.RecordTransition(time.Since(start).Nanoseconds())
	if res.outcome != settlement.OutcomeNone {
		c.metrics.RecordOutcome(string(res.outcome))
	}
	if op == domain.OpUpdatePrice {
		c.metrics.RecordPricePosted()
	}
	c.logger.InfoContext(ctx, "transition applied",
		slog.String("op", string(op)),
		slog.String("instance", string(id)),
		slog.String("caller", string(inv.Caller)),
		slog.Int("movements", len(res.movements)),
		slog.String("outcome", string(res.outcome)))
	return res.outcome, nil
}

// Create offers a buyer-exercised option and locks the seller's collateral.
func (c *Controller) Create(ctx context.Context, inv domain.Invocation, id domain.InstanceID, p domain.CreateParams) error {
	_, err := c.run(ctx, domain.OpCreate, inv, id, func(ctx context.Context, t *txn) (result, error) {
		return c.create(ctx, t, inv, domain.VariantExercise, p)
	})
	return err
}

// Init offers an oracle-settled option and locks the seller's collateral.
func (c *Controller) Init(ctx context.Context, inv domain.Invocation, id domain.InstanceID, p domain.CreateParams) error {
	_, err := c.run(ctx, domain.OpInit, inv, id, func(ctx context.Context, t *txn) (result, error) {
		if p.Oracle.IsZero() {
			return result{}, fmt.Errorf("%w: oracle is required", domain.ErrInvalidParams)
		}
		return c.create(ctx, t, inv, domain.VariantOracle, p)
	})
	return err
}

func (c *Controller) create(ctx context.Context, t *txn, inv domain.Invocation, variant domain.Variant, p domain.CreateParams) (result, error) {
	if err := c.validate.Struct(p); err != nil {
		return result{}, fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}
	if p.Seller == c.engine {
		return result{}, fmt.Errorf("%w: seller cannot be the engine", domain.ErrInvalidParams)
	}

	initialized, err := t.st.Initialized(ctx)
	if err != nil {
		return result{}, err
	}
	if initialized {
		return result{}, domain.ErrAlreadyInitialized
	}
	if inv.Caller != p.Seller {
		return result{}, fmt.Errorf("%w: caller %s is not the seller", domain.ErrUnauthorized, inv.Caller)
	}

	writes := []struct {
		key string
		val domain.Principal
	}{
		{state.KeySeller, p.Seller},
		{state.KeyBaseToken, p.BaseToken},
		{state.KeyQuoteToken, p.QuoteToken},
	}
	if variant == domain.VariantOracle {
		writes = append(writes, struct {
			key string
			val domain.Principal
		}{state.KeyOracle, p.Oracle})
	}
	for _, w := range writes {
		if err := t.st.SetPrincipal(ctx, w.key, w.val); err != nil {
			return result{}, err
		}
	}
	if err := t.st.SetVariant(ctx, variant); err != nil {
		return result{}, err
	}
	if err := t.st.SetBool(ctx, state.KeyPurchased, false); err != nil {
		return result{}, err
	}

	plan := settlement.LockCollateral(settlement.Parties{
		Engine:    c.engine,
		Seller:    p.Seller,
		BaseToken: p.BaseToken,
	})
	return result{movements: plan.Movements}, nil
}

// open loads the facts every post-creation transition needs and rejects
// uninitialized, settled, and wrong-variant instances. A zero want accepts
// both variants.
func (c *Controller) open(ctx context.Context, t *txn, want domain.Variant) (settlement.Parties, domain.Variant, error) {
	var p settlement.Parties
	initialized, err := t.st.Initialized(ctx)
	if err != nil {
		return p, "", err
	}
	if !initialized {
		return p, "", domain.ErrNotInitialized
	}
	variant, err := t.st.Variant(ctx)
	if err != nil {
		return p, "", err
	}
	if want != "" && variant != want {
		return p, "", fmt.Errorf("%w: instance is %s", domain.ErrWrongVariant, variant)
	}
	settled, err := t.st.OptionalBool(ctx, state.KeySettled)
	if err != nil {
		return p, "", err
	}
	if settled {
		return p, "", domain.ErrSettled
	}

	p.Engine = c.engine
	if p.Seller, err = t.st.Principal(ctx, state.KeySeller); err != nil {
		return p, "", err
	}
	if p.BaseToken, err = t.st.Principal(ctx, state.KeyBaseToken); err != nil {
		return p, "", err
	}
	if p.QuoteToken, err = t.st.Principal(ctx, state.KeyQuoteToken); err != nil {
		return p, "", err
	}
	return p, variant, nil
}

// Purchase pays the premium from buyer to seller and fixes the buyer.
func (c *Controller) Purchase(ctx context.Context, inv domain.Invocation, id domain.InstanceID, buyer domain.Principal) error {
	_, err := c.run(ctx, domain.OpPurchase, inv, id, func(ctx context.Context, t *txn) (result, error) {
		p, _, err := c.open(ctx, t, "")
		if err != nil {
			return result{}, err
		}
		if buyer.IsZero() || buyer == c.engine {
			return result{}, fmt.Errorf("%w: invalid buyer %q", domain.ErrInvalidParams, buyer)
		}
		if inv.Caller != buyer {
			return result{}, fmt.Errorf("%w: caller %s is not the buyer", domain.ErrUnauthorized, inv.Caller)
		}
		purchased, err := t.st.Bool(ctx, state.KeyPurchased)
		if err != nil {
			return result{}, err
		}
		if purchased {
			return result{}, domain.ErrAlreadyPurchased
		}
		if inv.Now >= domain.Expiry {
			return result{}, domain.ErrExpired
		}

		if err := t.st.SetPrincipal(ctx, state.KeyBuyer, buyer); err != nil {
			return result{}, err
		}
		if err := t.st.SetBool(ctx, state.KeyPurchased, true); err != nil {
			return result{}, err
		}
		p.Buyer = buyer
		return result{movements: settlement.PayPremium(p).Movements}, nil
	})
	return err
}

// Exercise lets the buyer pay the strike and take the collateral before expiry.
func (c *Controller) Exercise(ctx context.Context, inv domain.Invocation, id domain.InstanceID) error {
	_, err := c.run(ctx, domain.OpExercise, inv, id, func(ctx context.Context, t *txn) (result, error) {
		p, variant, err := c.open(ctx, t, domain.VariantExercise)
		if err != nil {
			return result{}, err
		}
		if inv.Now >= domain.Expiry {
			return result{}, domain.ErrExpired
		}
		purchased, err := t.st.Bool(ctx, state.KeyPurchased)
		if err != nil {
			return result{}, err
		}
		if !purchased {
			return result{}, domain.ErrNotPurchased
		}
		if p.Buyer, err = t.st.Principal(ctx, state.KeyBuyer); err != nil {
			return result{}, err
		}
		if inv.Caller != p.Buyer {
			return result{}, fmt.Errorf("%w: caller %s is not the buyer", domain.ErrWrongCaller, inv.Caller)
		}

		plan, err := settlement.Settle(variant, domain.OpExercise, p, purchased, nil)
		if err != nil {
			return result{}, err
		}
		if err := c.markSettled(ctx, t); err != nil {
			return result{}, err
		}
		return result{outcome: plan.Outcome, movements: plan.Movements}, nil
	})
	return err
}

// Expire returns the collateral to the seller after expiry, sold or not.
func (c *Controller) Expire(ctx context.Context, inv domain.Invocation, id domain.InstanceID) error {
	_, err := c.run(ctx, domain.OpExpire, inv, id, func(ctx context.Context, t *txn) (result, error) {
		p, variant, err := c.open(ctx, t, domain.VariantExercise)
		if err != nil {
			return result{}, err
		}
		if inv.Now <= domain.Expiry {
			return result{}, domain.ErrNotExpired
		}
		purchased, err := t.st.Bool(ctx, state.KeyPurchased)
		if err != nil {
			return result{}, err
		}

		plan, err := settlement.Settle(variant, domain.OpExpire, p, purchased, nil)
		if err != nil {
			return result{}, err
		}
		if err := c.markSettled(ctx, t); err != nil {
			return result{}, err
		}
		return result{outcome: plan.Outcome, movements: plan.Movements}, nil
	})
	return err
}

// UpdatePrice records the oracle's settlement price. Only the last posted
// price matters; claim is gated on expiry.
func (c *Controller) UpdatePrice(ctx context.Context, inv domain.Invocation, id domain.InstanceID, price domain.Amount) error {
	_, err := c.run(ctx, domain.OpUpdatePrice, inv, id, func(ctx context.Context, t *txn) (result, error) {
		initialized, err := t.st.Initialized(ctx)
		if err != nil {
			return result{}, err
		}
		if !initialized {
			return result{}, domain.ErrNotInitialized
		}
		variant, err := t.st.Variant(ctx)
		if err != nil {
			return result{}, err
		}
		if variant != domain.VariantOracle {
			return result{}, fmt.Errorf("%w: instance is %s", domain.ErrWrongVariant, variant)
		}
		oracle, err := t.st.Principal(ctx, state.KeyOracle)
		if err != nil {
			return result{}, err
		}
		if inv.Caller.IsZero() || inv.Caller != oracle {
			return result{}, fmt.Errorf("%w: caller %s is not the oracle", domain.ErrUnauthorized, inv.Caller)
		}
		settled, err := t.st.OptionalBool(ctx, state.KeySettled)
		if err != nil {
			return result{}, err
		}
		if settled {
			return result{}, domain.ErrSettled
		}
		if price < 0 {
			return result{}, fmt.Errorf("%w: %d", domain.ErrInvalidPrice, price)
		}
		if c.oracleWindow > 0 && inv.Now < domain.Expiry-c.oracleWindow {
			return result{}, fmt.Errorf("%w: opens at %d", domain.ErrOracleWindow, domain.Expiry-c.oracleWindow)
		}

		if err := t.st.SetAmount(ctx, state.KeyPrice, price); err != nil {
			return result{}, err
		}
		if err := t.st.SetInt(ctx, state.KeyPriceAt, inv.Now); err != nil {
			return result{}, err
		}
		return result{}, nil
	})
	return err
}

// Claim settles an oracle option after expiry. Anyone may call it.
func (c *Controller) Claim(ctx context.Context, inv domain.Invocation, id domain.InstanceID) (settlement.Outcome, error) {
	return c.run(ctx, domain.OpClaim, inv, id, func(ctx context.Context, t *txn) (result, error) {
		p, variant, err := c.open(ctx, t, domain.VariantOracle)
		if err != nil {
			return result{}, err
		}
		if inv.Now <= domain.Expiry {
			return result{}, domain.ErrNotExpired
		}
		purchased, err := t.st.Bool(ctx, state.KeyPurchased)
		if err != nil {
			return result{}, err
		}

		var price *domain.Amount
		if purchased {
			if p.Buyer, err = t.st.Principal(ctx, state.KeyBuyer); err != nil {
				return result{}, err
			}
			if price, err = t.st.OptionalAmount(ctx, state.KeyPrice); err != nil {
				return result{}, err
			}
		}

		plan, err := settlement.Settle(variant, domain.OpClaim, p, purchased, price)
		if err != nil {
			return result{}, err
		}
		if err := c.markSettled(ctx, t); err != nil {
			return result{}, err
		}
		return result{outcome: plan.Outcome, movements: plan.Movements}, nil
	})
}

func (c *Controller) markSettled(ctx context.Context, t *txn) error {
	if err := t.st.SetBool(ctx, state.KeyPurchased, false); err != nil {
		return err
	}
	return t.st.SetBool(ctx, state.KeySettled, true)
}

// State returns a snapshot of instance id. Uninitialized instances yield a
// zero snapshot rather than an error.
func (c *Controller) State(ctx context.Context, id domain.InstanceID) (domain.OptionState, error) {
	var snap domain.OptionState
	err := c.host.Transact(ctx, func(tx domain.Tx) error {
		var err error
		snap, err = state.New(tx.State(id), id).Snapshot(ctx)
		return err
	})
	return snap, err
}
