// Package settlement computes the token movements of each transition.
//
// Every function here is pure: no clock, no storage, no ledger. The
// transition controller gates on time and authorization before calling in,
// and executes the returned movements as one all-or-nothing batch.
package settlement

import (
	"option_go/internal/domain"
)

// Outcome labels how a settling transition resolved.
type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeExercised     Outcome = "exercised"
	OutcomeExpired       Outcome = "expired"
	OutcomeUnsold        Outcome = "unsold"
	OutcomeInTheMoney    Outcome = "in_the_money"
	OutcomeOutOfTheMoney Outcome = "out_of_the_money"
)

// Parties are the principals a plan moves tokens between.
type Parties struct {
	Engine     domain.Principal
	Seller     domain.Principal
	Buyer      domain.Principal
	BaseToken  domain.Principal
	QuoteToken domain.Principal
}

// Plan is the ordered list of movements for one transition.
type Plan struct {
	Outcome   Outcome
	Movements []domain.Movement
}

// LockCollateral pulls the collateral from the seller into the engine.
func LockCollateral(p Parties) Plan {
	return Plan{Movements: []domain.Movement{
		domain.Pull(p.BaseToken, p.Seller, p.Engine, domain.CollateralBase),
	}}
}

// PayPremium pulls the premium from the buyer straight to the seller.
func PayPremium(p Parties) Plan {
	return Plan{Movements: []domain.Movement{
		domain.Pull(p.QuoteToken, p.Buyer, p.Seller, domain.Premium),
	}}
}

// Exercise pays the full strike to the seller and delivers the collateral to the buyer.
func Exercise(p Parties) Plan {
	return Plan{
		Outcome: OutcomeExercised,
		Movements: []domain.Movement{
			domain.Pull(p.QuoteToken, p.Buyer, p.Seller, domain.Strike),
			domain.Pay(p.BaseToken, p.Engine, p.Buyer, domain.CollateralBase),
		},
	}
}

// Expire returns the collateral to the seller whether or not the option sold.
func Expire(p Parties) Plan {
	return Plan{
		Outcome:   OutcomeExpired,
		Movements: []domain.Movement{returnCollateral(p)},
	}
}

// Claim settles the oracle variant against the posted price.
//
// Unsold options and prices below strike return the collateral to the
// seller. At or above strike the buyer pays strike net of the premium
// already paid and receives the collateral. A sold option with no posted
// price cannot be settled.
func Claim(p Parties, purchased bool, price *domain.Amount) (Plan, error) {
	if !purchased {
		return Plan{Outcome: OutcomeUnsold, Movements: []domain.Movement{returnCollateral(p)}}, nil
	}
	if price == nil {
		return Plan{}, domain.ErrNoPrice
	}
	if *price < domain.Strike {
		return Plan{Outcome: OutcomeOutOfTheMoney, Movements: []domain.Movement{returnCollateral(p)}}, nil
	}
	return Plan{
		Outcome: OutcomeInTheMoney,
		Movements: []domain.Movement{
			domain.Pull(p.QuoteToken, p.Buyer, p.Seller, domain.CashDiff),
			domain.Pay(p.BaseToken, p.Engine, p.Buyer, domain.CollateralBase),
		},
	}, nil
}

// Settle dispatches a settling op for the given variant. Mixing entry
// points of the two variants is rejected.
func Settle(variant domain.Variant, op domain.Op, p Parties, purchased bool, price *domain.Amount) (Plan, error) {
	switch {
	case variant == domain.VariantExercise && op == domain.OpExercise:
		if !purchased {
			return Plan{}, domain.ErrNotPurchased
		}
		return Exercise(p), nil
	case variant == domain.VariantExercise && op == domain.OpExpire:
		return Expire(p), nil
	case variant == domain.VariantOracle && op == domain.OpClaim:
		return Claim(p, purchased, price)
	default:
		return Plan{}, domain.ErrWrongVariant
	}
}

func returnCollateral(p Parties) domain.Movement {
	return domain.Pay(p.BaseToken, p.Engine, p.Seller, domain.CollateralBase)
}

// NetFlows sums the signed per-(token, principal) effect of a plan.
func NetFlows(plan Plan) map[domain.Principal]map[domain.Principal]domain.Amount {
	flows := make(map[domain.Principal]map[domain.Principal]domain.Amount)
	add := func(token, who domain.Principal, a domain.Amount) {
		if flows[token] == nil {
			flows[token] = make(map[domain.Principal]domain.Amount)
		}
		flows[token][who] += a
	}
	for _, m := range plan.Movements {
		add(m.Token, m.From, -m.Amount)
		add(m.Token, m.To, m.Amount)
	}
	return flows
}
