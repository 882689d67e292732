package domain

// MovementKind distinguishes the two token API capabilities.
type MovementKind int

const (
	// MovePull moves tokens from an owner using the owner's allowance to the engine.
	MovePull MovementKind = iota + 1
	// MovePay moves tokens out of the engine's own balance.
	MovePay
)

func (k MovementKind) String() string {
	switch k {
	case MovePull:
		return "transfer_from"
	case MovePay:
		return "transfer"
	default:
		return "UNKNOWN"
	}
}

// Movement is one token transfer planned by the settlement engine.
// For MovePay, From is always the engine account.
type Movement struct {
	Kind   MovementKind `json:"kind"`
	Token  Principal    `json:"token"`
	From   Principal    `json:"from"`
	To     Principal    `json:"to"`
	Amount Amount       `json:"amount"`
}

// Pull builds an allowance-funded movement from owner to to.
func Pull(token, owner, to Principal, amount Amount) Movement {
	return Movement{Kind: MovePull, Token: token, From: owner, To: to, Amount: amount}
}

// Pay builds a movement out of the engine's balance.
func Pay(token, engine, to Principal, amount Amount) Movement {
	return Movement{Kind: MovePay, Token: token, From: engine, To: to, Amount: amount}
}
