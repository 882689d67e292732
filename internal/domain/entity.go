package domain

import (
	"time"
)

// StateEntry is one persisted key of one instance.
type StateEntry struct {
	Instance  string    `gorm:"primaryKey;size:64" json:"instance"`
	Key       string    `gorm:"primaryKey;size:32;column:state_key" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenBalance is an owner's balance in one token ledger.
type TokenBalance struct {
	Token     string    `gorm:"primaryKey;size:64" json:"token"`
	Owner     string    `gorm:"primaryKey;size:64" json:"owner"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenAllowance is the amount spender may move on owner's behalf.
type TokenAllowance struct {
	Token     string    `gorm:"primaryKey;size:64" json:"token"`
	Owner     string    `gorm:"primaryKey;size:64" json:"owner"`
	Spender   string    `gorm:"primaryKey;size:64" json:"spender"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JournalEntry records one committed transition.
type JournalEntry struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement" json:"seq"`
	Instance  string    `gorm:"index;size:64" json:"instance"`
	Op        string    `gorm:"size:32" json:"op"`
	Caller    string    `gorm:"size:64" json:"caller"`
	At        int64     `json:"at"`        // invocation clock, UNIX seconds
	Outcome   string    `json:"outcome"`   // settlement outcome, empty for non-settling ops
	Movements string    `json:"movements"` // JSON array of Movement
	CreatedAt time.Time `json:"created_at"`
}
