// Package event defines the transition commands consumed by the sequencer.
package event

import (
	"option_go/internal/domain"
)

// Command is one entry-point invocation waiting to be sequenced.
type Command struct {
	Seq        uint64 // assigned by the sequencer
	Op         domain.Op
	Instance   domain.InstanceID
	Invocation domain.Invocation

	Params domain.CreateParams // create, init
	Buyer  domain.Principal    // purchase_option
	Price  domain.Amount       // update_price

	reply chan Result
}

// Result is the sequencer's answer to one command.
type Result struct {
	Seq     uint64
	Outcome string
	Err     error
}

// Reply delivers r to the submitter. It never blocks: each command carries
// a buffered reply slot that is written exactly once.
func (c *Command) Reply(r Result) {
	if c.reply == nil {
		return
	}
	select {
	case c.reply <- r:
	default:
	}
}

// Done returns the channel the result is delivered on.
func (c *Command) Done() <-chan Result {
	return c.reply
}

// NewCommand creates a command with its reply slot.
func NewCommand(op domain.Op, id domain.InstanceID, inv domain.Invocation) *Command {
	return &Command{
		Op:         op,
		Instance:   id,
		Invocation: inv,
		reply:      make(chan Result, 1),
	}
}
