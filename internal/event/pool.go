package event

import (
	"sync"
)

// commandPool recycles commands submitted by long-running producers such as
// the oracle feed.
//
// Usage:
//
//	cmd := AcquireCommand()
//	cmd.Op = domain.OpUpdatePrice
//	// ... submit, wait on cmd.Done() ...
//	ReleaseCommand(cmd)
var commandPool = sync.Pool{
	New: func() interface{} {
		return &Command{reply: make(chan Result, 1)}
	},
}

// AcquireCommand gets a zeroed Command with an empty reply slot.
func AcquireCommand() *Command {
	return commandPool.Get().(*Command)
}

// ReleaseCommand returns cmd to the pool. The caller must have received
// its result first.
func ReleaseCommand(cmd *Command) {
	if cmd == nil {
		return
	}
	reply := cmd.reply
	// Drain a result nobody read so the next user starts clean.
	select {
	case <-reply:
	default:
	}
	*cmd = Command{reply: reply}
	commandPool.Put(cmd)
}
