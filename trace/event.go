// Package trace records what every node does, one line per event, in the
// format the analysis scripts read.
package trace

import (
	"fmt"
	"net"
	"time"
)

// Kind tells what a node did.
type Kind int

// The kinds of events a node can emit.
const (
	KindInternal Kind = iota
	KindSend
	KindReceive
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "INTERNAL"
	case KindSend:
		return "SEND"
	case KindReceive:
		return "RECEIVE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// An Event is one step of a node. Events are values and are never changed
// after being emitted.
type Event struct {
	WallTime time.Time
	Kind     Kind

	// LogicalClock is the clock value after the event is applied.
	LogicalClock uint64

	// Peer is the target of a SEND or the source of a RECEIVE.
	Peer string

	// QueueLength is the number of messages still waiting in the mailbox
	// when a RECEIVE is applied.
	QueueLength int
}

// Endpoint returns the short form of an address used in trace lines: the port
// if addr has one, or addr itself.
func Endpoint(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return addr
	}

	return port
}

// FileName returns the name of the trace file of the node with the given id.
func FileName(id int) string {
	return fmt.Sprintf("machine_%d.log", id)
}
