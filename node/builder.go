package node

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/sarchlab/clocksim/clock"
	"github.com/sarchlab/clocksim/mailbox"
	"github.com/sarchlab/clocksim/trace"
	"github.com/sarchlab/clocksim/transport"
)

// Defaults used by a Builder.
const (
	DefaultActionMin        = 1
	DefaultActionMax        = 10
	DefaultInternalMin      = 4
	DefaultInternalMax      = 10
	DefaultPollTimeout      = 100 * time.Millisecond
	DefaultReceiverStopWait = time.Second
)

// Builder can build nodes.
type Builder struct {
	tickRate    int
	duration    time.Duration
	actionMin   int
	actionMax   int
	internalMin int
	internalMax int
	pollTimeout time.Duration
	stopWait    time.Duration
	transport   transport.Transport
	trace       trace.Sink
	actions     ActionSource
	now         func() time.Time
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		tickRate:    1,
		duration:    time.Minute,
		actionMin:   DefaultActionMin,
		actionMax:   DefaultActionMax,
		internalMin: DefaultInternalMin,
		internalMax: DefaultInternalMax,
		pollTimeout: DefaultPollTimeout,
		stopWait:    DefaultReceiverStopWait,
		now:         time.Now,
	}
}

// WithTickRate sets the number of ticks per second. Zero makes a node that
// never ticks.
func (b Builder) WithTickRate(rate int) Builder {
	b.tickRate = rate
	return b
}

// WithDuration sets how long the node runs.
func (b Builder) WithDuration(d time.Duration) Builder {
	b.duration = d
	return b
}

// WithActionRange sets the inclusive range random actions are drawn from.
func (b Builder) WithActionRange(lo, hi int) Builder {
	b.actionMin = lo
	b.actionMax = hi

	return b
}

// WithInternalEventRange sets the range of draws reported as internal events.
func (b Builder) WithInternalEventRange(lo, hi int) Builder {
	b.internalMin = lo
	b.internalMax = hi

	return b
}

// WithPollTimeout sets how long the receiver waits for each datagram.
func (b Builder) WithPollTimeout(d time.Duration) Builder {
	b.pollTimeout = d
	return b
}

// WithReceiverStopWait sets how long a stopping node waits for its receiver.
func (b Builder) WithReceiverStopWait(d time.Duration) Builder {
	b.stopWait = d
	return b
}

// WithTransport sets the transport of the node.
func (b Builder) WithTransport(t transport.Transport) Builder {
	b.transport = t
	return b
}

// WithTrace sets the sink the node writes its trace into.
func (b Builder) WithTrace(s trace.Sink) Builder {
	b.trace = s
	return b
}

// WithActionSource sets where random actions come from.
func (b Builder) WithActionSource(s ActionSource) Builder {
	b.actions = s
	return b
}

// WithTimeSource sets the wall clock of the node.
func (b Builder) WithTimeSource(now func() time.Time) Builder {
	b.now = now
	return b
}

func (b Builder) parametersMustBeValid() {
	switch {
	case b.transport == nil:
		log.Panic("node transport is not set")
	case b.trace == nil:
		log.Panic("node trace is not set")
	case b.tickRate < 0:
		log.Panicf("tick rate %d is negative", b.tickRate)
	case b.actionMin > b.actionMax:
		log.Panicf("invalid action range (%d, %d)", b.actionMin, b.actionMax)
	case b.internalMin > b.internalMax:
		log.Panicf("invalid internal event range (%d, %d)",
			b.internalMin, b.internalMax)
	case b.pollTimeout <= 0:
		log.Panic("poll timeout must be positive")
	}
}

// Build creates a node with the given id.
func (b Builder) Build(id int) *Node {
	b.parametersMustBeValid()

	name := fmt.Sprintf("Machine%d", id)

	actions := b.actions
	if actions == nil {
		actions = rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	}

	return &Node{
		id:          id,
		name:        name,
		tickRate:    b.tickRate,
		duration:    b.duration,
		actionMin:   b.actionMin,
		actionMax:   b.actionMax,
		internalMin: b.internalMin,
		internalMax: b.internalMax,
		pollTimeout: b.pollTimeout,
		stopWait:    b.stopWait,
		clock:       clock.New(0),
		mailbox:     mailbox.New(name + ".Mailbox"),
		transport:   b.transport,
		trace:       b.trace,
		actions:     actions,
		now:         b.now,
	}
}
