// Package node implements a simulated machine: a Lamport clock, a mailbox fed
// by a network receiver, and a tick loop that either consumes one message or
// does something random on every tick.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/clocksim/clock"
	"github.com/sarchlab/clocksim/hooking"
	"github.com/sarchlab/clocksim/mailbox"
	"github.com/sarchlab/clocksim/trace"
	"github.com/sarchlab/clocksim/transport"
)

// HookPosEvent marks when a node emits an event. The item is a trace.Event.
var HookPosEvent = &hooking.HookPos{Name: "Node Event"}

// HookPosStart marks when a node starts running.
var HookPosStart = &hooking.HookPos{Name: "Node Start"}

// HookPosStop marks when a node has stopped. The detail is the error the run
// ended with, if any.
var HookPosStop = &hooking.HookPos{Name: "Node Stop"}

// A Peer is another node this node can send to.
type Peer struct {
	ID   int
	Addr string
}

// An ActionSource draws the random actions of a node. *rand.Rand satisfies it.
type ActionSource interface {
	// Intn returns a uniformly distributed integer in [0, n).
	Intn(n int) int
}

// A Node is one machine of the simulation.
type Node struct {
	hooking.HookableBase

	id       int
	name     string
	tickRate int
	duration time.Duration

	actionMin, actionMax     int
	internalMin, internalMax int
	pollTimeout              time.Duration
	stopWait                 time.Duration

	clock     *clock.Clock
	mailbox   *mailbox.Mailbox
	transport transport.Transport
	trace     trace.Sink
	actions   ActionSource
	now       func() time.Time

	peers   []Peer
	started atomic.Bool

	statsLock sync.Mutex
	stats     Stats
}

// Stats counts the events a node has emitted so far.
type Stats struct {
	Internal int
	Sends    int
	Receives int
}

// ID returns the id of the node.
func (n *Node) ID() int {
	return n.id
}

// Name returns the name of the node.
func (n *Node) Name() string {
	return n.name
}

// TickRate returns the number of ticks per second.
func (n *Node) TickRate() int {
	return n.tickRate
}

// Addr returns the address peers send to.
func (n *Node) Addr() string {
	return n.transport.Addr()
}

// Clock returns the logical clock of the node.
func (n *Node) Clock() *clock.Clock {
	return n.clock
}

// Mailbox returns the inbound message queue of the node.
func (n *Node) Mailbox() *mailbox.Mailbox {
	return n.mailbox
}

// Peers returns a copy of the peer list.
func (n *Node) Peers() []Peer {
	peers := make([]Peer, len(n.peers))
	copy(peers, n.peers)

	return peers
}

// Stats returns a snapshot of the event counters.
func (n *Node) Stats() Stats {
	n.statsLock.Lock()
	defer n.statsLock.Unlock()

	return n.stats
}

// SetPeers sets the nodes this node can send to. It must be called before Run.
func (n *Node) SetPeers(peers []Peer) {
	if n.started.Load() {
		log.Panicf("cannot change the peers of %s after it started", n.name)
	}

	n.peers = make([]Peer, len(peers))
	copy(n.peers, peers)
}

// Run runs the node until the duration elapses or ctx is cancelled. The
// returned error is non-nil only if the trace could not be written.
func (n *Node) Run(ctx context.Context) error {
	if !n.started.CompareAndSwap(false, true) {
		log.Panicf("%s already started", n.name)
	}

	n.invokeLifecycleHook(HookPosStart, nil)

	err := n.writeHeader()
	if err != nil {
		return n.stop(err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	listenDone := make(chan struct{})

	go func() {
		defer close(listenDone)
		n.listen(listenCtx)
	}()

	err = n.schedule(ctx)

	cancel()
	select {
	case <-listenDone:
	case <-time.After(n.stopWait):
		log.Printf("%s: receiver did not stop within %s", n.name, n.stopWait)
	}

	return n.stop(err)
}

func (n *Node) writeHeader() error {
	err := n.trace.Logf("%s", trace.StartupMessage(n.id, n.tickRate))
	if err != nil {
		return err
	}

	return n.trace.Logf("%s", trace.RangeMessage(n.internalMin, n.internalMax))
}

func (n *Node) stop(runErr error) error {
	err := n.transport.Close()
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		log.Printf("%s: close transport: %v", n.name, err)
	}

	if runErr == nil {
		runErr = n.trace.Logf("%s", trace.ShutdownMessage(n.id))
	}

	closeErr := n.trace.Close()
	if runErr == nil && closeErr != nil {
		runErr = closeErr
	}

	if runErr != nil {
		runErr = fmt.Errorf("%s: %w", n.name, runErr)
	}

	n.invokeLifecycleHook(HookPosStop, runErr)

	return runErr
}

func (n *Node) invokeLifecycleHook(pos *hooking.HookPos, detail any) {
	if n.NumHooks() == 0 {
		return
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    pos,
		Item:   n,
		Detail: detail,
	})
}
