package node

import (
	"context"
	"time"

	"github.com/sarchlab/clocksim/hooking"
	"github.com/sarchlab/clocksim/mailbox"
	"github.com/sarchlab/clocksim/trace"
)

// schedule ticks at the tick rate until the duration has passed.
func (n *Node) schedule(ctx context.Context) error {
	start := n.now()

	if n.tickRate == 0 {
		timer := time.NewTimer(n.duration)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
		}

		return nil
	}

	ticker := time.NewTicker(time.Second / time.Duration(n.tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if n.now().Sub(start) >= n.duration {
			return nil
		}

		err := n.Tick()
		if err != nil {
			return err
		}
	}
}

// Tick performs exactly one step. A waiting message always takes priority
// over random actions, so a node whose mailbox never drains never sends.
func (n *Node) Tick() error {
	msg, remaining, ok := n.mailbox.TryPop()
	if ok {
		return n.receive(msg, remaining)
	}

	action := n.drawAction()

	switch {
	case action == 1 && len(n.peers) >= 1:
		return n.send(n.peers[0])
	case action == 2 && len(n.peers) >= 2:
		return n.send(n.peers[1])
	case action == 3 && len(n.peers) >= 2:
		return n.broadcast()
	default:
		// Draws outside the internal event range are internal events too.
		return n.internal()
	}
}

func (n *Node) drawAction() int {
	return n.actionMin + n.actions.Intn(n.actionMax-n.actionMin+1)
}

func (n *Node) receive(msg mailbox.Message, remaining int) error {
	value := n.clock.Merge(msg.Value)

	return n.emit(trace.Event{
		WallTime:     n.now(),
		Kind:         trace.KindReceive,
		LogicalClock: value,
		Peer:         msg.Source,
		QueueLength:  remaining,
	})
}

// send transmits the current clock value and then advances the clock. A
// failed send is not reported; the datagram is simply lost.
func (n *Node) send(p Peer) error {
	_ = n.transport.Send(p.Addr, n.clock.Value())
	value := n.clock.Advance()

	return n.emit(trace.Event{
		WallTime:     n.now(),
		Kind:         trace.KindSend,
		LogicalClock: value,
		Peer:         p.Addr,
	})
}

func (n *Node) broadcast() error {
	for _, p := range n.peers {
		err := n.send(p)
		if err != nil {
			return err
		}
	}

	return nil
}

func (n *Node) internal() error {
	value := n.clock.Advance()

	return n.emit(trace.Event{
		WallTime:     n.now(),
		Kind:         trace.KindInternal,
		LogicalClock: value,
	})
}

func (n *Node) emit(e trace.Event) error {
	err := n.trace.Emit(e)
	if err != nil {
		return err
	}

	n.count(e.Kind)

	if n.NumHooks() > 0 {
		n.InvokeHook(hooking.HookCtx{
			Domain: n,
			Pos:    HookPosEvent,
			Item:   e,
		})
	}

	return nil
}

func (n *Node) count(kind trace.Kind) {
	n.statsLock.Lock()
	defer n.statsLock.Unlock()

	switch kind {
	case trace.KindInternal:
		n.stats.Internal++
	case trace.KindSend:
		n.stats.Sends++
	case trace.KindReceive:
		n.stats.Receives++
	}
}
