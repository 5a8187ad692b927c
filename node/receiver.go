package node

import (
	"context"
	"errors"
	"time"

	"github.com/sarchlab/clocksim/mailbox"
	"github.com/sarchlab/clocksim/transport"
)

// listen moves datagrams from the transport into the mailbox until ctx is
// cancelled or the transport is closed. It never touches the clock.
func (n *Node) listen(ctx context.Context) {
	for ctx.Err() == nil {
		d, err := n.transport.Receive(n.pollTimeout)

		switch {
		case err == nil:
			n.mailbox.Push(mailbox.Message{Value: d.Value, Source: d.Source})
		case errors.Is(err, transport.ErrTimeout):
		case errors.Is(err, transport.ErrClosed):
			return
		default:
			_ = n.trace.Logf("Error receiving message: %v", err)

			if !errors.Is(err, transport.ErrMalformedPayload) {
				n.backOff(ctx)
			}
		}
	}
}

// backOff waits one poll period so that a failing socket does not flood the
// trace.
func (n *Node) backOff(ctx context.Context) {
	timer := time.NewTimer(n.pollTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
