package node

import (
	"log"

	"github.com/sarchlab/clocksim/hooking"
	"github.com/sarchlab/clocksim/trace"
)

// EventLogger is a hook that prints the events and the lifecycle of the nodes
// it is attached to.
type EventLogger struct {
	*log.Logger
}

// NewEventLogger returns a new EventLogger which will write into the logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	return &EventLogger{Logger: logger}
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	n, ok := ctx.Domain.(*Node)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosStart:
		h.Printf("%s started, tick rate %d", n.Name(), n.TickRate())
	case HookPosEvent:
		e := ctx.Item.(trace.Event)
		h.Printf("%s: %s", n.Name(), trace.FormatEvent(e))
	case HookPosStop:
		if err, _ := ctx.Detail.(error); err != nil {
			h.Printf("%s stopped: %v", n.Name(), err)
			return
		}

		h.Printf("%s stopped", n.Name())
	}
}
