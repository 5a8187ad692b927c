package datarecording

import (
	"github.com/sarchlab/clocksim/hooking"
	"github.com/sarchlab/clocksim/node"
	"github.com/sarchlab/clocksim/trace"
)

// Table names used by EventRecorder.
const (
	EventTable = "clocksim_events"
	NodeTable  = "clocksim_nodes"
)

type eventEntry struct {
	RunID        string
	Node         int
	Kind         string
	Peer         string
	QueueLength  int
	LogicalClock uint64
	SystemTime   float64
}

type nodeEntry struct {
	RunID    string
	Node     int
	Name     string
	TickRate int
	Addr     string
}

// EventRecorder is a hook that mirrors every event emitted by the nodes it is
// attached to into a DataRecorder.
type EventRecorder struct {
	runID    string
	recorder DataRecorder
}

// NewEventRecorder creates the event and node tables and returns a recorder
// that fills them.
func NewEventRecorder(runID string, recorder DataRecorder) *EventRecorder {
	recorder.CreateTable(EventTable, eventEntry{})
	recorder.CreateTable(NodeTable, nodeEntry{})

	return &EventRecorder{
		runID:    runID,
		recorder: recorder,
	}
}

// RecordNode stores the static description of a node and starts recording
// its events.
func (r *EventRecorder) RecordNode(n *node.Node) {
	r.recorder.InsertData(NodeTable, nodeEntry{
		RunID:    r.runID,
		Node:     n.ID(),
		Name:     n.Name(),
		TickRate: n.TickRate(),
		Addr:     n.Addr(),
	})

	n.AcceptHook(r)
}

// Func records events and ignores every other hook position.
func (r *EventRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != node.HookPosEvent {
		return
	}

	n, ok := ctx.Domain.(*node.Node)
	if !ok {
		return
	}

	e := ctx.Item.(trace.Event)

	r.recorder.InsertData(EventTable, eventEntry{
		RunID:        r.runID,
		Node:         n.ID(),
		Kind:         e.Kind.String(),
		Peer:         trace.Endpoint(e.Peer),
		QueueLength:  e.QueueLength,
		LogicalClock: e.LogicalClock,
		SystemTime:   float64(e.WallTime.UnixNano()) / 1e9,
	})
}
