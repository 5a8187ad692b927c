// Package mailbox provides the inbound message queue that sits between a
// node's network receiver and its tick loop.
package mailbox

import (
	"sync"

	"github.com/sarchlab/clocksim/hooking"
)

// HookPosPush marks when a message is pushed into the mailbox.
var HookPosPush = &hooking.HookPos{Name: "Mailbox Push"}

// HookPosPop marks when a message is popped from the mailbox.
var HookPosPop = &hooking.HookPos{Name: "Mailbox Pop"}

// Message is a clock value that arrived from the network, together with the
// address it came from.
type Message struct {
	Value  uint64
	Source string
}

// A Mailbox is an unbounded FIFO queue of messages. Push never blocks and
// never fails. All methods are safe for concurrent use.
type Mailbox struct {
	hooking.HookableBase

	name string

	lock     sync.Mutex
	messages []Message
}

// New creates an empty mailbox.
func New(name string) *Mailbox {
	return &Mailbox{name: name}
}

// Name returns the name of the mailbox.
func (b *Mailbox) Name() string {
	return b.name
}

// Push appends a message to the tail of the mailbox.
func (b *Mailbox) Push(msg Message) {
	b.lock.Lock()
	b.messages = append(b.messages, msg)
	b.lock.Unlock()

	if b.NumHooks() > 0 {
		b.InvokeHook(hooking.HookCtx{
			Domain: b,
			Pos:    HookPosPush,
			Item:   msg,
		})
	}
}

// TryPop removes and returns the oldest message. The second return value is
// the number of messages still waiting after the pop. If the mailbox is empty,
// ok is false.
func (b *Mailbox) TryPop() (msg Message, remaining int, ok bool) {
	b.lock.Lock()
	if len(b.messages) == 0 {
		b.lock.Unlock()
		return Message{}, 0, false
	}

	msg = b.messages[0]
	b.messages[0] = Message{}
	b.messages = b.messages[1:]
	remaining = len(b.messages)
	b.lock.Unlock()

	if b.NumHooks() > 0 {
		b.InvokeHook(hooking.HookCtx{
			Domain: b,
			Pos:    HookPosPop,
			Item:   msg,
			Detail: remaining,
		})
	}

	return msg, remaining, true
}

// Depth returns the number of messages waiting. The value is only a snapshot
// and may already be stale when the caller looks at it.
func (b *Mailbox) Depth() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.messages)
}
