// Package clock provides the Lamport logical clock owned by every node.
package clock

import "sync"

// A Clock is a Lamport logical clock.
//
// The zero value for Clock is a zeroed clock ready to use. All the methods are
// safe to call from multiple goroutines.
type Clock struct {
	lock  sync.Mutex
	value uint64
}

// New creates a clock that starts at the given value.
func New(value uint64) *Clock {
	return &Clock{value: value}
}

// Value returns the current value of the clock.
func (c *Clock) Value() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.value
}

// Advance increments the clock by 1 and returns the new value.
func (c *Clock) Advance() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.value++

	return c.value
}

// Merge sets the clock to max(value, received) + 1 and returns the new value.
func (c *Clock) Merge(received uint64) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	if received > c.value {
		c.value = received
	}
	c.value++

	return c.value
}
