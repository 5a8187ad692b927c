// Package transport moves clock values between nodes as unreliable,
// unordered datagrams.
package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned by Receive when nothing arrived in time.
	ErrTimeout = errors.New("receive timeout")

	// ErrClosed is returned by a transport that has been closed.
	ErrClosed = errors.New("transport closed")

	// ErrMalformedPayload is returned when a datagram is not a decimal
	// non-negative integer.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrPortOutOfRange is returned when a listening port cannot exist.
	ErrPortOutOfRange = errors.New("port out of range")
)

// MaxPort is the largest valid port number.
const MaxPort = 65535

// A Datagram is a decoded clock value and the address that sent it.
type Datagram struct {
	Value  uint64
	Source string
}

// A Transport sends and receives clock values. Send may be called
// concurrently with Receive.
type Transport interface {
	// Addr returns the address other nodes use to reach this transport.
	Addr() string

	// Send fires one datagram carrying value to the given address. It never
	// waits for delivery.
	Send(to string, value uint64) error

	// Receive waits at most timeout for the next datagram.
	Receive(timeout time.Duration) (Datagram, error)

	// Close releases the resources bound by the transport.
	Close() error
}

// ValidatePort returns ErrPortOutOfRange if port is not a usable port number.
// Port 0 lets the operating system choose.
func ValidatePort(port int) error {
	if port < 0 || port > MaxPort {
		return fmt.Errorf("%w: %d", ErrPortOutOfRange, port)
	}

	return nil
}

// Encode turns a clock value into a datagram payload.
func Encode(value uint64) []byte {
	return strconv.AppendUint(nil, value, 10)
}

// Decode parses a datagram payload into a clock value.
func Decode(payload []byte) (uint64, error) {
	text := strings.TrimSpace(string(payload))

	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, text)
	}

	return value, nil
}
