package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const maxDatagramSize = 1024

// UDP is a Transport over a single UDP socket. The same socket sends and
// receives, so receivers see the listening address of the sender.
type UDP struct {
	conn *net.UDPConn
	buf  []byte
}

// ListenUDP binds a UDP socket on host:port.
func ListenUDP(host string, port int) (*UDP, error) {
	if err := ValidatePort(port); err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr(
		"udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	return &UDP{
		conn: conn,
		buf:  make([]byte, maxDatagramSize),
	}, nil
}

// Addr returns the bound local address.
func (t *UDP) Addr() string {
	return t.conn.LocalAddr().String()
}

// Port returns the bound local port.
func (t *UDP) Port() int {
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

// Send writes one datagram to the given address.
func (t *UDP) Send(to string, value uint64) error {
	addr, err := net.ResolveUDPAddr("udp", to)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", to, err)
	}

	_, err = t.conn.WriteToUDP(Encode(value), addr)
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}

	return err
}

// Receive reads the next datagram. It must not be called from more than one
// goroutine at a time.
func (t *UDP) Receive(timeout time.Duration) (Datagram, error) {
	err := t.conn.SetReadDeadline(time.Now().Add(timeout))
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Datagram{}, ErrClosed
		}

		return Datagram{}, err
	}

	n, src, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return Datagram{}, ErrTimeout
		case errors.Is(err, net.ErrClosed):
			return Datagram{}, ErrClosed
		default:
			return Datagram{}, err
		}
	}

	value, err := Decode(t.buf[:n])
	if err != nil {
		return Datagram{Source: src.String()}, err
	}

	return Datagram{Value: value, Source: src.String()}, nil
}

// Close closes the socket.
func (t *UDP) Close() error {
	return t.conn.Close()
}

var _ Transport = (*UDP)(nil)
