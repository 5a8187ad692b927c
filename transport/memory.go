package transport

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"
)

// A Network is an in-process datagram network. Endpoints joined to the same
// network can reach each other by address. Datagrams to unknown or closed
// endpoints disappear, and each datagram may be dropped with a configured
// probability.
type Network struct {
	lock      sync.Mutex
	endpoints map[string]*Endpoint
	dropRate  float64
	rng       *rand.Rand
	nextPort  int
}

// Ephemeral ports handed out to endpoints that join with port 0.
const (
	firstEphemeralPort = 49152
	lastEphemeralPort  = MaxPort
)

// NewNetwork creates an empty lossless network.
func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[string]*Endpoint),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithDropRate sets the probability, in [0, 1], that a datagram is lost.
func (n *Network) WithDropRate(rate float64, seed int64) *Network {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.dropRate = rate
	n.rng = rand.New(rand.NewSource(seed))

	return n
}

// Join creates an endpoint with the given address. Like a socket bound to
// port 0, an address with port 0 gets a free port of its own.
func (n *Network) Join(addr string) (*Endpoint, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	host, port, err := net.SplitHostPort(addr)
	if err == nil && port == "0" {
		addr, err = n.ephemeralAddr(host)
		if err != nil {
			return nil, err
		}
	}

	if _, found := n.endpoints[addr]; found {
		return nil, fmt.Errorf("bind %s: address already in use", addr)
	}

	e := &Endpoint{
		network: n,
		addr:    addr,
		inbox:   make(chan packet, inboxSize),
		closed:  make(chan struct{}),
	}
	n.endpoints[addr] = e

	return e, nil
}

func (n *Network) ephemeralAddr(host string) (string, error) {
	if n.nextPort == 0 {
		n.nextPort = firstEphemeralPort
	}

	for i := firstEphemeralPort; i <= lastEphemeralPort; i++ {
		port := n.nextPort

		n.nextPort++
		if n.nextPort > lastEphemeralPort {
			n.nextPort = firstEphemeralPort
		}

		addr := net.JoinHostPort(host, strconv.Itoa(port))
		if _, found := n.endpoints[addr]; !found {
			return addr, nil
		}
	}

	return "", fmt.Errorf("bind %s:0: no free port", host)
}

func (n *Network) deliver(from, to string, payload []byte) {
	n.lock.Lock()
	dst, found := n.endpoints[to]
	dropped := n.dropRate > 0 && n.rng.Float64() < n.dropRate
	n.lock.Unlock()

	if !found || dropped {
		return
	}

	dst.enqueue(from, payload)
}

func (n *Network) leave(addr string) {
	n.lock.Lock()
	defer n.lock.Unlock()

	delete(n.endpoints, addr)
}

const inboxSize = 1 << 16

type packet struct {
	from    string
	payload []byte
}

// An Endpoint is a Transport attached to a Network.
type Endpoint struct {
	network *Network
	addr    string

	lock    sync.Mutex
	inbox   chan packet
	closed  chan struct{}
	isClose bool
}

// Addr returns the address of the endpoint.
func (e *Endpoint) Addr() string {
	return e.addr
}

// Send hands one datagram to the network.
func (e *Endpoint) Send(to string, value uint64) error {
	if e.isClosed() {
		return ErrClosed
	}

	e.network.deliver(e.addr, to, Encode(value))

	return nil
}

// SendRaw hands an arbitrary payload to the network.
func (e *Endpoint) SendRaw(to string, payload []byte) error {
	if e.isClosed() {
		return ErrClosed
	}

	e.network.deliver(e.addr, to, payload)

	return nil
}

func (e *Endpoint) enqueue(from string, payload []byte) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.isClose {
		return
	}

	select {
	case e.inbox <- packet{from: from, payload: payload}:
	default:
		// Full inbox behaves like a full socket buffer.
	}
}

// Receive waits at most timeout for the next datagram.
func (e *Endpoint) Receive(timeout time.Duration) (Datagram, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.closed:
		return Datagram{}, ErrClosed
	case <-timer.C:
		return Datagram{}, ErrTimeout
	case p := <-e.inbox:
		value, err := Decode(p.payload)
		if err != nil {
			return Datagram{Source: p.from}, err
		}

		return Datagram{Value: value, Source: p.from}, nil
	}
}

// Close detaches the endpoint from the network.
func (e *Endpoint) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.isClose {
		return nil
	}

	e.isClose = true
	close(e.closed)
	e.network.leave(e.addr)

	return nil
}

func (e *Endpoint) isClosed() bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.isClose
}

var _ Transport = (*Endpoint)(nil)
