package simulation

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/clocksim/node"
	"github.com/sarchlab/clocksim/transport"
)

// ErrInvalidConfig is returned by Build when the parameters cannot describe a
// simulation.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Defaults used by a Builder.
const (
	DefaultDuration    = 60 * time.Second
	DefaultNodeCount   = 3
	DefaultMaxTickRate = 6
	DefaultBasePort    = 5000
	DefaultHost        = "localhost"
	DefaultOutputDir   = "logs"
)

// Builder can be used to build a simulation.
type Builder struct {
	duration     time.Duration
	nodeCount    int
	maxTickRate  int
	tickRate     int
	internalMin  int
	internalMax  int
	basePort     int
	host         string
	outputDir    string
	recorderPath string
	recorderOn   bool
	monitorOn    bool
	monitorPort  int
	openBrowser  bool
	seed         int64
	network      *transport.Network
	pollTimeout  time.Duration
	eventLogger  *log.Logger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		duration:    DefaultDuration,
		nodeCount:   DefaultNodeCount,
		maxTickRate: DefaultMaxTickRate,
		internalMin: node.DefaultInternalMin,
		internalMax: node.DefaultInternalMax,
		basePort:    DefaultBasePort,
		host:        DefaultHost,
		outputDir:   DefaultOutputDir,
		pollTimeout: node.DefaultPollTimeout,
	}
}

// WithDuration sets how long every node runs.
func (b Builder) WithDuration(d time.Duration) Builder {
	b.duration = d
	return b
}

// WithNodeCount sets the number of nodes.
func (b Builder) WithNodeCount(n int) Builder {
	b.nodeCount = n
	return b
}

// WithMaxTickRate sets the upper bound of the randomly drawn tick rates.
func (b Builder) WithMaxTickRate(rate int) Builder {
	b.maxTickRate = rate
	return b
}

// WithTickRate gives every node the same tick rate instead of a random one.
func (b Builder) WithTickRate(rate int) Builder {
	b.tickRate = rate
	return b
}

// WithInternalEventRange sets the range reported in every startup line.
func (b Builder) WithInternalEventRange(lo, hi int) Builder {
	b.internalMin = lo
	b.internalMax = hi

	return b
}

// WithBasePort sets the port of node 0. Node i listens on base+i.
func (b Builder) WithBasePort(port int) Builder {
	b.basePort = port
	return b
}

// WithHost sets the host every node binds to.
func (b Builder) WithHost(host string) Builder {
	b.host = host
	return b
}

// WithOutputDir sets the directory the trace files are written into.
func (b Builder) WithOutputDir(dir string) Builder {
	b.outputDir = dir
	return b
}

// WithDataRecorder records every event into an SQLite database. An empty path
// lets the recorder pick a name from the run id.
func (b Builder) WithDataRecorder(path string) Builder {
	b.recorderOn = true
	b.recorderPath = path

	return b
}

// WithMonitor serves the state of the simulation over HTTP. Port 0 picks a
// random port.
func (b Builder) WithMonitor(port int) Builder {
	b.monitorOn = true
	b.monitorPort = port

	return b
}

// WithOpenBrowser opens the monitor page once the server is up.
func (b Builder) WithOpenBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithSeed makes tick rates and actions reproducible. Zero seeds from the
// wall clock.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithNetwork connects the nodes through an in-memory network instead of UDP.
func (b Builder) WithNetwork(n *transport.Network) Builder {
	b.network = n
	return b
}

// WithPollTimeout sets how long each receiver waits for a datagram.
func (b Builder) WithPollTimeout(d time.Duration) Builder {
	b.pollTimeout = d
	return b
}

// WithEventLogger prints every node event into the logger.
func (b Builder) WithEventLogger(logger *log.Logger) Builder {
	b.eventLogger = logger
	return b
}

func (b Builder) validate() error {
	switch {
	case b.nodeCount < 1:
		return fmt.Errorf("%w: node count %d", ErrInvalidConfig, b.nodeCount)
	case b.tickRate == 0 && b.maxTickRate < 1:
		return fmt.Errorf("%w: max tick rate %d",
			ErrInvalidConfig, b.maxTickRate)
	case b.tickRate < 0:
		return fmt.Errorf("%w: tick rate %d", ErrInvalidConfig, b.tickRate)
	case b.duration < 0:
		return fmt.Errorf("%w: duration %s", ErrInvalidConfig, b.duration)
	case b.internalMin > b.internalMax:
		return fmt.Errorf("%w: internal event range (%d, %d)",
			ErrInvalidConfig, b.internalMin, b.internalMax)
	case b.pollTimeout <= 0:
		return fmt.Errorf("%w: poll timeout %s",
			ErrInvalidConfig, b.pollTimeout)
	case b.monitorOn && b.monitorPort < 0:
		return fmt.Errorf("%w: monitor port %d",
			ErrInvalidConfig, b.monitorPort)
	}

	if b.network != nil {
		return nil
	}

	if err := transport.ValidatePort(b.basePort); err != nil {
		return err
	}

	if b.basePort == 0 {
		return nil
	}

	return transport.ValidatePort(b.basePort + b.nodeCount - 1)
}

// Build builds the simulation. Tick rates are drawn here so that they are
// known before the simulation runs.
func (b Builder) Build() (*Simulation, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	seed := b.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	s := &Simulation{
		id:           xid.New().String(),
		builder:      b,
		seed:         seed,
		tickRates:    make([]int, b.nodeCount),
		recorderPath: b.recorderPath,
	}

	for i := range s.tickRates {
		s.tickRates[i] = b.tickRate
		if b.tickRate == 0 {
			s.tickRates[i] = 1 + rng.Intn(b.maxTickRate)
		}
	}

	return s, nil
}
