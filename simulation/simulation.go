package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sarchlab/clocksim/datarecording"
	"github.com/sarchlab/clocksim/monitoring"
	"github.com/sarchlab/clocksim/node"
	"github.com/sarchlab/clocksim/trace"
	"github.com/sarchlab/clocksim/transport"
)

// A Simulation runs a group of nodes that exchange logical clock values.
type Simulation struct {
	id           string
	builder      Builder
	seed         int64
	tickRates    []int
	recorderPath string

	nodesLock sync.Mutex
	nodes     []*node.Node

	dataRecorder datarecording.DataRecorder
	monitor      *monitoring.Monitor
}

// ID returns the unique id of the run.
func (s *Simulation) ID() string {
	return s.id
}

// TickRates returns the tick rate of every node, indexed by node id.
func (s *Simulation) TickRates() []int {
	rates := make([]int, len(s.tickRates))
	copy(rates, s.tickRates)

	return rates
}

// OutputDir returns the directory the trace files are written into.
func (s *Simulation) OutputDir() string {
	return s.builder.outputDir
}

// Nodes returns the nodes that were started. It is empty before Run.
func (s *Simulation) Nodes() []*node.Node {
	s.nodesLock.Lock()
	defer s.nodesLock.Unlock()

	nodes := make([]*node.Node, len(s.nodes))
	copy(nodes, s.nodes)

	return nodes
}

// GetMonitor returns the monitor, or nil if monitoring is off or the
// simulation has not started.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// RecorderFileName returns the database file of the data recorder, or an
// empty string if events are not recorded.
func (s *Simulation) RecorderFileName() string {
	w, ok := s.dataRecorder.(*datarecording.SQLiteWriter)
	if !ok {
		return ""
	}

	return w.FileName()
}

// Run starts every node, waits until all of them have stopped and returns the
// failures of the nodes joined together. A node that cannot start does not
// stop the others.
func (s *Simulation) Run(ctx context.Context) error {
	err := os.MkdirAll(s.builder.outputDir, 0o755)
	if err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	errs := make([]error, len(s.tickRates))

	s.nodesLock.Lock()
	for i := range s.tickRates {
		n, err := s.buildNode(i)
		if err != nil {
			errs[i] = fmt.Errorf("node %d: %w", i, err)
			continue
		}

		s.nodes = append(s.nodes, n)
	}
	nodes := s.nodes
	s.nodesLock.Unlock()

	s.connect(nodes)

	err = s.startServices(nodes)
	if err != nil {
		s.abort(nodes)
		return errors.Join(append(errs, err)...)
	}

	stopProgress := s.trackProgress(ctx)

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)

		go func(n *node.Node) {
			defer wg.Done()

			err := n.Run(ctx)
			if err != nil {
				errs[n.ID()] = fmt.Errorf("node %d: %w", n.ID(), err)
			}
		}(n)
	}

	wg.Wait()

	stopProgress()
	s.stopServices()

	return errors.Join(errs...)
}

func (s *Simulation) buildNode(id int) (*node.Node, error) {
	t, err := s.bind(id)
	if err != nil {
		return nil, err
	}

	sink, err := trace.Create(
		filepath.Join(s.builder.outputDir, trace.FileName(id)))
	if err != nil {
		t.Close()
		return nil, err
	}

	b := node.MakeBuilder().
		WithTickRate(s.tickRates[id]).
		WithDuration(s.builder.duration).
		WithInternalEventRange(s.builder.internalMin, s.builder.internalMax).
		WithPollTimeout(s.builder.pollTimeout).
		WithTransport(t).
		WithTrace(sink)

	if s.builder.seed != 0 {
		b = b.WithActionSource(
			rand.New(rand.NewSource(s.seed + int64(id) + 1)))
	}

	n := b.Build(id)
	if s.builder.eventLogger != nil {
		n.AcceptHook(node.NewEventLogger(s.builder.eventLogger))
	}

	return n, nil
}

func (s *Simulation) bind(id int) (transport.Transport, error) {
	port := s.builder.basePort
	if port != 0 {
		port += id
	}

	if s.builder.network != nil {
		addr := fmt.Sprintf("%s:%d", s.builder.host, port)
		return s.builder.network.Join(addr)
	}

	return transport.ListenUDP(s.builder.host, port)
}

// connect gives every node the addresses of all the others, ordered by id.
func (s *Simulation) connect(nodes []*node.Node) {
	for _, n := range nodes {
		peers := make([]node.Peer, 0, len(nodes)-1)

		for _, other := range nodes {
			if other == n {
				continue
			}

			peers = append(peers, node.Peer{ID: other.ID(), Addr: other.Addr()})
		}

		n.SetPeers(peers)
	}
}

func (s *Simulation) startServices(nodes []*node.Node) error {
	if s.builder.recorderOn {
		err := s.startRecording(nodes)
		if err != nil {
			return err
		}
	}

	if s.builder.monitorOn {
		err := s.startMonitor(nodes)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Simulation) startRecording(nodes []*node.Node) error {
	w, err := datarecording.New(s.recorderPath)
	if err != nil {
		return fmt.Errorf("start data recorder: %w", err)
	}

	s.dataRecorder = w

	exec := datarecording.NewExecRecorder(s.id, w)
	exec.Start()
	exec.Property("Run ID", s.id)
	exec.Property("Seed", strconv.FormatInt(s.seed, 10))
	exec.Property("Duration", s.builder.duration.String())
	exec.Property("Node Count", strconv.Itoa(len(s.tickRates)))
	exec.Property("Output Directory", s.builder.outputDir)
	exec.End()

	events := datarecording.NewEventRecorder(s.id, w)
	for _, n := range nodes {
		events.RecordNode(n)
	}

	return nil
}

func (s *Simulation) startMonitor(nodes []*node.Node) error {
	s.monitor = monitoring.NewMonitor()
	if s.builder.monitorPort > 0 {
		s.monitor.WithPortNumber(s.builder.monitorPort)
	}

	for _, n := range nodes {
		s.monitor.RegisterNode(n)
	}

	err := s.monitor.StartServer()
	if err != nil {
		return err
	}

	if s.builder.openBrowser {
		err = s.monitor.OpenBrowser()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	return nil
}

// trackProgress reports the elapsed seconds of the run on a progress bar.
func (s *Simulation) trackProgress(ctx context.Context) (stop func()) {
	if s.monitor == nil {
		return func() {}
	}

	total := uint64(s.builder.duration / time.Second)
	bar := s.monitor.CreateProgressBar("Run "+s.id, total)
	start := time.Now()
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				bar.SetFinished(uint64(time.Since(start) / time.Second))
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		s.monitor.CompleteProgressBar(bar)
	}
}

func (s *Simulation) stopServices() {
	if s.dataRecorder != nil {
		s.dataRecorder.Close()
	}

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := s.monitor.StopServer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop monitor: %v\n", err)
		}
	}
}

// abort releases the nodes that were built but never started.
func (s *Simulation) abort(nodes []*node.Node) {
	for _, n := range nodes {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_ = n.Run(ctx)
	}

	s.stopServices()
}
