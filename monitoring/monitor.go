// Package monitoring serves the live state of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/clocksim/clock"
	"github.com/sarchlab/clocksim/mailbox"
	"github.com/sarchlab/clocksim/node"
)

// minPortNumber is the lowest port the monitor can be asked to listen on.
const minPortNumber = 1000

// A MonitoredNode is a node whose state can be shown by the monitor.
type MonitoredNode interface {
	Name() string
	TickRate() int
	Addr() string
	Clock() *clock.Clock
	Mailbox() *mailbox.Mailbox
	Stats() node.Stats
}

// Monitor turns a simulation into a server that reports the state of every
// node while the simulation runs.
type Monitor struct {
	portNumber int
	startTime  time.Time

	nodesLock sync.Mutex
	nodes     []MonitoredNode

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < minPortNumber {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterNode registers a node to be monitored.
func (m *Monitor) RegisterNode(n MonitoredNode) {
	m.nodesLock.Lock()
	defer m.nodesLock.Unlock()

	m.nodes = append(m.nodes, n)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := newProgressBar(name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/list_nodes", m.listNodes)
	r.HandleFunc("/api/node/{name}", m.nodeDetails)
	r.HandleFunc("/api/mailboxes", m.mailboxes)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

func (m *Monitor) listenAddr() string {
	if m.portNumber < minPortNumber {
		return ":0"
	}

	return ":" + strconv.Itoa(m.portNumber)
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() error {
	listener, err := net.Listen("tcp", m.listenAddr())
	if err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", m.URL())

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("monitor server stopped: %v", err)
		}
	}()

	return nil
}

// URL returns the address of the running server.
func (m *Monitor) URL() string {
	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// OpenBrowser opens the monitor page in the default browser.
func (m *Monitor) OpenBrowser() error {
	return browser.OpenURL(m.URL() + "/api/list_nodes")
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.6f}", time.Since(m.startTime).Seconds())
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	m.nodesLock.Lock()
	names := make([]string, 0, len(m.nodes))
	for _, n := range m.nodes {
		names = append(names, n.Name())
	}
	m.nodesLock.Unlock()

	writeJSON(w, names)
}

type nodeState struct {
	Name         string
	Addr         string
	TickRate     int
	LogicalClock uint64
	MailboxDepth int
	Internal     int
	Sends        int
	Receives     int
}

func snapshot(n MonitoredNode) *nodeState {
	stats := n.Stats()

	return &nodeState{
		Name:         n.Name(),
		Addr:         n.Addr(),
		TickRate:     n.TickRate(),
		LogicalClock: n.Clock().Value(),
		MailboxDepth: n.Mailbox().Depth(),
		Internal:     stats.Internal,
		Sends:        stats.Sends,
		Receives:     stats.Receives,
	}
}

func (m *Monitor) nodeDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	n := m.findNodeOr404(w, name)
	if n == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(snapshot(n))
	serializer.SetMaxDepth(1)

	err := serializer.Serialize(w)
	dieOnErr(err)
}

type mailboxLevel struct {
	Mailbox string `json:"mailbox"`
	Level   int    `json:"level"`
}

func (m *Monitor) mailboxes(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := parseMailboxParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	m.nodesLock.Lock()
	levels := make([]mailboxLevel, 0, len(m.nodes))
	for _, n := range m.nodes {
		levels = append(levels, mailboxLevel{
			Mailbox: n.Mailbox().Name(),
			Level:   n.Mailbox().Depth(),
		})
	}
	m.nodesLock.Unlock()

	writeJSON(w, sortAndSelect(levels, sortMethod, limit, offset))
}

func parseMailboxParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "level"
	}

	if sortMethod != "level" && sortMethod != "name" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `name`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return "", 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return "", 0, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(str)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, str)
	}

	return v, nil
}

// sortAndSelect orders the levels and returns the page selected by offset and
// limit. A limit of 0 means no limit.
func sortAndSelect(
	levels []mailboxLevel,
	sortMethod string,
	limit, offset int,
) []mailboxLevel {
	sort.SliceStable(levels, func(i, j int) bool {
		if sortMethod == "name" || levels[i].Level == levels[j].Level {
			return levels[i].Mailbox < levels[j].Mailbox
		}

		return levels[i].Level > levels[j].Level
	})

	if offset >= len(levels) {
		return []mailboxLevel{}
	}

	levels = levels[offset:]
	if limit > 0 && limit < len(levels) {
		levels = levels[:limit]
	}

	return levels
}

func (m *Monitor) findNodeOr404(
	w http.ResponseWriter,
	name string,
) MonitoredNode {
	m.nodesLock.Lock()
	defer m.nodesLock.Unlock()

	for _, n := range m.nodes {
		if n.Name() == name {
			return n
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Node not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	states := make([]progressBarState, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		states = append(states, b.state())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, states)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
