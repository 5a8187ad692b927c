package simulation

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clocksim/datarecording"
	"github.com/sarchlab/clocksim/node"
	"github.com/sarchlab/clocksim/trace"
	"github.com/sarchlab/clocksim/transport"
)

func verifyTrace(dir string, id int) trace.Summary {
	f, err := os.Open(filepath.Join(dir, trace.FileName(id)))
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()

	summary, err := trace.Verify(f)
	Expect(err).NotTo(HaveOccurred())

	return summary
}

var _ = Describe("Builder", func() {
	It("should draw tick rates within the maximum", func() {
		s, err := MakeBuilder().WithNodeCount(20).WithMaxTickRate(6).Build()

		Expect(err).NotTo(HaveOccurred())
		Expect(s.TickRates()).To(HaveLen(20))
		for _, r := range s.TickRates() {
			Expect(r).To(BeNumerically(">=", 1))
			Expect(r).To(BeNumerically("<=", 6))
		}
	})

	It("should draw the same tick rates from the same seed", func() {
		a, err := MakeBuilder().WithNodeCount(10).WithSeed(42).Build()
		Expect(err).NotTo(HaveOccurred())
		b, err := MakeBuilder().WithNodeCount(10).WithSeed(42).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(a.TickRates()).To(Equal(b.TickRates()))
		Expect(a.ID()).NotTo(Equal(b.ID()))
	})

	It("should use a fixed tick rate", func() {
		s, err := MakeBuilder().WithNodeCount(2).WithTickRate(2).Build()

		Expect(err).NotTo(HaveOccurred())
		Expect(s.TickRates()).To(Equal([]int{2, 2}))
	})

	DescribeTable("invalid parameters",
		func(b Builder, target error) {
			s, err := b.Build()

			Expect(s).To(BeNil())
			Expect(errors.Is(err, target)).To(BeTrue())
		},
		Entry("no nodes",
			MakeBuilder().WithNodeCount(0), ErrInvalidConfig),
		Entry("max tick rate zero",
			MakeBuilder().WithMaxTickRate(0), ErrInvalidConfig),
		Entry("negative tick rate",
			MakeBuilder().WithTickRate(-1), ErrInvalidConfig),
		Entry("inverted internal range",
			MakeBuilder().WithInternalEventRange(10, 4), ErrInvalidConfig),
		Entry("last port out of range",
			MakeBuilder().WithBasePort(65534).WithNodeCount(3),
			transport.ErrPortOutOfRange),
		Entry("negative base port",
			MakeBuilder().WithBasePort(-1), transport.ErrPortOutOfRange),
	)
})

var _ = Describe("Simulation", func() {
	var (
		dir     string
		network *transport.Network
	)

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), "logs")
		network = transport.NewNetwork()
	})

	It("should run two nodes to completion", func() {
		s, err := MakeBuilder().
			WithDuration(2 * time.Second).
			WithNodeCount(2).
			WithTickRate(2).
			WithOutputDir(dir).
			WithNetwork(network).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background())).To(Succeed())

		for id := 0; id < 2; id++ {
			summary := verifyTrace(dir, id)
			Expect(summary.Started).To(BeTrue())
			Expect(summary.Shutdown).To(BeTrue())
			Expect(summary.Events).To(BeNumerically(">=", 1))
		}
	})

	It("should wire every node to all the others", func() {
		s, err := MakeBuilder().
			WithDuration(100 * time.Millisecond).
			WithNodeCount(3).
			WithOutputDir(dir).
			WithNetwork(network).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background())).To(Succeed())

		nodes := s.Nodes()
		Expect(nodes).To(HaveLen(3))
		Expect(nodes[1].Peers()).To(Equal([]node.Peer{
			{ID: 0, Addr: "localhost:5000"},
			{ID: 2, Addr: "localhost:5002"},
		}))
	})

	It("should give every node its own port when the base port is 0", func() {
		s, err := MakeBuilder().
			WithDuration(100 * time.Millisecond).
			WithNodeCount(3).
			WithBasePort(0).
			WithOutputDir(dir).
			WithNetwork(network).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background())).To(Succeed())

		nodes := s.Nodes()
		Expect(nodes).To(HaveLen(3))
		Expect(nodes[0].Peers()).To(Equal([]node.Peer{
			{ID: 1, Addr: "localhost:49153"},
			{ID: 2, Addr: "localhost:49154"},
		}))
	})

	It("should isolate a node that cannot bind", func() {
		taken, err := network.Join("localhost:5001")
		Expect(err).NotTo(HaveOccurred())
		defer taken.Close()

		s, err := MakeBuilder().
			WithDuration(200 * time.Millisecond).
			WithNodeCount(3).
			WithOutputDir(dir).
			WithNetwork(network).
			Build()
		Expect(err).NotTo(HaveOccurred())

		err = s.Run(context.Background())

		Expect(err).To(MatchError(ContainSubstring("node 1")))
		Expect(s.Nodes()).To(HaveLen(2))
		Expect(s.Nodes()[0].Peers()).To(Equal([]node.Peer{
			{ID: 2, Addr: "localhost:5002"},
		}))
		Expect(verifyTrace(dir, 0).Shutdown).To(BeTrue())
		Expect(verifyTrace(dir, 2).Shutdown).To(BeTrue())
		Expect(filepath.Join(dir, trace.FileName(1))).NotTo(BeAnExistingFile())
	})

	It("should stop when cancelled", func() {
		s, err := MakeBuilder().
			WithDuration(time.Minute).
			WithNodeCount(2).
			WithOutputDir(dir).
			WithNetwork(network).
			Build()
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(
			context.Background(), 300*time.Millisecond)
		defer cancel()

		start := time.Now()
		Expect(s.Run(ctx)).To(Succeed())
		Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))
		Expect(verifyTrace(dir, 1).Shutdown).To(BeTrue())
	})

	It("should exchange clocks over UDP", func() {
		s, err := MakeBuilder().
			WithDuration(time.Second).
			WithNodeCount(2).
			WithTickRate(5).
			WithHost("127.0.0.1").
			WithBasePort(0).
			WithOutputDir(dir).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background())).To(Succeed())

		for id := 0; id < 2; id++ {
			summary := verifyTrace(dir, id)
			Expect(summary.Shutdown).To(BeTrue())
			Expect(summary.Events).To(BeNumerically(">=", 1))
		}
	})

	It("should record events into a database", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "events")

		s, err := MakeBuilder().
			WithDuration(500 * time.Millisecond).
			WithNodeCount(2).
			WithTickRate(4).
			WithOutputDir(dir).
			WithNetwork(network).
			WithDataRecorder(dbPath).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(s.RecorderFileName()).To(Equal(dbPath + ".sqlite3"))

		db, err := sql.Open("sqlite3", s.RecorderFileName())
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var count int
		err = db.QueryRow(
			"SELECT COUNT(*) FROM " + datarecording.NodeTable).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))

		var events int
		err = db.QueryRow(
			"SELECT COUNT(*) FROM " + datarecording.EventTable).Scan(&events)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(Equal(
			verifyTrace(dir, 0).Events + verifyTrace(dir, 1).Events))
	})

	It("should print events when asked to", func() {
		buf := new(bytes.Buffer)

		s, err := MakeBuilder().
			WithDuration(300 * time.Millisecond).
			WithNodeCount(2).
			WithTickRate(10).
			WithOutputDir(dir).
			WithNetwork(network).
			WithEventLogger(log.New(buf, "", 0)).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("Machine0 started"))
		Expect(buf.String()).To(ContainSubstring("Machine1 stopped"))
		Expect(buf.String()).To(MatchRegexp(`Machine\d: (INTERNAL|SEND|RECEIVE)`))
	})

	It("should serve a monitor while running", func() {
		s, err := MakeBuilder().
			WithDuration(200 * time.Millisecond).
			WithNodeCount(2).
			WithOutputDir(dir).
			WithNetwork(network).
			WithMonitor(0).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background())).To(Succeed())
		Expect(s.GetMonitor()).NotTo(BeNil())
		Expect(s.GetMonitor().URL()).To(HavePrefix("http://localhost:"))
	})
})
