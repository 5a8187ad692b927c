package node

import (
	"bytes"
	"errors"
	"log"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clocksim/hooking"
	"github.com/sarchlab/clocksim/trace"
)

var _ = Describe("EventLogger", func() {
	var (
		buf    *bytes.Buffer
		logger *EventLogger
		n      *Node
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		logger = NewEventLogger(log.New(buf, "", 0))
		n = &Node{name: "Machine2", tickRate: 4}
	})

	It("should log events", func() {
		logger.Func(hooking.HookCtx{
			Domain: n,
			Pos:    HookPosEvent,
			Item: trace.Event{
				WallTime:     time.Unix(10, 0),
				Kind:         trace.KindInternal,
				LogicalClock: 3,
			},
		})

		Expect(buf.String()).To(Equal(
			"Machine2: INTERNAL EVENT - System time: 10.000000, " +
				"Logical clock: 3\n"))
	})

	It("should log the lifecycle", func() {
		logger.Func(hooking.HookCtx{Domain: n, Pos: HookPosStart, Item: n})
		logger.Func(hooking.HookCtx{
			Domain: n, Pos: HookPosStop, Item: n, Detail: errors.New("boom"),
		})

		Expect(buf.String()).To(Equal(
			"Machine2 started, tick rate 4\nMachine2 stopped: boom\n"))
	})

	It("should ignore other domains", func() {
		logger.Func(hooking.HookCtx{Pos: HookPosEvent})

		Expect(buf.Len()).To(BeZero())
	})
})
