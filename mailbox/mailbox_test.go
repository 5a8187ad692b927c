package mailbox_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clocksim/hooking"
	"github.com/sarchlab/clocksim/mailbox"
)

var _ = Describe("Mailbox", func() {
	var mb *mailbox.Mailbox

	BeforeEach(func() {
		mb = mailbox.New("Machine0.Mailbox")
	})

	It("should report empty", func() {
		_, remaining, ok := mb.TryPop()
		Expect(ok).To(BeFalse())
		Expect(remaining).To(Equal(0))
		Expect(mb.Depth()).To(Equal(0))
	})

	It("should pop in arrival order", func() {
		mb.Push(mailbox.Message{Value: 3, Source: "127.0.0.1:5001"})
		mb.Push(mailbox.Message{Value: 1, Source: "127.0.0.1:5002"})
		Expect(mb.Depth()).To(Equal(2))

		msg, remaining, ok := mb.TryPop()
		Expect(ok).To(BeTrue())
		Expect(msg.Value).To(Equal(uint64(3)))
		Expect(msg.Source).To(Equal("127.0.0.1:5001"))
		Expect(remaining).To(Equal(1))

		msg, remaining, ok = mb.TryPop()
		Expect(ok).To(BeTrue())
		Expect(msg.Value).To(Equal(uint64(1)))
		Expect(remaining).To(Equal(0))
	})

	It("should grow without bound", func() {
		for i := 0; i < 10000; i++ {
			mb.Push(mailbox.Message{Value: uint64(i)})
		}

		Expect(mb.Depth()).To(Equal(10000))
	})

	It("should accept concurrent pushes", func() {
		wg := sync.WaitGroup{}
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 250; j++ {
					mb.Push(mailbox.Message{Value: uint64(j)})
				}
			}()
		}
		wg.Wait()

		Expect(mb.Depth()).To(Equal(1000))
	})

	It("should invoke hooks on push and pop", func() {
		var positions []*hooking.HookPos
		mb.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			Expect(ctx.Domain).To(BeIdenticalTo(mb))
			positions = append(positions, ctx.Pos)
		}))

		mb.Push(mailbox.Message{Value: 1})
		mb.TryPop()
		mb.TryPop()

		Expect(positions).To(Equal([]*hooking.HookPos{
			mailbox.HookPosPush,
			mailbox.HookPosPop,
		}))
	})
})
