package hk_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/hk"
	"github.com/shacorun/shaco/msg"
)

type sink struct{ pushed []msg.Message }

func (s *sink) Push(m msg.Message) { s.pushed = append(s.pushed, m) }

var _ = Describe("Timer", func() {
	var (
		sk *sink
		t  *hk.Timer
	)

	BeforeEach(func() {
		sk = &sink{}
		t = hk.New(sk)
	})

	It("does not fire a one-shot before its deadline", func() {
		t.Add(addr.Make(0, 1), 7, time.Hour)
		t.Trigger()
		Expect(sk.pushed).To(BeEmpty())
	})

	It("fires a one-shot once it is due, echoing the session", func() {
		t.Add(addr.Make(0, 1), 7, 0)
		time.Sleep(time.Millisecond)
		t.Trigger()
		Expect(sk.pushed).To(HaveLen(1))
		Expect(sk.pushed[0].Session).To(Equal(int32(7)))
		Expect(sk.pushed[0].Type).To(Equal(msg.TIMEOUT))
		Expect(sk.pushed[0].Dest).To(Equal(addr.Make(0, 1)))
	})

	It("runs a recurring task repeatedly and Unreg stops it", func() {
		n := 0
		t.Reg("x", 0, func() { n++ })
		time.Sleep(time.Millisecond)
		t.Trigger()
		t.Trigger()
		Expect(n).To(BeNumerically(">=", 2))

		t.Unreg("x")
		before := n
		time.Sleep(time.Millisecond)
		t.Trigger()
		Expect(n).To(Equal(before))
	})

	It("bounds MaxTimeout by the nearest pending deadline", func() {
		t.Add(addr.Make(0, 1), 1, 10*time.Millisecond)
		Expect(t.MaxTimeout()).To(BeNumerically("<=", 10*time.Millisecond))
	})
})
