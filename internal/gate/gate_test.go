package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientOpsProceedWhenNotRebalancing(t *testing.T) {
	g := New()
	done := make(chan struct{})
	go func() {
		g.EnterClient()
		g.LeaveClient()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnterClient blocked with no rebalance in effect")
	}
}

func TestBeginExclusiveWaitsForInFlight(t *testing.T) {
	g := New()
	g.EnterClient() // simulate one in-flight STORE

	began := make(chan struct{})
	go func() {
		g.BeginExclusive()
		close(began)
	}()

	select {
	case <-began:
		t.Fatal("BeginExclusive returned before in-flight op left")
	case <-time.After(100 * time.Millisecond):
	}

	g.LeaveClient()

	select {
	case <-began:
	case <-time.After(time.Second):
		t.Fatal("BeginExclusive never returned after in-flight op left")
	}
}

func TestClientBlocksDuringExclusiveAndWakesOnEnd(t *testing.T) {
	g := New()
	g.BeginExclusive()
	assert.True(t, g.Rebalancing())

	entered := make(chan struct{})
	go func() {
		g.EnterClient()
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("EnterClient proceeded while rebalancing")
	case <-time.After(100 * time.Millisecond):
	}

	g.EndExclusive()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("EnterClient never woke after EndExclusive")
	}
}

func TestWaitReadableDoesNotCountAsInFlight(t *testing.T) {
	g := New()
	g.WaitReadable() // should return immediately, not rebalancing

	began := make(chan struct{})
	go func() {
		g.BeginExclusive()
		close(began)
	}()

	select {
	case <-began:
	case <-time.After(time.Second):
		t.Fatal("BeginExclusive blocked on a WaitReadable caller")
	}
}
