package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sOpen    = State{"open"}
	sRunning = State{"running"}
	sPassed  = State{"passed"}
)

func TestHistoryAppendOnly(t *testing.T) {
	m := New(sOpen)
	m.Set(sRunning)
	m.Set(sPassed)

	h := m.History()
	require.Len(t, h, 3)
	assert.Equal(t, "open", h[0].State)
	assert.Equal(t, "running", h[1].State)
	assert.Equal(t, "passed", h[2].State)
	assert.Equal(t, sPassed, m.Current())
}

func TestWaitForWakesOnSet(t *testing.T) {
	m := New(sOpen)
	done := make(chan struct{})
	woke := make(chan bool, 1)

	go func() {
		woke <- m.WaitFor(done, func(s State) bool { return s.Is(sPassed) })
	}()

	time.Sleep(10 * time.Millisecond)
	m.Set(sRunning)
	m.Set(sPassed)

	select {
	case ok := <-woke:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not wake up")
	}
}

func TestWaitForReturnsFalseOnDone(t *testing.T) {
	m := New(sOpen)
	done := make(chan struct{})
	close(done)

	ok := m.WaitFor(done, func(s State) bool { return s.Is(sPassed) })
	assert.False(t, ok)
}

func TestWaitForImmediateIfAlreadySatisfied(t *testing.T) {
	m := New(sPassed)
	done := make(chan struct{})
	ok := m.WaitFor(done, func(s State) bool { return s.Is(sPassed) })
	assert.True(t, ok)
}
