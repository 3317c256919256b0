package h2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlowWindowTakeBlocksUntilAdd(t *testing.T) {
	w := newFlowWindow(0)
	done := make(chan int64, 1)
	go func() {
		n, ok := w.take(100)
		if !ok {
			done <- -1
			return
		}
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("take returned before any window was available")
	case <-time.After(20 * time.Millisecond):
	}

	w.add(50)
	select {
	case n := <-done:
		assert.Equal(t, int64(50), n)
	case <-time.After(time.Second):
		t.Fatal("take never unblocked after add")
	}
}

func TestFlowWindowNegativeAfterSettingsShrink(t *testing.T) {
	w := newFlowWindow(100)
	w.add(-150)
	assert.Equal(t, int64(-50), w.size())

	done := make(chan struct{})
	go func() {
		w.take(1)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("take must not proceed while window is negative")
	case <-time.After(20 * time.Millisecond):
	}
	w.add(60)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("take never unblocked once window went positive")
	}
}

func TestFlowWindowCloseUnblocks(t *testing.T) {
	w := newFlowWindow(0)
	done := make(chan bool, 1)
	go func() {
		_, ok := w.take(1)
		done <- ok
	}()
	w.close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("take never unblocked on close")
	}
}
