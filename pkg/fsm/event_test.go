package fsm

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvent_WaitBlocksUntilDone(t *testing.T) {
	e := NewEvent()
	var waited int32

	done := make(chan struct{})
	go func() {
		e.Wait()
		atomic.StoreInt32(&waited, 1)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&waited))

	e.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Done")
	}
	assert.True(t, e.IsDone())
}

func TestEvent_DoneIsIdempotent(t *testing.T) {
	e := NewEvent()
	e.Done()
	e.Done() // must not panic or deadlock
	assert.True(t, e.IsDone())
}

func TestEvent_WaitReturnsImmediatelyIfAlreadyDone(t *testing.T) {
	e := NewEvent()
	e.Done()
	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked despite event already done")
	}
}

func TestStateMachineEvent_ImplementsReflectiveEvent(t *testing.T) {
	ev := &StateMachineEvent{}
	var _ ReflectiveEvent = ev
	ev.setTarget("abc")
	assert.Equal(t, smHandle("abc"), ev.target())
	assert.False(t, ev.base().IsDone())
}
