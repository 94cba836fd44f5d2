package fsm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const evNext EventID = 1
const evGlobalReset EventID = 2

// trafficLight is a three-state definition-runner implementation: each
// evNext advances Red -> Green -> Yellow -> Red, and a global reset runs
// ToReset as a self-loop in whichever state is current.
type trafficLight struct {
	mu      sync.Mutex
	entries []string
}

func (t *trafficLight) record(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, s)
}

func (t *trafficLight) log() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.entries...)
}

func (t *trafficLight) RedStateEntry()    { t.record("enter:Red") }
func (t *trafficLight) RedStateExit()     { t.record("exit:Red") }
func (t *trafficLight) GreenStateEntry()  { t.record("enter:Green") }
func (t *trafficLight) GreenStateExit()   { t.record("exit:Green") }
func (t *trafficLight) YellowStateEntry() { t.record("enter:Yellow") }
func (t *trafficLight) YellowStateExit()  { t.record("exit:Yellow") }
func (t *trafficLight) ToReset()          { t.record("action:ToReset") }

func trafficDefinition() *Definition {
	d := NewDefinition("Red")
	d.AddTransition("Red", "Green", evNext, "")
	d.AddTransition("Green", "Yellow", evNext, "")
	d.AddTransition("Yellow", "Red", evNext, "")
	d.AddGlobalEvent(evGlobalReset, "ToReset")
	return d
}

func TestDefinitionRunner_AdvancesOneStatePerEvent(t *testing.T) {
	impl := &trafficLight{}
	r, err := NewDefinitionRunner("traffic", trafficDefinition(), impl)
	require.NoError(t, err)
	defer func() { r.Stop(); r.Dispose() }()

	require.Equal(t, "Red", r.CurrentState())

	var seen []string
	r.OnStateChanged(func(s string) { seen = append(seen, s) })

	require.True(t, r.PushEvent(evNext))
	require.True(t, r.PushEvent(evNext))
	require.True(t, r.PushEvent(evNext))

	r.Stop()
	r.Dispose()

	assert.Equal(t, []string{"Green", "Yellow", "Red"}, seen)
	log := impl.log()
	assert.Contains(t, log, "exit:Red")
	assert.Contains(t, log, "enter:Green")
	assert.Contains(t, log, "exit:Yellow")
	assert.Contains(t, log, "enter:Red")
}

func TestDefinitionRunner_GlobalEventRunsActionFromAnyState(t *testing.T) {
	impl := &trafficLight{}
	r, err := NewDefinitionRunner("traffic", trafficDefinition(), impl)
	require.NoError(t, err)
	defer func() { r.Stop(); r.Dispose() }()

	r.PushEvent(evNext) // Red -> Green
	r.PushEvent(evGlobalReset)

	r.Stop()
	r.Dispose()

	// evGlobalReset has no per-state handler of its own, so the global
	// event installs a same-state self loop: the action runs, the state
	// itself does not change.
	assert.Equal(t, "Green", r.CurrentState())
	assert.Contains(t, impl.log(), "action:ToReset")
}

// selfLoopingIdle has a single state whose default transition points to
// itself with a counting Noop action: the forward-progress guard in
// dispatchOne must still let a pushed event return instead of looping
// forever, running the default exactly once.
type selfLoopingIdle struct {
	hits int
}

func (s *selfLoopingIdle) Noop() { s.hits++ }

func TestDefinitionRunner_DefaultSelfLoopTerminates(t *testing.T) {
	impl := &selfLoopingIdle{}
	d := NewDefinition("Idle")
	d.AddDefaultTransition("Idle", "Idle", "Noop")
	r, err := NewDefinitionRunner("looper", d, impl)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r.PushEvent(999) // no keyed transition for 999 anywhere: falls through to the default
		r.Stop()
		r.Dispose()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("default self-loop did not terminate: forward-progress guard failed")
	}

	assert.Equal(t, 1, impl.hits)
}

func TestDefinitionRunner_RejectsUnknownHandler(t *testing.T) {
	impl := &trafficLight{}
	d := NewDefinition("Red")
	d.AddTransition("Red", "Green", evNext, "DoesNotExist")
	_, err := NewDefinitionRunner("bad", d, impl)
	require.Error(t, err)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "HandlerNotFound", cfgErr.Kind)
}

func TestDefinitionRunner_PushEventFalseAfterStop(t *testing.T) {
	impl := &trafficLight{}
	r, err := NewDefinitionRunner("traffic", trafficDefinition(), impl)
	require.NoError(t, err)

	r.Stop()
	r.Dispose()

	assert.False(t, r.PushEvent(evNext))
}
