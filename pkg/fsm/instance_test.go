package fsm

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PingState is a two-value reflective FSM state enum used across the
// instance and processor tests.
type PingState int

const (
	StateIdle PingState = iota
	StateActive
)

// PingEvent is the concrete reflective event a Pinger reacts to.
type PingEvent struct {
	StateMachineEvent
}

// Pinger is an Automatic-mode reflective FSM: State toggles between Idle
// and Active on every PingEvent, and each transition's entry/exit
// handlers are discovered purely from method names.
type Pinger struct {
	Base
	State PingState
	pings int
}

func (p *Pinger) SMStateNames() map[int]string {
	return map[int]string{int(StateIdle): "Idle", int(StateActive): "Active"}
}

func (p *Pinger) Idle_EntryState(e *StateMachineEvent, prevState int)   {}
func (p *Pinger) Idle_ExitState(e *StateMachineEvent)                   {}
func (p *Pinger) Active_EntryState(e *StateMachineEvent, prevState int) {}
func (p *Pinger) Active_ExitState(e *StateMachineEvent)                 {}

func (p *Pinger) Idle_OnPing(e *PingEvent) {
	p.pings++
	p.State = StateActive
}

func (p *Pinger) Active_OnPing(e *PingEvent) {
	p.pings++
	p.State = StateIdle
}

// OnTick is a class-level (any-state) handler: its name does not start
// with a known state name, so it binds to every TimerEvent regardless of
// which state Pinger is currently in.
func (p *Pinger) OnTick(e *TimerEvent) {
	p.pings++
}

func TestClassInfoFor_AutomaticDiscoversEntryExitAndTransitions(t *testing.T) {
	cls, err := classInfoFor(&Pinger{})
	require.NoError(t, err)
	require.True(t, cls.hasState)

	idle := cls.states["Idle"]
	require.NotNil(t, idle)
	assert.True(t, idle.hasEntry)
	assert.True(t, idle.hasExit)

	pingType := reflect.TypeOf(&PingEvent{})
	_, hasTransition := idle.transitions[pingType]
	assert.True(t, hasTransition)

	active := cls.states["Active"]
	_, activeHasTransition := active.transitions[pingType]
	assert.True(t, activeHasTransition)
}

// mutatingEntry is a malformed FSM whose entry handler changes the state
// field it is only supposed to observe -- Base.callEntry's assertion
// must catch this.
type mutatingEntry struct {
	Base
	State PingState
}

func (m *mutatingEntry) SMStateNames() map[int]string {
	return map[int]string{int(StateIdle): "Idle", int(StateActive): "Active"}
}
func (m *mutatingEntry) Idle_EntryState(e *StateMachineEvent, prevState int) { m.State = StateActive }

func TestBase_EntryHandlerMutatingStateIsRejected(t *testing.T) {
	inst := &mutatingEntry{}
	cls, err := classInfoFor(inst)
	require.NoError(t, err)

	b := &Base{self: reflect.ValueOf(inst), cls: cls, log: DefaultLogger(), name: "bad"}
	st := cls.states["Idle"]
	require.True(t, st.hasEntry)

	assert.Panics(t, func() {
		b.callEntry(st, &StateMachineEvent{}, int(StateIdle))
	})
}

func TestClassInfoFor_MissingStateNamesIsConfigError(t *testing.T) {
	type noNames struct {
		Base
		State PingState
	}
	_, err := classInfoFor(&noNames{})
	require.Error(t, err)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "MissingStateNames", cfgErr.Kind)
}
