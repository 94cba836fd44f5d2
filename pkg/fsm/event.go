package fsm

import (
	"sync"
	"time"
)

// EventID identifies an event for the Definition Runner's transition
// table. Zero and negative values are reserved: 0 selects the default
// transition, -1 is the terminate sentinel, -2 is the "no event pending"
// sentinel used internally by the runner loop. User events must be
// positive.
type EventID int

const (
	// EventDefault selects a state's default transition.
	EventDefault EventID = 0
	// EventTerminate breaks the DefinitionRunner's outer loop.
	EventTerminate EventID = -1
	// eventInvalid marks "no event currently pending" inside the runner's
	// inner loop; never observed by user code.
	eventInvalid EventID = -2
)

// RepeatsInfinite marks a TimerEvent that fires until its FSM terminates
// or the timer is explicitly disabled.
const RepeatsInfinite = -1

// Event is the completion protocol shared by every value a producer can
// push to a Processor or DefinitionRunner. Done is idempotent; Done, Wait
// and IsDone are all safe from any goroutine. The zero value is ready to
// use: the condition variable is created on first need.
type Event struct {
	mu     sync.Mutex
	cond   *sync.Cond
	isDone bool
}

// NewEvent returns a fresh, not-yet-done completion token.
func NewEvent() *Event {
	e := &Event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Done marks the event complete and wakes every waiter. Calling it twice
// has the same observable effect as calling it once.
func (e *Event) Done() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isDone {
		return
	}
	e.isDone = true
	if e.cond != nil {
		e.cond.Broadcast()
	}
}

// Wait blocks until Done has been called at least once. It returns
// immediately if the event is already done, and tolerates spurious
// wakeups.
func (e *Event) Wait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cond == nil {
		e.cond = sync.NewCond(&e.mu)
	}
	for !e.isDone {
		e.cond.Wait()
	}
}

// IsDone reports whether Done has been called.
func (e *Event) IsDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isDone
}

// smHandle is the stable identity a Processor assigns to an admitted FSM,
// replacing identity-hash lookups with an explicit small handle.
type smHandle string

// Handle is the public name for smHandle: callers outside this package
// receive handle values (from Processor.PushSM, in Base.Handle) and pass
// them back to address an admitted FSM.
type Handle = smHandle

// ReflectiveEvent is satisfied by any event type a reflective FSM can
// receive. Concrete event structs embed StateMachineEvent anonymously;
// its presence is both the marker and the completion token. Dispatch
// keys off the concrete event's reflect.Type, never off this interface
// itself.
type ReflectiveEvent interface {
	base() *Event
	target() smHandle
	setTarget(smHandle)
}

// StateMachineEvent is the base every reflective FSM event embeds. It is
// bound to a target FSM by the Processor at enqueue time (push_event),
// not by the caller.
type StateMachineEvent struct {
	Event
	targetHandle smHandle
}

func (e *StateMachineEvent) base() *Event         { return &e.Event }
func (e *StateMachineEvent) target() smHandle     { return e.targetHandle }
func (e *StateMachineEvent) setTarget(h smHandle) { e.targetHandle = h }

// Target addresses event at handle. Processor.PushEvent dispatches by
// whatever target an event already carries, so external callers seeding
// the first event for a freshly admitted FSM -- one with no Base of its
// own to call SendTo from -- use this to set it.
func Target(event ReflectiveEvent, handle Handle) {
	event.setTarget(handle)
}

// TimerEvent is a StateMachineEvent with an absolute expiry and an
// optional repeat count. A timer with Repeats == RepeatsInfinite fires
// until its FSM terminates or the timer is disabled; Repeats == 0 means
// one-shot. The owning Processor changes Expiry, Enabled and Repeats only
// while holding its host lock (see Processor.mu) -- there is
// deliberately no separate mutex here.
type TimerEvent struct {
	StateMachineEvent

	Name    string // for diagnostics only
	Expiry  time.Time
	Period  time.Duration // 0 for a one-shot timer
	Enabled bool
	Repeats int
}

// NewTimerEvent creates a one-shot timer expiring at expiry.
func NewTimerEvent(name string, expiry time.Time) *TimerEvent {
	return &TimerEvent{Name: name, Expiry: expiry, Enabled: true, Repeats: 0}
}

// NewRepeatingTimerEvent creates a timer that fires repeats+1 times (or
// indefinitely if repeats == RepeatsInfinite), the first at firstExpiry
// and subsequent ones spaced by period.
func NewRepeatingTimerEvent(name string, firstExpiry time.Time, period time.Duration, repeats int) *TimerEvent {
	return &TimerEvent{Name: name, Expiry: firstExpiry, Period: period, Enabled: true, Repeats: repeats}
}

// terminateOne asks the host to remove a single FSM from dispatch.
type terminateOne struct {
	targetFSM smHandle
}

// terminateAll asks the host to remove every FSM it hosts.
type terminateAll struct{}

// terminateEngine asks the host's worker loop to exit after draining.
type terminateEngine struct{}
