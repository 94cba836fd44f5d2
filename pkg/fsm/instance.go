package fsm

import "reflect"

// Instance is satisfied by any type embedding Base. Processor uses it to
// reach the embedded Base of an admitted FSM without knowing its concrete
// type.
type Instance interface {
	baseRef() *Base
}

// overridableDefault is implemented by a concrete FSM that wants to
// replace Base's default "log and drop" behavior for events matched by
// no transition, default transition or class handler.
type overridableDefault interface {
	OnEventDefault(event ReflectiveEvent)
}

// overridableEntry is implemented by a concrete FSM that wants to run
// its own setup once admission has registered it with its host but
// before EnterFirstState runs its first state's entry handler.
type overridableEntry interface {
	OnEntry()
}

// overridableExit is implemented by a concrete FSM that wants to run
// its own teardown once termination has been requested, before it is
// unregistered from its host.
type overridableExit interface {
	OnExit()
}

// Base is embedded by value in every reflective FSM. It carries the
// bookkeeping a Processor needs to dispatch to the concrete type:  its
// resolved classInfo, its host, its handle and its diagnostic name. Users
// never set these fields directly; Processor populates them at
// admission.
type Base struct {
	self   reflect.Value // pointer to the concrete FSM
	cls    *classInfo
	host   *Processor
	handle smHandle
	name   string
	log    Logger
}

func (b *Base) baseRef() *Base { return b }

// Name returns the diagnostic name this FSM was admitted under.
func (b *Base) Name() string { return b.name }

// Handle returns the stable identity the host Processor assigned on
// admission. Zero value before admission.
func (b *Base) Handle() Handle { return b.handle }

// CurrentStateValue returns the integer value of the state field, or 0
// for a stateless FSM. Diagnostics only.
func (b *Base) CurrentStateValue() int {
	if !b.cls.hasState {
		return 0
	}
	return b.stateInt()
}

// PushEvent targets event at this FSM and forwards it to the host
// Processor's queue. It returns false if the host's worker has already
// exited.
func (b *Base) PushEvent(event ReflectiveEvent) bool {
	event.setTarget(b.handle)
	return b.host.PushEvent(event)
}

// Terminate asks the host Processor to remove this FSM from dispatch
// after any events already queued for it have run.
func (b *Base) Terminate() {
	b.host.TerminateSM(b.handle)
}

// SendTo targets event at an arbitrary handle on the same host -- the
// mechanism a handler uses to forward work to another FSM it shares a
// Processor with.
func (b *Base) SendTo(target Handle, event ReflectiveEvent) bool {
	event.setTarget(target)
	return b.host.PushEvent(event)
}

func (b *Base) stateInt() int {
	f := b.self.Elem().Field(b.cls.stateFieldIndex)
	switch f.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(f.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(f.Uint())
	default:
		return 0
	}
}

// EnterFirstState runs the entry handler, if any, for whatever value the
// state field holds right after construction. The Processor calls this
// exactly once per FSM, immediately after admission and before any
// pushed event is dispatched to it.
func (b *Base) EnterFirstState() {
	if !b.cls.hasState {
		return
	}
	cur := b.stateInt()
	st := b.cls.states[b.cls.stateNames[cur]]
	if st == nil || !st.hasEntry {
		return
	}
	ev := &StateMachineEvent{}
	b.callEntry(st, ev, cur)
	ev.Done()
}

// dispatch runs one reflective event to completion against this FSM and
// marks it done exactly once, whether or not anything handled it. Used
// for ordinary FIFO events, which complete after a single dispatch.
func (b *Base) dispatch(event ReflectiveEvent) {
	defer event.base().Done()
	b.runHandlers(event)
}

// runHandlers is dispatch without the automatic completion signal, for
// callers -- the Processor's timer path -- that decide independently
// whether this fire is the one that marks the event done (a repeating
// timer is done only once its repeat budget is exhausted, not on every
// fire).
func (b *Base) runHandlers(event ReflectiveEvent) {
	eventType := reflect.TypeOf(event)
	cls := b.cls

	if !cls.hasState {
		if h, ok := cls.classHandlers[eventType]; ok {
			b.call(h, event)
			return
		}
		b.fallback(event)
		return
	}

	before := b.stateInt()
	st := cls.states[cls.stateNames[before]]
	if st == nil {
		b.fallback(event)
		return
	}

	if h, ok := st.transitions[eventType]; ok {
		if st.hasExit {
			b.callExit(st, event)
		}
		b.call(h, event)
		after := b.stateInt()
		if after != before {
			if nst := cls.states[cls.stateNames[after]]; nst != nil && nst.hasEntry {
				b.callEntry(nst, event, before)
			}
		} else if st.hasEntry {
			b.callEntry(st, event, before)
		}
		return
	}

	if st.hasDef {
		b.call(st.def, event)
		return
	}

	if h, ok := cls.classHandlers[eventType]; ok {
		b.call(h, event)
		return
	}

	b.fallback(event)
}

// onEntry runs the concrete FSM's OnEntry hook, if it implements one.
// The host calls this once at admission, before EnterFirstState.
func (b *Base) onEntry() {
	if ov, ok := b.self.Interface().(overridableEntry); ok {
		ov.OnEntry()
	}
}

// onExit runs the concrete FSM's OnExit hook, if it implements one.
// The host calls this once at termination, before unregistering the FSM.
func (b *Base) onExit() {
	if ov, ok := b.self.Interface().(overridableExit); ok {
		ov.OnExit()
	}
}

func (b *Base) fallback(event ReflectiveEvent) {
	if ov, ok := b.self.Interface().(overridableDefault); ok {
		ov.OnEventDefault(event)
		return
	}
	b.log.unhandledEvent(b.name, b.cls.stateNames[b.stateInt()], reflect.TypeOf(event).String())
}

func (b *Base) call(m reflect.Method, event ReflectiveEvent) {
	m.Func.Call([]reflect.Value{b.self, reflect.ValueOf(event)})
}

// callEntry and callExit assert the state field is unchanged by the
// handler they invoke: entry and exit handlers observe a state, they do
// not drive further transitions. Both handlers take *StateMachineEvent, so
// a concrete event is passed as its embedded StateMachineEvent.
func (b *Base) callEntry(st *classState, event ReflectiveEvent, prevState int) {
	before := b.stateInt()
	st.entry.Func.Call([]reflect.Value{b.self, baseEventValue(event), reflect.ValueOf(prevState)})
	if after := b.stateInt(); after != before {
		panic(HandlerError{FSM: b.name, HandlerName: st.name + "_EntryState", Cause: "entry handler mutated the state field"})
	}
}

func (b *Base) callExit(st *classState, event ReflectiveEvent) {
	before := b.stateInt()
	st.exit.Func.Call([]reflect.Value{b.self, baseEventValue(event)})
	if after := b.stateInt(); after != before {
		panic(HandlerError{FSM: b.name, HandlerName: st.name + "_ExitState", Cause: "exit handler mutated the state field"})
	}
}

func baseEventValue(event ReflectiveEvent) reflect.Value {
	v := reflect.ValueOf(event)
	if v.Type() == baseEventPtrType {
		return v
	}
	return v.Elem().FieldByName("StateMachineEvent").Addr()
}
