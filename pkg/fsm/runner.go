package fsm

import (
	"fmt"
	"reflect"
	"sync"
)

// boundTransition is a Transition with its action already resolved to a
// callable bound to the implementation object.
type boundTransition struct {
	to     string
	action reflect.Value // zero Value if the transition carries no action
	name   string        // for diagnostics/panics
}

// runnerState is the per-state dispatch entry built once at construction.
type runnerState struct {
	name              string
	entry             reflect.Value
	exit              reflect.Value
	transitions       map[EventID]*boundTransition
	defaultTransition *boundTransition
}

// RunnerOption configures a DefinitionRunner at construction time.
type RunnerOption func(*DefinitionRunner)

// WithRunnerLogger overrides the runner's diagnostic sink.
func WithRunnerLogger(l Logger) RunnerOption {
	return func(r *DefinitionRunner) { r.log = l }
}

// WithRunnerQueueSize sets the FIFO event queue's buffer size (default 64).
func WithRunnerQueueSize(n int) RunnerOption {
	return func(r *DefinitionRunner) { r.queueSize = n }
}

// DefinitionRunner hosts exactly one FSM instance built from a
// Definition, dispatched on a single dedicated worker goroutine. It is
// the definition-driven counterpart to the reflective Processor: the
// state graph is supplied as data rather than discovered from method
// names.
type DefinitionRunner struct {
	name string
	def  *Definition
	impl interface{}
	log  Logger

	states  map[string]*runnerState
	current string

	queueSize int
	queue     chan EventID

	mu                sync.Mutex
	shutdownRequested bool
	onStateChanged    []func(string)

	started chan struct{}
	stopped chan struct{}
	fatal   error
}

// NewDefinitionRunner validates def, binds every entry/exit/action name
// against impl's exported methods, and starts the worker goroutine.
// Binding failures are returned as a ConfigError and no goroutine is
// started.
func NewDefinitionRunner(name string, def *Definition, impl interface{}, opts ...RunnerOption) (*DefinitionRunner, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}

	r := &DefinitionRunner{
		name:      name,
		def:       def,
		impl:      impl,
		log:       DefaultLogger(),
		queueSize: 64,
		started:   make(chan struct{}),
		stopped:   make(chan struct{}),
		current:   def.FirstState,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.build(); err != nil {
		return nil, err
	}

	r.queue = make(chan EventID, r.queueSize)
	go r.loop()
	<-r.started // handshake: worker is live before the constructor returns
	return r, nil
}

func (r *DefinitionRunner) build() error {
	implVal := reflect.ValueOf(r.impl)

	r.states = make(map[string]*runnerState, len(r.def.States))
	for _, s := range r.def.States {
		rs := &runnerState{name: s.Name, transitions: make(map[EventID]*boundTransition)}
		if m := implVal.MethodByName(s.Name + "StateEntry"); m.IsValid() {
			if err := checkNiladicHandler(m, s.Name+"StateEntry"); err != nil {
				return err
			}
			rs.entry = m
		}
		if m := implVal.MethodByName(s.Name + "StateExit"); m.IsValid() {
			if err := checkNiladicHandler(m, s.Name+"StateExit"); err != nil {
				return err
			}
			rs.exit = m
		}
		r.states[s.Name] = rs
	}

	bind := func(actionName string) (reflect.Value, error) {
		if actionName == "" {
			return reflect.Value{}, nil
		}
		m := implVal.MethodByName(actionName)
		if !m.IsValid() {
			return reflect.Value{}, newConfigError("HandlerNotFound", fmt.Sprintf("action %q not found on implementation object", actionName))
		}
		if err := checkNiladicHandler(m, actionName); err != nil {
			return reflect.Value{}, err
		}
		return m, nil
	}

	for _, t := range r.def.Transitions {
		action, err := bind(t.ActionName)
		if err != nil {
			return err
		}
		bt := &boundTransition{to: t.To, action: action, name: t.ActionName}
		st := r.states[t.From]
		if t.EventID == EventDefault {
			if st.defaultTransition != nil {
				return newConfigErrorAt("DuplicateHandler", "state already has a default transition", t.From, int(t.EventID))
			}
			st.defaultTransition = bt
			continue
		}
		if _, exists := st.transitions[t.EventID]; exists {
			return newConfigErrorAt("DuplicateHandler", "state already has a transition for this event", t.From, int(t.EventID))
		}
		st.transitions[t.EventID] = bt
	}

	for _, g := range r.def.GlobalEvents {
		action, err := bind(g.ActionName)
		if err != nil {
			return err
		}
		for name, st := range r.states {
			if _, exists := st.transitions[g.EventID]; exists {
				continue // state already defines its own handler for this event
			}
			st.transitions[g.EventID] = &boundTransition{to: name, action: action, name: g.ActionName}
		}
	}

	return nil
}

func checkNiladicHandler(m reflect.Value, name string) error {
	t := m.Type()
	if t.NumIn() != 0 || t.NumOut() != 0 {
		return newConfigError("MalformedSignature", fmt.Sprintf("handler %q must take no arguments and return nothing", name))
	}
	return nil
}

// OnStateChanged registers a subscriber notified synchronously between
// the transition action and the new state's entry handler, on every
// transition this runner executes.
func (r *DefinitionRunner) OnStateChanged(fn func(newState string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChanged = append(r.onStateChanged, fn)
}

// CurrentState returns the runner's current state name. Diagnostics only
// -- racy with respect to in-flight dispatch by design.
func (r *DefinitionRunner) CurrentState() string {
	return r.current
}

// PushEvent enqueues id for dispatch. It returns false without enqueuing
// if Stop has already been called.
func (r *DefinitionRunner) PushEvent(id EventID) bool {
	r.mu.Lock()
	if r.shutdownRequested {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	select {
	case r.queue <- id:
		return true
	case <-r.stopped:
		return false
	}
}

// Stop requests an orderly shutdown: every event in def.ShutdownEvents is
// enqueued in order, followed by the terminate sentinel. Dispose should
// be called afterwards to join the worker.
func (r *DefinitionRunner) Stop() {
	r.mu.Lock()
	if r.shutdownRequested {
		r.mu.Unlock()
		return
	}
	r.shutdownRequested = true
	r.mu.Unlock()

	for _, id := range r.def.ShutdownEvents {
		r.queue <- id
	}
	r.queue <- EventTerminate
}

// Dispose blocks until the worker goroutine has exited. Call Stop first;
// Dispose alone does not request shutdown.
func (r *DefinitionRunner) Dispose() {
	<-r.stopped
}

// Err returns the handler panic that terminated the runner, if any.
func (r *DefinitionRunner) Err() error {
	return r.fatal
}

func (r *DefinitionRunner) loop() {
	close(r.started)
	defer close(r.stopped)

	for {
		ev, ok := <-r.queue
		if !ok {
			return
		}
		if ev == EventTerminate {
			return
		}
		if !r.dispatchOne(ev) {
			return // handler panicked; runner is terminating
		}
	}
}

// dispatchOne runs the inner transition loop for a single popped event.
// It returns false if a handler panicked, in which case the panic has
// already been logged and stashed in r.fatal.
func (r *DefinitionRunner) dispatchOne(ev EventID) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fatal = HandlerError{FSM: r.name, HandlerName: "transition", Cause: rec}
			r.log.handlerPanic(r.name, "transition", rec)
			ok = false
		}
	}()

	visitedDefaults := make(map[string]bool)
	for {
		state := r.current
		st := r.states[state]

		if t, found := st.transitions[ev]; found {
			r.runTransition(st, t)
			ev = eventInvalid
		} else if st.defaultTransition != nil && !visitedDefaults[state] {
			visitedDefaults[state] = true
			r.runTransition(st, st.defaultTransition)
			continue
		} else {
			ev = eventInvalid
		}

		for {
			state = r.current
			st = r.states[state]
			if st.defaultTransition == nil || visitedDefaults[state] {
				break
			}
			visitedDefaults[state] = true
			r.runTransition(st, st.defaultTransition)
		}

		if ev == eventInvalid {
			return true
		}
	}
}

// runTransition executes exit(current) -> action -> state assignment ->
// StateChanged notification -> entry(new), in that fixed order.
func (r *DefinitionRunner) runTransition(from *runnerState, t *boundTransition) {
	if from.exit.IsValid() {
		from.exit.Call(nil)
	}
	if t.action.IsValid() {
		t.action.Call(nil)
	}
	r.current = t.to
	r.fireStateChanged(t.to)
	to := r.states[t.to]
	if to.entry.IsValid() {
		to.entry.Call(nil)
	}
}

func (r *DefinitionRunner) fireStateChanged(newState string) {
	r.log.stateChanged(r.name, newState)
	r.mu.Lock()
	subs := append([]func(string){}, r.onStateChanged...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(newState)
	}
}
