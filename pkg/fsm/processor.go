package fsm

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcessorOption configures a Processor at construction time.
type ProcessorOption func(*Processor)

// WithProcessorLogger overrides the processor's diagnostic sink.
func WithProcessorLogger(l Logger) ProcessorOption {
	return func(p *Processor) { p.log = l }
}

// admitRequest is the queued job that registers a new FSM with the
// worker. It carries everything classInfoFor and Base need; the handle
// is minted by the caller so it can be returned from PushSM before
// admission has actually run on the worker.
type admitRequest struct {
	handle   smHandle
	name     string
	instance Instance
}

// Processor hosts an arbitrary number of reflective FSM instances on a
// single dedicated worker goroutine, multiplexing a FIFO job queue with a
// time-ordered timer queue -- the many-FSMs-per-thread counterpart to
// DefinitionRunner's one-FSM-per-thread model.
type Processor struct {
	name string
	log  Logger

	mu        sync.Mutex
	queue     []interface{}
	wake      chan struct{}
	timers    timerQueue
	fsms      map[smHandle]Instance
	suspended bool

	started chan struct{}
	stopped chan struct{}
	fatal   error
}

// NewProcessor starts the worker goroutine and blocks until it is live.
func NewProcessor(name string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		name:    name,
		log:     DefaultLogger(),
		wake:    make(chan struct{}, 1),
		fsms:    make(map[smHandle]Instance),
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.loop()
	<-p.started
	return p
}

func (p *Processor) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// PushSM admits instance under name, returning the handle the Processor
// will address it by. Admission -- including running EnterFirstState --
// happens asynchronously on the worker, but strictly before any event
// this caller pushes afterward, since both travel through the same
// ordered queue.
func (p *Processor) PushSM(name string, instance Instance) Handle {
	h := smHandle(uuid.NewString())
	p.mu.Lock()
	p.queue = append(p.queue, admitRequest{handle: h, name: name, instance: instance})
	p.mu.Unlock()
	p.signal()
	return h
}

// PushEvent targets event at its own target handle (set by Base.PushEvent
// or by the caller directly) and enqueues it. It returns false, marking
// event done immediately without dispatch, if the processor's worker has
// already exited.
func (p *Processor) PushEvent(event ReflectiveEvent) bool {
	p.mu.Lock()
	if p.shuttingDown() {
		p.mu.Unlock()
		event.base().Done()
		return false
	}
	if p.dedupTail(event) {
		p.mu.Unlock()
		return true
	}
	p.queue = append(p.queue, event)
	p.mu.Unlock()
	p.signal()
	return true
}

// dedupTail reports whether event is the very same event object as the
// last still-queued item for the same target -- guarding against a
// caller loop that re-posts a shared event it never stopped holding a
// reference to -- not merely an event of the same concrete type.
// Nothing else queued for that target in between. Callers hold p.mu.
func (p *Processor) dedupTail(event ReflectiveEvent) bool {
	for i := len(p.queue) - 1; i >= 0; i-- {
		prev, ok := p.queue[i].(ReflectiveEvent)
		if !ok {
			return false
		}
		if prev.target() != event.target() {
			continue
		}
		return prev == event
	}
	return false
}

func (p *Processor) shuttingDown() bool {
	select {
	case <-p.stopped:
		return true
	default:
		return false
	}
}

// PushTimer enqueues t, targeting the FSM identified by target.
func (p *Processor) PushTimer(t *TimerEvent, target Handle) bool {
	t.setTarget(target)
	p.mu.Lock()
	if p.shuttingDown() {
		p.mu.Unlock()
		return false
	}
	p.timers.push(t)
	p.mu.Unlock()
	p.signal()
	return true
}

// RemoveTimer soft-deletes every pending timer named name targeting
// target.
func (p *Processor) RemoveTimer(target Handle, name string) {
	p.mu.Lock()
	p.timers.disable(target, name)
	p.mu.Unlock()
	p.signal()
}

// TerminateSM asks the worker to drop target from dispatch, disabling
// its pending timers, after any events already queued for it have run.
func (p *Processor) TerminateSM(target Handle) {
	p.mu.Lock()
	p.queue = append(p.queue, terminateOne{targetFSM: target})
	p.mu.Unlock()
	p.signal()
}

// TerminateAll asks the worker to drop every hosted FSM.
func (p *Processor) TerminateAll() {
	p.mu.Lock()
	p.queue = append(p.queue, terminateAll{})
	p.mu.Unlock()
	p.signal()
}

// Suspend pauses dispatch: queued and newly submitted work keeps
// accumulating but nothing runs until Resume is called.
func (p *Processor) Suspend() {
	p.mu.Lock()
	p.suspended = true
	p.mu.Unlock()
}

// Resume un-pauses dispatch.
func (p *Processor) Resume() {
	p.mu.Lock()
	p.suspended = false
	p.mu.Unlock()
	p.signal()
}

// Contains reports whether an event of the same concrete type as
// exemplar, targeting target, is currently sitting in the queue.
func (p *Processor) Contains(target Handle, exemplar ReflectiveEvent) bool {
	want := reflect.TypeOf(exemplar)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, job := range p.queue {
		ev, ok := job.(ReflectiveEvent)
		if ok && ev.target() == target && reflect.TypeOf(ev) == want {
			return true
		}
	}
	return false
}

// Dispose requests an orderly shutdown and blocks until the worker exits.
func (p *Processor) Dispose() {
	p.mu.Lock()
	p.queue = append(p.queue, terminateEngine{})
	p.mu.Unlock()
	p.signal()
	<-p.stopped
}

// Err returns the handler panic that killed the worker, if any.
func (p *Processor) Err() error {
	return p.fatal
}

func (p *Processor) loop() {
	close(p.started)
	defer close(p.stopped)

	for {
		p.mu.Lock()
		if p.suspended {
			p.mu.Unlock()
			<-p.wake
			continue
		}
		if len(p.queue) > 0 {
			job := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			if !p.handleJob(job) {
				return
			}
			continue
		}
		next := p.timers.peek()
		if next == nil {
			p.mu.Unlock()
			<-p.wake
			continue
		}
		d := time.Until(next.Expiry)
		p.mu.Unlock()
		if d <= 0 {
			p.fireDueTimer()
			continue
		}
		t := time.NewTimer(d)
		select {
		case <-p.wake:
			t.Stop()
		case <-t.C:
			p.fireDueTimer()
		}
	}
}

func (p *Processor) fireDueTimer() {
	p.mu.Lock()
	if p.suspended {
		p.mu.Unlock()
		return // the loop re-checks suspended and waits for Resume
	}
	t := p.timers.popHead()
	p.mu.Unlock()
	if t == nil {
		return // raced with a disable/remove between peek and pop
	}
	// Exhaustion is a property of the repeat count this fire observed,
	// not of anything the handler does, so decide it before dispatching.
	exhausted := t.Repeats != RepeatsInfinite && t.Repeats == 0
	p.dispatchTimer(t)
	if exhausted {
		t.Done()
		return
	}
	p.mu.Lock()
	p.timers.reschedule(t, t.Period, time.Now())
	p.mu.Unlock()
}

// dispatchTimer runs a fired timer's handlers without the automatic
// per-dispatch completion signal: fireDueTimer marks it done only once
// its repeat budget is exhausted.
func (p *Processor) dispatchTimer(t *TimerEvent) {
	p.mu.Lock()
	inst, ok := p.fsms[t.target()]
	p.mu.Unlock()
	if !ok {
		p.log.droppedUnknownTarget(p.name, "TimerEvent")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := HandlerError{FSM: inst.baseRef().name, HandlerName: "dispatch", Cause: rec}
			p.fatal = err
			p.log.handlerPanic(inst.baseRef().name, "dispatch", rec)
			panic(err)
		}
	}()
	inst.baseRef().runHandlers(t)
}

// handleJob runs one popped queue item. It returns false when the worker
// should exit.
func (p *Processor) handleJob(job interface{}) bool {
	switch v := job.(type) {
	case admitRequest:
		p.admit(v)
	case ReflectiveEvent:
		p.dispatchTo(v)
	case terminateOne:
		p.mu.Lock()
		inst, ok := p.fsms[v.targetFSM]
		p.mu.Unlock()
		if ok {
			inst.baseRef().onExit()
		}
		p.mu.Lock()
		delete(p.fsms, v.targetFSM)
		p.timers.disableAllFor(v.targetFSM)
		p.mu.Unlock()
		p.log.terminated(p.name, string(v.targetFSM))
	case terminateAll:
		p.mu.Lock()
		fsms := p.fsms
		p.mu.Unlock()
		for _, inst := range fsms {
			inst.baseRef().onExit()
		}
		p.mu.Lock()
		p.fsms = make(map[smHandle]Instance)
		for h := range fsms {
			p.timers.disableAllFor(h)
		}
		p.mu.Unlock()
		for _, inst := range fsms {
			p.log.terminated(p.name, inst.baseRef().name)
		}
	case terminateEngine:
		return false
	}
	return true
}

func (p *Processor) admit(req admitRequest) {
	cls, err := classInfoFor(req.instance)
	if err != nil {
		p.log.handlerPanic(req.name, "admit", err)
		return
	}
	base := req.instance.baseRef()
	base.self = reflect.ValueOf(req.instance)
	base.cls = cls
	base.host = p
	base.handle = req.handle
	base.name = req.name
	base.log = p.log

	p.mu.Lock()
	p.fsms[req.handle] = req.instance
	p.mu.Unlock()

	p.log.admitted(p.name, req.name)
	base.onEntry()
	base.EnterFirstState()
}

func (p *Processor) dispatchTo(event ReflectiveEvent) {
	p.mu.Lock()
	inst, ok := p.fsms[event.target()]
	p.mu.Unlock()
	if !ok {
		p.log.droppedUnknownTarget(p.name, reflect.TypeOf(event).String())
		event.base().Done()
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := HandlerError{FSM: inst.baseRef().name, HandlerName: "dispatch", Cause: rec}
			p.fatal = err
			p.log.handlerPanic(inst.baseRef().name, "dispatch", rec)
			event.base().Done()
			panic(err)
		}
	}()
	inst.baseRef().dispatch(event)
}
