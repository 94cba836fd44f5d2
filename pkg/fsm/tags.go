package fsm

import "reflect"

// CodingMode selects how a concrete reflective FSM's dispatch table is
// discovered. Automatic (the default) infers it from method-naming
// conventions; WithAttributes uses an explicit registration method,
// since Go methods -- unlike fields -- carry no tags to introspect.
type CodingMode int

const (
	// Automatic discovers handlers from method names following
	// "<StateName>_EntryState", "<StateName>_ExitState" and
	// "<StateName>_<anything>(event)" conventions.
	Automatic CodingMode = iota
	// WithAttributes discovers handlers from an explicit SMDescribe
	// registration, bypassing naming entirely.
	WithAttributes
)

// CodingModeSelector lets a concrete FSM opt into WithAttributes mode.
// Its absence defaults the class to Automatic.
type CodingModeSelector interface {
	SMCodingMode() CodingMode
}

// StateNamer supplies the canonical name for every integer value a
// reflective FSM's state field can hold. Go has no runtime reflection
// over enum members (unlike the source system this engine replaces), so
// every class with a state field implements it once; classInfoFor
// rejects such a class without it, in either coding mode.
type StateNamer interface {
	SMStateNames() map[int]string
}

// HandlerExcluder lets a concrete FSM exclude public methods that would
// otherwise accidentally match a handler signature -- the Go substitute
// for a per-method [SMNoHandler] tag, which methods cannot carry.
type HandlerExcluder interface {
	SMNoHandler() []string
}

// AttributedFSM is implemented by classes using WithAttributes mode to
// register their dispatch table explicitly instead of by naming
// convention.
type AttributedFSM interface {
	SMDescribe(b *HandlerBuilder)
}

type handlerSpec struct {
	state      string // "" for class-level (any-state) handlers
	eventType  reflect.Type
	methodName string
}

// HandlerBuilder collects WithAttributes-mode registrations. Entries are
// resolved to unbound reflect.Methods once, at class-info build time, so
// registration must name methods rather than close over a specific
// instance -- the class-info cache is shared by every instance of the
// type.
type HandlerBuilder struct {
	transitions    []handlerSpec
	classHandlers  []handlerSpec
	entries        map[string]string
	exits          map[string]string
	defaultByState map[string]string
}

func newHandlerBuilder() *HandlerBuilder {
	return &HandlerBuilder{
		entries:        make(map[string]string),
		exits:          make(map[string]string),
		defaultByState: make(map[string]string),
	}
}

// Transition registers methodName as the handler for state on the event
// type of eventExemplar (a pointer to a zero-value instance of the
// concrete event struct, used only to recover its reflect.Type).
func (b *HandlerBuilder) Transition(state string, eventExemplar ReflectiveEvent, methodName string) *HandlerBuilder {
	b.transitions = append(b.transitions, handlerSpec{state: state, eventType: reflect.TypeOf(eventExemplar), methodName: methodName})
	return b
}

// DefaultTransition registers methodName as state's default transition,
// fired when no event-keyed transition matches; it takes precedence over
// class-level handlers.
func (b *HandlerBuilder) DefaultTransition(state, methodName string) *HandlerBuilder {
	b.defaultByState[state] = methodName
	return b
}

// StateEntry registers methodName as state's entry handler.
func (b *HandlerBuilder) StateEntry(state, methodName string) *HandlerBuilder {
	b.entries[state] = methodName
	return b
}

// StateExit registers methodName as state's exit handler.
func (b *HandlerBuilder) StateExit(state, methodName string) *HandlerBuilder {
	b.exits[state] = methodName
	return b
}

// EventHandler registers methodName as a class-level (any-state) handler
// for the event type of eventExemplar, used when neither a per-state
// transition nor a default transition matched.
func (b *HandlerBuilder) EventHandler(eventExemplar ReflectiveEvent, methodName string) *HandlerBuilder {
	b.classHandlers = append(b.classHandlers, handlerSpec{eventType: reflect.TypeOf(eventExemplar), methodName: methodName})
	return b
}
