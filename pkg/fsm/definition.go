package fsm

import "fmt"

// State is a named node in a Definition's state graph.
type State struct {
	Name string
}

// Transition is a (from, event, action, to) rule. EventDefault (0) marks
// the default transition for From; it fires when no event-keyed
// transition matched the current event and is re-checked after every
// transition while the new state still has one.
type Transition struct {
	From       string
	To         string
	EventID    EventID
	ActionName string
}

// AllStateEvent installs a self-loop transition for EventID on every
// state that does not already define a handler for it ("global" or
// "any-state" event).
type AllStateEvent struct {
	EventID    EventID
	ActionName string
}

// Definition is the declarative description consumed by a
// DefinitionRunner: states, transitions, global events and the sequence
// of events a shutdown should post before the terminate sentinel.
type Definition struct {
	FirstState     string
	States         []State
	Transitions    []Transition
	GlobalEvents   []AllStateEvent
	ShutdownEvents []EventID
}

// NewDefinition returns an empty Definition builder seeded with
// firstState as FirstState.
func NewDefinition(firstState string) *Definition {
	return &Definition{FirstState: firstState}
}

// AddState registers a state by name. Safe to call more than once for
// the same name.
func (d *Definition) AddState(name string) *Definition {
	for _, s := range d.States {
		if s.Name == name {
			return d
		}
	}
	d.States = append(d.States, State{Name: name})
	return d
}

// AddTransition registers from -> to on eventID, running actionName
// (looked up on the implementation object at runner-construction time).
// An empty actionName means the transition changes state without
// running a bound action.
func (d *Definition) AddTransition(from, to string, eventID EventID, actionName string) *Definition {
	d.AddState(from)
	d.AddState(to)
	d.Transitions = append(d.Transitions, Transition{From: from, To: to, EventID: eventID, ActionName: actionName})
	return d
}

// AddDefaultTransition is sugar for AddTransition(from, to, EventDefault, actionName).
func (d *Definition) AddDefaultTransition(from, to string, actionName string) *Definition {
	return d.AddTransition(from, to, EventDefault, actionName)
}

// AddGlobalEvent installs an any-state self-loop for eventID.
func (d *Definition) AddGlobalEvent(eventID EventID, actionName string) *Definition {
	d.GlobalEvents = append(d.GlobalEvents, AllStateEvent{EventID: eventID, ActionName: actionName})
	return d
}

// WithShutdownEvents sets the ordered list of events a stop() posts
// before the terminate sentinel, giving the FSM a chance to reach a
// quiescent state.
func (d *Definition) WithShutdownEvents(ids ...EventID) *Definition {
	d.ShutdownEvents = ids
	return d
}

func (d *Definition) hasState(name string) bool {
	for _, s := range d.States {
		if s.Name == name {
			return true
		}
	}
	return false
}

// validate checks structural integrity: known states, no reserved event
// ids used as ordinary transitions, and a defined first state. Handler
// binding (names resolved against the implementation object) is checked
// separately by the DefinitionRunner at construction.
func (d *Definition) validate() error {
	if d.FirstState == "" {
		return newConfigError("NoFirstState", "definition has no first state")
	}
	if !d.hasState(d.FirstState) {
		return newConfigErrorAt("UnknownState", "first state is not a defined state", d.FirstState, 0)
	}
	for _, t := range d.Transitions {
		if !d.hasState(t.From) {
			return newConfigErrorAt("UnknownState", fmt.Sprintf("transition references undefined from-state %q", t.From), t.From, int(t.EventID))
		}
		if !d.hasState(t.To) {
			return newConfigErrorAt("UnknownState", fmt.Sprintf("transition references undefined to-state %q", t.To), t.To, int(t.EventID))
		}
		if t.EventID < EventDefault {
			return newConfigErrorAt("ReservedEventID", "event ids below 0 are reserved", t.From, int(t.EventID))
		}
	}
	for _, g := range d.GlobalEvents {
		if g.EventID <= EventDefault {
			return newConfigError("ReservedEventID", "global events cannot use a reserved event id")
		}
	}
	return nil
}
