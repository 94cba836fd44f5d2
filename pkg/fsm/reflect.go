package fsm

import (
	"fmt"
	"reflect"
	"sync"
)

var reflectiveEventType = reflect.TypeOf((*ReflectiveEvent)(nil)).Elem()
var baseEventPtrType = reflect.TypeOf(&StateMachineEvent{})

// classState is the per-state dispatch entry of a classInfo: an entry
// handler, an exit handler, a default transition and a table of
// event-type-keyed transitions, all resolved to unbound reflect.Methods
// once at class-build time.
type classState struct {
	name    string
	value   int
	entry   reflect.Method
	hasEntry bool
	exit    reflect.Method
	hasExit bool
	def     reflect.Method
	hasDef  bool

	transitions map[reflect.Type]reflect.Method
}

// classInfo is the cached, process-wide introspection result for one
// concrete reflective FSM type. It is built exactly once per type and
// never mutated afterward, so it needs no locking once published.
type classInfo struct {
	mode            CodingMode
	hasState        bool
	stateFieldIndex int
	stateNames      map[int]string // value -> name
	states          map[string]*classState
	classHandlers   map[reflect.Type]reflect.Method
}

type classInfoEntry struct {
	once sync.Once
	info *classInfo
	err  error
}

var classInfoCache sync.Map // reflect.Type (pointer-to-concrete) -> *classInfoEntry

// classInfoFor returns the cached classInfo for instance's concrete type,
// building it on first use. instance must be the same pointer-receiver
// value every admitted FSM of this type will be built from; interface
// methods on it (SMCodingMode, SMStateNames, SMDescribe, SMNoHandler) are
// invoked once during the build, not per instance.
func classInfoFor(instance interface{}) (*classInfo, error) {
	t := reflect.TypeOf(instance)
	v, _ := classInfoCache.LoadOrStore(t, &classInfoEntry{})
	entry := v.(*classInfoEntry)
	entry.once.Do(func() {
		entry.info, entry.err = buildClassInfo(t, instance)
	})
	return entry.info, entry.err
}

func buildClassInfo(t reflect.Type, instance interface{}) (*classInfo, error) {
	mode := Automatic
	if sel, ok := instance.(CodingModeSelector); ok {
		mode = sel.SMCodingMode()
	}

	elem := t
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	ci := &classInfo{
		mode:          mode,
		states:        make(map[string]*classState),
		classHandlers: make(map[reflect.Type]reflect.Method),
	}

	stateField, hasState := findStateField(elem, mode)
	ci.hasState = hasState
	if hasState {
		ci.stateFieldIndex = stateField.Index[0]
		namer, ok := instance.(StateNamer)
		if !ok {
			return nil, newConfigError("MissingStateNames", fmt.Sprintf("%s has a state field but does not implement SMStateNames", t))
		}
		ci.stateNames = namer.SMStateNames()
		for v, name := range ci.stateNames {
			ci.states[name] = &classState{name: name, value: v, transitions: make(map[reflect.Type]reflect.Method)}
		}
	}

	var excluded map[string]bool
	if ex, ok := instance.(HandlerExcluder); ok {
		excluded = make(map[string]bool)
		for _, n := range ex.SMNoHandler() {
			excluded[n] = true
		}
	}

	if mode == WithAttributes {
		attr, ok := instance.(AttributedFSM)
		if !ok {
			return nil, newConfigError("MissingDescribe", fmt.Sprintf("%s selects WithAttributes but does not implement SMDescribe", t))
		}
		b := newHandlerBuilder()
		attr.SMDescribe(b)
		return finishAttributed(t, ci, b)
	}

	return finishAutomatic(t, ci, excluded)
}

func findStateField(elem reflect.Type, mode CodingMode) (reflect.StructField, bool) {
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Field(i)
		switch mode {
		case WithAttributes:
			if f.Tag.Get("fsm") == "state" {
				return f, true
			}
		default:
			if f.Name == "State" {
				return f, true
			}
		}
	}
	return reflect.StructField{}, false
}

// baseMethodNames lists Base's public API, excluded from Automatic-mode
// naming discovery since they are promoted onto every concrete FSM type
// and never user handlers.
var baseMethodNames = map[string]bool{
	"PushEvent": true, "Terminate": true, "Name": true, "Handle": true,
	"SendTo": true, "CurrentStateValue": true, "EnterFirstState": true, "OnEventDefault": true,
}

func finishAutomatic(t reflect.Type, ci *classInfo, excluded map[string]bool) (*classInfo, error) {
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if baseMethodNames[m.Name] || excluded[m.Name] {
			continue
		}

		if ci.hasState {
			if stName, ok := matchSuffix(m.Name, ci.stateNames, "EntryState"); ok {
				if err := checkEntrySignature(m); err != nil {
					return nil, err
				}
				st := ci.states[stName]
				st.entry, st.hasEntry = m, true
				continue
			}
			if stName, ok := matchSuffix(m.Name, ci.stateNames, "ExitState"); ok {
				if err := checkEventOnlySignature(m); err != nil {
					return nil, err
				}
				st := ci.states[stName]
				st.exit, st.hasExit = m, true
				continue
			}
			if stName, ok := matchStatePrefix(m.Name, ci.stateNames); ok {
				if !isHandlerShaped(m) {
					continue
				}
				paramType := m.Type.In(1)
				st := ci.states[stName]
				if paramType == baseEventPtrType {
					if st.hasDef {
						return nil, newConfigErrorAt("DuplicateHandler", "state already has a default transition", stName, 0)
					}
					st.def, st.hasDef = m, true
				} else {
					if _, exists := st.transitions[paramType]; exists {
						return nil, newConfigErrorAt("DuplicateHandler", "state already has a transition for this event type", stName, 0)
					}
					st.transitions[paramType] = m
				}
				continue
			}
		}

		if isHandlerShaped(m) {
			paramType := m.Type.In(1)
			if _, exists := ci.classHandlers[paramType]; exists {
				return nil, newConfigError("DuplicateHandler", fmt.Sprintf("more than one class-level handler for %s", paramType))
			}
			ci.classHandlers[paramType] = m
		}
	}
	return ci, nil
}

// matchSuffix reports whether name is exactly "<stateName>_<suffix>" for
// some known state name, returning that state's name.
func matchSuffix(name string, names map[int]string, suffix string) (string, bool) {
	for _, stName := range names {
		if name == stName+"_"+suffix {
			return stName, true
		}
	}
	return "", false
}

// matchStatePrefix finds the longest known state name such that name
// starts with "<stateName>_". The remainder after the underscore may be
// empty: a method named exactly "<StateName>_" is still a match (its
// parameter type alone decides default-transition vs. keyed transition).
func matchStatePrefix(name string, names map[int]string) (string, bool) {
	best := ""
	for _, stName := range names {
		prefix := stName + "_"
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix && len(stName) > len(best) {
			best = stName
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// isHandlerShaped reports whether m takes exactly one parameter (besides
// the receiver) implementing ReflectiveEvent and returns nothing.
func isHandlerShaped(m reflect.Method) bool {
	if m.Type.NumIn() != 2 || m.Type.NumOut() != 0 {
		return false
	}
	return m.Type.In(1).Implements(reflectiveEventType)
}

func checkEntrySignature(m reflect.Method) error {
	if m.Type.NumIn() != 3 || m.Type.NumOut() != 0 || m.Type.In(1) != baseEventPtrType || m.Type.In(2).Kind() != reflect.Int {
		return newConfigError("MalformedSignature", fmt.Sprintf("%s must take (*StateMachineEvent, int) and return nothing", m.Name))
	}
	return nil
}

func checkEventOnlySignature(m reflect.Method) error {
	if m.Type.NumIn() != 2 || m.Type.NumOut() != 0 || m.Type.In(1) != baseEventPtrType {
		return newConfigError("MalformedSignature", fmt.Sprintf("%s must take (*StateMachineEvent) and return nothing", m.Name))
	}
	return nil
}

func finishAttributed(t reflect.Type, ci *classInfo, b *HandlerBuilder) (*classInfo, error) {
	resolve := func(name string) (reflect.Method, error) {
		m, ok := t.MethodByName(name)
		if !ok {
			return reflect.Method{}, newConfigError("HandlerNotFound", fmt.Sprintf("%s has no method %q", t, name))
		}
		return m, nil
	}

	for stName, methodName := range b.entries {
		st, ok := ci.states[stName]
		if !ok {
			return nil, newConfigErrorAt("UnknownState", "entry registered for unknown state", stName, 0)
		}
		m, err := resolve(methodName)
		if err != nil {
			return nil, err
		}
		if err := checkEntrySignature(m); err != nil {
			return nil, err
		}
		st.entry, st.hasEntry = m, true
	}
	for stName, methodName := range b.exits {
		st, ok := ci.states[stName]
		if !ok {
			return nil, newConfigErrorAt("UnknownState", "exit registered for unknown state", stName, 0)
		}
		m, err := resolve(methodName)
		if err != nil {
			return nil, err
		}
		if err := checkEventOnlySignature(m); err != nil {
			return nil, err
		}
		st.exit, st.hasExit = m, true
	}
	for stName, methodName := range b.defaultByState {
		st, ok := ci.states[stName]
		if !ok {
			return nil, newConfigErrorAt("UnknownState", "default transition registered for unknown state", stName, 0)
		}
		m, err := resolve(methodName)
		if err != nil {
			return nil, err
		}
		if !isHandlerShaped(m) {
			return nil, newConfigError("MalformedSignature", fmt.Sprintf("%s must take one ReflectiveEvent parameter", methodName))
		}
		st.def, st.hasDef = m, true
	}
	for _, spec := range b.transitions {
		st, ok := ci.states[spec.state]
		if !ok {
			return nil, newConfigErrorAt("UnknownState", "transition registered for unknown state", spec.state, 0)
		}
		m, err := resolve(spec.methodName)
		if err != nil {
			return nil, err
		}
		if !isHandlerShaped(m) {
			return nil, newConfigError("MalformedSignature", fmt.Sprintf("%s must take one ReflectiveEvent parameter", spec.methodName))
		}
		if _, exists := st.transitions[spec.eventType]; exists {
			return nil, newConfigErrorAt("DuplicateHandler", "state already has a transition for this event type", spec.state, 0)
		}
		st.transitions[spec.eventType] = m
	}
	for _, spec := range b.classHandlers {
		m, err := resolve(spec.methodName)
		if err != nil {
			return nil, err
		}
		if !isHandlerShaped(m) {
			return nil, newConfigError("MalformedSignature", fmt.Sprintf("%s must take one ReflectiveEvent parameter", spec.methodName))
		}
		if _, exists := ci.classHandlers[spec.eventType]; exists {
			return nil, newConfigError("DuplicateHandler", fmt.Sprintf("more than one class-level handler for %s", spec.eventType))
		}
		ci.classHandlers[spec.eventType] = m
	}
	return ci, nil
}
