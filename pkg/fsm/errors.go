package fsm

import "fmt"

// ConfigError reports a problem discovered while building a Definition,
// a DefinitionRunner or a reflective dispatch table. All ConfigErrors are
// fatal to construction; none are raised once a runner or processor is
// live.
type ConfigError struct {
	Kind    string // e.g. "UnknownState", "DuplicateHandler", "HandlerNotFound"
	Detail  string
	State   string
	EventID int
}

func (e ConfigError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("fsm: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("fsm: %s: %s (state=%s event=%d)", e.Kind, e.Detail, e.State, e.EventID)
}

func newConfigError(kind, detail string) ConfigError {
	return ConfigError{Kind: kind, Detail: detail}
}

func newConfigErrorAt(kind, detail, state string, eventID int) ConfigError {
	return ConfigError{Kind: kind, Detail: detail, State: state, EventID: eventID}
}

// HandlerError wraps a panic recovered from a user-supplied handler
// (entry, exit, transition action, or event handler). On the
// DefinitionRunner this terminates the worker loop; on the Processor it is
// treated as a fatal process-level condition (logged, then re-panicked so
// the host process can decide how to die).
type HandlerError struct {
	FSM      string
	HandlerName string
	Cause    interface{}
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("fsm: handler %q on %q panicked: %v", e.HandlerName, e.FSM, e.Cause)
}

// ErrNotAdmitted describes a push that was not accepted after shutdown;
// it is not an error condition, merely "not accepted". The push methods
// in this package report that case with a false return and do not
// return this type.
type ErrNotAdmitted struct {
	Reason string
}

func (e ErrNotAdmitted) Error() string {
	return fmt.Sprintf("fsm: event not admitted: %s", e.Reason)
}
