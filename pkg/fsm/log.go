package fsm

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the diagnostic sink the engine writes to. It never drives
// control flow: the engine's behavior must be identical whether or not
// anything is listening. Unhandled events, dropped dispatches to unknown
// FSM ids, and recovered handler panics all go through it.
type Logger struct {
	z zerolog.Logger
}

var defaultLoggerOnce sync.Once
var defaultLogger Logger

// NewLogger wraps a zerolog.Logger for use as an fsm diagnostic sink.
func NewLogger(z zerolog.Logger) Logger {
	return Logger{z: z}
}

// DefaultLogger returns a process-wide console logger at info level,
// used whenever a Processor or DefinitionRunner is constructed without an
// explicit Logger option.
func DefaultLogger() Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = Logger{z: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()}
	})
	return defaultLogger
}

func (l Logger) unhandledEvent(fsmName, state string, eventKind string) {
	l.z.Info().
		Str("fsm", fsmName).
		Str("state", state).
		Str("event", eventKind).
		Msg("unhandled event, dropping")
}

func (l Logger) droppedUnknownTarget(host string, eventKind string) {
	l.z.Warn().
		Str("host", host).
		Str("event", eventKind).
		Msg("event targets unregistered fsm, dropping")
}

func (l Logger) handlerPanic(fsmName, handler string, recovered interface{}) {
	l.z.Error().
		Str("fsm", fsmName).
		Str("handler", handler).
		Interface("panic", recovered).
		Msg("handler panicked")
}

func (l Logger) stateChanged(fsmName, newState string) {
	l.z.Debug().
		Str("fsm", fsmName).
		Str("state", newState).
		Msg("state changed")
}

func (l Logger) admitted(host, fsmName string) {
	l.z.Debug().Str("host", host).Str("fsm", fsmName).Msg("fsm admitted")
}

func (l Logger) terminated(host, fsmName string) {
	l.z.Debug().Str("host", host).Str("fsm", fsmName).Msg("fsm terminated")
}
