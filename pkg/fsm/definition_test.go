package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition_ValidateRequiresKnownFirstState(t *testing.T) {
	d := NewDefinition("Nowhere")
	d.AddState("Somewhere")
	err := d.validate()
	require.Error(t, err)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "UnknownState", cfgErr.Kind)
}

func TestDefinition_ValidateRejectsReservedEventIDOnTransition(t *testing.T) {
	d := NewDefinition("A")
	d.AddTransition("A", "A", EventTerminate, "")
	err := d.validate()
	require.Error(t, err)
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ReservedEventID", cfgErr.Kind)
}

func TestDefinition_ValidateRejectsGlobalEventUsingDefaultID(t *testing.T) {
	d := NewDefinition("A")
	d.AddState("A")
	d.AddGlobalEvent(EventDefault, "")
	err := d.validate()
	require.Error(t, err)
}

func TestDefinition_ValidatePassesForWellFormedGraph(t *testing.T) {
	d := NewDefinition("A")
	d.AddTransition("A", "B", 1, "")
	d.AddDefaultTransition("B", "A", "")
	assert.NoError(t, d.validate())
}

func TestDefinition_AddStateIsIdempotent(t *testing.T) {
	d := NewDefinition("A")
	d.AddState("A")
	d.AddState("A")
	assert.Len(t, d.States, 1)
}
