package fsm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// DefinitionConfig is the on-disk shape a Definition is loaded from.
// Action and entry/exit method names are plain strings resolved later,
// by name, against whatever implementation object a DefinitionRunner is
// constructed with -- the config format never names Go types.
type DefinitionConfig struct {
	Name           string             `json:"name" yaml:"name"`
	FirstState     string             `json:"first_state" yaml:"first_state"`
	States         []string           `json:"states" yaml:"states"`
	Transitions    []TransitionConfig `json:"transitions" yaml:"transitions"`
	GlobalEvents   []GlobalEventConfig `json:"global_events" yaml:"global_events"`
	ShutdownEvents []int              `json:"shutdown_events" yaml:"shutdown_events"`
}

// TransitionConfig is one row of a DefinitionConfig's transition table.
// EventID 0 (or an omitted/absent event field) designates the state's
// default transition.
type TransitionConfig struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Event  int    `json:"event" yaml:"event"`
	Action string `json:"action" yaml:"action"`
}

// GlobalEventConfig describes an any-state self-loop.
type GlobalEventConfig struct {
	Event  int    `json:"event" yaml:"event"`
	Action string `json:"action" yaml:"action"`
}

// ConfigLoader loads DefinitionConfigs from JSON or YAML files and turns
// them into Definitions. It holds no state of its own; its methods are
// split out, rather than package-level funcs, to mirror the
// load/build/save shape used elsewhere in this module's construction
// APIs.
type ConfigLoader struct{}

// NewConfigLoader returns a ready-to-use ConfigLoader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadFromJSON reads and parses a DefinitionConfig from a JSON file.
func (cl *ConfigLoader) LoadFromJSON(filename string) (*DefinitionConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("fsm: reading JSON definition: %w", err)
	}
	var cfg DefinitionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("fsm: parsing JSON definition: %w", err)
	}
	return &cfg, nil
}

// LoadFromYAML reads and parses a DefinitionConfig from a YAML file.
func (cl *ConfigLoader) LoadFromYAML(filename string) (*DefinitionConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("fsm: reading YAML definition: %w", err)
	}
	var cfg DefinitionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("fsm: parsing YAML definition: %w", err)
	}
	return &cfg, nil
}

// Load picks JSON or YAML unmarshaling by the filename's extension.
func (cl *ConfigLoader) Load(filename string) (*DefinitionConfig, error) {
	switch {
	case strings.HasSuffix(filename, ".json"):
		return cl.LoadFromJSON(filename)
	case strings.HasSuffix(filename, ".yaml"), strings.HasSuffix(filename, ".yml"):
		return cl.LoadFromYAML(filename)
	default:
		return nil, fmt.Errorf("fsm: unsupported definition file extension: %s", filename)
	}
}

// BuildDefinition turns a DefinitionConfig into a Definition. Action and
// handler name resolution against a concrete implementation object
// happens later, in NewDefinitionRunner; BuildDefinition only assembles
// the state graph.
func (cl *ConfigLoader) BuildDefinition(cfg *DefinitionConfig) *Definition {
	d := NewDefinition(cfg.FirstState)
	for _, s := range cfg.States {
		d.AddState(s)
	}
	for _, t := range cfg.Transitions {
		d.AddTransition(t.From, t.To, EventID(t.Event), t.Action)
	}
	for _, g := range cfg.GlobalEvents {
		d.AddGlobalEvent(EventID(g.Event), g.Action)
	}
	if len(cfg.ShutdownEvents) > 0 {
		ids := make([]EventID, len(cfg.ShutdownEvents))
		for i, id := range cfg.ShutdownEvents {
			ids[i] = EventID(id)
		}
		d.WithShutdownEvents(ids...)
	}
	return d
}

// SaveToYAML writes cfg to filename in YAML form, the inverse of
// LoadFromYAML.
func (cl *ConfigLoader) SaveToYAML(cfg *DefinitionConfig, filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("fsm: marshaling YAML definition: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}
