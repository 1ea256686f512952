package plugin

import (
	"context"

	"ISMS-Agent/internal/tool"
)

// Plugin defines the lifecycle hooks a tool plugin must satisfy. A plugin
// contributes extra tools to the host registry when started.
type Plugin interface {
	// Info returns the static metadata for the plugin.
	Info() Info
	// Configure lets the plugin inspect its configuration block before
	// initialisation. Implementations may mutate the map to inject defaults.
	Configure(cfg map[string]any) error
	// Tools returns the tool descriptors this plugin contributes.
	Tools() []tool.Descriptor
	// Start activates the plugin and may spawn long running routines.
	Start(ctx *ExecutionContext) error
	// Stop gracefully halts the plugin and releases any resources.
	Stop(ctx *ExecutionContext) error
}

// ExecutionContext is passed to plugins for every lifecycle stage.
type ExecutionContext struct {
	// C is the underlying context for cancellation and deadlines.
	C context.Context
	// Config is the plugin specific configuration block.
	Config map[string]any
}

// Type represents the functional category of a plugin.
type Type string

const (
	// TypeTool plugins contribute invocable tools to the chain executor.
	TypeTool Type = "tool"
	// TypeProcessor plugins transform or enrich operation results.
	TypeProcessor Type = "processor"
)

// Capability expresses optional features a plugin may request access to.
type Capability string

const (
	CapabilityFilesystem Capability = "filesystem"
	CapabilityNetwork    Capability = "network"
	CapabilityExecution  Capability = "execution"
)

// Info contains descriptive metadata for a plugin implementation.
type Info struct {
	ID           string
	Name         string
	Description  string
	Author       string
	Version      string
	Category     Type
	Capabilities []Capability
}

// State represents the lifecycle position of a plugin instance.
type State string

const (
	StateRegistered State = "registered"
	StateStarted    State = "started"
	StateStopped    State = "stopped"
)

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default binary loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithToolRegistry sets the registry that receives plugin tools on start.
func WithToolRegistry(registry *tool.Registry) Option {
	return func(m *Manager) {
		m.tools = registry
	}
}
