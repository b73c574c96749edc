package hooks

import (
	"sync"

	"github.com/example/tile_itc/core"
)

// PluginCategory represents the high-level role of a plugin.
type PluginCategory string

const (
	// PluginCategoryInstrumentation covers metrics, tracing, and diagnostics.
	PluginCategoryInstrumentation PluginCategory = "instrumentation"
	// PluginCategoryFault covers plugins that perturb links for testing.
	PluginCategoryFault PluginCategory = "fault"
)

// PluginDescriptor describes a plugin registered with the broker.
type PluginDescriptor struct {
	Name        string
	Category    PluginCategory
	Description string
}

// LinkStateContext reports a link state transition.
type LinkStateContext struct {
	Tile int
	Dir  core.Dir
	From core.LinkState
	To   core.LinkState
	Tick int64
}

// LinkResetContext reports a forced return to SHUT.
type LinkResetContext struct {
	Tile  int
	Dir   core.Dir
	State core.LinkState
	Cause error
	Tick  int64
}

// CircuitContext reports a circuit operation sent or received.
type CircuitContext struct {
	Tile    int
	Dir     core.Dir
	Number  int
	Passive bool
	Sent    bool
	Op      core.SubChannel
	State   core.CircuitState
	Tick    int64
}

// WindowOutcome names how an event window ended.
type WindowOutcome string

const (
	WindowExecuted WindowOutcome = "executed"
	WindowSkipped  WindowOutcome = "skipped"
	WindowDeclined WindowOutcome = "declined"
	WindowAborted  WindowOutcome = "aborted"
)

// WindowContext reports the end of an active event window.
type WindowContext struct {
	Tile     int
	Slot     int
	Center   core.SPoint
	Radius   int
	Circuits int
	Outcome  WindowOutcome
	Reason   error
	Tick     int64
}

type LinkStateHook func(ctx *LinkStateContext) error
type LinkResetHook func(ctx *LinkResetContext) error
type CircuitHook func(ctx *CircuitContext) error
type WindowHook func(ctx *WindowContext) error

// HookBundle groups multiple hook handlers that belong to one plugin.
type HookBundle struct {
	LinkState []LinkStateHook
	LinkReset []LinkResetHook
	Circuit   []CircuitHook
	Window    []WindowHook
}

// PluginBroker coordinates hook registration and triggering.
type PluginBroker struct {
	mu sync.RWMutex

	linkStateHooks []LinkStateHook
	linkResetHooks []LinkResetHook
	circuitHooks   []CircuitHook
	windowHooks    []WindowHook

	pluginCatalog map[PluginCategory][]PluginDescriptor
	pluginIndex   map[string]PluginDescriptor
}

// NewPluginBroker creates an empty broker instance.
func NewPluginBroker() *PluginBroker {
	return &PluginBroker{
		pluginCatalog: make(map[PluginCategory][]PluginDescriptor),
		pluginIndex:   make(map[string]PluginDescriptor),
	}
}

// RegisterLinkState adds a hook run on every link state transition.
func (p *PluginBroker) RegisterLinkState(h LinkStateHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkStateHooks = append(p.linkStateHooks, h)
}

// RegisterLinkReset adds a hook run whenever a link resets.
func (p *PluginBroker) RegisterLinkReset(h LinkResetHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkResetHooks = append(p.linkResetHooks, h)
}

func (p *PluginBroker) RegisterCircuit(h CircuitHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.circuitHooks = append(p.circuitHooks, h)
}

func (p *PluginBroker) RegisterWindow(h WindowHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.windowHooks = append(p.windowHooks, h)
}

// HasCircuitHooks lets hot paths skip building contexts nobody reads.
func (p *PluginBroker) HasCircuitHooks() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.circuitHooks) > 0
}

// EmitLinkState triggers link state hooks, stopping at the first error.
func (p *PluginBroker) EmitLinkState(ctx *LinkStateContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.linkStateHooks, ctx)
}

// EmitLinkReset triggers link reset hooks.
func (p *PluginBroker) EmitLinkReset(ctx *LinkResetContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.linkResetHooks, ctx)
}

// EmitCircuit triggers circuit hooks.
func (p *PluginBroker) EmitCircuit(ctx *CircuitContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.circuitHooks, ctx)
}

// EmitWindow triggers window hooks.
func (p *PluginBroker) EmitWindow(ctx *WindowContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.windowHooks, ctx)
}

func emit[C any, H ~func(*C) error](mu *sync.RWMutex, hooks *[]H, ctx *C) error {
	mu.RLock()
	handlers := make([]H, len(*hooks))
	copy(handlers, *hooks)
	mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBundle registers a plugin descriptor together with all hook handlers.
func (p *PluginBroker) RegisterBundle(desc PluginDescriptor, bundle HookBundle) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.registerDescriptorLocked(desc)
	p.linkStateHooks = append(p.linkStateHooks, bundle.LinkState...)
	p.linkResetHooks = append(p.linkResetHooks, bundle.LinkReset...)
	p.circuitHooks = append(p.circuitHooks, bundle.Circuit...)
	p.windowHooks = append(p.windowHooks, bundle.Window...)
}

// RegisterPluginMetadata stores plugin metadata without registering hooks.
func (p *PluginBroker) RegisterPluginMetadata(desc PluginDescriptor) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerDescriptorLocked(desc)
}

// ListPlugins returns descriptors for plugins in the requested category.
func (p *PluginBroker) ListPlugins(category PluginCategory) []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	catalog := p.pluginCatalog[category]
	if len(catalog) == 0 {
		return nil
	}
	out := make([]PluginDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

func (p *PluginBroker) registerDescriptorLocked(desc PluginDescriptor) {
	if desc.Name == "" {
		return
	}
	if _, exists := p.pluginIndex[desc.Name]; exists {
		return
	}
	p.pluginIndex[desc.Name] = desc
	p.pluginCatalog[desc.Category] = append(p.pluginCatalog[desc.Category], desc)
}
