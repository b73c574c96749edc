package hooks

import (
	"errors"
	"testing"

	"github.com/example/tile_itc/core"
)

func TestLinkHooksRunInOrder(t *testing.T) {
	b := NewPluginBroker()
	var order []string

	b.RegisterLinkState(func(ctx *LinkStateContext) error {
		order = append(order, "first:"+ctx.To.String())
		return nil
	})
	b.RegisterLinkState(func(ctx *LinkStateContext) error {
		order = append(order, "second:"+ctx.To.String())
		return nil
	})

	ctx := &LinkStateContext{Dir: core.DirE, From: core.LinkCacheXG, To: core.LinkOpen}
	if err := b.EmitLinkState(ctx); err != nil {
		t.Fatalf("EmitLinkState returned error: %v", err)
	}
	if len(order) != 2 || order[0] != "first:OPEN" || order[1] != "second:OPEN" {
		t.Fatalf("unexpected hook order: %v", order)
	}
}

func TestHookErrorStopsProcessing(t *testing.T) {
	b := NewPluginBroker()
	calls := 0

	b.RegisterLinkReset(func(ctx *LinkResetContext) error {
		calls++
		return errors.New("hook fail")
	})
	b.RegisterLinkReset(func(ctx *LinkResetContext) error {
		calls++
		return nil
	})

	if err := b.EmitLinkReset(&LinkResetContext{Dir: core.DirW}); err == nil {
		t.Fatalf("expected error from reset hook")
	}
	if calls != 1 {
		t.Fatalf("expected only first hook to run, calls=%d", calls)
	}
}

func TestNilBrokerIsSilent(t *testing.T) {
	var b *PluginBroker
	b.RegisterCircuit(func(*CircuitContext) error { return errors.New("never") })
	if err := b.EmitCircuit(&CircuitContext{}); err != nil {
		t.Fatalf("nil broker returned error: %v", err)
	}
	if b.HasCircuitHooks() {
		t.Fatalf("nil broker reports hooks")
	}
}

func TestRegisterBundle(t *testing.T) {
	b := NewPluginBroker()
	var windows, circuits int
	b.RegisterBundle(PluginDescriptor{Name: "count", Category: PluginCategoryInstrumentation}, HookBundle{
		Window:  []WindowHook{func(*WindowContext) error { windows++; return nil }},
		Circuit: []CircuitHook{func(*CircuitContext) error { circuits++; return nil }},
	})
	if !b.HasCircuitHooks() {
		t.Fatalf("expected circuit hooks after bundle registration")
	}
	_ = b.EmitWindow(&WindowContext{Outcome: WindowExecuted})
	_ = b.EmitCircuit(&CircuitContext{Op: core.SubRing})
	if windows != 1 || circuits != 1 {
		t.Fatalf("bundle hooks not triggered: windows=%d circuits=%d", windows, circuits)
	}
	plugins := b.ListPlugins(PluginCategoryInstrumentation)
	if len(plugins) != 1 || plugins[0].Name != "count" {
		t.Fatalf("unexpected catalog: %v", plugins)
	}

	// Duplicate descriptors are ignored.
	b.RegisterPluginMetadata(PluginDescriptor{Name: "count", Category: PluginCategoryInstrumentation})
	if len(b.ListPlugins(PluginCategoryInstrumentation)) != 1 {
		t.Fatalf("duplicate descriptor registered")
	}
}
