// Package tracelog provides plugins that mirror hook events into the
// structured logger.
package tracelog

import (
	"fmt"

	"github.com/example/tile_itc/hooks"
	"github.com/joeycumines/logiface"
)

const (
	// Links logs link state transitions and resets.
	Links = "trace/links"
	// Circuits logs every circuit operation sent or received.
	Circuits = "trace/circuits"
	// Windows logs the end of every active event window.
	Windows = "trace/windows"
)

// Options configure tracelog plugin registration.
type Options struct {
	Logger *logiface.Logger[logiface.Event]
	// Level is used for the routine events; the zero value selects
	// informational. Resets always log at warning.
	Level logiface.Level
}

// Register registers the three tracelog plugins.
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	if opts.Level == 0 {
		opts.Level = logiface.LevelInformational
	}
	plugins := []struct {
		desc   hooks.PluginDescriptor
		bundle func(l *logiface.Logger[logiface.Event], level logiface.Level) hooks.HookBundle
	}{
		{hooks.PluginDescriptor{Name: Links, Category: hooks.PluginCategoryInstrumentation, Description: "log link transitions and resets"}, linkBundle},
		{hooks.PluginDescriptor{Name: Circuits, Category: hooks.PluginCategoryInstrumentation, Description: "log circuit operations"}, circuitBundle},
		{hooks.PluginDescriptor{Name: Windows, Category: hooks.PluginCategoryInstrumentation, Description: "log event window outcomes"}, windowBundle},
	}
	for _, p := range plugins {
		p := p
		if err := reg.Register(p.desc, func(b *hooks.PluginBroker) (func() error, error) {
			if b == nil {
				return nil, fmt.Errorf("plugin broker is nil")
			}
			b.RegisterBundle(p.desc, p.bundle(opts.Logger, opts.Level))
			return nil, nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func linkBundle(l *logiface.Logger[logiface.Event], level logiface.Level) hooks.HookBundle {
	return hooks.HookBundle{
		LinkState: []hooks.LinkStateHook{func(ctx *hooks.LinkStateContext) error {
			l.Build(level).
				Int64("tick", ctx.Tick).
				Int("tile", ctx.Tile).
				Stringer("dir", ctx.Dir).
				Stringer("from", ctx.From).
				Stringer("to", ctx.To).
				Log("link state")
			return nil
		}},
		LinkReset: []hooks.LinkResetHook{func(ctx *hooks.LinkResetContext) error {
			l.Warning().
				Int64("tick", ctx.Tick).
				Int("tile", ctx.Tile).
				Stringer("dir", ctx.Dir).
				Stringer("state", ctx.State).
				Err(ctx.Cause).
				Log("link reset")
			return nil
		}},
	}
}

func circuitBundle(l *logiface.Logger[logiface.Event], level logiface.Level) hooks.HookBundle {
	return hooks.HookBundle{
		Circuit: []hooks.CircuitHook{func(ctx *hooks.CircuitContext) error {
			l.Build(level).
				Int64("tick", ctx.Tick).
				Int("tile", ctx.Tile).
				Stringer("dir", ctx.Dir).
				Int("circuit", ctx.Number).
				Bool("passive", ctx.Passive).
				Bool("sent", ctx.Sent).
				Stringer("op", ctx.Op).
				Stringer("state", ctx.State).
				Log("circuit")
			return nil
		}},
	}
}

func windowBundle(l *logiface.Logger[logiface.Event], level logiface.Level) hooks.HookBundle {
	return hooks.HookBundle{
		Window: []hooks.WindowHook{func(ctx *hooks.WindowContext) error {
			b := l.Build(level).
				Int64("tick", ctx.Tick).
				Int("tile", ctx.Tile).
				Int("slot", ctx.Slot).
				Int("x", ctx.Center.X).
				Int("y", ctx.Center.Y).
				Int("radius", ctx.Radius).
				Int("circuits", ctx.Circuits).
				Str("outcome", string(ctx.Outcome))
			if ctx.Reason != nil {
				b = b.Err(ctx.Reason)
			}
			b.Log("window")
			return nil
		}},
	}
}
