// Package pipeline is the host build pipeline the mini-program plugin runs in.
//
// A Compiler owns the configuration and the top-level hooks. Each Run asks
// the plugins for entry registrations, hands them to a Bundler, exposes the
// resulting chunks to the plugins through a Compilation, renders every chunk
// through its template and finally writes the assets to the output
// directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/minakit/mina/internal/entry"
	"github.com/minakit/mina/internal/hook"
	"github.com/minakit/mina/internal/watch"
)

// ErrNoEntries is returned when no plugin registered an entry.
var ErrNoEntries = errors.New("no entries registered")

// Options configures a Compiler.
type Options struct {
	// Context is the project root the entries resolve against.
	Context string

	// Entry is the root entry, e.g. "app.js".
	Entry string

	// Output is the directory assets are written to.
	Output string

	// DryRun renders everything but writes nothing.
	DryRun bool

	// Logger receives diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Plugin extends a Compiler by tapping its hooks.
type Plugin interface {
	Apply(c *Compiler)
}

// Hooks are the compiler-level stages.
type Hooks struct {
	// EntryOption runs once, before the first build.
	EntryOption hook.SyncBailHook[*Compiler, bool]

	// WatchRun runs before every rebuild in watch mode.
	WatchRun hook.SyncHook[*Compiler]

	// Compilation runs when a new compilation has been created.
	Compilation hook.SyncHook[*Compilation]

	// Emit runs after rendering, before assets are written.
	Emit hook.AsyncSeriesHook[*Compilation]

	// Done runs after a successful build.
	Done hook.SyncHook[*Stats]
}

// Compiler drives builds.
type Compiler struct {
	Options Options
	Hooks   Hooks

	bundler Bundler
	logger  *slog.Logger
	regs    []entry.Registration
	builds  int
}

// NewCompiler returns a compiler that bundles with b.
func NewCompiler(opts Options, b Bundler) *Compiler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{
		Options: opts,
		bundler: b,
		logger:  logger,
	}
}

// Logger returns the compiler's logger. It is never nil.
func (c *Compiler) Logger() *slog.Logger {
	return c.logger
}

// Apply lets each plugin tap the compiler's hooks.
func (c *Compiler) Apply(plugins ...Plugin) {
	for _, p := range plugins {
		p.Apply(c)
	}
}

// AddEntry registers an entry for the current build.
func (c *Compiler) AddEntry(reg entry.Registration) {
	c.regs = append(c.regs, reg)
}

// Entries returns the registrations of the current build.
func (c *Compiler) Entries() []entry.Registration {
	return slices.Clone(c.regs)
}

// Run performs one build. The first call runs the EntryOption hook, later
// calls run WatchRun. Registrations from a previous build are discarded.
func (c *Compiler) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	c.regs = nil

	if c.builds == 0 {
		if _, _, err := c.Hooks.EntryOption.Call(c); err != nil {
			return nil, fmt.Errorf("entry option: %w", err)
		}
	} else {
		if err := c.Hooks.WatchRun.Call(c); err != nil {
			return nil, fmt.Errorf("watch run: %w", err)
		}
	}
	c.builds++

	if len(c.regs) == 0 {
		return nil, ErrNoEntries
	}

	bundle, err := c.bundler.Bundle(ctx, c.regs)
	if err != nil {
		return nil, fmt.Errorf("bundling: %w", err)
	}

	comp := newCompilation(c, bundle)
	if err := c.Hooks.Compilation.Call(comp); err != nil {
		return nil, fmt.Errorf("compilation: %w", err)
	}
	if err := comp.Hooks.BeforeChunkAssets.Call(comp); err != nil {
		return nil, err
	}

	stats := &Stats{
		Registrations: c.Entries(),
		DryRun:        c.Options.DryRun,
	}
	stats.Chunks = comp.renderChunks()

	if err := comp.Hooks.AdditionalAssets.Call(ctx, comp); err != nil {
		return nil, fmt.Errorf("additional assets: %w", err)
	}

	if err := c.Hooks.Emit.Call(ctx, comp); err != nil {
		return nil, fmt.Errorf("emit: %w", err)
	}

	stats.Assets = comp.AssetNames()
	if !c.Options.DryRun {
		if err := writeAssets(ctx, c.Options.Output, comp); err != nil {
			return nil, err
		}
	}
	stats.Duration = time.Since(start)

	c.logger.Info("build finished",
		"entries", stats.EntryCount(),
		"injected", stats.InjectedCount(),
		"assets", len(stats.Assets),
		"duration", stats.Duration)

	if err := c.Hooks.Done.Call(stats); err != nil {
		return nil, fmt.Errorf("done: %w", err)
	}
	return stats, nil
}

// Watch builds once and then rebuilds on every event until ctx is done.
// Failed builds are reported to onBuild and do not stop the loop.
func (c *Compiler) Watch(ctx context.Context, events <-chan watch.Event, errs <-chan error, onBuild func(*Stats, error)) error {
	onBuild(c.Run(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.logger.Debug("change detected", "files", ev.Files)
			onBuild(c.Run(ctx))

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.logger.Warn("watcher error", "err", err)
		}
	}
}
