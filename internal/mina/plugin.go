// Package mina is the mini-program build plugin.
//
// On every build it walks the project's manifests to find the entries,
// registers them with the compiler, checks that the bundler extracted the
// shared runtime into its own chunk and prepends require statements to each
// entry chunk so the mini-program runtime loads its dependencies first.
package mina

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/minakit/mina/internal/chunk"
	"github.com/minakit/mina/internal/entry"
	"github.com/minakit/mina/internal/pipeline"
)

// Name identifies the plugin's taps.
const Name = "MinaPlugin"

// maxIconReads bounds concurrent tab bar icon reads.
const maxIconReads = 4

// Options configures the plugin.
type Options struct {
	// Extensions are the script extensions probed for each entry, in order.
	// Defaults to [".js"].
	Extensions []string

	// CustomTabBar is the entry added when the tab bar is custom.
	// Defaults to "custom-tab-bar/index".
	CustomTabBar string

	// AssetsChunkName names the aggregate registration holding companion
	// files. Defaults to "__assets_chunk_name__".
	AssetsChunkName string

	// Logger receives diagnostics. If nil, the compiler's logger is used.
	Logger *slog.Logger
}

// Plugin wires entry resolution and chunk dependency injection into a
// compiler.
type Plugin struct {
	opts Options

	mu    sync.Mutex
	graph *entry.Graph
}

// New returns a plugin configured by opts.
func New(opts Options) *Plugin {
	if opts.AssetsChunkName == "" {
		opts.AssetsChunkName = entry.DefaultAssetsChunkName
	}
	return &Plugin{opts: opts}
}

// Graph returns the entry graph of the most recent build, or nil before the
// first one.
func (p *Plugin) Graph() *entry.Graph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph
}

// Apply implements pipeline.Plugin.
func (p *Plugin) Apply(c *pipeline.Compiler) {
	c.Hooks.EntryOption.Tap(Name, func(c *pipeline.Compiler) (bool, bool, error) {
		if err := p.handleEntries(c); err != nil {
			return false, false, err
		}
		return true, true, nil
	})
	c.Hooks.WatchRun.Tap(Name, p.handleEntries)

	c.Hooks.Compilation.Tap(Name, func(comp *pipeline.Compilation) error {
		logger := p.logger(comp.Compiler)
		render := func(source string, ch *chunk.Chunk) string {
			if !ch.HasEntryModule() {
				return source
			}
			plan := chunk.PlanDependencies(ch)
			if len(plan) > 0 {
				logger.Debug("chunk injected", "chunk", ch.Name, "requires", []string(plan))
			}
			return chunk.Inject(source, ch, plan)
		}
		comp.MainTemplate.Hooks.RenderWithEntry.Tap(Name, render)
		comp.ChunkTemplate.Hooks.RenderWithEntry.Tap(Name, render)

		comp.Hooks.BeforeChunkAssets.Tap(Name, func(comp *pipeline.Compilation) error {
			if err := chunk.Require(comp.Chunks); err != nil {
				return err
			}
			comp.Chunks = chunk.RemoveByName(comp.Chunks, p.opts.AssetsChunkName)
			return nil
		})

		comp.Hooks.AdditionalAssets.Tap(Name, p.emitIcons)
		return nil
	})
}

func (p *Plugin) logger(c *pipeline.Compiler) *slog.Logger {
	if p.opts.Logger != nil {
		return p.opts.Logger
	}
	return c.Logger()
}

func (p *Plugin) entryOptions(c *pipeline.Compiler) entry.Options {
	return entry.Options{
		Extensions:      p.opts.Extensions,
		CustomTabBar:    p.opts.CustomTabBar,
		AssetsChunkName: p.opts.AssetsChunkName,
		Logger:          p.logger(c),
	}
}

// handleEntries resolves the entries afresh and registers them with the
// compiler.
func (p *Plugin) handleEntries(c *pipeline.Compiler) error {
	root := c.Options.Context
	opts := p.entryOptions(c)

	g, err := entry.Resolve(root, c.Options.Entry, opts)
	if err != nil {
		return err
	}
	regs, err := entry.Registrations(root, g, opts)
	if err != nil {
		return fmt.Errorf("mapping entries: %w", err)
	}
	for _, reg := range regs {
		c.AddEntry(reg)
	}

	p.mu.Lock()
	p.graph = g
	p.mu.Unlock()
	return nil
}

// emitIcons copies the tab bar icons into the compilation. Icons that cannot
// be read are reported and skipped.
func (p *Plugin) emitIcons(ctx context.Context, comp *pipeline.Compilation) error {
	g := p.Graph()
	if g == nil || len(g.Icons) == 0 {
		return nil
	}
	root := comp.Compiler.Options.Context
	logger := p.logger(comp.Compiler)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxIconReads)
	for _, icon := range g.Icons {
		name := entry.Normalize(icon)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !filepath.IsLocal(filepath.FromSlash(name)) {
				logger.Warn("tab bar icon outside project, skipping", "icon", icon)
				return nil
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
			if err != nil {
				logger.Warn("tab bar icon unreadable, skipping", "icon", icon, "err", err)
				return nil
			}
			comp.EmitAsset(name, data)
			return nil
		})
	}
	return eg.Wait()
}
