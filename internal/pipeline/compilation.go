package pipeline

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/minakit/mina/internal/chunk"
	"github.com/minakit/mina/internal/hook"
)

// Template renders the final source of a chunk.
type Template struct {
	Name  string
	Hooks TemplateHooks
}

// TemplateHooks are the rendering stages of a Template.
type TemplateHooks struct {
	// RenderWithEntry transforms the generated source of a chunk. Each tap
	// receives the source returned by the previous one.
	RenderWithEntry hook.SyncWaterfallHook[string, *chunk.Chunk]
}

// Render runs source through the RenderWithEntry taps.
func (t *Template) Render(source string, c *chunk.Chunk) string {
	return t.Hooks.RenderWithEntry.Call(source, c)
}

// CompilationHooks are the per-build stages.
type CompilationHooks struct {
	// BeforeChunkAssets runs after bundling, before any chunk is rendered.
	// Taps may edit Compilation.Chunks; an error aborts the build.
	BeforeChunkAssets hook.SyncHook[*Compilation]

	// AdditionalAssets runs after the chunks are rendered. Taps run
	// concurrently and add files with EmitAsset.
	AdditionalAssets hook.AsyncParallelHook[*Compilation]
}

// Compilation is the state of a single build.
type Compilation struct {
	Compiler *Compiler

	// Chunks are the chunks that will be rendered, in bundler order.
	Chunks []*chunk.Chunk

	Hooks CompilationHooks

	// MainTemplate renders chunks carrying the runtime; ChunkTemplate
	// renders the rest.
	MainTemplate  *Template
	ChunkTemplate *Template

	sources map[string]string

	mu     sync.Mutex
	assets map[string][]byte
}

func newCompilation(c *Compiler, b *Bundle) *Compilation {
	comp := &Compilation{
		Compiler:      c,
		Chunks:        slices.Clone(b.Chunks),
		MainTemplate:  &Template{Name: "main"},
		ChunkTemplate: &Template{Name: "chunk"},
		sources:       b.Sources,
		assets:        make(map[string][]byte, len(b.Assets)),
	}
	maps.Copy(comp.assets, b.Assets)
	return comp
}

// Logger returns the compiler's logger.
func (comp *Compilation) Logger() *slog.Logger {
	return comp.Compiler.Logger()
}

// EmitAsset adds or replaces an output file. It is safe for concurrent use.
func (comp *Compilation) EmitAsset(name string, data []byte) {
	comp.mu.Lock()
	defer comp.mu.Unlock()
	comp.assets[name] = data
}

// Asset returns the content of an output file.
func (comp *Compilation) Asset(name string) ([]byte, bool) {
	comp.mu.Lock()
	defer comp.mu.Unlock()
	data, ok := comp.assets[name]
	return data, ok
}

// AssetNames returns the output file names in sorted order.
func (comp *Compilation) AssetNames() []string {
	comp.mu.Lock()
	defer comp.mu.Unlock()
	return slices.Sorted(maps.Keys(comp.assets))
}

// renderChunks renders every chunk through its template and emits the
// result under the chunk's output name.
func (comp *Compilation) renderChunks() []ChunkStats {
	stats := make([]ChunkStats, 0, len(comp.Chunks))
	for _, c := range comp.Chunks {
		source, ok := comp.sources[c.Name]
		if !ok {
			comp.Logger().Warn("chunk has no generated source", "chunk", c.Name)
			continue
		}

		tmpl := comp.ChunkTemplate
		if c.HasRuntime() {
			tmpl = comp.MainTemplate
		}
		rendered := tmpl.Render(source, c)
		comp.EmitAsset(c.OutputName(), []byte(rendered))

		stats = append(stats, ChunkStats{
			Name:     c.Name,
			File:     c.OutputName(),
			Template: tmpl.Name,
			Original: source,
			Rendered: rendered,
		})
	}
	return stats
}
