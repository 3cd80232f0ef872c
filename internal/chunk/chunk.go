// Package chunk injects inter-chunk load statements into entry chunks.
//
// A bundler splits the code of a mini-program into entry chunks, shared
// vendor chunks and a runtime chunk. The mini-program runtime has no loader
// of its own, so every entry chunk must require the other chunks of its
// groups before its own code runs. This package computes that load order and
// rewrites the generated source accordingly.
//
// Chunks and groups belong to the bundler; this package only reads them.
package chunk

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
)

// ErrMissingRuntimeChunk is returned when no chunk carries the extracted
// runtime. Without it every entry chunk embeds its own copy of the module
// registry and shared modules get registered twice on device.
var ErrMissingRuntimeChunk = errors.New(strings.Join([]string{
	"no runtime chunk: reuse a single runtime chunk to avoid loading javascript modules twice",
	"configure the bundler to extract the runtime into its own chunk (for webpack: optimization.runtimeChunk = { name: \"runtime\" })",
}, "\n"))

// Chunk is an output unit produced by the bundler.
type Chunk struct {
	// Name is the chunk name, e.g. "pages/index/index" or "runtime".
	Name string

	// File is the output file name. When empty, Name + ".js" is used.
	File string

	// Initial marks chunks loaded at startup rather than on demand.
	Initial bool

	// Runtime marks chunks carrying the module loading runtime.
	Runtime bool

	// EntryModule marks chunks that execute an entry module.
	EntryModule bool

	groups []*Group
}

// Group is a set of chunks that load together for one entry.
type Group struct {
	Name   string
	Chunks []*Chunk
}

// Link appends chunks to g and records the membership on each chunk.
func Link(g *Group, chunks ...*Chunk) {
	for _, c := range chunks {
		g.Chunks = append(g.Chunks, c)
		if !slices.Contains(c.groups, g) {
			c.groups = append(c.groups, g)
		}
	}
}

// IsOnlyInitial reports whether the chunk is only ever loaded initially.
func (c *Chunk) IsOnlyInitial() bool { return c.Initial }

// HasRuntime reports whether the chunk carries the runtime.
func (c *Chunk) HasRuntime() bool { return c.Runtime }

// HasEntryModule reports whether the chunk executes an entry module.
func (c *Chunk) HasEntryModule() bool { return c.EntryModule }

// Groups returns the groups the chunk belongs to, in link order.
func (c *Chunk) Groups() []*Group { return c.groups }

// OutputName returns the slash-separated output file of the chunk.
func (c *Chunk) OutputName() string {
	if c.File != "" {
		return c.File
	}
	return c.Name + ".js"
}

// RuntimeExtracted reports whether the shared runtime lives in its own
// chunk: an initial, runtime-bearing chunk without an entry module.
func RuntimeExtracted(chunks []*Chunk) bool {
	return slices.ContainsFunc(chunks, func(c *Chunk) bool {
		return c.IsOnlyInitial() && c.HasRuntime() && !c.HasEntryModule()
	})
}

// Require returns ErrMissingRuntimeChunk unless RuntimeExtracted holds.
func Require(chunks []*Chunk) error {
	if !RuntimeExtracted(chunks) {
		return ErrMissingRuntimeChunk
	}
	return nil
}

// RemoveByName returns chunks without the chunk called name. The input slice
// is not modified.
func RemoveByName(chunks []*Chunk, name string) []*Chunk {
	i := slices.IndexFunc(chunks, func(c *Chunk) bool { return c.Name == name })
	if i < 0 {
		return chunks
	}
	return slices.Concat(chunks[:i:i], chunks[i+1:])
}

// relPath returns the POSIX relative path from dir to target, both relative
// to the output root.
func relPath(dir, target string) string {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
