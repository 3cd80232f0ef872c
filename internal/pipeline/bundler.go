package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/minakit/mina/internal/chunk"
	"github.com/minakit/mina/internal/entry"
)

// Bundle is the output of a bundler run.
type Bundle struct {
	// Chunks are linked to their groups.
	Chunks []*chunk.Chunk

	// Sources maps chunk names to generated code.
	Sources map[string]string

	// Assets maps output file names to content that is copied verbatim.
	Assets map[string][]byte
}

// Bundler turns entry registrations into chunks.
type Bundler interface {
	Bundle(ctx context.Context, regs []entry.Registration) (*Bundle, error)
}

// StatsBundler reads the result of an external bundler run: a chunk-graph
// file plus the generated chunk files next to it. Files of multi-file
// registrations are copied from the project as assets.
type StatsBundler struct {
	// StatsFile is the chunk-graph JSON. Chunk files are resolved against
	// its directory.
	StatsFile string

	// Logger receives diagnostics. Nil disables logging.
	Logger *slog.Logger
}

type chunkGraph struct {
	Chunks []struct {
		Name        string `json:"name"`
		File        string `json:"file"`
		Initial     bool   `json:"initial"`
		Runtime     bool   `json:"runtime"`
		EntryModule bool   `json:"entryModule"`
	} `json:"chunks"`
	ChunkGroups []struct {
		Name   string   `json:"name"`
		Chunks []string `json:"chunks"`
	} `json:"chunkGroups"`
}

// LoadChunkGraph reads a chunk-graph file and links its chunks into groups.
func LoadChunkGraph(path string) ([]*chunk.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chunk graph: %w", err)
	}

	var graph chunkGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parsing chunk graph %s: %w", path, err)
	}

	chunks := make([]*chunk.Chunk, 0, len(graph.Chunks))
	byName := make(map[string]*chunk.Chunk, len(graph.Chunks))
	for _, gc := range graph.Chunks {
		if gc.Name == "" {
			return nil, fmt.Errorf("chunk graph %s: chunk without a name", path)
		}
		if _, dup := byName[gc.Name]; dup {
			return nil, fmt.Errorf("chunk graph %s: duplicate chunk %q", path, gc.Name)
		}
		c := &chunk.Chunk{
			Name:        gc.Name,
			File:        filepath.ToSlash(gc.File),
			Initial:     gc.Initial,
			Runtime:     gc.Runtime,
			EntryModule: gc.EntryModule,
		}
		byName[c.Name] = c
		chunks = append(chunks, c)
	}

	for _, gg := range graph.ChunkGroups {
		group := &chunk.Group{Name: gg.Name}
		for _, name := range gg.Chunks {
			c, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("chunk graph %s: group %q references unknown chunk %q", path, gg.Name, name)
			}
			chunk.Link(group, c)
		}
	}

	return chunks, nil
}

// Bundle implements Bundler.
func (b *StatsBundler) Bundle(ctx context.Context, regs []entry.Registration) (*Bundle, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	chunks, err := LoadChunkGraph(b.StatsFile)
	if err != nil {
		return nil, err
	}

	out := &Bundle{
		Chunks:  chunks,
		Sources: make(map[string]string, len(chunks)),
		Assets:  make(map[string][]byte),
	}

	dir := filepath.Dir(b.StatsFile)
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(c.OutputName())))
		if err != nil {
			return nil, fmt.Errorf("reading chunk %s: %w", c.Name, err)
		}
		out.Sources[c.Name] = string(src)
	}

	known := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		known[c.Name] = true
	}

	for _, reg := range regs {
		if !reg.Multi {
			if !known[reg.Name] {
				logger.Warn("entry has no chunk in the chunk graph", "entry", reg.Name, "stats", b.StatsFile)
			}
			continue
		}
		for _, item := range reg.Items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			data, err := os.ReadFile(filepath.Join(reg.Context, filepath.FromSlash(item)))
			if err != nil {
				return nil, fmt.Errorf("reading asset: %w", err)
			}
			out.Assets[item] = data
		}
	}

	return out, nil
}
