package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"github.com/minakit/mina/internal/chunk"
	"github.com/minakit/mina/internal/entry"
	"github.com/minakit/mina/internal/watch"
)

// staticBundler returns the same chunk set on every run.
type staticBundler struct {
	calls int
	regs  []entry.Registration
}

func (b *staticBundler) Bundle(_ context.Context, regs []entry.Registration) (*Bundle, error) {
	b.calls++
	b.regs = regs

	runtime := &chunk.Chunk{Name: "runtime", Initial: true, Runtime: true}
	app := &chunk.Chunk{Name: "app", Initial: true, EntryModule: true}
	chunk.Link(&chunk.Group{Name: "app"}, runtime, app)

	return &Bundle{
		Chunks: []*chunk.Chunk{runtime, app},
		Sources: map[string]string{
			"runtime": "/* runtime */",
			"app":     "App({})",
		},
		Assets: map[string][]byte{"app.json": []byte("{}")},
	}, nil
}

type entryPlugin struct {
	hooks []string
}

func (p *entryPlugin) Apply(c *Compiler) {
	register := func(c *Compiler) {
		c.AddEntry(entry.Registration{Context: c.Options.Context, Name: "app", Items: []string{"app.js"}})
		c.AddEntry(entry.Registration{Context: c.Options.Context, Name: "assets", Items: []string{"app.json"}, Multi: true})
	}
	c.Hooks.EntryOption.Tap("entryPlugin", func(c *Compiler) (bool, bool, error) {
		p.hooks = append(p.hooks, "entryOption")
		register(c)
		return true, true, nil
	})
	c.Hooks.WatchRun.Tap("entryPlugin", func(c *Compiler) error {
		p.hooks = append(p.hooks, "watchRun")
		register(c)
		return nil
	})
}

func TestCompiler_Run(t *testing.T) {
	out := t.TempDir()
	b := &staticBundler{}
	c := NewCompiler(Options{Context: "/project", Output: out}, b)

	p := &entryPlugin{}
	c.Apply(p)

	var templates []string
	c.Hooks.Compilation.Tap("test", func(comp *Compilation) error {
		for _, tmpl := range []*Template{comp.MainTemplate, comp.ChunkTemplate} {
			tmpl.Hooks.RenderWithEntry.Tap("test", func(src string, ch *chunk.Chunk) string {
				templates = append(templates, tmpl.Name+":"+ch.Name)
				if ch.HasEntryModule() {
					return "/*x*/" + src
				}
				return src
			})
		}
		return nil
	})

	var done *Stats
	c.Hooks.Done.Tap("test", func(s *Stats) error { done = s; return nil })

	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if done != stats {
		t.Error("done hook did not receive the build stats")
	}

	if diff := cmp.Diff([]string{"main:runtime", "chunk:app"}, templates); diff != "" {
		t.Errorf("template routing mismatch (-want +got):\n%s", diff)
	}
	if stats.EntryCount() != 1 {
		t.Errorf("EntryCount() = %d, want 1", stats.EntryCount())
	}
	if stats.InjectedCount() != 1 {
		t.Errorf("InjectedCount() = %d, want 1", stats.InjectedCount())
	}
	if diff := cmp.Diff([]string{"app.js", "app.json", "runtime.js"}, stats.Assets); diff != "" {
		t.Errorf("assets mismatch (-want +got):\n%s", diff)
	}

	got, err := os.ReadFile(filepath.Join(out, "app.js"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(got) != "/*x*/App({})" {
		t.Errorf("app.js = %q", got)
	}

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{"entryOption", "watchRun"}, p.hooks); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
	if len(b.regs) != 2 {
		t.Errorf("registrations were not reset between runs: %d", len(b.regs))
	}
}

func TestCompiler_NoEntries(t *testing.T) {
	c := NewCompiler(Options{Output: t.TempDir()}, &staticBundler{})
	if _, err := c.Run(context.Background()); !errors.Is(err, ErrNoEntries) {
		t.Errorf("expected ErrNoEntries, got %v", err)
	}
}

func TestCompiler_BeforeChunkAssetsAborts(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dist")
	c := NewCompiler(Options{Output: out}, &staticBundler{})
	c.Apply(&entryPlugin{})

	boom := errors.New("no runtime")
	c.Hooks.Compilation.Tap("test", func(comp *Compilation) error {
		comp.Hooks.BeforeChunkAssets.Tap("test", func(*Compilation) error { return boom })
		return nil
	})

	if _, err := c.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output directory was created by an aborted build")
	}
}

func TestCompiler_AdditionalAssets(t *testing.T) {
	out := t.TempDir()
	c := NewCompiler(Options{Output: out}, &staticBundler{})
	c.Apply(&entryPlugin{})

	c.Hooks.Compilation.Tap("test", func(comp *Compilation) error {
		for _, name := range []string{"icons/a.png", "icons/b.png"} {
			comp.Hooks.AdditionalAssets.Tap(name, func(_ context.Context, comp *Compilation) error {
				comp.EmitAsset(name, []byte(name))
				return nil
			})
		}
		return nil
	})
	var seen []string
	c.Hooks.Emit.Tap("test", func(_ context.Context, comp *Compilation) error {
		seen = comp.AssetNames()
		return nil
	})

	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"app.js", "app.json", "icons/a.png", "icons/b.png", "runtime.js"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("assets at emit mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, stats.Assets); diff != "" {
		t.Errorf("stats assets mismatch (-want +got):\n%s", diff)
	}
	if got, err := os.ReadFile(filepath.Join(out, "icons", "b.png")); err != nil || string(got) != "icons/b.png" {
		t.Errorf("icons/b.png = %q, %v", got, err)
	}
}

func TestCompiler_AdditionalAssetsAborts(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dist")
	c := NewCompiler(Options{Output: out}, &staticBundler{})
	c.Apply(&entryPlugin{})

	boom := errors.New("unreadable")
	c.Hooks.Compilation.Tap("test", func(comp *Compilation) error {
		comp.Hooks.AdditionalAssets.Tap("test", func(context.Context, *Compilation) error { return boom })
		return nil
	})

	if _, err := c.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output directory was created by an aborted build")
	}
}

func TestCompiler_DryRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dist")
	c := NewCompiler(Options{Output: out, DryRun: true}, &staticBundler{})
	c.Apply(&entryPlugin{})

	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !stats.DryRun || len(stats.Assets) == 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("dry run wrote to the output directory")
	}
}

func TestCompiler_Locked(t *testing.T) {
	out := t.TempDir()
	held := flock.New(filepath.Join(out, LockFile))
	if err := held.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer held.Unlock()

	c := NewCompiler(Options{Output: out}, &staticBundler{})
	c.Apply(&entryPlugin{})

	if _, err := c.Run(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestWriteAsset_Escape(t *testing.T) {
	err := writeAsset(t.TempDir(), "../outside.js", nil)
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Errorf("expected an escape error, got %v", err)
	}
}

func TestCompiler_Watch(t *testing.T) {
	c := NewCompiler(Options{Output: t.TempDir()}, &staticBundler{})
	p := &entryPlugin{}
	c.Apply(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan watch.Event, 2)
	events <- watch.Event{Files: []string{"app.json"}}
	events <- watch.Event{Files: []string{"pages/a.json"}}

	builds := 0
	err := c.Watch(ctx, events, nil, func(s *Stats, err error) {
		if err != nil {
			t.Errorf("build failed: %v", err)
		}
		builds++
		if builds == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if builds != 3 {
		t.Errorf("expected 3 builds, got %d", builds)
	}
	if diff := cmp.Diff([]string{"entryOption", "watchRun", "watchRun"}, p.hooks); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
}
