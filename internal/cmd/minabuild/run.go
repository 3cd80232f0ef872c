// Package minabuild implements "mina build": resolve the entries of a
// mini-program, inject the chunk loads into the bundler's output and write
// the result.
package minabuild

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/term"

	"github.com/minakit/mina/internal/cli"
	"github.com/minakit/mina/internal/mina"
	"github.com/minakit/mina/internal/minaconfig"
	"github.com/minakit/mina/internal/pipeline"
	"github.com/minakit/mina/internal/version"
	"github.com/minakit/mina/internal/watch"
)

const program = "mina build"

// Run executes mina build with the given arguments and returns the exit code.
func Run(args []string) int {
	return RunWithIO(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO is Run with explicit IO.
func RunWithIO(ctx context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) int {
	var (
		configFlag  string
		contextFlag string
		entryFlag   string
		outputFlag  string
		statsFlag   string
		watchFlag   bool
		diffFlag    bool
		dryRunFlag  bool
		verboseFlag bool
		versionFlag bool
	)

	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configFlag, "config", "", "config file path (mina.star or mina.toml)")
	fs.StringVar(&contextFlag, "context", minaconfig.DefaultContext, "project root holding app.json")
	fs.StringVar(&entryFlag, "entry", minaconfig.DefaultEntry, "root entry script, relative to -context")
	fs.StringVar(&outputFlag, "output", minaconfig.DefaultOutput, "output directory")
	fs.StringVar(&statsFlag, "stats", minaconfig.DefaultStats, "chunk graph written by the bundler")
	fs.BoolVar(&watchFlag, "watch", false, "rebuild when the project or the chunk graph changes")
	fs.BoolVar(&watchFlag, "w", false, "watch mode (short for -watch)")
	fs.BoolVar(&diffFlag, "diff", false, "print a unified diff of every rewritten chunk")
	fs.BoolVar(&dryRunFlag, "dry-run", false, "build without writing the output directory")
	fs.BoolVar(&verboseFlag, "v", false, "verbose output")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")

	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: mina build [flags]")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Resolves the pages and components declared by app.json, registers them")
		cli.Writeln(stderr, "with the bundler and prepends the runtime and shared chunks to every")
		cli.Writeln(stderr, "entry chunk.")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Flags:")
		fs.PrintDefaults()
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Examples:")
		cli.Writeln(stderr, "  mina build                      # Build with mina.toml or defaults")
		cli.Writeln(stderr, "  mina build -w                   # Rebuild on change")
		cli.Writeln(stderr, "  mina build -dry-run -diff       # Show the injected loads only")
		cli.Writeln(stderr, "  mina build -config=ci/mina.star # Use a specific config file")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Configuration:")
		cli.Writeln(stderr, "  -config, then MINA_CONFIG, then mina.star or mina.toml found by")
		cli.Writeln(stderr, "  walking up to the git root. Flags override the config file.")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cli.ExitOK
		}
		return cli.ExitUsage
	}
	if fs.NArg() > 0 {
		cli.Writef(stderr, "%s: unexpected arguments: %v\n", program, fs.Args())
		return cli.ExitUsage
	}

	if versionFlag {
		cli.Writef(stdout, "%s %s\n", program, version.String())
		return cli.ExitOK
	}

	var cfg *minaconfig.Config
	if configFlag != "" {
		var err error
		cfg, err = minaconfig.LoadConfig(configFlag)
		if err != nil {
			cli.Writef(stderr, "%s: loading config %s: %v\n", program, configFlag, err)
			return cli.ExitError
		}
	} else {
		var (
			configPath string
			err        error
		)
		cfg, configPath, err = minaconfig.DiscoverConfig("")
		if err != nil {
			return cli.Fail(stderr, program, err)
		}
		if configPath != "" && verboseFlag {
			cli.Writef(stderr, "%s: using config %s\n", program, configPath)
		}
	}

	// Flags given on the command line override the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "context":
			cfg.Build.Context = contextFlag
		case "entry":
			cfg.Build.Entry = entryFlag
		case "output":
			cfg.Build.Output = outputFlag
		case "stats":
			cfg.Build.Stats = statsFlag
		}
	})

	logger := cli.NewLogger(stderr, verboseFlag)
	b := newBuilder(cfg, dryRunFlag, logger)

	if watchFlag {
		return runWatch(ctx, b, cfg, logger, stdout, stderr, diffFlag)
	}

	stats, err := b.compiler.Run(ctx)
	if err != nil {
		return cli.Fail(stderr, program, err)
	}
	report(stdout, stats, diffFlag)
	return cli.ExitOK
}

type builder struct {
	compiler *pipeline.Compiler
	plugin   *mina.Plugin
}

func newBuilder(cfg *minaconfig.Config, dryRun bool, logger *slog.Logger) *builder {
	c := pipeline.NewCompiler(pipeline.Options{
		Context: cfg.Build.Context,
		Entry:   cfg.Build.Entry,
		Output:  cfg.Build.Output,
		DryRun:  dryRun,
		Logger:  logger,
	}, &pipeline.StatsBundler{
		StatsFile: cfg.Build.Stats,
		Logger:    logger,
	})
	p := mina.New(mina.Options{
		Extensions:      cfg.Build.Extensions,
		CustomTabBar:    cfg.Build.CustomTabBar,
		AssetsChunkName: cfg.Build.AssetsChunkName,
	})
	c.Apply(p)
	return &builder{compiler: c, plugin: p}
}

// entries returns the entries of the last build.
func (b *builder) entries() []string {
	if g := b.plugin.Graph(); g != nil {
		return g.Entries
	}
	return nil
}

// report prints the build summary and, with diff, the rewritten chunks.
func report(w io.Writer, stats *pipeline.Stats, diff bool) {
	if diff {
		for _, cs := range stats.Chunks {
			if !cs.Changed() {
				continue
			}
			cli.Write(w, unifiedDiff("a/"+cs.File, "b/"+cs.File, cs.Original, cs.Rendered, 3))
		}
	}

	verb := "written"
	if stats.DryRun {
		verb = "not written (dry run)"
	}
	cli.Writef(w, "%d entries, %d chunks injected, %d assets %s\n",
		stats.EntryCount(), stats.InjectedCount(), len(stats.Assets), verb)
}

func unifiedDiff(from, to, a, b string, contextLines int) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: from,
		ToFile:   to,
		Context:  contextLines,
	})
	if err != nil {
		return ""
	}
	return text
}

// runWatch builds, then rebuilds on every change below the project root or
// to the chunk graph, until interrupted.
func runWatch(ctx context.Context, b *builder, cfg *minaconfig.Config, logger *slog.Logger, stdout, stderr io.Writer, diff bool) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(cfg.Build.Context, watch.Options{
		Debounce: cfg.Watch.Debounce.Duration,
		Ignore:   watchIgnore(cfg),
		Logger:   logger,
	})
	if err != nil {
		return cli.Fail(stderr, program, err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(cfg.Build.Stats); err != nil {
		return cli.Fail(stderr, program, err)
	}

	clearScreen := isTerminal(stdout)
	cli.Writef(stdout, "Watching %s. Press Ctrl+C to stop.\n", cfg.Build.Context)

	var prev []string
	builds := 0
	onBuild := func(stats *pipeline.Stats, err error) {
		builds++
		if clearScreen && builds > 1 {
			cli.Write(stdout, "\033[2J\033[H")
		}
		if err != nil {
			cli.Writef(stderr, "%s: %v\n", program, err)
			return
		}
		cur := b.entries()
		if prev != nil && !slices.Equal(prev, cur) {
			cli.Write(stdout, unifiedDiff("entries", "entries", joinLines(prev), joinLines(cur), 0))
		}
		prev = slices.Clone(cur)
		report(stdout, stats, diff)
	}

	if err := b.compiler.Watch(ctx, w.Events, w.Errors, onBuild); err != nil {
		return cli.Fail(stderr, program, err)
	}
	cli.Writeln(stdout, "Stopped watching.")
	return cli.ExitOK
}

// watchIgnore extends the configured patterns with the output directory when
// it lies inside the project, so that writing the output does not trigger
// another build.
func watchIgnore(cfg *minaconfig.Config) []string {
	patterns := slices.Clone(cfg.Watch.Ignore)
	if patterns == nil {
		patterns = slices.Clone(watch.DefaultIgnore)
	}
	root, err1 := filepath.Abs(cfg.Build.Context)
	out, err2 := filepath.Abs(cfg.Build.Output)
	if err1 != nil || err2 != nil {
		return patterns
	}
	rel, err := filepath.Rel(root, out)
	if err != nil || !filepath.IsLocal(rel) {
		return patterns
	}
	rel = filepath.ToSlash(rel)
	return append(patterns, rel, rel+"/**")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
