// Package minaplan implements "mina plan", which reads the bundler's chunk
// graph and prints the chunks every entry chunk will load, in load order.
package minaplan

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/minakit/mina/internal/chunk"
	"github.com/minakit/mina/internal/cli"
	"github.com/minakit/mina/internal/minaconfig"
	"github.com/minakit/mina/internal/pipeline"
)

const program = "mina plan"

// Run executes mina plan with the given arguments and returns the exit code.
func Run(args []string) int {
	return RunWithIO(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO is Run with explicit IO.
func RunWithIO(_ context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) int {
	var (
		configFlag string
		statsFlag  string
		jsonFlag   bool
	)

	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configFlag, "config", "", "config file path (mina.star or mina.toml)")
	fs.StringVar(&statsFlag, "stats", minaconfig.DefaultStats, "chunk graph written by the bundler")
	fs.BoolVar(&jsonFlag, "json", false, "output the plans as JSON")

	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: mina plan [flags]")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Prints, for each entry chunk, the chunks it requires before its own")
		cli.Writeln(stderr, "code runs. Paths are relative to the entry chunk's file.")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cli.ExitOK
		}
		return cli.ExitUsage
	}

	var (
		cfg *minaconfig.Config
		err error
	)
	if configFlag != "" {
		cfg, err = minaconfig.LoadConfig(configFlag)
	} else {
		cfg, _, err = minaconfig.DiscoverConfig("")
	}
	if err != nil {
		return cli.Fail(stderr, program, err)
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "stats" {
			cfg.Build.Stats = statsFlag
		}
	})

	chunks, err := pipeline.LoadChunkGraph(cfg.Build.Stats)
	if err != nil {
		return cli.Fail(stderr, program, err)
	}
	if err := chunk.Require(chunks); err != nil {
		return cli.Fail(stderr, program, err)
	}
	chunks = chunk.RemoveByName(chunks, cfg.Build.AssetsChunkName)

	var plans []planJSON
	for _, c := range chunks {
		if !c.HasEntryModule() {
			continue
		}
		requires := chunk.PlanDependencies(c)
		if requires == nil {
			requires = chunk.Plan{}
		}
		plans = append(plans, planJSON{Chunk: c.Name, File: c.OutputName(), Requires: requires})
	}

	if jsonFlag {
		if plans == nil {
			plans = []planJSON{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(plans); err != nil {
			return cli.Fail(stderr, program, err)
		}
		return cli.ExitOK
	}

	for _, p := range plans {
		cli.Writeln(stdout, p.File)
		for _, r := range p.Requires {
			cli.Writef(stdout, "  %s\n", r)
		}
	}
	return cli.ExitOK
}

type planJSON struct {
	Chunk    string     `json:"chunk"`
	File     string     `json:"file"`
	Requires chunk.Plan `json:"requires"`
}
