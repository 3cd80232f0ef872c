// Package minaentries implements "mina entries", which prints the entries
// resolved from a project's manifests without bundling anything.
package minaentries

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"text/tabwriter"

	"github.com/minakit/mina/internal/cli"
	"github.com/minakit/mina/internal/entry"
	"github.com/minakit/mina/internal/minaconfig"
)

const program = "mina entries"

// Run executes mina entries with the given arguments and returns the exit
// code.
func Run(args []string) int {
	return RunWithIO(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO is Run with explicit IO.
func RunWithIO(_ context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) int {
	var (
		configFlag  string
		contextFlag string
		entryFlag   string
		jsonFlag    bool
		assetsFlag  bool
		verboseFlag bool
	)

	fs := flag.NewFlagSet("entries", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configFlag, "config", "", "config file path (mina.star or mina.toml)")
	fs.StringVar(&contextFlag, "context", minaconfig.DefaultContext, "project root holding app.json")
	fs.StringVar(&entryFlag, "entry", minaconfig.DefaultEntry, "root entry script, relative to -context")
	fs.BoolVar(&jsonFlag, "json", false, "output entries, icons and registrations as JSON")
	fs.BoolVar(&assetsFlag, "assets", false, "list companion files and tab bar icons instead of entries")
	fs.BoolVar(&verboseFlag, "v", false, "show how each entry was found and its sub-package")

	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: mina entries [flags]")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Prints the pages and components reachable from app.json in")
		cli.Writeln(stderr, "registration order.")
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

	cfg, err := loadConfig(configFlag)
	if err != nil {
		return cli.Fail(stderr, program, err)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "context":
			cfg.Build.Context = contextFlag
		case "entry":
			cfg.Build.Entry = entryFlag
		}
	})

	opts := entry.Options{
		Extensions:      cfg.Build.Extensions,
		CustomTabBar:    cfg.Build.CustomTabBar,
		AssetsChunkName: cfg.Build.AssetsChunkName,
		Logger:          cli.NewLogger(stderr, verboseFlag),
	}
	g, err := entry.Resolve(cfg.Build.Context, cfg.Build.Entry, opts)
	if err != nil {
		return cli.Fail(stderr, program, err)
	}
	regs, err := entry.Registrations(cfg.Build.Context, g, opts)
	if err != nil {
		return cli.Fail(stderr, program, err)
	}

	switch {
	case jsonFlag:
		if err := writeJSON(stdout, g, regs); err != nil {
			return cli.Fail(stderr, program, err)
		}
	case assetsFlag:
		for _, reg := range regs {
			if reg.Multi {
				for _, item := range reg.Items {
					cli.Writeln(stdout, item)
				}
			}
		}
		for _, icon := range g.Icons {
			cli.Writeln(stdout, entry.Normalize(icon))
		}
	case verboseFlag:
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		for _, e := range g.Entries {
			sub, _ := g.SubPackageOf(e)
			cli.Writef(tw, "%s\t%s\t%s\n", e, g.Kind(e), sub)
		}
		_ = tw.Flush()
	default:
		for _, e := range g.Entries {
			cli.Writeln(stdout, e)
		}
	}
	return cli.ExitOK
}

func loadConfig(path string) (*minaconfig.Config, error) {
	if path != "" {
		return minaconfig.LoadConfig(path)
	}
	cfg, _, err := minaconfig.DiscoverConfig("")
	return cfg, err
}

type entryJSON struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	SubPackage string `json:"subPackage,omitempty"`
}

type registrationJSON struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
	Multi bool     `json:"multi,omitempty"`
}

type outputJSON struct {
	Entries       []entryJSON        `json:"entries"`
	Icons         []string           `json:"icons"`
	Registrations []registrationJSON `json:"registrations"`
}

func writeJSON(w io.Writer, g *entry.Graph, regs []entry.Registration) error {
	out := outputJSON{
		Entries:       make([]entryJSON, 0, len(g.Entries)),
		Icons:         make([]string, 0, len(g.Icons)),
		Registrations: make([]registrationJSON, 0, len(regs)),
	}
	for _, e := range g.Entries {
		sub, _ := g.SubPackageOf(e)
		out.Entries = append(out.Entries, entryJSON{Name: e, Kind: g.Kind(e).String(), SubPackage: sub})
	}
	for _, icon := range g.Icons {
		out.Icons = append(out.Icons, entry.Normalize(icon))
	}
	for _, reg := range regs {
		items := reg.Items
		if items == nil {
			items = []string{}
		}
		out.Registrations = append(out.Registrations, registrationJSON{Name: reg.Name, Items: items, Multi: reg.Multi})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
