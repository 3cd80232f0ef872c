// Package cmd holds the command table of the mina binary.
package cmd

import (
	"context"
	"io"

	"github.com/minakit/mina/internal/cli"
	"github.com/minakit/mina/internal/cmd/minabuild"
	"github.com/minakit/mina/internal/cmd/minaentries"
	"github.com/minakit/mina/internal/cmd/minaplan"
)

// Commands lists the subcommands of mina in help order.
var Commands = []cli.Command{
	{Name: "build", Summary: "resolve entries, inject chunk loads and write the output", Run: minabuild.RunWithIO},
	{Name: "entries", Summary: "print the entries reachable from app.json", Run: minaentries.RunWithIO},
	{Name: "plan", Summary: "print the chunks each entry chunk requires", Run: minaplan.RunWithIO},
}

// Run dispatches args to the matching subcommand and returns its exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return cli.Dispatch(ctx, "mina", Commands, args, stdin, stdout, stderr)
}
