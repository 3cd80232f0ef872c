package cli

import (
	"context"
	"io"
	"text/tabwriter"

	"github.com/minakit/mina/internal/version"
)

// Command is a subcommand of a multi-command program.
type Command struct {
	Name    string
	Summary string
	Run     func(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

// Dispatch runs the command named by args[0] and returns its exit code.
// "help", "-h", "--help" and no arguments print usage; "version" prints the
// program version.
func Dispatch(ctx context.Context, program string, cmds []Command, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		PrintUsage(stderr, program, cmds)
		return ExitUsage
	}

	switch args[0] {
	case "help", "-h", "-help", "--help":
		PrintUsage(stdout, program, cmds)
		return ExitOK
	case "version", "-version", "--version":
		Writef(stdout, "%s %s\n", program, version.String())
		return ExitOK
	}

	for _, cmd := range cmds {
		if cmd.Name == args[0] {
			return cmd.Run(ctx, args[1:], stdin, stdout, stderr)
		}
	}

	Writef(stderr, "%s: unknown command %q\n", program, args[0])
	Writef(stderr, "Run '%s help' for usage.\n", program)
	return ExitUsage
}

// PrintUsage lists the commands of program.
func PrintUsage(w io.Writer, program string, cmds []Command) {
	Writef(w, "Usage: %s <command> [flags]\n\n", program)
	Writeln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, cmd := range cmds {
		Writef(tw, "  %s\t%s\n", cmd.Name, cmd.Summary)
	}
	Writef(tw, "  %s\t%s\n", "version", "print version and exit")
	Writef(tw, "  %s\t%s\n", "help", "show this help")
	_ = tw.Flush()
	Writef(w, "\nRun '%s <command> -h' for command flags.\n", program)
}
