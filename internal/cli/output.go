package cli

import (
	"fmt"
	"io"
)

// Writef writes formatted output to w. Write errors on stdout and stderr
// have no useful recovery and are ignored.
func Writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// Writeln writes its operands followed by a newline.
func Writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// Write writes s to w.
func Write(w io.Writer, s string) {
	_, _ = io.WriteString(w, s)
}

// Fail reports err on w, prefixed by the program name, and returns
// ExitError.
//
//	return cli.Fail(stderr, "mina build", err)
func Fail(w io.Writer, program string, err error) int {
	Writef(w, "%s: %v\n", program, err)
	return ExitError
}
