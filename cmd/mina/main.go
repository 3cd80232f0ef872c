// Command mina builds mini-programs from a bundler's output.
package main

import (
	"context"
	"os"

	"github.com/minakit/mina/internal/cmd"
)

func main() {
	os.Exit(cmd.Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
