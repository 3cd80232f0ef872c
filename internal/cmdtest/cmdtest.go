// Package cmdtest runs testscript-based end-to-end tests of the mina
// command.
//
// Each txtar file under testdata holds a project tree, the bundler output
// and the expected results:
//
//	exec mina build
//	stdout '^4 entries'
//	cmp dist/app.js want/app.js
//
//	-- mina.toml --
//	[build]
//	context = "src"
package cmdtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/minakit/mina/internal/cmd"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
		Setup: func(env *testscript.Env) error {
			// Config discovery stops at the git root; keep it inside $WORK.
			return os.Mkdir(filepath.Join(env.WorkDir, ".git"), 0o755)
		},
	})
}

// Main is the TestMain of packages using Run. It registers mina as a
// testscript command.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"mina": func() int {
			return cmd.Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
		},
	}))
}
