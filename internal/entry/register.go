package entry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrScriptNotFound is returned when no configured extension matches an
// entry's script file.
var ErrScriptNotFound = errors.New("script not found")

// Registration is one entry-registration action handed to the bundler.
type Registration struct {
	// Context is the project root the items are relative to.
	Context string

	// Name is the entry (chunk) name.
	Name string

	// Items are project-relative, slash-separated file paths.
	Items []string

	// Multi marks the aggregate form: many files under one name.
	Multi bool
}

// Registrations maps every entry of g to a registration.
//
// Each entry whose script exists becomes a single-file registration named
// after the entry; entries without a script are logged and skipped. All
// non-script companions of all entries (markup, styles, manifests) are
// gathered in one trailing multi-file registration named
// Options.AssetsChunkName.
func Registrations(projectRoot string, g *Graph, opts Options) ([]Registration, error) {
	opts = opts.withDefaults()

	var regs []Registration
	for _, e := range g.Entries {
		script, err := ScriptPath(projectRoot, e, opts.Extensions)
		if err != nil {
			opts.Logger.Warn("skipping entry", "entry", e, "err", err)
			continue
		}
		rel, err := filepath.Rel(projectRoot, script)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e, err)
		}
		regs = append(regs, Registration{
			Context: projectRoot,
			Name:    e,
			Items:   []string{filepath.ToSlash(rel)},
		})
	}

	companions, err := Companions(projectRoot, g.Entries, opts.Extensions)
	if err != nil {
		return nil, err
	}
	regs = append(regs, Registration{
		Context: projectRoot,
		Name:    opts.AssetsChunkName,
		Items:   companions,
		Multi:   true,
	})

	opts.Logger.Debug("entries registered", "scripts", len(regs)-1, "companions", len(companions))
	return regs, nil
}

// Companions returns the files sharing an entry's base name but not a
// script extension, e.g. "pages/index/index.wxml" for "pages/index/index".
// Results are project-relative, grouped by entry in entry order, and free of
// duplicates.
func Companions(projectRoot string, entries []string, exts []string) ([]string, error) {
	fsys := os.DirFS(projectRoot)
	seen := make(map[string]bool)
	var out []string

	for _, e := range entries {
		// Escaped directory segments never match, so glob inside the
		// entry's directory and only escape the base name.
		dir := path.Dir(e)
		sub, err := fs.Sub(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("globbing companions of %s: %w", e, err)
		}
		matches, err := doublestar.Glob(sub, escapeMeta(path.Base(e))+".*")
		if err != nil {
			return nil, fmt.Errorf("globbing companions of %s: %w", e, err)
		}
		slices.Sort(matches)

		for _, m := range matches {
			m = path.Join(dir, m)
			if seen[m] || slices.Contains(exts, path.Ext(m)) || strings.HasPrefix(path.Base(m), ".") {
				continue
			}
			info, err := fs.Stat(fsys, m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// escapeMeta escapes glob metacharacters so that entry paths match literally.
func escapeMeta(p string) string {
	var b strings.Builder
	for _, r := range p {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
