// Package entry discovers the build entries of a mini-program.
//
// Resolution starts at the app script, reads its manifest and walks every
// page, sub-package page and (recursively) every used component. The result
// is a flat, deduplicated list of extension-less, project-relative paths that
// a bundler can register as entry points.
//
// Manifests are read from disk on every call; nothing is cached between
// resolutions so that watch-mode rebuilds always see the latest manifests.
package entry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/minakit/mina/internal/manifest"
)

// ErrRootManifestNotFound is returned when the root script or its manifest
// does not exist.
var ErrRootManifestNotFound = errors.New("root manifest not found")

// Default option values.
const (
	DefaultCustomTabBar    = "custom-tab-bar/index"
	DefaultAssetsChunkName = "__assets_chunk_name__"
)

// DefaultExtensions are the script extensions probed when none are configured.
var DefaultExtensions = []string{".js"}

// Kind records how an entry was discovered.
type Kind int

const (
	// KindUnknown is reported for paths that are not in the graph.
	KindUnknown Kind = iota
	KindRoot
	KindPage
	KindComponent
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindRoot:
		return "root"
	case KindPage:
		return "page"
	case KindComponent:
		return "component"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Options configures resolution and registration.
type Options struct {
	// Extensions are the script extensions probed, in order.
	Extensions []string

	// CustomTabBar is the entry resolved when the tab bar is custom.
	CustomTabBar string

	// AssetsChunkName names the aggregate registration of companion files.
	AssetsChunkName string

	// Logger receives diagnostics for recovered failures.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	if o.CustomTabBar == "" {
		o.CustomTabBar = DefaultCustomTabBar
	}
	if o.AssetsChunkName == "" {
		o.AssetsChunkName = DefaultAssetsChunkName
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Graph is the outcome of one resolution pass.
type Graph struct {
	// Root is the root entry, e.g. "app".
	Root string

	// Entries lists every entry: the root, main package pages, sub-package
	// pages, the custom tab bar, then components in discovery order.
	Entries []string

	// Icons lists the tab bar icon files. They are build outputs but not
	// entries.
	Icons []string

	// SubPackageRoots lists the declared sub-package roots.
	SubPackageRoots []string

	kinds map[string]Kind
}

// Kind returns how e was discovered, or KindUnknown when e is not an entry.
func (g *Graph) Kind(e string) Kind {
	return g.kinds[e]
}

// SubPackageOf returns the sub-package root owning e, if any.
func (g *Graph) SubPackageOf(e string) (string, bool) {
	return manifest.OwnerOf(g.SubPackageRoots, e)
}

func (g *Graph) add(e string, k Kind) {
	if _, ok := g.kinds[e]; ok {
		return
	}
	g.kinds[e] = k
	g.Entries = append(g.Entries, e)
}

// resolver carries the per-pass state. It is discarded after Resolve returns.
type resolver struct {
	root       string
	opts       Options
	visited    map[string]bool
	components []string
}

// Resolve walks the manifests of the project rooted at projectRoot, starting
// from rootEntry (e.g. "app.js" or "app"), and returns the entry graph.
//
// A missing root script or manifest yields ErrRootManifestNotFound; a
// malformed root manifest yields a *manifest.ParseError. Problems with nested
// manifests are logged and the affected component is treated as a leaf.
func Resolve(projectRoot, rootEntry string, opts Options) (*Graph, error) {
	opts = opts.withDefaults()

	rootName := Normalize(rootEntry)
	if ext := path.Ext(rootName); slices.Contains(opts.Extensions, ext) {
		rootName = strings.TrimSuffix(rootName, ext)
	}

	if _, err := ScriptPath(projectRoot, rootName, opts.Extensions); err != nil {
		return nil, fmt.Errorf("%w: no script for %q in %s", ErrRootManifestNotFound, rootName, projectRoot)
	}

	manifestPath := filepath.Join(projectRoot, filepath.FromSlash(manifest.PathFor(rootName)))
	app, err := manifest.Load(manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootManifestNotFound, manifestPath)
		}
		return nil, err
	}

	r := &resolver{
		root:    projectRoot,
		opts:    opts,
		visited: make(map[string]bool),
	}
	g := &Graph{
		Root:            rootName,
		SubPackageRoots: app.SubPackageRoots(),
		kinds:           make(map[string]Kind),
	}
	g.add(rootName, KindRoot)

	for _, page := range app.Pages {
		p := Normalize(page)
		g.add(p, KindPage)
		r.expand(p)
	}

	for _, sub := range app.SubPackages {
		for _, page := range sub.PagePaths() {
			p := Normalize(page)
			g.add(p, KindPage)
			r.expand(p)
		}
	}

	if app.TabBar != nil {
		g.Icons = app.TabBar.Icons()
		if app.TabBar.Custom {
			p := Normalize(opts.CustomTabBar)
			g.add(p, KindPage)
			r.expand(p)
		}
	}

	for _, c := range r.components {
		g.add(c, KindComponent)
	}

	opts.Logger.Debug("entries resolved", "root", rootName, "entries", len(g.Entries), "icons", len(g.Icons))
	return g, nil
}

// expand reads the manifest of cur and recurses into every component it
// uses that has not been visited in this pass.
func (r *resolver) expand(cur string) {
	manifestPath := filepath.Join(r.root, filepath.FromSlash(manifest.PathFor(cur)))
	m, err := manifest.Load(manifestPath)
	if err != nil {
		r.opts.Logger.Warn("component manifest unusable, treating as leaf", "entry", cur, "err", err)
		return
	}

	for _, comp := range m.UsingComponents {
		if comp.IsPlugin() {
			continue
		}

		dep, ok := resolveRef(cur, comp.Ref)
		if !ok {
			r.opts.Logger.Warn("component reference outside project", "entry", cur, "ref", comp.Ref)
			continue
		}

		if r.visited[dep] {
			continue
		}
		r.visited[dep] = true
		r.components = append(r.components, dep)
		r.expand(dep)
	}
}

// resolveRef resolves a component reference made by the entry cur. References
// starting with "/" are relative to the project root, all others to the
// directory of cur. It reports false when the result escapes the project.
func resolveRef(cur, ref string) (string, bool) {
	ref = strings.ReplaceAll(ref, "\\", "/")

	var p string
	if strings.HasPrefix(ref, "/") {
		p = path.Clean(strings.TrimLeft(ref, "/"))
	} else {
		p = path.Join(path.Dir(cur), ref)
	}

	if p == ".." || strings.HasPrefix(p, "../") || p == "." || p == "" {
		return "", false
	}
	return p, true
}

// Normalize converts a manifest path to the canonical entry form: slash
// separated, cleaned, relative to the project root.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(strings.TrimLeft(p, "/"))
	return strings.TrimPrefix(p, "./")
}

// ScriptPath returns the script file of entry by probing exts in order.
// The first existing regular file wins.
func ScriptPath(projectRoot, entry string, exts []string) (string, error) {
	base := filepath.Join(projectRoot, filepath.FromSlash(entry))
	for _, ext := range exts {
		candidate := base + ext
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s (tried %s)", ErrScriptNotFound, entry, strings.Join(exts, ", "))
}
