// Package manifest models the JSON sidecar files of a mini-program.
//
// Every script entry (the app, a page, a component) may have a manifest at the
// same path with a .json extension. Only the fields that drive entry
// resolution are decoded; everything else is ignored.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
)

// PluginPrefix marks component references served by a mini-program plugin.
// Such components live outside the project and are never build entries.
const PluginPrefix = "plugin://"

// Manifest is the decoded content of an app, page or component manifest.
type Manifest struct {
	// Pages lists page paths of the main package (app manifest only).
	Pages []string

	// SubPackages lists the declared sub-packages (app manifest only).
	SubPackages []SubPackage

	// UsingComponents maps local tag names to component references, in
	// declaration order.
	UsingComponents Components

	// TabBar is the tab bar declaration, nil when absent.
	TabBar *TabBar
}

// SubPackage is a separately loaded group of pages sharing a root directory.
type SubPackage struct {
	Root  string   `json:"root"`
	Pages []string `json:"pages"`
}

// TabBar is the app-level tab bar declaration.
type TabBar struct {
	Custom bool         `json:"custom"`
	List   []TabBarItem `json:"list"`
}

// TabBarItem is a single tab. Icon paths are relative to the project root.
type TabBarItem struct {
	PagePath         string `json:"pagePath"`
	IconPath         string `json:"iconPath"`
	SelectedIconPath string `json:"selectedIconPath"`
}

// raw mirrors the on-disk layout, including the legacy sub-package key.
type raw struct {
	Pages           []string        `json:"pages"`
	SubPackages     []SubPackage    `json:"subPackages"`
	SubPackagesOld  []SubPackage    `json:"subpackages"`
	UsingComponents Components      `json:"usingComponents"`
	TabBar          json.RawMessage `json:"tabBar"`
}

// Component is one usingComponents declaration.
type Component struct {
	Tag string
	Ref string
}

// IsPlugin reports whether the reference points into a plugin.
func (c Component) IsPlugin() bool {
	return strings.HasPrefix(c.Ref, PluginPrefix)
}

// Components is an ordered usingComponents mapping. Declaration order is kept
// so that entry discovery is deterministic.
type Components []Component

// UnmarshalJSON decodes a JSON object keeping its key order.
func (c *Components) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("usingComponents must be an object, got %v", tok)
	}

	var out Components
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var ref string
		if err := dec.Decode(&ref); err != nil {
			return fmt.Errorf("usingComponents[%q]: %w", key, err)
		}
		out = append(out, Component{Tag: key, Ref: ref})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// ParseError reports a manifest that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes manifest content. name is used in error messages only.
func Parse(name string, data []byte) (*Manifest, error) {
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &ParseError{Path: name, Err: err}
	}

	m := &Manifest{
		Pages:           r.Pages,
		SubPackages:     r.SubPackages,
		UsingComponents: r.UsingComponents,
	}
	// A tabBar that is not an object carries no tab bar and is ignored.
	if tb := bytes.TrimSpace(r.TabBar); len(tb) > 0 && tb[0] == '{' {
		m.TabBar = new(TabBar)
		if err := json.Unmarshal(tb, m.TabBar); err != nil {
			return nil, &ParseError{Path: name, Err: err}
		}
	}
	// The lowercase key takes precedence when both are present.
	if len(r.SubPackagesOld) > 0 {
		m.SubPackages = r.SubPackagesOld
	}
	return m, nil
}

// Load reads and decodes the manifest at path. A missing file is returned as
// an error wrapping fs.ErrNotExist; malformed content as a *ParseError.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(path, data)
}

// PathFor returns the manifest path of an extension-less entry path.
func PathFor(entryPath string) string {
	return entryPath + ".json"
}

// PagePaths returns the project-relative page paths of the sub-package.
func (s SubPackage) PagePaths() []string {
	out := make([]string, 0, len(s.Pages))
	for _, p := range s.Pages {
		out = append(out, path.Join(s.Root, p))
	}
	return out
}

// Icons returns every icon path declared by the tab bar, in declaration
// order, without duplicates.
func (t *TabBar) Icons() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	var icons []string
	for _, item := range t.List {
		for _, icon := range []string{item.IconPath, item.SelectedIconPath} {
			if icon == "" || seen[icon] {
				continue
			}
			seen[icon] = true
			icons = append(icons, icon)
		}
	}
	return icons
}

// SubPackageRoots returns the cleaned root of every declared sub-package.
func (m *Manifest) SubPackageRoots() []string {
	roots := make([]string, 0, len(m.SubPackages))
	for _, s := range m.SubPackages {
		roots = append(roots, cleanRoot(s.Root))
	}
	return roots
}

// OwnerOf reports which of the sub-package roots owns the project-relative
// path p.
//
// A root owns p when p equals the root or lies below it on a path-segment
// boundary: root "pkgA" owns "pkgA/pages/x" but not "pkgAB/pages/x". When
// roots nest, the longest matching root wins.
func OwnerOf(roots []string, p string) (string, bool) {
	p = cleanRoot(p)
	best := ""
	for _, root := range roots {
		root = cleanRoot(root)
		if root == "" || root == "." {
			continue
		}
		if p == root || strings.HasPrefix(p, root+"/") {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best, best != ""
}

func cleanRoot(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(strings.TrimPrefix(p, "/"))
	return strings.TrimPrefix(p, "./")
}
