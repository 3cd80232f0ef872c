package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	src := `{
  "pages": ["pages/index/index", "pages/logs/logs"],
  "subPackages": [{"root": "packageA", "pages": ["pages/cat", "pages/dog"]}],
  "usingComponents": {"card": "/components/card/card", "map": "plugin://maps/map"},
  "tabBar": {
    "custom": true,
    "list": [
      {"pagePath": "pages/index/index", "iconPath": "images/home.png", "selectedIconPath": "images/home-on.png"},
      {"pagePath": "pages/logs/logs", "iconPath": "images/home.png"}
    ]
  },
  "window": {"navigationBarTitleText": "ignored"}
}`
	m, err := Parse("app.json", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if diff := cmp.Diff([]string{"pages/index/index", "pages/logs/logs"}, m.Pages); diff != "" {
		t.Errorf("Pages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"packageA/pages/cat", "packageA/pages/dog"}, m.SubPackages[0].PagePaths()); diff != "" {
		t.Errorf("PagePaths mismatch (-want +got):\n%s", diff)
	}
	if c := m.UsingComponents[0]; c.Tag != "card" || c.Ref != "/components/card/card" {
		t.Errorf("usingComponents[0] = %+v", c)
	}
	if !m.UsingComponents[1].IsPlugin() {
		t.Errorf("expected %q to be a plugin reference", m.UsingComponents[1].Ref)
	}
	if m.TabBar == nil || !m.TabBar.Custom {
		t.Fatal("expected custom tab bar")
	}
	if diff := cmp.Diff([]string{"images/home.png", "images/home-on.png"}, m.TabBar.Icons()); diff != "" {
		t.Errorf("Icons mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_LegacySubPackagesKey(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "camel case",
			src:  `{"subPackages": [{"root": "a", "pages": ["p"]}]}`,
			want: []string{"a"},
		},
		{
			name: "lower case",
			src:  `{"subpackages": [{"root": "b", "pages": ["p"]}]}`,
			want: []string{"b"},
		},
		{
			name: "lower case wins",
			src:  `{"subPackages": [{"root": "a"}], "subpackages": [{"root": "b"}]}`,
			want: []string{"b"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Parse("app.json", []byte(tc.src))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if diff := cmp.Diff(tc.want, m.SubPackageRoots()); diff != "" {
				t.Errorf("roots mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_ComponentOrder(t *testing.T) {
	src := `{"usingComponents": {"z-list": "./z", "a-card": "./a", "m-nav": "./m"}}`
	m, err := Parse("page.json", []byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := Components{
		{Tag: "z-list", Ref: "./z"},
		{Tag: "a-card", Ref: "./a"},
		{Tag: "m-nav", Ref: "./m"},
	}
	if diff := cmp.Diff(want, m.UsingComponents); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_ComponentsNotObject(t *testing.T) {
	_, err := Parse("page.json", []byte(`{"usingComponents": ["./a"]}`))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestParse_TabBarNotObject(t *testing.T) {
	for _, tabBar := range []string{"true", "null", `"bottom"`, "[]"} {
		t.Run(tabBar, func(t *testing.T) {
			m, err := Parse("app.json", []byte(`{"pages": ["p/a"], "tabBar": `+tabBar+`}`))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if m.TabBar != nil {
				t.Errorf("TabBar = %+v, want nil", m.TabBar)
			}
			if diff := cmp.Diff([]string{"p/a"}, m.Pages); diff != "" {
				t.Errorf("Pages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse("broken.json", []byte(`{"pages": [`))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Path != "broken.json" {
		t.Errorf("Path = %q, want broken.json", perr.Path)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: expected fs.ErrNotExist, got %v", err)
	}

	p := filepath.Join(dir, "card.json")
	if err := os.WriteFile(p, []byte(`{"component": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.UsingComponents) != 0 {
		t.Errorf("expected no components, got %v", m.UsingComponents)
	}
}

func TestOwnerOf(t *testing.T) {
	m := &Manifest{SubPackages: []SubPackage{
		{Root: "packageA"},
		{Root: "/packageB/"},
		{Root: "packageB/inner"},
	}}

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"packageA/pages/cat", "packageA", true},
		{"packageA", "packageA", true},
		{"packageAB/pages/cat", "", false},
		{"packageB/pages/dog", "packageB", true},
		{"packageB/inner/pages/x", "packageB/inner", true},
		{"pages/index/index", "", false},
		{"./packageA/x", "packageA", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := OwnerOf(m.SubPackageRoots(), tc.path)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("OwnerOf(%q) = (%q, %v), want (%q, %v)", tc.path, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}
