package chunk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPlanDependencies_GroupOrder(t *testing.T) {
	runtime := runtimeChunk()
	vendor := &Chunk{Name: "vendor", Initial: true}
	app := &Chunk{Name: "sub/app", Initial: true, EntryModule: true}
	Link(&Group{Name: "sub/app"}, runtime, vendor, app)

	want := Plan{"../runtime.js", "../vendor.js"}
	if diff := cmp.Diff(want, PlanDependencies(app)); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanDependencies_RootEntry(t *testing.T) {
	runtime := runtimeChunk()
	vendor := &Chunk{Name: "vendor", Initial: true}
	app := &Chunk{Name: "app", Initial: true, EntryModule: true}
	Link(&Group{Name: "app"}, runtime, vendor, app)

	want := Plan{"runtime.js", "vendor.js"}
	if diff := cmp.Diff(want, PlanDependencies(app)); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanDependencies_NestedEntry(t *testing.T) {
	runtime := runtimeChunk()
	vendor := &Chunk{Name: "vendor"}
	subVendor := &Chunk{Name: "shop/vendor"}
	page := &Chunk{Name: "shop/pages/cart/cart", EntryModule: true}
	Link(&Group{Name: page.Name}, runtime, vendor, subVendor, page)

	want := Plan{"../../../runtime.js", "../../../vendor.js", "../../vendor.js"}
	if diff := cmp.Diff(want, PlanDependencies(page)); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanDependencies_NoDependencies(t *testing.T) {
	app := &Chunk{Name: "app", EntryModule: true}
	Link(&Group{Name: "app"}, app)

	plan := PlanDependencies(app)
	if len(plan) != 0 {
		t.Fatalf("expected empty plan, got %v", plan)
	}
	if got := Inject("App({})", app, plan); got != "App({})" {
		t.Errorf("Inject with empty plan changed source: %q", got)
	}

	lonely := &Chunk{Name: "lonely", EntryModule: true}
	if plan := PlanDependencies(lonely); len(plan) != 0 {
		t.Errorf("expected empty plan for a chunk without groups, got %v", plan)
	}
}

func TestPlanDependencies_DeduplicatesAcrossGroups(t *testing.T) {
	runtime := runtimeChunk()
	vendor := &Chunk{Name: "vendor"}
	// A differently named chunk that writes to the same file as vendor.
	alias := &Chunk{Name: "vendor-alias", File: "vendor.js"}
	page := &Chunk{Name: "pages/p", EntryModule: true}

	Link(&Group{Name: "first"}, runtime, vendor, page)
	Link(&Group{Name: "second"}, page, vendor, alias, runtime)

	plan := PlanDependencies(page)
	want := Plan{"../runtime.js", "../vendor.js"}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	for _, p := range plan {
		if p == "p.js" || p == "../pages/p.js" {
			t.Errorf("plan includes the entry chunk itself: %v", plan)
		}
	}
}

func TestPlanDependencies_SkipsChunkWritingEntryFile(t *testing.T) {
	runtime := runtimeChunk()
	page := &Chunk{Name: "pages/p", EntryModule: true}
	alias := &Chunk{Name: "pages/p-alias", File: "pages/p.js"}

	Link(&Group{Name: "pages/p"}, runtime, alias, page)

	plan := PlanDependencies(page)
	if diff := cmp.Diff(Plan{"../runtime.js"}, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestInject(t *testing.T) {
	entry := &Chunk{Name: "pages/p", EntryModule: true}
	shared := &Chunk{Name: "vendor"}

	tests := []struct {
		name   string
		chunk  *Chunk
		plan   Plan
		source string
		want   string
	}{
		{
			name:   "relative paths get a leading marker",
			chunk:  entry,
			plan:   Plan{"runtime.js", "../vendor.js", "./local.js"},
			source: "Page({})",
			want:   ";require('./runtime.js');require('./../vendor.js');require('./local.js');Page({})",
		},
		{
			name:   "absolute paths pass through",
			chunk:  entry,
			plan:   Plan{"/abs/runtime.js"},
			source: "Page({})",
			want:   ";require('/abs/runtime.js');Page({})",
		},
		{
			name:   "non-entry chunk unchanged",
			chunk:  shared,
			plan:   Plan{"runtime.js"},
			source: "module.exports = 1",
			want:   "module.exports = 1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Inject(tc.source, tc.chunk, tc.plan); got != tc.want {
				t.Errorf("Inject() = %q, want %q", got, tc.want)
			}
		})
	}
}
