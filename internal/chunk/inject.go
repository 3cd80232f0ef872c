package chunk

import (
	"path"
	"slices"
	"strings"
)

// Plan is the ordered list of load paths an entry chunk must require before
// its own code runs. Earlier paths load, and run their top-level code, first.
type Plan []string

// PlanDependencies computes the load plan of an entry chunk.
//
// Every chunk of every group the entry belongs to is visited in group order.
// Each one whose output file is not the entry's own contributes the relative
// path from the entry's output directory to its output file. Paths are
// deduplicated on the computed string, so two chunks resolving to the same
// file load once.
func PlanDependencies(entry *Chunk) Plan {
	dir := path.Dir(entry.OutputName())
	self := relPath(dir, entry.OutputName())

	var plan Plan
	for _, g := range entry.Groups() {
		for _, c := range g.Chunks {
			if c == entry {
				continue
			}
			p := relPath(dir, c.OutputName())
			if p == self || slices.Contains(plan, p) {
				continue
			}
			plan = append(plan, p)
		}
	}
	return plan
}

// Inject prepends one require statement per plan entry to the source of c.
// Chunks without an entry module, and empty plans, leave source unchanged.
func Inject(source string, c *Chunk, plan Plan) string {
	if !c.HasEntryModule() || len(plan) == 0 {
		return source
	}

	var b strings.Builder
	b.WriteString(";")
	for _, p := range plan {
		b.WriteString("require('")
		b.WriteString(requirePath(p))
		b.WriteString("');")
	}
	b.WriteString(source)
	return b.String()
}

// requirePath makes p explicitly file-relative so that the mini-program
// loader does not treat it as a package name. Absolute paths pass through.
func requirePath(p string) string {
	if path.IsAbs(p) || strings.HasPrefix(p, "./") {
		return p
	}
	return "./" + p
}
