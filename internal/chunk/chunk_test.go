package chunk

import (
	"errors"
	"testing"
)

func runtimeChunk() *Chunk {
	return &Chunk{Name: "runtime", Initial: true, Runtime: true}
}

func TestRuntimeExtracted(t *testing.T) {
	tests := []struct {
		name   string
		chunks []*Chunk
		want   bool
	}{
		{
			name:   "extracted runtime",
			chunks: []*Chunk{runtimeChunk(), {Name: "app", Initial: true, EntryModule: true}},
			want:   true,
		},
		{
			name: "only entry chunks",
			chunks: []*Chunk{
				{Name: "app", Initial: true, Runtime: true, EntryModule: true},
				{Name: "pages/index/index", Initial: true, Runtime: true, EntryModule: true},
			},
			want: false,
		},
		{
			name:   "runtime chunk not initial",
			chunks: []*Chunk{{Name: "runtime", Runtime: true}},
			want:   false,
		},
		{
			name:   "no chunks",
			chunks: nil,
			want:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RuntimeExtracted(tc.chunks); got != tc.want {
				t.Errorf("RuntimeExtracted() = %v, want %v", got, tc.want)
			}
			err := Require(tc.chunks)
			if tc.want && err != nil {
				t.Errorf("Require() = %v, want nil", err)
			}
			if !tc.want && !errors.Is(err, ErrMissingRuntimeChunk) {
				t.Errorf("Require() = %v, want ErrMissingRuntimeChunk", err)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	if got := (&Chunk{Name: "pages/a"}).OutputName(); got != "pages/a.js" {
		t.Errorf("OutputName() = %q, want pages/a.js", got)
	}
	if got := (&Chunk{Name: "pages/a", File: "pages/a.min.js"}).OutputName(); got != "pages/a.min.js" {
		t.Errorf("OutputName() = %q, want pages/a.min.js", got)
	}
}

func TestLink(t *testing.T) {
	a, b := &Chunk{Name: "a"}, &Chunk{Name: "b"}
	g1, g2 := &Group{Name: "g1"}, &Group{Name: "g2"}

	Link(g1, a, b)
	Link(g2, b)

	if len(a.Groups()) != 1 || a.Groups()[0] != g1 {
		t.Errorf("a groups = %v", a.Groups())
	}
	if len(b.Groups()) != 2 {
		t.Errorf("b expected in 2 groups, got %d", len(b.Groups()))
	}
	if len(g1.Chunks) != 2 || len(g2.Chunks) != 1 {
		t.Errorf("unexpected group sizes %d %d", len(g1.Chunks), len(g2.Chunks))
	}
}

func TestRemoveByName(t *testing.T) {
	a, assets, b := &Chunk{Name: "a"}, &Chunk{Name: "__assets_chunk_name__"}, &Chunk{Name: "b"}
	chunks := []*Chunk{a, assets, b}

	got := RemoveByName(chunks, "__assets_chunk_name__")
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("RemoveByName() = %v", got)
	}
	if chunks[1] != assets {
		t.Error("input slice was modified")
	}

	if got := RemoveByName(chunks, "missing"); len(got) != 3 {
		t.Errorf("RemoveByName(missing) changed the list: %v", got)
	}
}
