package engine

import (
	"testing"

	"timeblock/internal/model"
)

func depItems(edges map[string][]string) map[string]*workItem {
	items := make(map[string]*workItem, len(edges))
	for id, deps := range edges {
		items[id] = &workItem{unit: taskUnit{t: model.Task{ID: id, DependsOn: deps}}}
	}
	return items
}

func TestCyclicMarksCycleMembersOnly(t *testing.T) {
	items := depItems(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {"a"}, // depends into the cycle; not a member
		"e": nil,
	})
	got := buildDepGraph(items).cyclic()

	for _, id := range []string{"a", "b", "c"} {
		if !got[id] {
			t.Fatalf("%s not marked cyclic: %v", id, got)
		}
	}
	for _, id := range []string{"d", "e"} {
		if got[id] {
			t.Fatalf("%s wrongly marked cyclic: %v", id, got)
		}
	}
}

func TestCyclicSelfDependency(t *testing.T) {
	got := buildDepGraph(depItems(map[string][]string{"a": {"a"}, "b": nil})).cyclic()
	if !got["a"] || got["b"] {
		t.Fatalf("cyclic = %v, want only a", got)
	}
}

func TestCyclicTwoNode(t *testing.T) {
	got := buildDepGraph(depItems(map[string][]string{"a": {"b"}, "b": {"a"}})).cyclic()
	if !got["a"] || !got["b"] {
		t.Fatalf("cyclic = %v, want both", got)
	}
}

func TestDepthsLongestChain(t *testing.T) {
	g := buildDepGraph(depItems(map[string][]string{
		"a": {"b", "d"},
		"b": {"c"},
		"c": nil,
		"d": nil,
		// A dependency naming no candidate adds no edge.
		"e": {"gone"},
	}))
	got := g.depths()

	want := map[string]int{"a": 2, "b": 1, "c": 0, "d": 0, "e": 0}
	for id, d := range want {
		if got[id] != d {
			t.Fatalf("depth[%s] = %d, want %d (all: %v)", id, got[id], d, got)
		}
	}
}

func TestBuildDropsEdgesToAbsentTasks(t *testing.T) {
	g := buildDepGraph(depItems(map[string][]string{"a": {"done", "b"}, "b": nil}))
	if got := g.deps["a"]; len(got) != 1 || got[0] != "b" {
		t.Fatalf(`deps["a"] = %v, want [b]`, got)
	}
}
