package engine

import (
	"testing"
	"time"

	"timeblock/internal/model"
)

func orderedIDs(items []*workItem) []string {
	orderItems(items)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.unit.id()
	}
	return ids
}

func orderItem(id string, due time.Time, hasDue bool, depth int) *workItem {
	return &workItem{
		unit:   taskUnit{t: model.Task{ID: id}},
		due:    due,
		hasDue: hasDue,
		depth:  depth,
	}
}

func TestOrderDueAscendingNullsLast(t *testing.T) {
	got := orderedIDs([]*workItem{
		orderItem("none", time.Time{}, false, 0),
		orderItem("late", at(mon, 17, 0), true, 0),
		orderItem("soon", at(mon, 10, 0), true, 0),
	})
	want := []string{"soon", "late", "none"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOrderTiesByDepthThenID(t *testing.T) {
	due := at(mon, 12, 0)
	got := orderedIDs([]*workItem{
		orderItem("deep", due, true, 2),
		orderItem("b", due, true, 0),
		orderItem("a", due, true, 0),
	})
	want := []string{"a", "b", "deep"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOrderNoDueTiesByDepthThenID(t *testing.T) {
	got := orderedIDs([]*workItem{
		orderItem("z", time.Time{}, false, 0),
		orderItem("leaf", time.Time{}, false, 1),
		orderItem("m", time.Time{}, false, 0),
	})
	want := []string{"m", "z", "leaf"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
