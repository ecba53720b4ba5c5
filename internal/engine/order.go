package engine

import "sort"

// orderItems sorts the work list by effective due-by ascending with
// missing due-bys last, then dependency depth ascending, then id
// ascending. The sort is stable so equal keys keep intake order.
func orderItems(items []*workItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.hasDue && b.hasDue && !a.due.Equal(b.due):
			return a.due.Before(b.due)
		case a.hasDue != b.hasDue:
			return a.hasDue
		case a.depth != b.depth:
			return a.depth < b.depth
		default:
			return a.unit.id() < b.unit.id()
		}
	})
}
