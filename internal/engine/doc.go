// Package engine implements the scheduling pass: expanding recurring
// templates into dated instances, resolving dependencies between one-off
// tasks, and greedily placing every schedulable unit into the earliest
// feasible calendar slot.
//
// # Pass shape
//
// A pass is a pure, single-threaded computation over a Request snapshot:
// the caller loads tasks, templates and calendar events up front, and
// persists the returned assignments, materialized instances and failures
// afterwards. The engine holds no state between passes and performs no
// store I/O, which makes passes deterministic and replayable.
//
// # Placement strategy
//
// Units are ordered by effective due-by (missing due-bys last), then by
// dependency depth, then by id. The orchestrator repeatedly takes the
// highest-priority ready unit, asks the availability model for the
// earliest free block, and commits it, so an earlier due date always
// gets first pick of the earliest slot. There is no backtracking and no
// re-placement of blocks that are already on the calendar.
//
// # Failures
//
// A unit that cannot be placed is reported, never silently dropped:
// cyclic dependency chains, windows that fall outside work hours, plain
// lack of free capacity, and units blocked behind a failed dependency
// each carry their own reason code. One failing unit never aborts the
// pass; only an inconsistent work-hours or window configuration does.
package engine
