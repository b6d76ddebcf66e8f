package scape

import "heist/internal/grid"

// GuardSightRange is the Manhattan distance within which the guard sees the
// thief while no alarm is active.
const GuardSightRange = 2

// MaskForGuard hides the thief from the guard unless the alarm is active or
// the thief is within GuardSightRange.
func MaskForGuard(o Observation) Observation {
	view := o.clone()
	if !o.Alarm && grid.Manhattan(o.Thief, o.Guard) > GuardSightRange {
		view.Thief = grid.Unknown
	}
	return view
}

// Split returns the thief's full view and the guard's masked view.
func Split(o Observation) (thief, guard Observation) {
	return o.clone(), MaskForGuard(o)
}
