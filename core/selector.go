package core

import "github.com/encodeous/bgpsim/state"

// Better reports whether a is preferred over b: higher local preference, then lower MED,
// then the shorter AS path, then the lower (older) route id.
func Better(a, b state.Route) bool {
	if a.LocalPref != b.LocalPref {
		return a.LocalPref > b.LocalPref
	}
	if a.MED != b.MED {
		return a.MED < b.MED
	}
	if a.ASPathLen() != b.ASPathLen() {
		return a.ASPathLen() < b.ASPathLen()
	}
	return a.Id < b.Id
}

// SelectBest picks the best candidate. Ids are unique within a table, so the result does not depend on candidate order.
func SelectBest(candidates []state.Route) (state.Route, bool) {
	if len(candidates) == 0 {
		return state.Route{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if Better(c, best) {
			best = c
		}
	}
	return best, true
}
