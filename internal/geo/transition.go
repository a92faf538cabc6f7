package geo

// CellResolver is the grid operation the transition detector needs. Tests
// substitute a fake; production uses Index.
type CellResolver interface {
	CellOf(lat, lon float64, level int) uint64
}

// TransitionDetector tracks the current grid cell at a fixed level and
// reports when an observation lands in a different cell. The previous cell
// id starts at zero, so the first observation after process start always
// counts as a transition and forces a context fetch.
type TransitionDetector struct {
	resolver CellResolver
	level    int
	lastCell uint64
}

// NewTransitionDetector returns a detector at the given level; level <= 0
// selects DefaultLevel.
func NewTransitionDetector(resolver CellResolver, level int) *TransitionDetector {
	if level <= 0 {
		level = DefaultLevel
	}
	return &TransitionDetector{resolver: resolver, level: level}
}

// Level returns the grid level the detector operates at.
func (d *TransitionDetector) Level() int { return d.level }

// Observe resolves the cell for (lat, lon) and reports whether it differs
// from the previously observed cell.
func (d *TransitionDetector) Observe(lat, lon float64) (cell uint64, changed bool) {
	cell = d.resolver.CellOf(lat, lon, d.level)
	if cell != d.lastCell {
		d.lastCell = cell
		return cell, true
	}
	return cell, false
}

// CrossedBoundary reports whether two points fall in distinct cells at the
// detector's level. It does not alter the detector state.
func (d *TransitionDetector) CrossedBoundary(lat1, lon1, lat2, lon2 float64) bool {
	return d.resolver.CellOf(lat1, lon1, d.level) != d.resolver.CellOf(lat2, lon2, d.level)
}
