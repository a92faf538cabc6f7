package geo

import (
	"math"
	"testing"
)

func TestCellOfIdempotent(t *testing.T) {
	var idx Index
	first := idx.CellOf(37.7749, -122.4194, DefaultLevel)
	for i := 0; i < 10; i++ {
		if got := idx.CellOf(37.7749, -122.4194, DefaultLevel); got != first {
			t.Fatalf("CellOf returned %d then %d for the same input", first, got)
		}
	}
	if first == 0 {
		t.Error("CellOf returned zero id")
	}
}

func TestCellOfDistinguishesDistantPoints(t *testing.T) {
	var idx Index
	sf := idx.CellOf(37.7749, -122.4194, DefaultLevel)
	la := idx.CellOf(34.0522, -118.2437, DefaultLevel)
	if sf == la {
		t.Errorf("San Francisco and Los Angeles share level-16 cell %d", sf)
	}
}

func TestCellLevels(t *testing.T) {
	var idx Index
	// A coarser level must contain strictly larger cells.
	fine := idx.AreaM2(idx.CellOf(37.7749, -122.4194, 16))
	coarse := idx.AreaM2(idx.CellOf(37.7749, -122.4194, 10))
	if coarse <= fine {
		t.Errorf("level 10 area %v not larger than level 16 area %v", coarse, fine)
	}
	// Level-16 cells are roughly 140 m across (about 19,000 m^2).
	if fine < 5_000 || fine > 100_000 {
		t.Errorf("level 16 cell area = %v m^2, outside plausible range", fine)
	}
}

func TestNeighbors(t *testing.T) {
	var idx Index
	cell := idx.CellOf(37.7749, -122.4194, DefaultLevel)
	neighbors := idx.Neighbors(cell)
	if len(neighbors) != 4 {
		t.Fatalf("Neighbors returned %d cells, want 4", len(neighbors))
	}
	for _, n := range neighbors {
		if n == cell {
			t.Error("cell listed as its own neighbor")
		}
	}
}

func TestCenterRoundTrip(t *testing.T) {
	var idx Index
	cell := idx.CellOf(37.7749, -122.4194, DefaultLevel)
	lat, lon := idx.Center(cell)
	// The center of a cell stays within the cell.
	if got := idx.CellOf(lat, lon, DefaultLevel); got != cell {
		t.Errorf("center (%v, %v) resolves to cell %d, want %d", lat, lon, got, cell)
	}
}

func TestDistanceM(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantMin, wantMax float64
	}{
		{"SF to LA", 37.7749, -122.4194, 34.0522, -118.2437, 500_000, 620_000},
		{"same point", 37.7749, -122.4194, 37.7749, -122.4194, 0, 0.001},
		{"one degree of latitude", 0, 0, 1, 0, 110_000, 112_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceM(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("DistanceM = %v, want in [%v, %v]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

// fakeResolver maps longitude sign to a cell id, making transitions easy to
// script.
type fakeResolver struct{ calls int }

func (r *fakeResolver) CellOf(lat, lon float64, level int) uint64 {
	r.calls++
	if lon >= 0 {
		return 2
	}
	return 1
}

func TestTransitionDetectorFirstObservationFires(t *testing.T) {
	d := NewTransitionDetector(&fakeResolver{}, 0)
	if d.Level() != DefaultLevel {
		t.Errorf("Level = %d, want %d", d.Level(), DefaultLevel)
	}
	cell, changed := d.Observe(37.7749, -122.4194)
	if !changed {
		t.Error("first observation did not fire a transition")
	}
	if cell != 1 {
		t.Errorf("cell = %d, want 1", cell)
	}
}

func TestTransitionDetectorFiresOnChangeOnly(t *testing.T) {
	d := NewTransitionDetector(&fakeResolver{}, DefaultLevel)
	d.Observe(10, -1)

	if _, changed := d.Observe(10, -1); changed {
		t.Error("transition fired without a cell change")
	}
	if _, changed := d.Observe(10, 1); !changed {
		t.Error("transition did not fire on a cell change")
	}
	if _, changed := d.Observe(10, 1); changed {
		t.Error("transition fired twice for one change")
	}
}

func TestTransitionDetectorRealGrid(t *testing.T) {
	d := NewTransitionDetector(Index{}, DefaultLevel)
	d.Observe(37.7749, -122.4194)
	// ~1.1 km north is guaranteed out of a ~140 m cell.
	if _, changed := d.Observe(37.7849, -122.4194); !changed {
		t.Error("1 km move did not change level-16 cell")
	}
}

func TestCrossedBoundary(t *testing.T) {
	d := NewTransitionDetector(Index{}, DefaultLevel)
	if !d.CrossedBoundary(37.7749, -122.4194, 34.0522, -118.2437) {
		t.Error("CrossedBoundary = false for SF vs LA")
	}
	if d.CrossedBoundary(37.7749, -122.4194, 37.7749, -122.4194) {
		t.Error("CrossedBoundary = true for identical points")
	}
}

func TestCrossedBoundaryDoesNotMutateState(t *testing.T) {
	r := &fakeResolver{}
	d := NewTransitionDetector(r, DefaultLevel)
	d.Observe(10, -1)
	d.CrossedBoundary(10, -1, 10, 1)
	if _, changed := d.Observe(10, -1); changed {
		t.Error("CrossedBoundary disturbed the detector state")
	}
}

func TestDistanceMSymmetry(t *testing.T) {
	a := DistanceM(37.7749, -122.4194, 34.0522, -118.2437)
	b := DistanceM(34.0522, -118.2437, 37.7749, -122.4194)
	if math.Abs(a-b) > 1e-6 {
		t.Errorf("distance not symmetric: %v vs %v", a, b)
	}
}
