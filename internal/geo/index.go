// Package geo wraps the hierarchical spatial grid used for cell indexing
// and provides the cell transition detector that paces context refreshes.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// DefaultLevel is the grid level used for boundary detection; level-16
// cells are roughly 140 m across.
const DefaultLevel = 16

// earthRadiusM is the mean earth radius used by the distance helpers.
const earthRadiusM = 6371000.0

// Index resolves positions to hierarchical grid cells. It is stateless and
// safe for concurrent use.
type Index struct{}

// CellOf returns the cell id containing (lat, lon) at the given level. The
// mapping is deterministic: repeated calls return the same id.
func (Index) CellOf(lat, lon float64, level int) uint64 {
	ll := s2.LatLngFromDegrees(lat, lon)
	return uint64(s2.CellIDFromLatLng(ll).Parent(level))
}

// Neighbors returns the up-to-four edge neighbors of a cell.
func (Index) Neighbors(cell uint64) []uint64 {
	id := s2.CellID(cell)
	edge := id.EdgeNeighbors()
	out := make([]uint64, 0, len(edge))
	for _, n := range edge {
		if n.IsValid() {
			out = append(out, uint64(n))
		}
	}
	return out
}

// Center returns the latitude/longitude of a cell's center in degrees.
func (Index) Center(cell uint64) (lat, lon float64) {
	ll := s2.CellID(cell).LatLng()
	return ll.Lat.Degrees(), ll.Lng.Degrees()
}

// AreaM2 returns the approximate cell area in square metres.
func (Index) AreaM2(cell uint64) float64 {
	return s2.CellFromCellID(s2.CellID(cell)).ApproxArea() * earthRadiusM * earthRadiusM
}

// DistanceM returns the great-circle distance between two points in metres,
// by the haversine formula.
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusM * c
}
