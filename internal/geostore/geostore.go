// Package geostore persists smoothed fixes and context events to sqlite for
// later analysis. The pipeline never reads this data back; losing the
// database loses history, not state.
package geostore

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
)

// Store wraps a sqlite database scoped to one ride (one daemon run).
type Store struct {
	db     *sql.DB
	rideID string
}

// NewStore opens (creating if needed) the database at path and starts a new
// ride.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open geostore: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rides (
			ride_id TEXT PRIMARY KEY,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS fixes (
			ride_id TEXT,
			seq INTEGER,
			ts_ms BIGINT,
			lat DOUBLE,
			lon DOUBLE,
			alt DOUBLE,
			cell_id TEXT,
			cell_level INTEGER,
			is_moving INTEGER,
			step_count INTEGER,
			distance_m DOUBLE,
			FOREIGN KEY(ride_id) REFERENCES rides(ride_id)
		);
		CREATE TABLE IF NOT EXISTS context_events (
			ride_id TEXT,
			seq INTEGER,
			ts_ms BIGINT,
			road_name TEXT,
			surface TEXT,
			traffic TEXT,
			speed_limit DOUBLE,
			elevation_gain_m DOUBLE,
			gradient_percent DOUBLE,
			hazards TEXT,
			FOREIGN KEY(ride_id) REFERENCES rides(ride_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create geostore schema: %w", err)
	}

	rideID := uuid.New().String()
	if _, err := db.Exec("INSERT INTO rides (ride_id) VALUES (?)", rideID); err != nil {
		db.Close()
		return nil, fmt.Errorf("start ride: %w", err)
	}
	return &Store{db: db, rideID: rideID}, nil
}

// RideID returns the id of the current ride.
func (s *Store) RideID() string { return s.rideID }

// RecordFix stores one published state.
func (s *Store) RecordFix(ws shm.WorldState) error {
	_, err := s.db.Exec(`
		INSERT INTO fixes (ride_id, seq, ts_ms, lat, lon, alt, cell_id, cell_level, is_moving, step_count, distance_m)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.rideID, ws.UpdateSequence, ws.LastUpdateMS,
		ws.SmoothedLat, ws.SmoothedLon, ws.SmoothedAlt,
		fmt.Sprintf("%#x", ws.CellID), ws.CellLevel,
		boolToInt(ws.IsMoving), ws.StepCount, ws.EstimatedDistanceM)
	return err
}

// RecordContext stores one context refresh.
func (s *Store) RecordContext(ws shm.WorldState, cf shm.ContextFrame) error {
	_, err := s.db.Exec(`
		INSERT INTO context_events (ride_id, seq, ts_ms, road_name, surface, traffic, speed_limit, elevation_gain_m, gradient_percent, hazards)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.rideID, ws.UpdateSequence, cf.TimestampMS,
		shm.FixedString(cf.RoadName[:]), shm.FixedString(cf.Surface[:]),
		shm.FixedString(cf.Traffic[:]), cf.SpeedLimit,
		cf.ElevationGainM, cf.GradientPercent, shm.FixedString(cf.Hazards[:]))
	return err
}

// Fix is one stored fix row.
type Fix struct {
	Seq       uint32  `json:"seq"`
	TsMS      int64   `json:"ts_ms"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Alt       float64 `json:"alt"`
	CellID    string  `json:"cell_id"`
	CellLevel int32   `json:"cell_level"`
	IsMoving  bool    `json:"is_moving"`
	StepCount uint32  `json:"step_count"`
	DistanceM float64 `json:"distance_m"`
}

// RecentFixes returns up to limit fixes from the current ride, newest first.
func (s *Store) RecentFixes(limit int) ([]Fix, error) {
	rows, err := s.db.Query(`
		SELECT seq, ts_ms, lat, lon, alt, cell_id, cell_level, is_moving, step_count, distance_m
		FROM fixes WHERE ride_id = ? ORDER BY seq DESC LIMIT ?`, s.rideID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []Fix
	for rows.Next() {
		var f Fix
		var moving int
		if err := rows.Scan(&f.Seq, &f.TsMS, &f.Lat, &f.Lon, &f.Alt,
			&f.CellID, &f.CellLevel, &moving, &f.StepCount, &f.DistanceM); err != nil {
			return nil, err
		}
		f.IsMoving = moving != 0
		fixes = append(fixes, f)
	}
	return fixes, rows.Err()
}

// ContextEventCount returns how many context refreshes the ride has stored.
func (s *Store) ContextEventCount() (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM context_events WHERE ride_id = ?", s.rideID).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
