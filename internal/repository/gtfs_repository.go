package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/crowdeta/transit-eta-go/internal/models"
)

// GTFSRepository serves read-only discovery queries over the imported
// schedule feed (stops, routes, feed metadata).
type GTFSRepository struct {
	db *sql.DB
}

// NewGTFSRepository creates a new GTFS repository
func NewGTFSRepository(db *sql.DB) *GTFSRepository {
	return &GTFSRepository{db: db}
}

// StopFilter narrows GetStops.
type StopFilter struct {
	MinLat, MinLon, MaxLat, MaxLon float64
	HasBBox                        bool
	RouteID                        string
	Limit                          int
	Offset                         int
}

// GetStops lists stops with optional bbox / route filters and
// pagination.
func (r *GTFSRepository) GetStops(filter StopFilter) ([]models.Stop, int64, error) {
	var conditions []string
	var args []interface{}

	if filter.HasBBox {
		conditions = append(conditions, "stop_lat BETWEEN ? AND ? AND stop_lon BETWEEN ? AND ?")
		args = append(args, filter.MinLat, filter.MaxLat, filter.MinLon, filter.MaxLon)
	}
	if filter.RouteID != "" {
		conditions = append(conditions, `stop_id IN (
			SELECT DISTINCT st.stop_id
			FROM stop_times st
			JOIN trips t ON st.trip_id = t.trip_id
			WHERE t.route_id = ?)`)
		args = append(args, filter.RouteID)
	}

	whereSQL := ""
	if len(conditions) > 0 {
		whereSQL = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM stops"+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count stops: %w", err)
	}

	rows, err := r.db.Query(
		"SELECT stop_id, stop_name, stop_lat, stop_lon, zone_id FROM stops"+whereSQL+
			" ORDER BY stop_id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query stops: %w", err)
	}
	defer rows.Close()

	var stops []models.Stop
	for rows.Next() {
		var s models.Stop
		var zone sql.NullString
		if err := rows.Scan(&s.StopID, &s.StopName, &s.StopLat, &s.StopLon, &zone); err != nil {
			return nil, 0, fmt.Errorf("failed to scan stop: %w", err)
		}
		if zone.Valid {
			s.ZoneID = &zone.String
		}
		stops = append(stops, s)
	}
	return stops, total, rows.Err()
}

// RouteFilter narrows GetRoutes.
type RouteFilter struct {
	StopID    string
	RouteType int // -1 disables the filter
	Limit     int
	Offset    int
}

// GetRoutes lists routes with optional stop / route-type filters and
// pagination.
func (r *GTFSRepository) GetRoutes(filter RouteFilter) ([]models.Route, int64, error) {
	var conditions []string
	var args []interface{}

	if filter.RouteType >= 0 {
		conditions = append(conditions, "route_type = ?")
		args = append(args, filter.RouteType)
	}
	if filter.StopID != "" {
		conditions = append(conditions, `route_id IN (
			SELECT DISTINCT t.route_id
			FROM trips t
			JOIN stop_times st ON t.trip_id = st.trip_id
			WHERE st.stop_id = ?)`)
		args = append(args, filter.StopID)
	}

	whereSQL := ""
	if len(conditions) > 0 {
		whereSQL = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM routes"+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count routes: %w", err)
	}

	rows, err := r.db.Query(
		"SELECT route_id, route_short_name, route_long_name, route_type, agency_id FROM routes"+whereSQL+
			" ORDER BY route_id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		var rt models.Route
		var short, long, agency sql.NullString
		if err := rows.Scan(&rt.RouteID, &short, &long, &rt.RouteType, &agency); err != nil {
			return nil, 0, fmt.Errorf("failed to scan route: %w", err)
		}
		if short.Valid {
			rt.RouteShortName = &short.String
		}
		if long.Valid {
			rt.RouteLongName = &long.String
		}
		if agency.Valid {
			rt.AgencyID = &agency.String
		}
		routes = append(routes, rt)
	}
	return routes, total, rows.Err()
}

// GetMetadata returns a feed metadata value, or def when unset.
func (r *GTFSRepository) GetMetadata(key, def string) string {
	var value string
	err := r.db.QueryRow("SELECT value FROM gtfs_metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return def
	}
	return value
}
