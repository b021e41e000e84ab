// Package gtfs loads a static GTFS feed into the database and derives
// the segment table plus per-(segment, bin) schedule baselines that
// seed the learning store. This is a one-time batch load, not a
// runtime hot path.
package gtfs

import (
	"archive/zip"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/crowdeta/transit-eta-go/internal/spatial"
	"github.com/crowdeta/transit-eta-go/internal/timebin"
)

// fallbackSpeedMps approximates urban transit speed (18 km/h) for
// segments whose scheduled times are unusable; the baseline then
// comes from stop-to-stop distance instead.
const fallbackSpeedMps = 5.0

// Importer loads a GTFS zip into the schedule tables.
type Importer struct {
	db *sql.DB
}

// NewImporter creates a new GTFS importer
func NewImporter(db *sql.DB) *Importer {
	return &Importer{db: db}
}

type tripMeta struct {
	routeID     string
	directionID int
	serviceID   string
}

// Import parses the feed and populates agency, routes, stops,
// calendar, trips, stop_times, segments and segment_stats. Returns
// the feed version.
func (im *Importer) Import(zipPath string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open GTFS zip: %w", err)
	}
	defer zr.Close()

	steps := []struct {
		name string
		fn   func(*zip.ReadCloser) error
	}{
		{"agency", im.loadAgency},
		{"routes", im.loadRoutes},
		{"stops", im.loadStops},
		{"calendar", im.loadCalendar},
		{"trips", im.loadTrips},
		{"stop_times", im.loadStopTimes},
	}
	for _, step := range steps {
		log.Printf("Loading %s...", step.name)
		if err := step.fn(zr); err != nil {
			return "", fmt.Errorf("failed to load %s: %w", step.name, err)
		}
	}

	log.Printf("Computing segments and schedule baselines...")
	if err := im.computeBaselines(); err != nil {
		return "", fmt.Errorf("failed to compute baselines: %w", err)
	}

	version := im.storeMetadata(zr)
	return version, nil
}

// forEachRow streams records of one file inside the zip as
// column-name → value maps. Missing files are skipped silently; GTFS
// makes several files optional.
func forEachRow(zr *zip.ReadCloser, name string, fn func(map[string]string) error) error {
	var file *zip.File
	for _, f := range zr.File {
		if f.Name == name {
			file = f
			break
		}
	}
	if file == nil {
		return nil
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read %s header: %w", name, err)
	}
	// Strip a UTF-8 BOM if the feed carries one.
	if len(header) > 0 && len(header[0]) >= 3 && header[0][:3] == "\xef\xbb\xbf" {
		header[0] = header[0][3:]
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s row: %w", name, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

func (im *Importer) loadAgency(zr *zip.ReadCloser) error {
	return im.batch(zr, "agency.txt",
		`INSERT OR REPLACE INTO agency (agency_id, agency_name, agency_url, agency_timezone, agency_lang)
		 VALUES (?, ?, ?, ?, ?)`,
		func(row map[string]string) []interface{} {
			agencyID := row["agency_id"]
			if agencyID == "" {
				agencyID = "1"
			}
			return []interface{}{agencyID, row["agency_name"], row["agency_url"], row["agency_timezone"], row["agency_lang"]}
		})
}

func (im *Importer) loadRoutes(zr *zip.ReadCloser) error {
	return im.batch(zr, "routes.txt",
		`INSERT OR REPLACE INTO routes (route_id, agency_id, route_short_name, route_long_name, route_type)
		 VALUES (?, ?, ?, ?, ?)`,
		func(row map[string]string) []interface{} {
			routeType, _ := strconv.Atoi(row["route_type"])
			agencyID := row["agency_id"]
			if agencyID == "" {
				agencyID = "1"
			}
			return []interface{}{row["route_id"], agencyID, row["route_short_name"], row["route_long_name"], routeType}
		})
}

func (im *Importer) loadStops(zr *zip.ReadCloser) error {
	return im.batch(zr, "stops.txt",
		`INSERT OR REPLACE INTO stops (stop_id, stop_name, stop_lat, stop_lon, zone_id)
		 VALUES (?, ?, ?, ?, ?)`,
		func(row map[string]string) []interface{} {
			lat, _ := strconv.ParseFloat(row["stop_lat"], 64)
			lon, _ := strconv.ParseFloat(row["stop_lon"], 64)
			return []interface{}{row["stop_id"], row["stop_name"], lat, lon, row["zone_id"]}
		})
}

func (im *Importer) loadCalendar(zr *zip.ReadCloser) error {
	return im.batch(zr, "calendar.txt",
		`INSERT OR REPLACE INTO calendar (service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		func(row map[string]string) []interface{} {
			args := []interface{}{row["service_id"]}
			for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
				v, _ := strconv.Atoi(row[day])
				args = append(args, v)
			}
			return args
		})
}

func (im *Importer) loadTrips(zr *zip.ReadCloser) error {
	return im.batch(zr, "trips.txt",
		`INSERT OR REPLACE INTO trips (trip_id, route_id, service_id, trip_headsign, direction_id)
		 VALUES (?, ?, ?, ?, ?)`,
		func(row map[string]string) []interface{} {
			directionID, _ := strconv.Atoi(row["direction_id"])
			return []interface{}{row["trip_id"], row["route_id"], row["service_id"], row["trip_headsign"], directionID}
		})
}

func (im *Importer) loadStopTimes(zr *zip.ReadCloser) error {
	return im.batch(zr, "stop_times.txt",
		`INSERT OR REPLACE INTO stop_times (trip_id, stop_sequence, stop_id, arrival_time, departure_time)
		 VALUES (?, ?, ?, ?, ?)`,
		func(row map[string]string) []interface{} {
			seq, _ := strconv.Atoi(row["stop_sequence"])
			return []interface{}{row["trip_id"], seq, row["stop_id"], row["arrival_time"], row["departure_time"]}
		})
}

// batch inserts every row of one file inside a single transaction.
func (im *Importer) batch(zr *zip.ReadCloser, name, query string, argsFn func(map[string]string) []interface{}) error {
	tx, err := im.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	count := 0
	err = forEachRow(zr, name, func(row map[string]string) error {
		if _, err := stmt.Exec(argsFn(row)...); err != nil {
			return fmt.Errorf("failed to insert %s row: %w", name, err)
		}
		count++
		return nil
	})
	stmt.Close()
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	log.Printf("  Loaded %d %s rows", count, name)
	return nil
}

type segKey struct {
	routeID     string
	directionID int
	fromStopID  string
	toStopID    string
}

type binKey struct {
	seg   segKey
	binID int
}

// computeBaselines derives segments from consecutive stop_times and
// computes the mean scheduled duration per (segment, bin). Scheduled
// times that are missing or non-increasing fall back to a
// distance-derived estimate so every observed hop still gets a
// baseline.
func (im *Importer) computeBaselines() error {
	trips, err := im.readTripMeta()
	if err != nil {
		return err
	}
	serviceDays, err := im.readServiceDays()
	if err != nil {
		return err
	}
	stopPos, err := im.readStopPositions()
	if err != nil {
		return err
	}

	rows, err := im.db.Query(`
		SELECT st1.trip_id, st1.stop_id, st1.departure_time, st2.stop_id, st2.arrival_time
		FROM stop_times st1
		JOIN stop_times st2 ON st1.trip_id = st2.trip_id AND st2.stop_sequence = st1.stop_sequence + 1
		ORDER BY st1.trip_id, st1.stop_sequence`)
	if err != nil {
		return fmt.Errorf("failed to query stop-time pairs: %w", err)
	}
	defer rows.Close()

	durations := make(map[binKey][]float64)
	for rows.Next() {
		var tripID, fromStop, depTime, toStop, arrTime string
		if err := rows.Scan(&tripID, &fromStop, &depTime, &toStop, &arrTime); err != nil {
			return fmt.Errorf("failed to scan stop-time pair: %w", err)
		}

		meta, ok := trips[tripID]
		if !ok {
			continue
		}

		depSec, depOK := ParseGTFSTime(depTime)
		arrSec, arrOK := ParseGTFSTime(arrTime)
		if !depOK || !arrOK {
			continue
		}

		duration := float64(arrSec - depSec)
		if duration <= 0 {
			duration = im.distanceFallback(stopPos, fromStop, toStop)
			if duration <= 0 {
				continue
			}
		}

		dayTypes, ok := serviceDays[meta.serviceID]
		if !ok {
			dayTypes = []int{timebin.Weekday}
		}

		seg := segKey{meta.routeID, meta.directionID, fromStop, toStop}
		for _, weekdayType := range dayTypes {
			k := binKey{seg, timebin.FromDaySeconds(depSec, weekdayType)}
			durations[k] = append(durations[k], duration)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed while reading stop-time pairs: %w", err)
	}

	return im.writeBaselines(durations)
}

func (im *Importer) readTripMeta() (map[string]tripMeta, error) {
	rows, err := im.db.Query("SELECT trip_id, route_id, direction_id, service_id FROM trips")
	if err != nil {
		return nil, fmt.Errorf("failed to read trips: %w", err)
	}
	defer rows.Close()

	trips := make(map[string]tripMeta)
	for rows.Next() {
		var tripID string
		var m tripMeta
		if err := rows.Scan(&tripID, &m.routeID, &m.directionID, &m.serviceID); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips[tripID] = m
	}
	return trips, rows.Err()
}

func (im *Importer) readServiceDays() (map[string][]int, error) {
	rows, err := im.db.Query(
		"SELECT service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday FROM calendar")
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}
	defer rows.Close()

	days := make(map[string][]int)
	for rows.Next() {
		var serviceID string
		var mon, tue, wed, thu, fri, sat, sun int
		if err := rows.Scan(&serviceID, &mon, &tue, &wed, &thu, &fri, &sat, &sun); err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}
		var types []int
		if mon+tue+wed+thu+fri > 0 {
			types = append(types, timebin.Weekday)
		}
		if sat+sun > 0 {
			types = append(types, timebin.Weekend)
		}
		if len(types) == 0 {
			types = []int{timebin.Weekday}
		}
		days[serviceID] = types
	}
	return days, rows.Err()
}

type latLon struct{ lat, lon float64 }

func (im *Importer) readStopPositions() (map[string]latLon, error) {
	rows, err := im.db.Query("SELECT stop_id, stop_lat, stop_lon FROM stops")
	if err != nil {
		return nil, fmt.Errorf("failed to read stops: %w", err)
	}
	defer rows.Close()

	pos := make(map[string]latLon)
	for rows.Next() {
		var id string
		var p latLon
		if err := rows.Scan(&id, &p.lat, &p.lon); err != nil {
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		pos[id] = p
	}
	return pos, rows.Err()
}

func (im *Importer) distanceFallback(stopPos map[string]latLon, fromStop, toStop string) float64 {
	from, okFrom := stopPos[fromStop]
	to, okTo := stopPos[toStop]
	if !okFrom || !okTo {
		return 0
	}
	meters := spatial.HaversineDistance(from.lat, from.lon, to.lat, to.lon)
	return meters / fallbackSpeedMps
}

func (im *Importer) writeBaselines(durations map[binKey][]float64) error {
	tx, err := im.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin baseline write: %w", err)
	}

	segmentIDs := make(map[segKey]int64)
	statCount := 0
	for k, ds := range durations {
		segmentID, ok := segmentIDs[k.seg]
		if !ok {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO segments (route_id, direction_id, from_stop_id, to_stop_id)
				 VALUES (?, ?, ?, ?)`,
				k.seg.routeID, k.seg.directionID, k.seg.fromStopID, k.seg.toStopID,
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert segment: %w", err)
			}
			err := tx.QueryRow(
				`SELECT segment_id FROM segments
				 WHERE route_id = ? AND direction_id = ? AND from_stop_id = ? AND to_stop_id = ?`,
				k.seg.routeID, k.seg.directionID, k.seg.fromStopID, k.seg.toStopID,
			).Scan(&segmentID)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to resolve segment id: %w", err)
			}
			segmentIDs[k.seg] = segmentID
		}

		var sum float64
		for _, d := range ds {
			sum += d
		}
		mean := sum / float64(len(ds))

		// ema_mean seeds from the baseline so the first observations
		// cannot dominate the moving average.
		if _, err := tx.Exec(
			`INSERT INTO segment_stats (segment_id, bin_id, schedule_mean, ema_mean)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(segment_id, bin_id) DO UPDATE SET schedule_mean = excluded.schedule_mean`,
			segmentID, k.binID, mean, mean,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert baseline: %w", err)
		}
		statCount++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit baselines: %w", err)
	}
	log.Printf("  Inserted %d segments and %d baseline rows", len(segmentIDs), statCount)
	return nil
}

// storeMetadata records the feed version and validity range when
// feed_info.txt is present.
func (im *Importer) storeMetadata(zr *zip.ReadCloser) string {
	version := "unknown"
	now := time.Now().Unix()

	err := forEachRow(zr, "feed_info.txt", func(row map[string]string) error {
		if v := row["feed_version"]; v != "" {
			version = v
		}
		pairs := map[string]string{
			"gtfs_version":    version,
			"gtfs_publisher":  row["feed_publisher_name"],
			"gtfs_start_date": row["feed_start_date"],
			"gtfs_end_date":   row["feed_end_date"],
		}
		for k, v := range pairs {
			if _, err := im.db.Exec(
				"INSERT OR REPLACE INTO gtfs_metadata (key, value, updated_at) VALUES (?, ?, ?)",
				k, v, now,
			); err != nil {
				return fmt.Errorf("failed to store metadata %s: %w", k, err)
			}
		}
		return io.EOF // only the first row matters
	})
	if err != nil && err != io.EOF {
		log.Printf("Warning: failed to store feed metadata: %v", err)
	}
	return version
}

// ParseGTFSTime parses a GTFS HH:MM:SS time into seconds since
// midnight. GTFS times can exceed 24h for trips running past
// midnight.
func ParseGTFSTime(s string) (int, bool) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, false
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}
