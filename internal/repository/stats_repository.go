package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/crowdeta/transit-eta-go/internal/database"
	"github.com/crowdeta/transit-eta-go/internal/learning"
	"github.com/crowdeta/transit-eta-go/internal/models"
)

// defaultScheduleMeanSec is the neutral baseline used when the
// schedule feed has no entry at all for a segment.
const defaultScheduleMeanSec = 300.0

// outlierMinSamples is the sample count below which the outlier test
// cannot be trusted and every observation is accepted.
const outlierMinSamples = 5

// StatsRepository owns the segment_stats learning state. Updates are
// a true read-modify-write (the streaming estimators need the prior
// state), so each update runs inside a transaction whose first
// statement is a write on the target row. SQLite's single writer then
// serializes concurrent observations for the same (segment, bin)
// while rows never read stay unaffected.
type StatsRepository struct {
	db *sql.DB

	// OutlierSigma and OutlierMinN gate the outlier test applied
	// before an observation is folded in.
	OutlierSigma float64
	OutlierMinN  int64
	// EMAAlpha is the fixed decay constant.
	EMAAlpha float64

	// Now is injectable for tests.
	Now func() time.Time
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *sql.DB, outlierSigma, emaAlpha float64) *StatsRepository {
	return &StatsRepository{
		db:           db,
		OutlierSigma: outlierSigma,
		OutlierMinN:  outlierMinSamples,
		EMAAlpha:     emaAlpha,
		Now:          time.Now,
	}
}

// Apply folds one observation into the stats row for (segmentID,
// binID), creating the row first if the schedule import never seeded
// it. Returns accepted=false when the observation fails the outlier
// test; the row is left untouched in that case.
func (r *StatsRepository) Apply(segmentID int64, binID int, durationSec float64) (bool, error) {
	accepted := false

	err := database.Transaction(r.db, func(tx *sql.Tx) error {
		// Ensure the row exists. This write is deliberately the first
		// statement of the transaction so the write lock is held
		// before the state is read. A missing row gets its
		// schedule_mean from the segment's other bins, falling back
		// to a neutral default, and seeds ema_mean from it so a
		// single early observation cannot dominate the EMA.
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO segment_stats (segment_id, bin_id, schedule_mean, ema_mean)
			 SELECT ?, ?, b.v, b.v
			 FROM (SELECT COALESCE(
			         (SELECT AVG(schedule_mean) FROM segment_stats WHERE segment_id = ?),
			         ?) AS v) b`,
			segmentID, binID, segmentID, defaultScheduleMeanSec,
		)
		if err != nil {
			return fmt.Errorf("failed to ensure stats row: %w", err)
		}

		var w learning.WelfordState
		var emaMean, emaVar float64
		err = tx.QueryRow(
			`SELECT n, welford_mean, welford_m2, ema_mean, ema_var
			 FROM segment_stats WHERE segment_id = ? AND bin_id = ?`,
			segmentID, binID,
		).Scan(&w.Count, &w.Mean, &w.M2, &emaMean, &emaVar)
		if err != nil {
			return fmt.Errorf("failed to read stats row: %w", err)
		}

		if learning.IsOutlier(durationSec, w.Mean, w.Variance(), w.Count, r.OutlierMinN, r.OutlierSigma) {
			return nil
		}

		w.Update(durationSec)
		emaMean, emaVar = learning.UpdateEMA(emaMean, emaVar, durationSec, r.EMAAlpha)

		_, err = tx.Exec(
			`UPDATE segment_stats
			 SET n = ?, welford_mean = ?, welford_m2 = ?, ema_mean = ?, ema_var = ?, last_update = ?
			 WHERE segment_id = ? AND bin_id = ?`,
			w.Count, w.Mean, w.M2, emaMean, emaVar, r.Now().Unix(), segmentID, binID,
		)
		if err != nil {
			return fmt.Errorf("failed to write stats row: %w", err)
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return accepted, nil
}

// Read returns the stats row for (segmentID, binID), or nil when no
// observation or baseline seeded it yet.
func (r *StatsRepository) Read(segmentID int64, binID int) (*models.SegmentStat, error) {
	var s models.SegmentStat
	var lastUpdate sql.NullInt64
	err := r.db.QueryRow(
		`SELECT segment_id, bin_id, n, welford_mean, welford_m2, ema_mean, ema_var, schedule_mean, last_update
		 FROM segment_stats WHERE segment_id = ? AND bin_id = ?`,
		segmentID, binID,
	).Scan(&s.SegmentID, &s.BinID, &s.N, &s.WelfordMean, &s.WelfordM2,
		&s.EMAMean, &s.EMAVar, &s.ScheduleMean, &lastUpdate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read segment stats: %w", err)
	}
	if lastUpdate.Valid {
		s.LastUpdate = lastUpdate.Int64
	}
	return &s, nil
}

// FallbackBaseline returns the schedule baseline for a segment whose
// queried bin has no stats row: the average over the segment's seeded
// bins, or the neutral default when the feed never served it.
func (r *StatsRepository) FallbackBaseline(segmentID int64) (float64, error) {
	var mean sql.NullFloat64
	err := r.db.QueryRow(
		`SELECT AVG(schedule_mean) FROM segment_stats WHERE segment_id = ?`,
		segmentID,
	).Scan(&mean)
	if err != nil {
		return 0, fmt.Errorf("failed to read fallback baseline: %w", err)
	}
	if !mean.Valid {
		return defaultScheduleMeanSec, nil
	}
	return mean.Float64, nil
}
