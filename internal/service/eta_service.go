package service

import (
	"errors"
	"time"

	"github.com/crowdeta/transit-eta-go/internal/learning"
	"github.com/crowdeta/transit-eta-go/internal/models"
	"github.com/crowdeta/transit-eta-go/internal/repository"
	"github.com/crowdeta/transit-eta-go/internal/timebin"
)

// ErrSegmentNotFound is returned when the queried segment does not
// exist in the imported schedule.
var ErrSegmentNotFound = errors.New("segment not found")

// modelVersion tags predictions with the estimator generation.
const modelVersion = "welford-ema-v1"

// ETAService answers point-in-time ETA queries by blending learned
// statistics with the schedule baseline. Reads have no side effects.
type ETAService struct {
	segments *repository.SegmentRepository
	stats    *repository.StatsRepository

	BlendN0     int
	ConfMediumN int64
	ConfHighN   int64
}

// NewETAService creates a new ETA service
func NewETAService(segments *repository.SegmentRepository, stats *repository.StatsRepository, blendN0, confMediumN, confHighN int) *ETAService {
	return &ETAService{
		segments:    segments,
		stats:       stats,
		BlendN0:     blendN0,
		ConfMediumN: int64(confMediumN),
		ConfHighN:   int64(confHighN),
	}
}

// Query predicts the travel duration for a segment at the given time.
func (s *ETAService) Query(q models.ETAQuery, when time.Time) (*models.ETAResponse, error) {
	segmentID, err := s.segments.Find(q.RouteID, q.DirectionID, q.FromStopID, q.ToStopID)
	if err != nil {
		return nil, err
	}
	if segmentID == 0 {
		return nil, ErrSegmentNotFound
	}

	binID := timebin.FromTime(when)

	stat, err := s.stats.Read(segmentID, binID)
	if err != nil {
		return nil, err
	}

	var (
		n            int64
		scheduleMean float64
		emaMean      float64
		variance     float64
		lastUpdate   int64
	)
	if stat == nil {
		// Nothing observed and no baseline seeded for this bin: the
		// prediction is the schedule alone.
		scheduleMean, err = s.stats.FallbackBaseline(segmentID)
		if err != nil {
			return nil, err
		}
		emaMean = scheduleMean
	} else {
		n = stat.N
		scheduleMean = stat.ScheduleMean
		emaMean = stat.EMAMean
		lastUpdate = stat.LastUpdate
		w := learning.WelfordState{Count: stat.N, Mean: stat.WelfordMean, M2: stat.WelfordM2}
		variance = w.Variance()
	}

	predicted := learning.BlendedMean(emaMean, scheduleMean, n, s.BlendN0)
	p50, p90 := learning.Percentiles(predicted, variance, n, scheduleMean)

	lastUpdated := ""
	if lastUpdate > 0 {
		lastUpdated = time.Unix(lastUpdate, 0).UTC().Format(time.RFC3339)
	}

	return &models.ETAResponse{
		Segment: models.SegmentInfo{
			RouteID:     q.RouteID,
			DirectionID: q.DirectionID,
			FromStopID:  q.FromStopID,
			ToStopID:    q.ToStopID,
		},
		QueryTime: when.UTC().Format(time.RFC3339),
		Scheduled: models.ScheduledInfo{
			DurationSec: scheduleMean,
			Source:      "gtfs",
		},
		Prediction: models.PredictionInfo{
			PredictedDurationSec: predicted,
			P50Sec:               p50,
			P90Sec:               p90,
			Confidence:           s.confidence(n),
			BlendWeight:          learning.BlendWeight(n, s.BlendN0),
			SamplesUsed:          n,
			BinID:                binID,
			LastUpdated:          lastUpdated,
			ModelVersion:         modelVersion,
		},
	}, nil
}

func (s *ETAService) confidence(n int64) string {
	switch {
	case n >= s.ConfHighN:
		return "high"
	case n >= s.ConfMediumN:
		return "medium"
	default:
		return "low"
	}
}
