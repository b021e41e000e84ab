package service

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/crowdeta/transit-eta-go/internal/metrics"
	"github.com/crowdeta/transit-eta-go/internal/models"
	"github.com/crowdeta/transit-eta-go/internal/repository"
	"github.com/crowdeta/transit-eta-go/internal/timebin"
)

// IngestService validates a submitted ride and applies its accepted
// observations to the statistics store. Validation is ordered; the
// first failing check decides a segment's single outcome.
type IngestService struct {
	segments *repository.SegmentRepository
	stats    *repository.StatsRepository
	rides    *repository.RideRepository
	metrics  *metrics.Collector

	MaxSegments   int
	MinConfidence float64
	MaxAge        time.Duration
	SkewTolerance time.Duration

	Now func() time.Time
}

// NewIngestService creates a new ingest service
func NewIngestService(
	segments *repository.SegmentRepository,
	stats *repository.StatsRepository,
	rides *repository.RideRepository,
	collector *metrics.Collector,
	maxSegments int,
	minConfidence float64,
	maxAgeSec, skewToleranceSec int,
) *IngestService {
	return &IngestService{
		segments:      segments,
		stats:         stats,
		rides:         rides,
		metrics:       collector,
		MaxSegments:   maxSegments,
		MinConfidence: minConfidence,
		MaxAge:        time.Duration(maxAgeSec) * time.Second,
		SkewTolerance: time.Duration(skewToleranceSec) * time.Second,
		Now:           time.Now,
	}
}

// Submit processes one ride. Every segment is persisted for audit
// whether accepted or not; every rejection is additionally logged for
// quality monitoring. Per-segment failures never fail the request.
func (s *IngestService) Submit(req models.RideSummaryRequest) (*models.RideSummaryResponse, error) {
	now := s.Now()
	rideID := uuid.NewString()

	if err := s.rides.InsertRide(rideID, req.RouteID, req.DirectionID, req.DeviceBucket, len(req.Segments)); err != nil {
		return nil, fmt.Errorf("failed to persist ride: %w", err)
	}
	if req.DeviceBucket != "" {
		if err := s.rides.TouchDeviceBucket(req.DeviceBucket); err != nil {
			// Bookkeeping only; the submission itself is unaffected.
			log.Printf("device bucket tracking failed: %v", err)
		}
	}

	resp := &models.RideSummaryResponse{RejectedByReason: models.NewRejectedByReason()}

	// The segment-count limit is a property of the whole ride. Over
	// the limit, every segment gets the same outcome.
	tooMany := len(req.Segments) > s.MaxSegments

	for seq, seg := range req.Segments {
		observed, parseErr := time.Parse(time.RFC3339, seg.ObservedAtUTC)
		if parseErr != nil {
			// The handler validates timestamps before calling Submit;
			// a parse failure here means a programming error upstream.
			return nil, fmt.Errorf("unparseable observed_at_utc at seq %d: %w", seq, parseErr)
		}
		binID := timebin.FromTime(observed)

		segmentID, err := s.segments.Find(req.RouteID, req.DirectionID, seg.FromStopID, seg.ToStopID)
		if err != nil {
			return nil, err
		}

		reason := ""
		switch {
		case tooMany:
			reason = models.ReasonTooManySegments
		case segmentID == 0:
			reason = models.ReasonInvalidSegment
		case observed.Before(now.Add(-s.MaxAge)) || observed.After(now.Add(s.SkewTolerance)):
			reason = models.ReasonStaleTimestamp
		case seg.MapmatchConf < s.MinConfidence:
			reason = models.ReasonLowConfidence
		default:
			accepted, err := s.stats.Apply(segmentID, binID, seg.DurationSec)
			if err != nil {
				return nil, err
			}
			if !accepted {
				reason = models.ReasonOutlier
			}
		}

		if err := s.rides.InsertSegment(models.RideSegmentRecord{
			RideID:          rideID,
			Seq:             seq,
			SegmentID:       segmentID,
			FromStopID:      seg.FromStopID,
			ToStopID:        seg.ToStopID,
			DurationSec:     seg.DurationSec,
			DwellSec:        seg.DwellSec,
			MapmatchConf:    seg.MapmatchConf,
			ObservedAt:      observed.Unix(),
			Accepted:        reason == "",
			RejectionReason: reason,
		}); err != nil {
			return nil, err
		}

		if reason == "" {
			resp.AcceptedSegments++
			s.metrics.SegmentAccepted()
			continue
		}

		resp.RejectedSegments++
		resp.RejectedByReason[reason]++
		s.metrics.SegmentRejected(reason)
		if err := s.rides.LogRejection(models.RejectionRecord{
			SegmentID:    segmentID,
			BinID:        binID,
			Reason:       reason,
			DurationSec:  seg.DurationSec,
			MapmatchConf: seg.MapmatchConf,
			DeviceBucket: req.DeviceBucket,
			RejectedAt:   now.Unix(),
		}); err != nil {
			return nil, err
		}
	}

	return resp, nil
}
