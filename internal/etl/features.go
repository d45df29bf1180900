package etl

import (
	"context"

	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/framestats"
	"github.com/banshee-data/vibration.report/internal/monitoring"
	"github.com/banshee-data/vibration.report/internal/timeutil"
)

// DefaultChunkSize is the number of frames streamed per chunk during feature
// extraction.
const DefaultChunkSize = 500

// FeatureExtractor streams a session's raw frames and writes one statistic
// bundle per (frame, axis) into the feature mart.
type FeatureExtractor struct {
	DB    *db.DB
	Clock timeutil.Clock

	// ChunkSize bounds the frames held in memory at once.
	ChunkSize int
}

// NewFeatureExtractor creates an extractor with the real clock and the
// default chunk size.
func NewFeatureExtractor(database *db.DB) *FeatureExtractor {
	return &FeatureExtractor{
		DB:        database,
		Clock:     timeutil.RealClock{},
		ChunkSize: DefaultChunkSize,
	}
}

// Extract computes per-axis statistics for every frame of the session.
// Three end states: a session with no frames at all is skipped without
// touching markers; frames that yield zero rows leave the session pending
// with a warning; one or more rows written marks the feature stage done.
//
// As in the bronze loader, existing feature rows for the session are deleted
// up front regardless of force_reprocess so partial-write retries converge.
func (e *FeatureExtractor) Extract(ctx context.Context, s db.Session) (int64, error) {
	monitoring.Logf("[feature] session=%d device=%s force_reprocess=%v", s.ID, s.DeviceID, s.ForceReprocess)

	frameCount, err := e.DB.FrameCount(s.ID)
	if err != nil {
		return 0, err
	}
	if frameCount == 0 {
		monitoring.Logf("[feature] session=%d has no frames, skipping", s.ID)
		return 0, nil
	}

	deleted, err := e.DB.DeleteFeaturesForSession(s.ID)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		monitoring.Logf("[feature] session=%d discarded %d previously written feature rows", s.ID, deleted)
	}

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var total int64
	err = e.DB.IterFrames(s.ID, chunkSize, func(frames []db.Frame) error {
		rows := buildFeatureRows(frames)
		if len(rows) == 0 {
			return nil
		}

		// Each chunk is its own insert transaction; rows are not
		// accumulated for the whole session.
		if err := e.DB.InsertFeatures(rows); err != nil {
			return err
		}
		total += int64(len(rows))
		monitoring.Logf("[feature] session=%d chunk_rows=%d total_rows=%d", s.ID, len(rows), total)
		return nil
	})
	if err != nil {
		return total, err
	}

	if total > 0 {
		if err := e.DB.MarkFeatureDone(s.ID, e.Clock.Now()); err != nil {
			return total, err
		}
		monitoring.Logf("[feature] session=%d done, total_rows=%d", s.ID, total)
	} else {
		monitoring.Logf("[feature] WARN: session=%d produced no feature rows, feature marker not advanced", s.ID)
	}

	return total, nil
}

// buildFeatureRows emits exactly three rows per frame, one per axis. An axis
// with no samples still gets a row, with all-nil statistics.
func buildFeatureRows(frames []db.Frame) []db.FeatureRow {
	rows := make([]db.FeatureRow, 0, len(frames)*3)

	for _, f := range frames {
		for _, axis := range []struct {
			name    string
			samples []float64
		}{
			{"x", f.Ax},
			{"y", f.Ay},
			{"z", f.Az},
		} {
			stats := framestats.Compute(axis.samples)
			rows = append(rows, db.FeatureRow{
				SessionID:   f.SessionID,
				DeviceID:    f.DeviceID,
				FrameSeq:    f.FrameSeq,
				T0UTC:       f.T0UTC,
				Axis:        axis.name,
				RMS:         stats.RMS,
				Peak:        stats.Peak,
				MeanAbs:     stats.MeanAbs,
				Std:         stats.Std,
				CrestFactor: stats.CrestFactor,
				TaskType:    f.TaskType,
				LabelType:   f.LabelType,
				DataSplit:   f.DataSplit,
				Operator:    f.Operator,
			})
		}
	}

	return rows
}
