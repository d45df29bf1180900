package etl

import (
	"context"
	"errors"

	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/monitoring"
	"github.com/banshee-data/vibration.report/internal/objstore"
	"github.com/banshee-data/vibration.report/internal/timeutil"
)

// Stage identifies a pipeline stage in results and logs.
type Stage string

const (
	StageBronze  Stage = "bronze"
	StageFeature Stage = "feature"
)

// SessionResult is the per-session outcome of one stage. Err is nil on
// success; a non-nil Err never aborted the batch, only this session.
type SessionResult struct {
	SessionID   int64
	Stage       Stage
	RowsWritten int64
	Err         error
}

// Batch runs the full pipeline: backfill marker sync, then bronze loading,
// then feature extraction, strictly sequentially in ascending session-id
// order. A failure in one session is recorded and the batch moves on; the
// registry retries pending sessions on the next invocation.
type Batch struct {
	DB    *db.DB
	Store objstore.Store
	Clock timeutil.Clock

	ChunkSize           int
	MaxRecordsPerObject int
}

// NewBatch creates a batch driver with the real clock and default tuning.
func NewBatch(database *db.DB, store objstore.Store) *Batch {
	return &Batch{
		DB:        database,
		Store:     store,
		Clock:     timeutil.RealClock{},
		ChunkSize: DefaultChunkSize,
	}
}

// Run executes backfill sync, the bronze stage and the feature stage.
// The returned error covers only batch-level failures (selection queries,
// marker sync); per-session failures are reported in the results.
func (b *Batch) Run(ctx context.Context) ([]SessionResult, error) {
	sync := &BackfillSynchronizer{DB: b.DB, Clock: b.Clock}
	if err := sync.Run(); err != nil {
		return nil, err
	}

	results, err := b.RunBronze(ctx)
	if err != nil {
		return results, err
	}

	featureResults, err := b.RunFeatures(ctx)
	results = append(results, featureResults...)
	return results, err
}

// RunBronze loads every bronze candidate, one session at a time.
func (b *Batch) RunBronze(ctx context.Context) ([]SessionResult, error) {
	sessions, err := b.DB.BronzeCandidates()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		monitoring.Logf("[bronze] no sessions to process")
		return nil, nil
	}

	loader := &BronzeLoader{
		DB:                  b.DB,
		Store:               b.Store,
		Clock:               b.Clock,
		MaxRecordsPerObject: b.MaxRecordsPerObject,
	}

	results := make([]SessionResult, 0, len(sessions))
	for _, s := range sessions {
		rows, err := loader.Load(ctx, s)
		results = append(results, SessionResult{
			SessionID:   s.ID,
			Stage:       StageBronze,
			RowsWritten: rows,
			Err:         err,
		})
		if err != nil {
			logSessionError(StageBronze, s.ID, err)
		}
	}
	return results, nil
}

// RunFeatures extracts features for every feature candidate, one session at
// a time.
func (b *Batch) RunFeatures(ctx context.Context) ([]SessionResult, error) {
	sessions, err := b.DB.FeatureCandidates()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		monitoring.Logf("[feature] no sessions to process")
		return nil, nil
	}

	chunkSize := b.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	extractor := &FeatureExtractor{DB: b.DB, Clock: b.Clock, ChunkSize: chunkSize}

	results := make([]SessionResult, 0, len(sessions))
	for _, s := range sessions {
		rows, err := extractor.Extract(ctx, s)
		results = append(results, SessionResult{
			SessionID:   s.ID,
			Stage:       StageFeature,
			RowsWritten: rows,
			Err:         err,
		})
		if err != nil {
			logSessionError(StageFeature, s.ID, err)
		}
	}
	return results, nil
}

func logSessionError(stage Stage, sessionID int64, err error) {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		monitoring.Logf("[%s] ERROR session=%d: %v (left pending for retry)", stage, sessionID, schemaErr)
		return
	}
	monitoring.Logf("[%s] ERROR session=%d: %v", stage, sessionID, err)
}
