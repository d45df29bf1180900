package etl

import (
	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/monitoring"
	"github.com/banshee-data/vibration.report/internal/timeutil"
)

// BackfillSynchronizer reconciles stage markers with store contents before
// selection runs. Sessions whose data landed before the marker columns
// existed (or before a crash could update them) get their markers set to now
// without reprocessing, so the selector cannot re-pick them and double-write.
type BackfillSynchronizer struct {
	DB    *db.DB
	Clock timeutil.Clock
}

// NewBackfillSynchronizer creates a synchronizer with the real clock.
func NewBackfillSynchronizer(database *db.DB) *BackfillSynchronizer {
	return &BackfillSynchronizer{DB: database, Clock: timeutil.RealClock{}}
}

// Run reconciles both stage markers. It is invoked once per batch, before
// candidate selection.
func (b *BackfillSynchronizer) Run() error {
	now := b.Clock.Now()

	n, err := b.DB.SyncBronzeMarkers(now)
	if err != nil {
		return err
	}
	if n > 0 {
		monitoring.Logf("[backfill] reconciled bronze markers for %d sessions", n)
	}

	m, err := b.DB.SyncFeatureMarkers(now)
	if err != nil {
		return err
	}
	if m > 0 {
		monitoring.Logf("[backfill] reconciled feature markers for %d sessions", m)
	}

	return nil
}
