package etl

import (
	"testing"
	"time"

	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/timeutil"
)

// insertFrames puts n frames with the given samples on all three axes into
// the bronze ledger and marks bronze done so the session is feature-eligible.
func insertFrames(t *testing.T, database *db.DB, s *db.Session, n int, samples []float64) {
	t.Helper()

	frames := make([]db.Frame, 0, n)
	t0 := time.Date(2025, 11, 26, 16, 55, 13, 0, time.UTC)
	for i := 0; i < n; i++ {
		frames = append(frames, db.Frame{
			SessionID:       s.ID,
			DeviceID:        s.DeviceID,
			FrameSeq:        int64(i + 1),
			T0UTC:           t0.Add(time.Duration(i) * time.Second),
			SamplesPerFrame: int64(len(samples)),
			Ax:              samples,
			Ay:              samples,
			Az:              samples,
			TaskType:        s.TaskType,
			LabelType:       s.LabelType,
			DataSplit:       s.DataSplit,
			Operator:        s.Operator,
		})
	}
	if err := database.InsertFrames(frames); err != nil {
		t.Fatalf("InsertFrames failed: %v", err)
	}
	if err := database.MarkBronzeDone(s.ID, t0); err != nil {
		t.Fatalf("MarkBronzeDone failed: %v", err)
	}
}

func TestExtractThreeRowsPerFrame(t *testing.T) {
	database := setupTestDB(t)
	clock := timeutil.NewFakeClock(time.Date(2025, 11, 27, 9, 0, 0, 0, time.UTC))

	s := createSession(t, database, "M001")
	insertFrames(t, database, s, 6, []float64{3, -4})

	extractor := &FeatureExtractor{DB: database, Clock: clock, ChunkSize: DefaultChunkSize}
	rows, err := extractor.Extract(t.Context(), *s)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rows != 18 {
		t.Errorf("rows written = %d, want 18 (6 frames x 3 axes)", rows)
	}

	count, _ := database.FeatureCount(s.ID)
	if count != 18 {
		t.Errorf("FeatureCount = %d, want 18", count)
	}

	got, _ := database.GetSession(s.ID)
	if got.FeatureDoneAt == nil || !got.FeatureDoneAt.Equal(clock.Now()) {
		t.Errorf("FeatureDoneAt = %v, want %v", got.FeatureDoneAt, clock.Now())
	}
}

func TestExtractStatisticsValues(t *testing.T) {
	database := setupTestDB(t)
	clock := timeutil.NewFakeClock(time.Date(2025, 11, 27, 9, 0, 0, 0, time.UTC))

	s := createSession(t, database, "M001")
	s.TaskType = strPtr("fault_diag")

	// One frame: ax = [3, -4], ay = [0, 0] (undefined crest), az = [3, -4].
	if err := database.InsertFrames([]db.Frame{{
		SessionID:       s.ID,
		DeviceID:        s.DeviceID,
		FrameSeq:        1,
		T0UTC:           time.Date(2025, 11, 26, 16, 55, 13, 0, time.UTC),
		SamplesPerFrame: 2,
		Ax:              []float64{3, -4},
		Ay:              []float64{0, 0},
		Az:              []float64{3, -4},
		TaskType:        s.TaskType,
		LabelType:       s.LabelType,
	}}); err != nil {
		t.Fatalf("InsertFrames failed: %v", err)
	}
	if err := database.MarkBronzeDone(s.ID, clock.Now()); err != nil {
		t.Fatalf("MarkBronzeDone failed: %v", err)
	}

	extractor := &FeatureExtractor{DB: database, Clock: clock, ChunkSize: DefaultChunkSize}
	if _, err := extractor.Extract(t.Context(), *s); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	rows, err := database.LabeledFeatures([]string{"fault_diag"})
	if err != nil {
		t.Fatalf("LabeledFeatures failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	byAxis := make(map[string]db.FeatureRow)
	for _, r := range rows {
		byAxis[r.Axis] = r
	}

	x := byAxis["x"]
	if x.RMS == nil || *x.RMS != 2.5 {
		t.Errorf("x rms = %v, want 2.5", x.RMS)
	}
	if x.Peak == nil || *x.Peak != 4 {
		t.Errorf("x peak = %v, want 4", x.Peak)
	}
	if x.MeanAbs == nil || *x.MeanAbs != 3.5 {
		t.Errorf("x mean_abs = %v, want 3.5", x.MeanAbs)
	}
	if x.CrestFactor == nil || *x.CrestFactor != 1.6 {
		t.Errorf("x crest_factor = %v, want 1.6", x.CrestFactor)
	}

	y := byAxis["y"]
	if y.RMS == nil || *y.RMS != 0 {
		t.Errorf("y rms = %v, want 0", y.RMS)
	}
	if y.CrestFactor != nil {
		t.Errorf("y crest_factor = %v, want nil (undefined at rms 0)", y.CrestFactor)
	}
}

func TestExtractSkipsSessionWithoutFrames(t *testing.T) {
	database := setupTestDB(t)
	clock := timeutil.NewFakeClock(time.Date(2025, 11, 27, 9, 0, 0, 0, time.UTC))

	s := createSession(t, database, "M001")
	if err := database.MarkBronzeDone(s.ID, clock.Now()); err != nil {
		t.Fatalf("MarkBronzeDone failed: %v", err)
	}

	extractor := &FeatureExtractor{DB: database, Clock: clock, ChunkSize: DefaultChunkSize}
	rows, err := extractor.Extract(t.Context(), *s)
	if err != nil {
		t.Fatalf("Extract failed: %v (no frames is a skip, not an error)", err)
	}
	if rows != 0 {
		t.Errorf("rows = %d, want 0", rows)
	}

	got, _ := database.GetSession(s.ID)
	if got.FeatureDoneAt != nil {
		t.Error("feature marker advanced for frameless session")
	}
}

func TestExtractChunked(t *testing.T) {
	database := setupTestDB(t)
	clock := timeutil.NewFakeClock(time.Date(2025, 11, 27, 9, 0, 0, 0, time.UTC))

	s := createSession(t, database, "M001")
	insertFrames(t, database, s, 7, []float64{1, 2})

	// Chunk size 2 forces four chunk transactions; results must be
	// identical to a single-chunk run.
	extractor := &FeatureExtractor{DB: database, Clock: clock, ChunkSize: 2}
	rows, err := extractor.Extract(t.Context(), *s)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rows != 21 {
		t.Errorf("rows = %d, want 21 (7 frames x 3 axes)", rows)
	}
}

func TestExtractForceReprocessReplaces(t *testing.T) {
	database := setupTestDB(t)
	clock := timeutil.NewFakeClock(time.Date(2025, 11, 27, 9, 0, 0, 0, time.UTC))

	s := createSession(t, database, "M001")
	insertFrames(t, database, s, 2, []float64{1})

	extractor := &FeatureExtractor{DB: database, Clock: clock, ChunkSize: DefaultChunkSize}
	if _, err := extractor.Extract(t.Context(), *s); err != nil {
		t.Fatalf("initial Extract failed: %v", err)
	}

	if err := database.SetForceReprocess(s.ID, true); err != nil {
		t.Fatalf("SetForceReprocess failed: %v", err)
	}
	candidates, err := database.FeatureCandidates()
	if err != nil {
		t.Fatalf("FeatureCandidates failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d feature candidates, want 1", len(candidates))
	}

	if _, err := extractor.Extract(t.Context(), candidates[0]); err != nil {
		t.Fatalf("reprocess Extract failed: %v", err)
	}

	count, _ := database.FeatureCount(s.ID)
	if count != 6 {
		t.Errorf("FeatureCount after reprocess = %d, want 6 (old rows discarded)", count)
	}
}
