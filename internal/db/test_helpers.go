package db

import (
	"path/filepath"
	"testing"
	"time"
)

// Helper functions for creating pointer values
func strPtr(s string) *string {
	return &s
}

func int64Ptr(v int64) *int64 {
	return &v
}

func floatPtr(f float64) *float64 {
	return &f
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestSession inserts a session with a raw location and metadata
// suitable for bronze processing.
func createTestSession(t *testing.T, db *DB, deviceID string) *Session {
	t.Helper()

	s := &Session{
		DeviceID:     deviceID,
		RawLocation:  strPtr("s3://phm-raw/" + deviceID + "/2025/11/26/20251126_165513_" + deviceID + "_anomaly_normal_000001.jsonl"),
		SampleRateHz: int64Ptr(8000),
		ChannelCount: int64Ptr(3),
		TaskType:     strPtr("anomaly"),
		LabelType:    strPtr("normal"),
		DataSplit:    strPtr("train"),
		Operator:     strPtr("line-3"),
	}
	if err := db.CreateSession(s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return s
}

// insertTestFrames inserts n sequential frames for the session starting at
// frame_seq 1, each with the given axis samples.
func insertTestFrames(t *testing.T, db *DB, s *Session, n int, samples []float64) {
	t.Helper()

	frames := make([]Frame, 0, n)
	t0 := time.Date(2025, 11, 26, 16, 55, 13, 0, time.UTC)
	for i := 0; i < n; i++ {
		frames = append(frames, Frame{
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
	if err := db.InsertFrames(frames); err != nil {
		t.Fatalf("InsertFrames failed: %v", err)
	}
}
