package db

import (
	"testing"
	"time"
)

func makeFeatureRow(s *Session, seq int64, axis string, rms *float64) FeatureRow {
	return FeatureRow{
		SessionID: s.ID,
		DeviceID:  s.DeviceID,
		FrameSeq:  seq,
		T0UTC:     time.Date(2025, 11, 26, 16, 55, 13, 0, time.UTC),
		Axis:      axis,
		RMS:       rms,
		TaskType:  s.TaskType,
		LabelType: s.LabelType,
		DataSplit: s.DataSplit,
	}
}

func TestInsertAndCountFeatures(t *testing.T) {
	db := setupTestDB(t)
	s := createTestSession(t, db, "M001")

	rows := []FeatureRow{
		makeFeatureRow(s, 1, "x", floatPtr(2.5)),
		makeFeatureRow(s, 1, "y", nil),
		makeFeatureRow(s, 1, "z", floatPtr(0.0)),
	}
	if err := db.InsertFeatures(rows); err != nil {
		t.Fatalf("InsertFeatures failed: %v", err)
	}

	count, err := db.FeatureCount(s.ID)
	if err != nil {
		t.Fatalf("FeatureCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("FeatureCount = %d, want 3", count)
	}
}

func TestInsertFeaturesDuplicateAxisFails(t *testing.T) {
	db := setupTestDB(t)
	s := createTestSession(t, db, "M001")

	if err := db.InsertFeatures([]FeatureRow{makeFeatureRow(s, 1, "x", nil)}); err != nil {
		t.Fatalf("InsertFeatures failed: %v", err)
	}
	if err := db.InsertFeatures([]FeatureRow{makeFeatureRow(s, 1, "x", nil)}); err == nil {
		t.Fatal("expected primary-key violation for duplicate (session_id, frame_seq, axis)")
	}
}

func TestDeleteFeaturesForSession(t *testing.T) {
	db := setupTestDB(t)
	keep := createTestSession(t, db, "M001")
	drop := createTestSession(t, db, "M002")

	for _, s := range []*Session{keep, drop} {
		rows := []FeatureRow{
			makeFeatureRow(s, 1, "x", nil),
			makeFeatureRow(s, 1, "y", nil),
		}
		if err := db.InsertFeatures(rows); err != nil {
			t.Fatalf("InsertFeatures failed: %v", err)
		}
	}

	n, err := db.DeleteFeaturesForSession(drop.ID)
	if err != nil {
		t.Fatalf("DeleteFeaturesForSession failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}

	count, _ := db.FeatureCount(keep.ID)
	if count != 2 {
		t.Errorf("sibling session lost features: count = %d, want 2", count)
	}
}

func TestLabeledFeaturesFiltering(t *testing.T) {
	db := setupTestDB(t)

	fault := createTestSession(t, db, "M001")
	fault.TaskType = strPtr("fault_diag")
	if err := db.SetForceReprocess(fault.ID, false); err != nil {
		t.Fatalf("session update failed: %v", err)
	}

	// Matching rows: fault_diag task, labeled.
	match := makeFeatureRow(fault, 1, "x", floatPtr(1.0))
	match.TaskType = strPtr("fault_diag")

	// Wrong task type.
	wrongTask := makeFeatureRow(fault, 2, "x", floatPtr(1.0))
	wrongTask.TaskType = strPtr("anomaly")

	// Missing label.
	unlabeled := makeFeatureRow(fault, 3, "x", floatPtr(1.0))
	unlabeled.TaskType = strPtr("fault_diag")
	unlabeled.LabelType = nil

	if err := db.InsertFeatures([]FeatureRow{match, wrongTask, unlabeled}); err != nil {
		t.Fatalf("InsertFeatures failed: %v", err)
	}

	got, err := db.LabeledFeatures([]string{"fault_diag", "fault_diagnosis"})
	if err != nil {
		t.Fatalf("LabeledFeatures failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].FrameSeq != 1 {
		t.Errorf("row frame_seq = %d, want 1", got[0].FrameSeq)
	}
	if got[0].RMS == nil || *got[0].RMS != 1.0 {
		t.Errorf("row rms = %v, want 1.0", got[0].RMS)
	}
}

func TestLabeledFeaturesRequiresTaskType(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.LabeledFeatures(nil); err == nil {
		t.Fatal("expected error for empty task type list")
	}
}
