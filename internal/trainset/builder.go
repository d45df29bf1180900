package trainset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/monitoring"
	"github.com/banshee-data/vibration.report/internal/timeutil"
)

// DefaultSeed keeps stratified splits reproducible across runs.
const DefaultSeed = 42

// Builder assembles a train/val/test dataset from the feature mart and
// stamps the contributing sessions once the export succeeds.
type Builder struct {
	DB    *db.DB
	Clock timeutil.Clock

	// Seed for the stratified fallback split. Zero means DefaultSeed.
	Seed int64
}

// NewBuilder creates a builder with the real clock and the default seed.
func NewBuilder(database *db.DB) *Builder {
	return &Builder{DB: database, Clock: timeutil.RealClock{}}
}

// Build reads labeled features for the given task types, pivots them into
// wide vectors and partitions them. Sessions are not stamped here; callers
// stamp via MarkTrained after the dataset has actually been consumed.
func (b *Builder) Build(taskTypes []string) (Dataset, error) {
	rows, err := b.DB.LabeledFeatures(taskTypes)
	if err != nil {
		return Dataset{}, err
	}
	if len(rows) == 0 {
		return Dataset{}, fmt.Errorf("no labeled features for tasks %v", taskTypes)
	}

	vectors := Pivot(rows)
	if len(vectors) == 0 {
		return Dataset{}, fmt.Errorf("no complete frames after pivot for tasks %v", taskTypes)
	}

	seed := b.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	return Split(vectors, seed)
}

// MarkTrained stamps train_done_at on every session contributing to the
// dataset.
func (b *Builder) MarkTrained(ds Dataset) error {
	all := make([]Vector, 0, len(ds.Train)+len(ds.Val)+len(ds.Test))
	all = append(all, ds.Train...)
	all = append(all, ds.Val...)
	all = append(all, ds.Test...)

	ids := SessionIDs(all)
	if len(ids) == 0 {
		return nil
	}
	if err := b.DB.MarkTrainDone(ids, b.Clock.Now()); err != nil {
		return err
	}
	monitoring.Logf("[trainset] marked %d sessions trained", len(ids))
	return nil
}

// Metadata is the sidecar written next to a model artifact. The inference
// side polls a fixed filename, so every export overwrites the previous one.
type Metadata struct {
	RunID         string   `json:"run_id"`
	TaskType      string   `json:"task_type"`
	ModelType     string   `json:"model_type"`
	TrainAccuracy float64  `json:"train_accuracy"`
	ValAccuracy   float64  `json:"val_accuracy"`
	TestAccuracy  float64  `json:"test_accuracy"`
	MacroF1       float64  `json:"macro_f1"`
	ClassLabels   []string `json:"class_labels"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// MetadataPath returns the fixed sidecar path for a task under dir.
func MetadataPath(dir, taskType string) string {
	return filepath.Join(dir, taskType+"_latest_meta.json")
}

// WriteMetadata writes the sidecar JSON for the task, replacing any
// previous export.
func WriteMetadata(dir string, md Metadata) error {
	if md.TaskType == "" {
		return fmt.Errorf("metadata task_type is required")
	}

	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	path := MetadataPath(dir, md.TaskType)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", path, err)
	}
	monitoring.Logf("[trainset] wrote metadata %s (run %s)", path, md.RunID)
	return nil
}

// ReadMetadata loads the sidecar for a task, as the inference poller does.
func ReadMetadata(dir, taskType string) (Metadata, error) {
	var md Metadata
	data, err := os.ReadFile(MetadataPath(dir, taskType))
	if err != nil {
		return md, fmt.Errorf("failed to read metadata for %s: %w", taskType, err)
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("failed to decode metadata for %s: %w", taskType, err)
	}
	return md, nil
}
