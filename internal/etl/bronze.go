// Package etl implements the incremental session-processing pipeline: the
// bronze loader that promotes raw recordings from object storage into the
// frame ledger, the feature extractor that derives per-axis statistics, the
// backfill synchronizer that reconciles stage markers, and the batch driver
// that runs them with per-session fault isolation.
package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/monitoring"
	"github.com/banshee-data/vibration.report/internal/objstore"
	"github.com/banshee-data/vibration.report/internal/timeutil"
)

// rawExtension is the only recording file format the loader ingests:
// line-delimited JSON.
const rawExtension = ".jsonl"

// BronzeLoader promotes one session's raw recording objects into the
// vibration_frame ledger.
type BronzeLoader struct {
	DB    *db.DB
	Store objstore.Store
	Clock timeutil.Clock

	// MaxRecordsPerObject caps the records decoded from a single object;
	// 0 disables the cap.
	MaxRecordsPerObject int
}

// NewBronzeLoader creates a loader with the real clock.
func NewBronzeLoader(database *db.DB, store objstore.Store) *BronzeLoader {
	return &BronzeLoader{
		DB:    database,
		Store: store,
		Clock: timeutil.RealClock{},
	}
}

// frameRecord is one line of a raw recording object. Seq and T0 are pointers
// so their absence is detectable: a record without them is a schema error for
// the whole session, not a row to skip.
type frameRecord struct {
	Seq *int64    `json:"seq"`
	T0  *string   `json:"t0"`
	Ax  []float64 `json:"ax"`
	Ay  []float64 `json:"ay"`
	Az  []float64 `json:"az"`
}

// Load ingests all recording objects for the session and, when at least one
// frame was written, marks bronze done. Zero rows leaves the session pending
// so it is retried once data appears.
//
// Previously written frames for the session are always deleted first, not
// only under force_reprocess. A crash between chunk transactions and the
// marker update leaves already-inserted rows behind; deleting up front makes
// the retry converge instead of tripping the (session_id, frame_seq) key.
func (l *BronzeLoader) Load(ctx context.Context, s db.Session) (int64, error) {
	if s.RawLocation == nil {
		return 0, fmt.Errorf("session %d has no raw location", s.ID)
	}

	monitoring.Logf("[bronze] session=%d device=%s raw=%s force_reprocess=%v",
		s.ID, s.DeviceID, *s.RawLocation, s.ForceReprocess)

	deleted, err := l.DB.DeleteFramesForSession(s.ID)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		monitoring.Logf("[bronze] session=%d discarded %d previously written frames", s.ID, deleted)
	}

	bucket, key, err := objstore.ParseURL(*s.RawLocation)
	if err != nil {
		return 0, err
	}
	prefix := objstore.SessionPrefix(key)

	keys, err := l.Store.List(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}

	var objects []string
	for _, k := range keys {
		if strings.HasSuffix(k, rawExtension) {
			objects = append(objects, k)
		}
	}
	sort.Strings(objects)

	if len(objects) == 0 {
		monitoring.Logf("[bronze] session=%d no objects under %s/%s, leaving pending", s.ID, bucket, prefix)
		return 0, nil
	}

	monitoring.Logf("[bronze] session=%d found %d objects under %s/%s", s.ID, len(objects), bucket, prefix)

	var total int64
	for _, object := range objects {
		frames, err := l.loadObject(ctx, bucket, object, s)
		if err != nil {
			return total, err
		}
		if len(frames) == 0 {
			continue
		}

		// Streamed per object, not buffered for the whole session.
		if err := l.DB.InsertFrames(frames); err != nil {
			return total, err
		}
		total += int64(len(frames))
		monitoring.Logf("[bronze] session=%d object=%s rows=%d", s.ID, object, len(frames))
	}

	if total > 0 {
		if err := l.DB.MarkBronzeDone(s.ID, l.Clock.Now()); err != nil {
			return total, err
		}
		monitoring.Logf("[bronze] session=%d done, total_rows=%d", s.ID, total)
	} else {
		monitoring.Logf("[bronze] WARN: session=%d produced no rows, bronze marker not advanced", s.ID)
	}

	return total, nil
}

// loadObject fetches one recording object and normalizes its records into
// frames. The response stream is closed on every exit path.
func (l *BronzeLoader) loadObject(ctx context.Context, bucket, object string, s db.Session) ([]db.Frame, error) {
	rc, err := l.Store.Get(ctx, bucket, object)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var frames []db.Frame
	dec := json.NewDecoder(rc)
	for {
		var rec frameRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode record in %s: %w", object, err)
		}

		if rec.Seq == nil || rec.T0 == nil {
			return nil, &SchemaError{
				SessionID: s.ID,
				Object:    object,
				Reason:    "record missing required seq or t0 field",
			}
		}

		t0, err := parseT0(*rec.T0)
		if err != nil {
			return nil, &SchemaError{
				SessionID: s.ID,
				Object:    object,
				Reason:    fmt.Sprintf("unparseable t0 %q", *rec.T0),
			}
		}

		frames = append(frames, db.Frame{
			SessionID:       s.ID,
			DeviceID:        s.DeviceID,
			FrameSeq:        *rec.Seq,
			T0UTC:           t0,
			SamplesPerFrame: int64(len(rec.Ax)),
			Ax:              rec.Ax,
			Ay:              rec.Ay,
			Az:              rec.Az,
			TaskType:        s.TaskType,
			LabelType:       s.LabelType,
			DataSplit:       s.DataSplit,
			Operator:        s.Operator,
		})

		if l.MaxRecordsPerObject > 0 && len(frames) > l.MaxRecordsPerObject {
			return nil, fmt.Errorf("object %s exceeds record cap of %d", object, l.MaxRecordsPerObject)
		}
	}

	return frames, nil
}

// parseT0 parses a frame start time to a UTC-aware timestamp.
func parseT0(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
