package db

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is one fixed-duration three-axis sampling window in the bronze
// ledger. Axis sample slices are stored as JSON arrays; SamplesPerFrame is
// derived from the length of Ax at write time. Frames are never updated in
// place: reprocessing deletes and reinserts.
type Frame struct {
	SessionID       int64
	DeviceID        string
	FrameSeq        int64
	T0UTC           time.Time
	SamplesPerFrame int64
	Ax              []float64
	Ay              []float64
	Az              []float64
	TaskType        *string
	LabelType       *string
	DataSplit       *string
	Operator        *string
}

// InsertFrames writes a batch of frames in a single transaction. Callers
// stream one source object's frames per call to bound memory.
func (db *DB) InsertFrames(frames []Frame) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := db.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin frame insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO vibration_frame (
			session_id, device_id, frame_seq, t0_utc, samples_per_frame,
			ax, ay, az, task_type, label_type, data_split, operator
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		ax, err := encodeSamples(f.Ax)
		if err != nil {
			return err
		}
		ay, err := encodeSamples(f.Ay)
		if err != nil {
			return err
		}
		az, err := encodeSamples(f.Az)
		if err != nil {
			return err
		}

		_, err = stmt.Exec(
			f.SessionID,
			f.DeviceID,
			f.FrameSeq,
			timeToDB(f.T0UTC),
			f.SamplesPerFrame,
			ax,
			ay,
			az,
			f.TaskType,
			f.LabelType,
			f.DataSplit,
			f.Operator,
		)
		if err != nil {
			return fmt.Errorf("failed to insert frame (session=%d seq=%d): %w", f.SessionID, f.FrameSeq, err)
		}
	}

	return tx.Commit()
}

// DeleteFramesForSession removes all frames for the session in one
// transaction. Returns the number of rows deleted.
func (db *DB) DeleteFramesForSession(sessionID int64) (int64, error) {
	result, err := db.DB.Exec(`DELETE FROM vibration_frame WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete frames for session %d: %w", sessionID, err)
	}
	return result.RowsAffected()
}

// FrameCount returns the number of frames stored for the session.
func (db *DB) FrameCount(sessionID int64) (int64, error) {
	var count int64
	err := db.DB.QueryRow(`SELECT COUNT(*) FROM vibration_frame WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count frames for session %d: %w", sessionID, err)
	}
	return count, nil
}

// IterFrames streams the session's frames ordered by frame_seq in chunks of
// at most chunkSize rows, invoking fn once per chunk. Iteration stops on the
// first error from fn. Keyset pagination on frame_seq keeps each chunk query
// bounded regardless of session size.
func (db *DB) IterFrames(sessionID int64, chunkSize int, fn func(frames []Frame) error) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	lastSeq := int64(-1)
	for {
		frames, err := db.framesAfter(sessionID, lastSeq, chunkSize)
		if err != nil {
			return err
		}
		if len(frames) == 0 {
			return nil
		}

		if err := fn(frames); err != nil {
			return err
		}

		lastSeq = frames[len(frames)-1].FrameSeq
		if len(frames) < chunkSize {
			return nil
		}
	}
}

func (db *DB) framesAfter(sessionID, afterSeq int64, limit int) ([]Frame, error) {
	query := `
		SELECT
			session_id, device_id, frame_seq, t0_utc, samples_per_frame,
			ax, ay, az, task_type, label_type, data_split, operator
		FROM vibration_frame
		WHERE session_id = ? AND frame_seq > ?
		ORDER BY frame_seq ASC
		LIMIT ?
	`

	rows, err := db.DB.Query(query, sessionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		var t0 string
		var ax, ay, az string

		err := rows.Scan(
			&f.SessionID,
			&f.DeviceID,
			&f.FrameSeq,
			&t0,
			&f.SamplesPerFrame,
			&ax,
			&ay,
			&az,
			&f.TaskType,
			&f.LabelType,
			&f.DataSplit,
			&f.Operator,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}

		if f.T0UTC, err = timeFromDB(t0); err != nil {
			return nil, err
		}
		if f.Ax, err = decodeSamples(ax); err != nil {
			return nil, fmt.Errorf("frame (session=%d seq=%d) ax: %w", f.SessionID, f.FrameSeq, err)
		}
		if f.Ay, err = decodeSamples(ay); err != nil {
			return nil, fmt.Errorf("frame (session=%d seq=%d) ay: %w", f.SessionID, f.FrameSeq, err)
		}
		if f.Az, err = decodeSamples(az); err != nil {
			return nil, fmt.Errorf("frame (session=%d seq=%d) az: %w", f.SessionID, f.FrameSeq, err)
		}

		frames = append(frames, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating frames: %w", err)
	}

	return frames, nil
}

// SessionIDsWithFrames returns the distinct session ids present in the
// bronze ledger, ascending.
func (db *DB) SessionIDsWithFrames() ([]int64, error) {
	return db.distinctSessionIDs("vibration_frame")
}

func (db *DB) distinctSessionIDs(table string) ([]int64, error) {
	rows, err := db.DB.Query(fmt.Sprintf(`SELECT DISTINCT session_id FROM %s ORDER BY session_id ASC`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct sessions from %s: %w", table, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session ids: %w", err)
	}

	return ids, nil
}

func encodeSamples(samples []float64) (string, error) {
	if samples == nil {
		samples = []float64{}
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return "", fmt.Errorf("failed to encode samples: %w", err)
	}
	return string(data), nil
}

func decodeSamples(encoded string) ([]float64, error) {
	var samples []float64
	if err := json.Unmarshal([]byte(encoded), &samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}
	return samples, nil
}
