package db

import (
	"fmt"
	"strings"
	"time"
)

// FeatureRow is one (frame, axis) statistic bundle in the feature mart.
// Statistics are nullable: nil means the statistic was not computable for
// that axis (empty sample sequence, or undefined crest factor).
type FeatureRow struct {
	SessionID   int64
	DeviceID    string
	FrameSeq    int64
	T0UTC       time.Time
	Axis        string
	RMS         *float64
	Peak        *float64
	MeanAbs     *float64
	Std         *float64
	CrestFactor *float64
	TaskType    *string
	LabelType   *string
	DataSplit   *string
	Operator    *string
}

// InsertFeatures writes a batch of feature rows in a single transaction.
// Callers stream one frame chunk's rows per call.
func (db *DB) InsertFeatures(rows []FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin feature insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO vibration_frame_features (
			session_id, device_id, frame_seq, t0_utc, axis,
			rms, peak, mean_abs, std, crest_factor,
			task_type, label_type, data_split, operator
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.Exec(
			r.SessionID,
			r.DeviceID,
			r.FrameSeq,
			timeToDB(r.T0UTC),
			r.Axis,
			r.RMS,
			r.Peak,
			r.MeanAbs,
			r.Std,
			r.CrestFactor,
			r.TaskType,
			r.LabelType,
			r.DataSplit,
			r.Operator,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feature row (session=%d seq=%d axis=%s): %w",
				r.SessionID, r.FrameSeq, r.Axis, err)
		}
	}

	return tx.Commit()
}

// DeleteFeaturesForSession removes all feature rows for the session in one
// transaction. Returns the number of rows deleted.
func (db *DB) DeleteFeaturesForSession(sessionID int64) (int64, error) {
	result, err := db.DB.Exec(`DELETE FROM vibration_frame_features WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete features for session %d: %w", sessionID, err)
	}
	return result.RowsAffected()
}

// FeatureCount returns the number of feature rows stored for the session.
func (db *DB) FeatureCount(sessionID int64) (int64, error) {
	var count int64
	err := db.DB.QueryRow(`SELECT COUNT(*) FROM vibration_frame_features WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count features for session %d: %w", sessionID, err)
	}
	return count, nil
}

// SessionIDsWithFeatures returns the distinct session ids present in the
// feature mart, ascending.
func (db *DB) SessionIDsWithFeatures() ([]int64, error) {
	return db.distinctSessionIDs("vibration_frame_features")
}

// LabeledFeatures returns the long-format feature rows for the given task
// types, restricted to the x/y/z axes and non-null labels. This is the read
// side of the downstream training dataset builder.
func (db *DB) LabeledFeatures(taskTypes []string) ([]FeatureRow, error) {
	if len(taskTypes) == 0 {
		return nil, fmt.Errorf("at least one task type is required")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(taskTypes)), ", ")
	query := fmt.Sprintf(`
		SELECT
			session_id, device_id, frame_seq, t0_utc, axis,
			rms, peak, mean_abs, std, crest_factor,
			task_type, label_type, data_split, operator
		FROM vibration_frame_features
		WHERE axis IN ('x', 'y', 'z')
		  AND label_type IS NOT NULL
		  AND task_type IN (%s)
		ORDER BY session_id, frame_seq, axis
	`, placeholders)

	args := make([]interface{}, len(taskTypes))
	for i, t := range taskTypes {
		args[i] = t
	}

	rows, err := db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query labeled features: %w", err)
	}
	defer rows.Close()

	var features []FeatureRow
	for rows.Next() {
		var r FeatureRow
		var t0 string

		err := rows.Scan(
			&r.SessionID,
			&r.DeviceID,
			&r.FrameSeq,
			&t0,
			&r.Axis,
			&r.RMS,
			&r.Peak,
			&r.MeanAbs,
			&r.Std,
			&r.CrestFactor,
			&r.TaskType,
			&r.LabelType,
			&r.DataSplit,
			&r.Operator,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}

		if r.T0UTC, err = timeFromDB(t0); err != nil {
			return nil, err
		}

		features = append(features, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature rows: %w", err)
	}

	return features, nil
}
