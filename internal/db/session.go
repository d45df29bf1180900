package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Session is the control-plane record for one recorded data-collection run.
// The *DoneAt markers summarize which stages have landed data for the
// session; they are a cache of store membership, not the source of truth.
type Session struct {
	ID             int64      `json:"id"`
	DeviceID       string     `json:"device_id"`
	RawLocation    *string    `json:"raw_location"`
	SampleRateHz   *int64     `json:"sample_rate_hz"`
	ChannelCount   *int64     `json:"channel_count"`
	TaskType       *string    `json:"task_type"`
	LabelType      *string    `json:"label_type"`
	DataSplit      *string    `json:"data_split"`
	Operator       *string    `json:"operator"`
	ForceReprocess bool       `json:"force_reprocess"`
	BronzeDoneAt   *time.Time `json:"bronze_done_at"`
	FeatureDoneAt  *time.Time `json:"feature_done_at"`
	TrainDoneAt    *time.Time `json:"train_done_at"`
}

const sessionColumns = `
	id, device_id, raw_location, sample_rate_hz, channel_count,
	task_type, label_type, data_split, operator, force_reprocess,
	bronze_done_at, feature_done_at, train_done_at
`

// CreateSession inserts a new session and sets its ID.
func (db *DB) CreateSession(s *Session) error {
	query := `
		INSERT INTO session (
			device_id, raw_location, sample_rate_hz, channel_count,
			task_type, label_type, data_split, operator, force_reprocess
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	forceInt := 0
	if s.ForceReprocess {
		forceInt = 1
	}

	result, err := db.DB.Exec(
		query,
		s.DeviceID,
		s.RawLocation,
		s.SampleRateHz,
		s.ChannelCount,
		s.TaskType,
		s.LabelType,
		s.DataSplit,
		s.Operator,
		forceInt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	s.ID = id
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id int64) (*Session, error) {
	row := db.DB.QueryRow(`SELECT `+sessionColumns+` FROM session WHERE id = ?`, id)

	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// BronzeCandidates returns the sessions eligible for bronze loading: a
// non-null source location and either no bronze marker or a pending
// force-reprocess. Ordered by ascending session id.
func (db *DB) BronzeCandidates() ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM session
		WHERE raw_location IS NOT NULL
		  AND (bronze_done_at IS NULL OR force_reprocess = 1)
		ORDER BY id ASC
	`
	return db.querySessions(query)
}

// FeatureCandidates returns the sessions eligible for feature extraction:
// bronze complete, at least one raw frame present, and either no feature
// marker or a pending force-reprocess. Ordered by ascending session id.
func (db *DB) FeatureCandidates() ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM session
		WHERE bronze_done_at IS NOT NULL
		  AND (feature_done_at IS NULL OR force_reprocess = 1)
		  AND EXISTS (
		        SELECT 1 FROM vibration_frame vf WHERE vf.session_id = session.id
		  )
		ORDER BY id ASC
	`
	return db.querySessions(query)
}

func (db *DB) querySessions(query string, args ...interface{}) ([]Session, error) {
	rows, err := db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(scan func(dest ...interface{}) error) (*Session, error) {
	var s Session
	var forceInt int
	var bronzeDone, featureDone, trainDone sql.NullString

	err := scan(
		&s.ID,
		&s.DeviceID,
		&s.RawLocation,
		&s.SampleRateHz,
		&s.ChannelCount,
		&s.TaskType,
		&s.LabelType,
		&s.DataSplit,
		&s.Operator,
		&forceInt,
		&bronzeDone,
		&featureDone,
		&trainDone,
	)
	if err != nil {
		return nil, err
	}

	s.ForceReprocess = forceInt == 1
	if s.BronzeDoneAt, err = nullTimeFromDB(bronzeDone); err != nil {
		return nil, err
	}
	if s.FeatureDoneAt, err = nullTimeFromDB(featureDone); err != nil {
		return nil, err
	}
	if s.TrainDoneAt, err = nullTimeFromDB(trainDone); err != nil {
		return nil, err
	}

	return &s, nil
}

// MarkBronzeDone records bronze completion for the session and clears the
// force-reprocess flag.
func (db *DB) MarkBronzeDone(sessionID int64, now time.Time) error {
	return db.markStageDone("bronze_done_at", sessionID, now)
}

// MarkFeatureDone records feature completion for the session and clears the
// force-reprocess flag.
func (db *DB) MarkFeatureDone(sessionID int64, now time.Time) error {
	return db.markStageDone("feature_done_at", sessionID, now)
}

func (db *DB) markStageDone(column string, sessionID int64, now time.Time) error {
	query := fmt.Sprintf(`
		UPDATE session
		SET %s = ?, force_reprocess = 0
		WHERE id = ?
	`, column)

	result, err := db.DB.Exec(query, timeToDB(now), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark %s for session %d: %w", column, sessionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %d not found", sessionID)
	}

	return nil
}

// MarkTrainDone records training completion for the given sessions.
func (db *DB) MarkTrainDone(sessionIDs []int64, now time.Time) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	tx, err := db.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE session SET train_done_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare train marker update: %w", err)
	}
	defer stmt.Close()

	ts := timeToDB(now)
	for _, id := range sessionIDs {
		if _, err := stmt.Exec(ts, id); err != nil {
			return fmt.Errorf("failed to mark train done for session %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// SetForceReprocess sets or clears the force-reprocess flag on a session.
func (db *DB) SetForceReprocess(sessionID int64, force bool) error {
	forceInt := 0
	if force {
		forceInt = 1
	}

	result, err := db.DB.Exec(`UPDATE session SET force_reprocess = ? WHERE id = ?`, forceInt, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set force_reprocess for session %d: %w", sessionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %d not found", sessionID)
	}

	return nil
}

// SyncBronzeMarkers sets bronze_done_at to now for sessions that already have
// raw frames but a null marker. Returns the number of sessions reconciled.
// This keeps historically ingested data from being re-selected and
// double-inserted.
func (db *DB) SyncBronzeMarkers(now time.Time) (int64, error) {
	return db.syncStageMarkers("bronze_done_at", "vibration_frame", now)
}

// SyncFeatureMarkers sets feature_done_at to now for sessions that already
// have feature rows but a null marker. Returns the number of sessions
// reconciled.
func (db *DB) SyncFeatureMarkers(now time.Time) (int64, error) {
	return db.syncStageMarkers("feature_done_at", "vibration_frame_features", now)
}

func (db *DB) syncStageMarkers(column, table string, now time.Time) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE session
		SET %s = ?
		WHERE %s IS NULL
		  AND id IN (SELECT DISTINCT session_id FROM %s)
	`, column, column, table)

	result, err := db.DB.Exec(query, timeToDB(now))
	if err != nil {
		return 0, fmt.Errorf("failed to sync %s markers: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}
