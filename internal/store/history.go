package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/avolkova/mathquiz/internal/model"
)

// History is append-only: records are inserted once and served back in
// creation order. No update or delete is exposed, preserving an audit
// trail for trend analysis.

func insertRecordTx(tx *sql.Tx, rec model.TestRecord) error {
	feedback, err := json.Marshal(rec.Feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO test_records (id, owner_id, created_at, score, total, percentage, feedback, schema_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TestID, rec.OwnerID, rec.Date, rec.Score, rec.Total, rec.Percentage, string(feedback), model.RecordSchemaVersion,
	)
	return err
}

// InsertTestRecord appends a single record outside a grading transaction.
func (s *Store) InsertTestRecord(rec model.TestRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertRecordTx(tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTestRecords returns all records for an owner, oldest first.
// Presentation layers may reverse for newest-first display.
func (s *Store) ListTestRecords(ownerID string) ([]model.TestRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, created_at, score, total, percentage, feedback
		 FROM test_records WHERE owner_id = ? ORDER BY rowid`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AllTestRecords returns every record in creation order. Used by the
// export command.
func (s *Store) AllTestRecords() ([]model.TestRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, created_at, score, total, percentage, feedback
		 FROM test_records ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]model.TestRecord, error) {
	var records []model.TestRecord
	for rows.Next() {
		var rec model.TestRecord
		var feedback string
		if err := rows.Scan(&rec.TestID, &rec.OwnerID, &rec.Date, &rec.Score, &rec.Total, &rec.Percentage, &feedback); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(feedback), &rec.Feedback); err != nil {
			return nil, fmt.Errorf("unmarshal feedback for %s: %w", rec.TestID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountRecordsForSession reports how many records cite the given test id.
func (s *Store) CountRecordsForSession(testID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM test_records WHERE id = ?`, testID).Scan(&count)
	return count, err
}
