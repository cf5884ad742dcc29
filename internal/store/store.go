package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/avolkova/mathquiz/internal/model"

	_ "modernc.org/sqlite"
)

// ErrSessionNotIssued is returned by GradeSession when the session is no
// longer in the issued state. Exactly one caller ever wins the
// issued -> graded transition.
var ErrSessionNotIssued = errors.New("session is not in issued state")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS test_sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'issued',
		questions TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS test_records (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		score INTEGER NOT NULL,
		total INTEGER NOT NULL,
		percentage REAL NOT NULL,
		feedback TEXT NOT NULL,
		schema_version INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_test_records_owner ON test_records(owner_id);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.SetMetadata("record_schema_version", strconv.Itoa(model.RecordSchemaVersion))
}

// CreateSession persists a freshly issued test session.
func (s *Store) CreateSession(sess model.TestSession) error {
	questions, err := json.Marshal(sess.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO test_sessions (id, owner_id, created_at, status, questions) VALUES (?, ?, ?, ?, ?)`,
		sess.SessionID, sess.OwnerID, sess.CreatedAt, sess.Status, string(questions),
	)
	return err
}

// GetSession returns a session by id. Missing sessions yield sql.ErrNoRows.
func (s *Store) GetSession(id string) (model.TestSession, error) {
	var sess model.TestSession
	var questions string
	err := s.db.QueryRow(
		`SELECT id, owner_id, created_at, status, questions FROM test_sessions WHERE id = ?`, id,
	).Scan(&sess.SessionID, &sess.OwnerID, &sess.CreatedAt, &sess.Status, &questions)
	if err != nil {
		return model.TestSession{}, err
	}
	if err := json.Unmarshal([]byte(questions), &sess.Questions); err != nil {
		return model.TestSession{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return sess, nil
}

// GradeSession transitions a session issued -> graded and appends its
// record in one transaction. The compare-and-set on status guarantees
// that concurrent submissions produce exactly one record: the loser gets
// ErrSessionNotIssued.
func (s *Store) GradeSession(sessionID string, rec model.TestRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE test_sessions SET status = ? WHERE id = ? AND status = ?`,
		model.StatusGraded, sessionID, model.StatusIssued,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotIssued
	}

	if err := insertRecordTx(tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// CountSessions returns the total number of sessions.
func (s *Store) CountSessions() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM test_sessions`).Scan(&count)
	return count, err
}
