// Package engine implements the question generation and scoring engine:
// it drives the language model to produce a validated question set,
// manages the lifecycle of one test attempt from issuance to grading,
// and aggregates graded attempts into a user's history.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/avolkova/mathquiz/internal/llm"
	"github.com/avolkova/mathquiz/internal/llm/prompts"
	"github.com/avolkova/mathquiz/internal/model"
	"github.com/avolkova/mathquiz/internal/store"
	"github.com/avolkova/mathquiz/internal/validate"
)

var (
	// ErrGenerationFailed means a test could not be started: either the
	// generation endpoint stayed unreachable (the cause then also
	// matches llm.ErrUnavailable) or every regeneration attempt
	// produced malformed content. No session is issued.
	ErrGenerationFailed = errors.New("question generation failed")
	// ErrUnknownSession means the caller referenced a session id the
	// engine never issued to them. Never retried.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownQuestion means the submission referenced a question id
	// outside the session. No record is produced.
	ErrUnknownQuestion = errors.New("unknown question id in submission")
	// ErrAlreadyGraded means a duplicate or racing submission. The
	// session's single record already exists; clients must not resubmit.
	ErrAlreadyGraded = errors.New("session already graded")
	// ErrPersistenceFailure means a datastore write failed. The graded
	// record may be unsaved; the caller is told rather than the record
	// being silently dropped.
	ErrPersistenceFailure = errors.New("failed to persist test record")
)

// DefaultQuestionCount is the number of questions per test.
const DefaultQuestionCount = 20

// Generator produces raw text for a generation prompt. *llm.Client is
// the production implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the generation defaults and the regeneration budget.
type Config struct {
	Topic         string
	Difficulty    model.Difficulty
	QuestionCount int
	// RegenRetries is the number of extra generation attempts allowed
	// when the model returns malformed content. Independent from the
	// transport retry budget inside the generation client.
	RegenRetries int
}

// Engine wires the generation pipeline to the datastore. Safe for
// concurrent use: distinct sessions share no mutable state beyond the
// store, and grading is serialized per session by a store-level
// compare-and-set.
type Engine struct {
	store *store.Store
	gen   Generator
	cfg   Config
}

// New creates an engine.
func New(s *store.Store, gen Generator, cfg Config) *Engine {
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = DefaultQuestionCount
	}
	return &Engine{store: s, gen: gen, cfg: cfg}
}

// StartTest generates and issues a new test session for the owner.
// Fields left zero in scope fall back to the configured defaults. On
// failure no partial session is persisted.
func (e *Engine) StartTest(ctx context.Context, ownerID string, scope model.Scope) (*model.TestSession, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	scope = e.fillScope(scope)

	attempts := 1 + e.cfg.RegenRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		// Fresh seed per attempt so a regeneration does not ask the
		// model for the exact prompt that just failed.
		scope.Seed = rand.Int64()
		raw, err := e.gen.Generate(ctx, prompts.Build(scope))
		if err != nil {
			// Transport exhaustion is not recoverable by rephrasing.
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}

		questions, err := validate.Validate(raw, scope.Count)
		if err != nil {
			lastErr = err
			slog.Warn("malformed generation payload, regenerating",
				"attempt", attempt+1, "budget", attempts, "error", err)
			continue
		}

		sess := model.TestSession{
			SessionID: uuid.NewString(),
			OwnerID:   ownerID,
			CreatedAt: time.Now().UTC(),
			Status:    model.StatusIssued,
			Questions: questions,
		}
		if err := e.store.CreateSession(sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		slog.Info("issued test session",
			"session_id", sess.SessionID, "owner_id", ownerID,
			"questions", len(questions), "topic", scope.Topic)
		return &sess, nil
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationFailed, attempts, lastErr)
}

// GetSession returns an issued session for re-display. Sessions are
// invisible to non-owners.
func (e *Engine) GetSession(ctx context.Context, sessionID, ownerID string) (*model.TestSession, error) {
	sess, err := e.loadOwnedSession(sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// SubmitTest grades a submission against its session and appends the
// resulting record to the owner's history. Grading happens exactly once
// per session: a duplicate or racing submission fails with
// ErrAlreadyGraded and produces no second record.
func (e *Engine) SubmitTest(ctx context.Context, sessionID, ownerID string, submission model.Submission) (*model.TestRecord, error) {
	sess, err := e.loadOwnedSession(sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusIssued {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyGraded, sessionID)
	}
	for id := range submission {
		if _, ok := sess.QuestionByID(id); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownQuestion, id)
		}
	}

	rec := Score(sess, submission, time.Now().UTC())

	if err := e.store.GradeSession(sessionID, rec); err != nil {
		if errors.Is(err, store.ErrSessionNotIssued) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyGraded, sessionID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	slog.Info("graded test session",
		"session_id", sessionID, "owner_id", ownerID,
		"score", rec.Score, "total", rec.Total)
	return &rec, nil
}

// GetHistory returns all of the owner's graded attempts, oldest first.
func (e *Engine) GetHistory(ctx context.Context, ownerID string) ([]model.TestRecord, error) {
	records, err := e.store.ListTestRecords(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

func (e *Engine) loadOwnedSession(sessionID, ownerID string) (model.TestSession, error) {
	sess, err := e.store.GetSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TestSession{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if err != nil {
		return model.TestSession{}, fmt.Errorf("load session: %w", err)
	}
	if sess.OwnerID != ownerID {
		return model.TestSession{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return sess, nil
}

func (e *Engine) fillScope(scope model.Scope) model.Scope {
	if scope.Topic == "" {
		scope.Topic = e.cfg.Topic
	}
	if scope.Difficulty == "" {
		scope.Difficulty = e.cfg.Difficulty
	}
	if scope.Count <= 0 {
		scope.Count = e.cfg.QuestionCount
	}
	return scope
}

// Unavailable reports whether err stems from transport exhaustion at the
// generation endpoint, a transient condition the user may retry.
func Unavailable(err error) bool {
	return errors.Is(err, llm.ErrUnavailable)
}
