// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session runs the viva state machine over a durable repository.
//
// States are in_progress, paused, and completed. Every mutation reads the
// session, computes the next state, and writes it back with a
// compare-and-swap on the session's Version; no lock is held while an
// answer is being graded. A writer that loses the race gets
// types.ErrConcurrentModification and changes nothing.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Evaluator grades one answer.
type Evaluator interface {
	Evaluate(ctx context.Context, q types.Question, answer string, kb *types.KnowledgeBase) (types.EvaluationResult, error)
}

// Machine applies session transitions.
type Machine struct {
	repo      Repository
	evaluator Evaluator
	logger    *zap.Logger
	now       func() time.Time
}

// NewMachine creates a Machine over repo.
func NewMachine(repo Repository, evaluator Evaluator, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		repo:      repo,
		evaluator: evaluator,
		logger:    logger.Named("session"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start creates and persists an in-progress session over questions. An
// empty question list yields a session that is already completed.
// Structurally invalid questions report types.ErrValidation.
func (m *Machine) Start(ctx context.Context, userID, paperID string, questions []types.Question) (*types.Session, error) {
	return m.start(ctx, userID, paperID, "", questions)
}

// StartFor starts a session bound to kb. The session records kb's index
// reference so later answers are graded against the same index version.
func (m *Machine) StartFor(ctx context.Context, userID string, kb *types.KnowledgeBase, questions []types.Question) (*types.Session, error) {
	if kb == nil {
		return nil, fmt.Errorf("%w: knowledge base is required", types.ErrValidation)
	}
	return m.start(ctx, userID, kb.PaperID, kb.IndexRef, questions)
}

func (m *Machine) start(ctx context.Context, userID, paperID, indexRef string, questions []types.Question) (*types.Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(paperID) == "" {
		return nil, fmt.Errorf("%w: user id and paper id are required", types.ErrValidation)
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %s", types.ErrValidation, q.ID)
		}
		seen[q.ID] = struct{}{}
	}

	now := m.now()
	s := &types.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		PaperID:   paperID,
		IndexRef:  indexRef,
		Questions: questions,
		Answers:   []types.AnswerRecord{},
		Status:    types.StatusInProgress,
		StartedAt: now,
	}
	if s.Questions == nil {
		s.Questions = []types.Question{}
	}
	s = s.Clone()
	if len(s.Questions) == 0 {
		m.logger.Warn("starting session without questions", zap.String("paper_id", paperID))
		s.Status = types.StatusCompleted
		s.CompletedAt = &now
	}

	if err := m.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	m.logger.Info("session started",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID),
		zap.String("paper_id", paperID),
		zap.Int("questions", len(s.Questions)),
	)
	return s, nil
}

// CurrentQuestion returns the question s is waiting on, or nil.
func (m *Machine) CurrentQuestion(s *types.Session) *types.Question {
	if s == nil {
		return nil
	}
	return s.CurrentQuestion()
}

// SubmitAnswer grades answer against the current question and records it.
// The session completes when its last question is answered.
func (m *Machine) SubmitAnswer(ctx context.Context, sessionID, answer string, kb *types.KnowledgeBase) (types.EvaluationResult, error) {
	s, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return types.EvaluationResult{}, err
	}
	switch s.Status {
	case types.StatusCompleted:
		return types.EvaluationResult{}, fmt.Errorf("%w: %s", types.ErrSessionAlreadyComplete, sessionID)
	case types.StatusPaused:
		return types.EvaluationResult{}, fmt.Errorf("%w: %s", types.ErrSessionPaused, sessionID)
	}
	q := s.CurrentQuestion()
	if q == nil {
		return types.EvaluationResult{}, fmt.Errorf("%w: %s", types.ErrNoCurrentQuestion, sessionID)
	}
	if kb == nil {
		return types.EvaluationResult{}, fmt.Errorf("%w: knowledge base is required", types.ErrValidation)
	}
	if kb.PaperID != s.PaperID {
		return types.EvaluationResult{}, fmt.Errorf("%w: knowledge base %s does not belong to paper %s",
			types.ErrValidation, kb.PaperID, s.PaperID)
	}

	result, err := m.evaluator.Evaluate(ctx, *q, answer, kb)
	if err != nil {
		return types.EvaluationResult{}, fmt.Errorf("evaluating answer: %w", err)
	}

	expected := s.Version
	now := m.now()
	s.Answers = append(s.Answers, types.AnswerRecord{
		QuestionID:  q.ID,
		Answer:      answer,
		Score:       result.Score,
		Feedback:    result.Feedback,
		Correctness: result.Correctness,
		Timestamp:   now,
	})
	s.CurrentQuestionIndex++
	if s.CurrentQuestionIndex == len(s.Questions) {
		s.Status = types.StatusCompleted
		s.CompletedAt = &now
	}

	if err := m.repo.Update(ctx, s, expected); err != nil {
		if errors.Is(err, types.ErrConcurrentModification) {
			m.logger.Warn("answer lost a concurrent update", zap.String("session_id", sessionID))
		}
		return types.EvaluationResult{}, err
	}

	m.logger.Info("answer recorded",
		zap.String("session_id", sessionID),
		zap.String("question_id", q.ID),
		zap.Int("score", result.Score),
		zap.Int("index", s.CurrentQuestionIndex),
		zap.String("status", string(s.Status)),
	)
	return result, nil
}

// Pause moves an in-progress session to paused. It reports false and
// changes nothing when the session is missing or not in progress.
func (m *Machine) Pause(ctx context.Context, sessionID string) (bool, error) {
	return m.transition(ctx, sessionID, types.StatusInProgress, types.StatusPaused)
}

// Resume moves a paused session back to in progress. It reports false and
// changes nothing when the session is missing or not paused.
func (m *Machine) Resume(ctx context.Context, sessionID string) (bool, error) {
	return m.transition(ctx, sessionID, types.StatusPaused, types.StatusInProgress)
}

func (m *Machine) transition(ctx context.Context, sessionID string, from, to types.SessionStatus) (bool, error) {
	s, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, types.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if s.Status != from {
		return false, nil
	}
	expected := s.Version
	s.Status = to
	if err := m.repo.Update(ctx, s, expected); err != nil {
		return false, err
	}
	m.logger.Info("session status changed",
		zap.String("session_id", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return true, nil
}

// Status returns a snapshot of the session, or nil if it does not exist.
func (m *Machine) Status(ctx context.Context, sessionID string) (*types.SessionSnapshot, error) {
	s, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, types.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.Snapshot(), nil
}

// Summary aggregates a completed session. Sessions still running report
// types.ErrSessionNotComplete.
func (m *Machine) Summary(ctx context.Context, sessionID string) (types.SessionSummary, error) {
	s, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return types.SessionSummary{}, err
	}
	if s.Status != types.StatusCompleted {
		return types.SessionSummary{}, fmt.Errorf("%w: %s is %s", types.ErrSessionNotComplete, sessionID, s.Status)
	}
	return s.Summarize(), nil
}

// ListUserSessions summarizes the user's completed sessions, most
// recently completed first.
func (m *Machine) ListUserSessions(ctx context.Context, userID string) ([]types.SessionSummary, error) {
	sessions, err := m.repo.List(ctx, func(s *types.Session) bool {
		return s.UserID == userID && s.Status == types.StatusCompleted
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.SessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = s.Summarize()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}
