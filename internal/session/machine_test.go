// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// scoreEvaluator returns scores from a fixed sequence.
type scoreEvaluator struct {
	mu     sync.Mutex
	scores []int
	calls  int
	err    error
}

func (e *scoreEvaluator) Evaluate(_ context.Context, q types.Question, answer string, _ *types.KnowledgeBase) (types.EvaluationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return types.EvaluationResult{}, e.err
	}
	score := 5
	if e.calls < len(e.scores) {
		score = e.scores[e.calls]
	}
	e.calls++
	correctness := types.PartiallyCorrect
	switch {
	case score >= 8:
		correctness = types.Correct
	case score <= 3:
		correctness = types.Incorrect
	}
	return types.NewEvaluationResult(types.DefaultScoreBounds, score, correctness, "feedback for "+q.ID, nil, nil)
}

var testKB = &types.KnowledgeBase{PaperID: "paper-1", IndexRef: "paper-1.db"}

func questions(n int) []types.Question {
	qs := make([]types.Question, n)
	for i := range qs {
		qs[i] = types.Question{
			ID:               fmt.Sprintf("q%d", i+1),
			Text:             fmt.Sprintf("Why does step %d work?", i+1),
			Type:             types.QuestionWhy,
			ExpectedConcepts: []string{"step"},
			Difficulty:       3,
		}
	}
	return qs
}

func newMachine(t *testing.T, eval Evaluator) (*Machine, Repository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewMachine(repo, eval, nil), repo
}

func assertInvariants(t *testing.T, s *types.Session) {
	t.Helper()
	assert.GreaterOrEqual(t, s.CurrentQuestionIndex, 0)
	assert.LessOrEqual(t, s.CurrentQuestionIndex, len(s.Questions))
	assert.Len(t, s.Answers, s.CurrentQuestionIndex)
	completed := s.Status == types.StatusCompleted
	assert.Equal(t, completed, len(s.Answers) == len(s.Questions))
	assert.Equal(t, completed, s.CompletedAt != nil)
}

func TestStart(t *testing.T) {
	m, repo := newMachine(t, &scoreEvaluator{})
	s, err := m.Start(context.Background(), "alice", "paper-1", questions(3))
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, types.StatusInProgress, s.Status)
	assert.Equal(t, 0, s.CurrentQuestionIndex)
	assert.Empty(t, s.Answers)
	assert.Nil(t, s.CompletedAt)
	assert.Equal(t, "q1", m.CurrentQuestion(s).ID)
	assertInvariants(t, s)

	stored, err := repo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, stored)
}

func TestStartEmptyIsCompleted(t *testing.T) {
	m, _ := newMachine(t, &scoreEvaluator{})
	s, err := m.Start(context.Background(), "alice", "paper-1", nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, s.Status)
	assert.NotNil(t, s.CompletedAt)
	assert.Nil(t, m.CurrentQuestion(s))
	assertInvariants(t, s)

	_, err = m.SubmitAnswer(context.Background(), s.ID, "anything", testKB)
	assert.ErrorIs(t, err, types.ErrSessionAlreadyComplete)
}

func TestStartRejectsInvalidQuestions(t *testing.T) {
	bad := questions(2)
	bad[1].Difficulty = 9
	dup := questions(2)
	dup[1].ID = dup[0].ID

	tests := []struct {
		name      string
		user      string
		questions []types.Question
	}{
		{"difficulty out of range", "alice", bad},
		{"duplicate ids", "alice", dup},
		{"unknown type", "alice", []types.Question{{ID: "x", Text: "t", Type: "riddle", Difficulty: 1}}},
		{"missing user", "", questions(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, repo := newMachine(t, &scoreEvaluator{})
			_, err := m.Start(context.Background(), tt.user, "paper-1", tt.questions)
			assert.ErrorIs(t, err, types.ErrValidation)
			all, _ := repo.List(context.Background(), nil)
			assert.Empty(t, all)
		})
	}
}

func TestSubmitAnswersToCompletion(t *testing.T) {
	ctx := context.Background()
	eval := &scoreEvaluator{scores: []int{9, 5, 2}}
	m, _ := newMachine(t, eval)
	s, err := m.Start(ctx, "alice", "paper-1", questions(3))
	require.NoError(t, err)

	for i, want := range []int{9, 5, 2} {
		res, err := m.SubmitAnswer(ctx, s.ID, fmt.Sprintf("answer %d", i+1), testKB)
		require.NoError(t, err)
		assert.Equal(t, want, res.Score)

		snap, err := m.Status(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, snap.CurrentQuestionIndex)
		assert.Len(t, snap.Answers, i+1)
		if i < 2 {
			assert.Equal(t, types.StatusInProgress, snap.Status)
			assert.Nil(t, snap.CompletedAt)
			assert.Equal(t, fmt.Sprintf("q%d", i+2), snap.CurrentQuestion.ID)
		}
	}

	snap, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, snap.Status)
	assert.NotNil(t, snap.CompletedAt)
	assert.Nil(t, snap.CurrentQuestion)
	assert.Equal(t, 0, snap.QuestionsRemaining)
	assert.Equal(t, 16, snap.TotalScore)
	assert.InDelta(t, float64(snap.TotalScore)/3, snap.AverageScore, 1e-9)
	assert.Equal(t, "answer 2", snap.Answers[1].Answer)
	assert.Equal(t, "feedback for q3", snap.Answers[2].Feedback)

	_, err = m.SubmitAnswer(ctx, s.ID, "one more", testKB)
	assert.ErrorIs(t, err, types.ErrSessionAlreadyComplete)
	assert.Equal(t, 3, eval.calls, "a rejected answer is never graded")
}

func TestSubmitAnswerErrors(t *testing.T) {
	ctx := context.Background()
	m, repo := newMachine(t, &scoreEvaluator{})

	_, err := m.SubmitAnswer(ctx, "missing", "a", testKB)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	s, err := m.Start(ctx, "alice", "paper-1", questions(2))
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, s.ID, "a", &types.KnowledgeBase{PaperID: "other"})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = m.SubmitAnswer(ctx, s.ID, "a", nil)
	assert.ErrorIs(t, err, types.ErrValidation)

	ok, err := m.Pause(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = m.SubmitAnswer(ctx, s.ID, "a", testKB)
	assert.ErrorIs(t, err, types.ErrSessionPaused)

	// A corrupted record with no question left but not completed.
	broken, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	broken.Status = types.StatusInProgress
	broken.Questions = broken.Questions[:0]
	require.NoError(t, repo.Update(ctx, broken, broken.Version))
	_, err = m.SubmitAnswer(ctx, s.ID, "a", testKB)
	assert.ErrorIs(t, err, types.ErrNoCurrentQuestion)
}

func TestSubmitAnswerEvaluatorFailureHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("model unavailable")
	m, _ := newMachine(t, &scoreEvaluator{err: boom})
	s, err := m.Start(ctx, "alice", "paper-1", questions(2))
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, s.ID, "a", testKB)
	assert.ErrorIs(t, err, boom)

	snap, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentQuestionIndex)
	assert.Empty(t, snap.Answers)
}

// gatedEvaluator blocks every call until released, so two submissions can
// read the same session version before either writes.
type gatedEvaluator struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedEvaluator) Evaluate(context.Context, types.Question, string, *types.KnowledgeBase) (types.EvaluationResult, error) {
	g.started <- struct{}{}
	<-g.release
	return types.NewEvaluationResult(types.DefaultScoreBounds, 6, types.PartiallyCorrect, "ok", nil, nil)
}

func TestConcurrentSubmitConflicts(t *testing.T) {
	ctx := context.Background()
	gate := &gatedEvaluator{started: make(chan struct{}, 2), release: make(chan struct{})}
	m, _ := newMachine(t, gate)
	s, err := m.Start(ctx, "alice", "paper-1", questions(3))
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.SubmitAnswer(ctx, s.ID, fmt.Sprintf("answer %d", i), testKB)
		}(i)
	}
	<-gate.started
	<-gate.started
	close(gate.release)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, types.ErrConcurrentModification):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	snap, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentQuestionIndex)
	assert.Len(t, snap.Answers, 1)
	assert.Equal(t, "q1", snap.Answers[0].QuestionID)
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, &scoreEvaluator{})
	s, err := m.Start(ctx, "alice", "paper-1", questions(2))
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, s.ID, "first", testKB)
	require.NoError(t, err)

	before, err := m.Status(ctx, s.ID)
	require.NoError(t, err)

	ok, err := m.Pause(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	paused, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, paused.Status)

	ok, err = m.Pause(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pausing a paused session fails")
	again, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, paused, again)

	ok, err = m.Resume(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	ok, err = m.Resume(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok, "resuming an in-progress session fails")

	ok, err = m.Pause(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPauseCompletedFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, &scoreEvaluator{})
	s, err := m.Start(ctx, "alice", "paper-1", questions(1))
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, s.ID, "only", testKB)
	require.NoError(t, err)

	before, _ := m.Status(ctx, s.ID)
	ok, err := m.Pause(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	after, _ := m.Status(ctx, s.ID)
	assert.Equal(t, before, after)
}

func TestStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, &scoreEvaluator{})
	s, err := m.Start(ctx, "alice", "paper-1", questions(2))
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, s.ID, "first", testKB)
	require.NoError(t, err)

	a, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	b, err := m.Status(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	missing, err := m.Status(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSummaryAndListUserSessions(t *testing.T) {
	ctx := context.Background()
	eval := &scoreEvaluator{scores: []int{9, 2, 5, 8}}
	m, _ := newMachine(t, eval)
	clock := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first, err := m.Start(ctx, "alice", "paper-1", questions(2))
	require.NoError(t, err)
	_, err = m.Summary(ctx, first.ID)
	assert.ErrorIs(t, err, types.ErrSessionNotComplete)

	for i := 0; i < 2; i++ {
		_, err = m.SubmitAnswer(ctx, first.ID, "a", testKB)
		require.NoError(t, err)
	}
	second, err := m.Start(ctx, "alice", "paper-1", questions(2))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = m.SubmitAnswer(ctx, second.ID, "a", testKB)
		require.NoError(t, err)
	}
	_, err = m.Start(ctx, "alice", "paper-1", questions(2))
	require.NoError(t, err)
	_, err = m.Start(ctx, "bob", "paper-1", nil)
	require.NoError(t, err)

	sum, err := m.Summary(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 11, sum.TotalScore)
	assert.InDelta(t, 5.5, sum.AverageScore, 1e-9)
	assert.Equal(t, 1, sum.NumCorrect)
	assert.Equal(t, 1, sum.NumIncorrect)
	assert.Equal(t, 0, sum.NumPartiallyCorrect)
	assert.Equal(t, 2, sum.NumQuestions)

	list, err := m.ListUserSessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2, "in-progress sessions are not listed")
	assert.Equal(t, second.ID, list[0].SessionID)
	assert.Equal(t, first.ID, list[1].SessionID)

	_, err = m.Summary(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestMachineOverSQLite(t *testing.T) {
	ctx := context.Background()
	repo := repositories(t)["sqlite"]
	m := NewMachine(repo, &scoreEvaluator{scores: []int{7}}, nil)

	s, err := m.Start(ctx, "alice", "paper-1", questions(1))
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, s.ID, "answer", testKB)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assertInvariants(t, stored)
	assert.Equal(t, types.StatusCompleted, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestStartForRecordsIndexRef(t *testing.T) {
	ctx := context.Background()
	m, repo := newMachine(t, &scoreEvaluator{})

	s, err := m.StartFor(ctx, "alice", testKB, questions(1))
	require.NoError(t, err)
	stored, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "paper-1", stored.PaperID)
	assert.Equal(t, "paper-1.db", stored.IndexRef)

	_, err = m.StartFor(ctx, "alice", nil, questions(1))
	assert.ErrorIs(t, err, types.ErrValidation)
}
