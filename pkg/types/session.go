// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SessionStatus is the lifecycle state of a viva session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusPaused     SessionStatus = "paused"
	StatusCompleted  SessionStatus = "completed"
)

// AnswerRecord is one graded answer. Records are append-only, one per
// answered question, in answer order.
type AnswerRecord struct {
	QuestionID  string      `json:"question_id" yaml:"question_id"`
	Answer      string      `json:"answer" yaml:"answer"`
	Score       int         `json:"score" yaml:"score"`
	Feedback    string      `json:"feedback" yaml:"feedback"`
	Correctness Correctness `json:"correctness" yaml:"correctness"`
	Timestamp   time.Time   `json:"timestamp" yaml:"timestamp"`
}

// Session is one examinee's pass through a fixed question list.
//
// Invariants: 0 <= CurrentQuestionIndex <= len(Questions);
// len(Answers) == CurrentQuestionIndex; Status == StatusCompleted iff
// len(Answers) == len(Questions); CompletedAt != nil iff completed.
type Session struct {
	ID                   string         `json:"id" yaml:"id"`
	UserID               string         `json:"user_id" yaml:"user_id"`
	PaperID              string         `json:"paper_id" yaml:"paper_id"`
	IndexRef             string         `json:"index_ref,omitempty" yaml:"index_ref,omitempty"`
	Questions            []Question     `json:"questions" yaml:"questions"`
	Answers              []AnswerRecord `json:"answers" yaml:"answers"`
	CurrentQuestionIndex int            `json:"current_question_index" yaml:"current_question_index"`
	Status               SessionStatus  `json:"status" yaml:"status"`
	StartedAt            time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	// Version is the storage concurrency token. Repositories increment it
	// on every successful write.
	Version int64 `json:"version" yaml:"version"`
}

// CurrentQuestion returns the question at the current index, or nil when
// every question has been answered.
func (s *Session) CurrentQuestion() *Question {
	if s.CurrentQuestionIndex >= 0 && s.CurrentQuestionIndex < len(s.Questions) {
		q := s.Questions[s.CurrentQuestionIndex]
		return &q
	}
	return nil
}

// TotalScore sums the scores of all recorded answers.
func (s *Session) TotalScore() int {
	total := 0
	for _, a := range s.Answers {
		total += a.Score
	}
	return total
}

// AverageScore returns the mean answer score, or 0 with no answers.
func (s *Session) AverageScore() float64 {
	if len(s.Answers) == 0 {
		return 0
	}
	return float64(s.TotalScore()) / float64(len(s.Answers))
}

// Remaining returns the number of unanswered questions.
func (s *Session) Remaining() int {
	return len(s.Questions) - len(s.Answers)
}

// Clone returns a deep copy so callers can mutate it without touching
// the original.
func (s *Session) Clone() *Session {
	c := *s
	if s.Questions != nil {
		c.Questions = make([]Question, len(s.Questions))
		for i, q := range s.Questions {
			if q.ExpectedConcepts != nil {
				q.ExpectedConcepts = append(make([]string, 0, len(q.ExpectedConcepts)), q.ExpectedConcepts...)
			}
			c.Questions[i] = q
		}
	}
	if s.Answers != nil {
		c.Answers = append(make([]AnswerRecord, 0, len(s.Answers)), s.Answers...)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SessionSnapshot is the read-only view returned by a status query.
type SessionSnapshot struct {
	SessionID            string         `json:"session_id" yaml:"session_id"`
	UserID               string         `json:"user_id" yaml:"user_id"`
	PaperID              string         `json:"paper_id" yaml:"paper_id"`
	Status               SessionStatus  `json:"status" yaml:"status"`
	CurrentQuestionIndex int            `json:"current_question_index" yaml:"current_question_index"`
	TotalQuestions       int            `json:"total_questions" yaml:"total_questions"`
	QuestionsRemaining   int            `json:"questions_remaining" yaml:"questions_remaining"`
	CurrentQuestion      *Question      `json:"current_question" yaml:"current_question"`
	Answers              []AnswerRecord `json:"answers" yaml:"answers"`
	TotalScore           int            `json:"total_score" yaml:"total_score"`
	AverageScore         float64        `json:"average_score" yaml:"average_score"`
	StartedAt            time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at" yaml:"completed_at"`
}

// Snapshot builds the status view of s.
func (s *Session) Snapshot() *SessionSnapshot {
	c := s.Clone()
	answers := c.Answers
	if answers == nil {
		answers = []AnswerRecord{}
	}
	return &SessionSnapshot{
		SessionID:            c.ID,
		UserID:               c.UserID,
		PaperID:              c.PaperID,
		Status:               c.Status,
		CurrentQuestionIndex: c.CurrentQuestionIndex,
		TotalQuestions:       len(c.Questions),
		QuestionsRemaining:   c.Remaining(),
		CurrentQuestion:      c.CurrentQuestion(),
		Answers:              answers,
		TotalScore:           c.TotalScore(),
		AverageScore:         c.AverageScore(),
		StartedAt:            c.StartedAt,
		CompletedAt:          c.CompletedAt,
	}
}

// SessionSummary aggregates a completed session. It is computed on demand
// and never stored.
type SessionSummary struct {
	SessionID           string    `json:"session_id" yaml:"session_id"`
	UserID              string    `json:"user_id" yaml:"user_id"`
	PaperID             string    `json:"paper_id" yaml:"paper_id"`
	TotalScore          int       `json:"total_score" yaml:"total_score"`
	AverageScore        float64   `json:"average_score" yaml:"average_score"`
	NumQuestions        int       `json:"num_questions" yaml:"num_questions"`
	NumCorrect          int       `json:"num_correct" yaml:"num_correct"`
	NumPartiallyCorrect int       `json:"num_partially_correct" yaml:"num_partially_correct"`
	NumIncorrect        int       `json:"num_incorrect" yaml:"num_incorrect"`
	CompletedAt         time.Time `json:"completed_at" yaml:"completed_at"`
}

// Summarize computes the SessionSummary of s. It does not check status.
func (s *Session) Summarize() SessionSummary {
	sum := SessionSummary{
		SessionID:    s.ID,
		UserID:       s.UserID,
		PaperID:      s.PaperID,
		TotalScore:   s.TotalScore(),
		AverageScore: s.AverageScore(),
		NumQuestions: len(s.Questions),
	}
	for _, a := range s.Answers {
		switch a.Correctness {
		case Correct:
			sum.NumCorrect++
		case PartiallyCorrect:
			sum.NumPartiallyCorrect++
		case Incorrect:
			sum.NumIncorrect++
		}
	}
	if s.CompletedAt != nil {
		sum.CompletedAt = *s.CompletedAt
	}
	return sum
}
