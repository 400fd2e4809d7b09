// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package examiner wires the knowledge, question, evaluation, and session
// components into the operations the CLI exposes.
package examiner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/internal/document"
	"github.com/pdiddy/viva-examiner/internal/embedding"
	"github.com/pdiddy/viva-examiner/internal/evaluate"
	"github.com/pdiddy/viva-examiner/internal/knowledge"
	"github.com/pdiddy/viva-examiner/internal/llm"
	"github.com/pdiddy/viva-examiner/internal/question"
	"github.com/pdiddy/viva-examiner/internal/session"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Service runs viva operations against one configuration.
type Service struct {
	cfg       types.Config
	logger    *zap.Logger
	builder   *knowledge.Builder
	retriever *knowledge.Retriever
	generator *question.Generator
	machine   *session.Machine
	repo      session.Repository
}

// New opens the configured session store and model and returns a Service.
// A model that cannot be constructed (for example, a missing API key)
// fails only the operations that invoke it. The caller must Close it.
func New(ctx context.Context, cfg types.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	model, err := llm.New(cfg.Model, logger)
	if err != nil {
		logger.Debug("generation model unavailable", zap.Error(err))
		model = unavailable(err)
	}
	repo, err := session.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	svc, err := NewWithModel(cfg, model, repo, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}
	return svc, nil
}

// NewWithModel builds a Service over an existing model and repository.
// The Service takes ownership of repo.
func NewWithModel(cfg types.Config, model llm.Model, repo session.Repository, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory, err := embedding.NewFactory(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	retriever := knowledge.NewRetriever(cfg.Embedding, logger)
	evaluator, err := evaluate.NewEvaluator(model, retriever, cfg.Evaluation, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:       cfg,
		logger:    logger.Named("examiner"),
		builder:   knowledge.NewBuilder(cfg.Chunk, factory, cfg.Store.IndexDir, logger),
		retriever: retriever,
		generator: question.NewGenerator(model, retriever, cfg.Model.Temperature, logger),
		machine:   session.NewMachine(repo, evaluator, logger),
		repo:      repo,
	}, nil
}

// Close releases the session store.
func (s *Service) Close() error {
	return s.repo.Close()
}

// BuildKnowledgeBase loads the document at path and indexes it as a new
// version for paperID.
func (s *Service) BuildKnowledgeBase(ctx context.Context, path, paperID string) (*types.KnowledgeBase, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, doc, paperID)
}

// KnowledgeBase loads the index at ref, or the latest version for paperID
// when ref is empty.
func (s *Service) KnowledgeBase(ctx context.Context, paperID, ref string) (*types.KnowledgeBase, error) {
	if ref == "" {
		latest, err := knowledge.Latest(s.cfg.Store.IndexDir, paperID)
		if err != nil {
			return nil, err
		}
		ref = latest
	}
	return knowledge.Load(ctx, ref)
}

// Query returns the k chunks of paperID's latest index closest to text.
func (s *Service) Query(ctx context.Context, paperID, text string, k int) ([]knowledge.Retrieved, error) {
	ref, err := knowledge.Latest(s.cfg.Store.IndexDir, paperID)
	if err != nil {
		return nil, err
	}
	return s.retriever.Query(ctx, ref, text, k)
}

// GenerateQuestions generates count questions for kb. count <= 0 uses the
// configured default.
func (s *Service) GenerateQuestions(ctx context.Context, kb *types.KnowledgeBase, count int) ([]types.Question, error) {
	if count <= 0 {
		count = s.cfg.Question.Count
	}
	return s.generator.Generate(ctx, kb, fullText(kb), count)
}

// StartSession generates questions from the latest index of paperID and
// starts a session bound to that index version.
func (s *Service) StartSession(ctx context.Context, userID, paperID string, count int) (*types.Session, error) {
	kb, err := s.KnowledgeBase(ctx, paperID, "")
	if err != nil {
		return nil, err
	}
	questions, err := s.GenerateQuestions(ctx, kb, count)
	if err != nil {
		return nil, err
	}
	return s.machine.StartFor(ctx, userID, kb, questions)
}

// SubmitAnswer grades answer against the session's current question and
// returns the result with the updated status.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, answer string) (types.EvaluationResult, *types.SessionSnapshot, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return types.EvaluationResult{}, nil, err
	}
	kb, err := s.KnowledgeBase(ctx, sess.PaperID, sess.IndexRef)
	if err != nil {
		return types.EvaluationResult{}, nil, fmt.Errorf("loading knowledge base for session %s: %w", sessionID, err)
	}
	result, err := s.machine.SubmitAnswer(ctx, sessionID, answer, kb)
	if err != nil {
		return types.EvaluationResult{}, nil, err
	}
	snap, err := s.machine.Status(ctx, sessionID)
	if err != nil {
		return result, nil, err
	}
	return result, snap, nil
}

// Pause pauses an in-progress session.
func (s *Service) Pause(ctx context.Context, sessionID string) (bool, error) {
	return s.machine.Pause(ctx, sessionID)
}

// Resume resumes a paused session.
func (s *Service) Resume(ctx context.Context, sessionID string) (bool, error) {
	return s.machine.Resume(ctx, sessionID)
}

// Status returns the session snapshot, or types.ErrSessionNotFound.
func (s *Service) Status(ctx context.Context, sessionID string) (*types.SessionSnapshot, error) {
	snap, err := s.machine.Status(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, sessionID)
	}
	return snap, nil
}

// Summary aggregates a completed session.
func (s *Service) Summary(ctx context.Context, sessionID string) (types.SessionSummary, error) {
	return s.machine.Summary(ctx, sessionID)
}

// Sessions lists the user's completed sessions, newest first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]types.SessionSummary, error) {
	return s.machine.ListUserSessions(ctx, userID)
}

// Export writes the index at ref (or paperID's latest) to path as YAML or
// JSON.
func (s *Service) Export(ctx context.Context, paperID, ref, path, format string) error {
	if ref == "" {
		latest, err := knowledge.Latest(s.cfg.Store.IndexDir, paperID)
		if err != nil {
			return err
		}
		ref = latest
	}
	switch format {
	case "yaml", "":
		return knowledge.ExportYAML(ctx, ref, path)
	case "json":
		return knowledge.ExportJSON(ctx, ref, path)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}

// Describe maps an engine error to a short message for the examinee.
// Unknown errors return their own text.
func Describe(err error) string {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, types.ErrSessionAlreadyComplete):
		return "this session is already complete"
	case errors.Is(err, types.ErrSessionPaused):
		return "this session is paused; resume it first"
	case errors.Is(err, types.ErrSessionNotComplete):
		return "this session is still in progress"
	case errors.Is(err, types.ErrConcurrentModification):
		return "the session was updated by another request; try again"
	case errors.Is(err, types.ErrIndexNotFound):
		return "no knowledge base found; run build first"
	case errors.Is(err, types.ErrGenerationFormat):
		return "the model reply could not be parsed; try again"
	}
	return err.Error()
}

// unavailable is a model whose every call fails with err.
func unavailable(err error) llm.Model {
	return llm.ModelFunc(func(context.Context, llm.Prompt) (string, error) {
		return "", fmt.Errorf("generation model unavailable: %w", err)
	})
}

// fullText returns the paper text stored with the index, or rebuilds it
// from the chunks for indexes that lack it.
func fullText(kb *types.KnowledgeBase) string {
	if kb.Text != "" {
		return kb.Text
	}
	parts := make([]string, len(kb.Chunks))
	for i, c := range kb.Chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n")
}
