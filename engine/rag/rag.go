// Package rag orchestrates the retrieval-augmented answering pipeline: a
// question is embedded and searched against stored document chunks, the hits
// become a grounded system instruction, and a hosted language model produces
// the final reply. One invocation is one linear pass, retrieve → augment →
// generate, with no branching and no partial results.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdocs/askdocs-backend/engine/domain"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
	"github.com/askdocs/askdocs-backend/pkg/resilience"
)

// Generator produces an assistant reply for a role-tagged message sequence.
// Implementations make a single blocking provider call with no internal
// retry; retry policy belongs to this layer, not the client.
type Generator interface {
	Complete(ctx context.Context, messages []domain.Message) (string, error)
}

// Options configures the orchestrator.
type Options struct {
	TopK          int
	SearchTimeout time.Duration
	SystemPrompt  string
	// LLMRate caps generation calls per second across all in-flight
	// requests. Zero disables the limiter.
	LLMRate  float64
	LLMBurst int
	// Metrics receives the retrieval degradation counter. Nil is allowed.
	Metrics *metrics.Registry
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          5,
		SearchTimeout: 5 * time.Second,
		SystemPrompt:  defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are an expert assistant that answers questions about uploaded PDF documents.
Answer using ONLY the provided context. If the context does not contain enough
information to answer, say so honestly. Be concise. Cite sources when possible.`

const (
	// apologyReply is the catch-all answer for unforeseen internal faults.
	apologyReply = "Sorry, something went wrong while answering your question. Please try again."
	// askForQuestion is returned when the orchestrator is invoked without a
	// usable user question.
	askForQuestion = "Please ask a question about your uploaded documents."
)

// Service runs the pipeline. Stateless between calls: each invocation's
// conversation is the caller's, and the working copy is transient.
type Service struct {
	retriever *Retriever
	generate  Generator
	limiter   *resilience.Limiter
	opts      Options
	logger    *slog.Logger
}

// New creates the orchestrator from constructed dependencies.
func New(embed QueryEmbedder, search Searcher, generate Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	var limiter *resilience.Limiter
	if opts.LLMRate > 0 {
		limiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: opts.LLMRate, Burst: opts.LLMBurst})
	}
	return &Service{
		retriever: NewRetriever(embed, search, opts.TopK, opts.SearchTimeout, opts.Metrics, logger),
		generate:  generate,
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
	}
}

// Ask answers a question given optional prior turns. It always returns a
// reply string, never an error: retrieval and generation failures degrade
// into the visible answer text and the cause goes to the log.
func (s *Service) Ask(ctx context.Context, question string, history []domain.Message) string {
	conv := domain.Conversation{Messages: history}.Append(domain.User(question))
	return s.Continue(ctx, conv).Messages[len(conv.Messages)].Content
}

// Continue runs one pass over a conversation whose last message is the
// user's question and returns the conversation with the assistant reply
// appended. A malformed conversation still gets a reply appended.
func (s *Service) Continue(ctx context.Context, conv domain.Conversation) (out domain.Conversation) {
	// Outer boundary: any internal fault becomes an apologetic reply rather
	// than a propagated panic.
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("rag: recovered from panic", "panic", fmt.Sprintf("%v", rec))
			out = conv.Append(domain.Assistant(apologyReply))
		}
	}()

	if err := domain.ValidateConversation(conv); err != nil {
		s.logger.Warn("rag: invalid conversation", "err", err)
		return conv.Append(domain.Assistant(askForQuestion))
	}
	question := conv.Question()
	s.logger.Info("rag: ask", "question_len", len(question), "turns", len(conv.Messages))

	// RETRIEVING: never fails, degrades to sentinel context.
	retrievedContext := s.retriever.Retrieve(ctx, question)

	// GENERATING: grounding instruction plus context, prepended as a system
	// message ahead of the caller's turns.
	prompt := make([]domain.Message, 0, len(conv.Messages)+1)
	prompt = append(prompt, domain.System(s.opts.SystemPrompt+"\n\nCONTEXT:\n"+retrievedContext))
	prompt = append(prompt, conv.Messages...)

	reply, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Error("rag: generation failed", "err", err)
		reply = fmt.Sprintf("Sorry, I could not generate an answer (%s). Please try again in a moment.", errSummary(err))
	}

	// DONE: append the reply to the original conversation.
	return conv.Append(domain.Assistant(reply))
}

func (s *Service) complete(ctx context.Context, prompt []domain.Message) (string, error) {
	if s.limiter == nil {
		return s.generate.Complete(ctx, prompt)
	}
	var reply string
	err := s.limiter.CallWait(ctx, func(ctx context.Context) error {
		var genErr error
		reply, genErr = s.generate.Complete(ctx, prompt)
		return genErr
	})
	return reply, err
}

// errSummary keeps the user-visible error short: the sentinel classification
// when there is one, otherwise a generic phrase.
func errSummary(err error) string {
	switch {
	case err == nil:
		return ""
	case contextDone(err):
		return "the request timed out"
	default:
		return "the language model is unavailable"
	}
}

func contextDone(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
