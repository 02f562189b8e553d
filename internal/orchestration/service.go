// Package orchestration builds the guarded LLM call for a turn and maps
// its outcome into an answer with citations and a guardrail action.
package orchestration

import (
	"cmp"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/reqctx"
	"github.com/Ahabibm4/chatbot/pkg/llm"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

const (
	DefaultTemperature = 0.35
	DefaultMaxTokens   = 1500
	DefaultTimeout     = 60 * time.Second
	minMaxTokens       = 256
)

// Config tunes the LLM call and the context guard.
type Config struct {
	// Temperature is sent as is; zero asks for deterministic output.
	Temperature      float64
	MaxTokens        int
	Timeout          time.Duration
	MaxContextTokens int
	MaxCitations     int
}

func (c Config) withDefaults() Config {
	if c.Temperature < 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	c.MaxTokens = max(minMaxTokens, c.MaxTokens)
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.MaxCitations <= 0 {
		c.MaxCitations = DefaultMaxCitations
	}
	return c
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{Temperature: DefaultTemperature}.withDefaults()
}

// SegmentType tags a streamed orchestration segment.
type SegmentType string

const (
	SegmentPartial SegmentType = "partial"
	SegmentFinal   SegmentType = "final"
)

// Segment is one streamed piece. Answer is set only on the final segment.
type Segment struct {
	Type   SegmentType
	Text   string
	Answer Answer
}

// Service orchestrates one guarded LLM call per turn.
type Service struct {
	provider llm.Provider
	guard    TokenBudgetGuard
	cfg      Config
	logger   logging.Logger
}

func NewService(provider llm.Provider, cfg Config, logger logging.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		provider: provider,
		guard:    NewTokenBudgetGuard(cfg.MaxContextTokens),
		cfg:      cfg,
		logger:   logger,
	}
}

// prepared is everything derived from the turn before the LLM runs.
type prepared struct {
	queryType QueryType
	accepted  []model.RetrievedChunk
	truncated bool
	request   llm.Request
}

func (s *Service) prepare(req model.ChatRequest, intent string, chunks []model.RetrievedChunk, wf model.WorkflowResult) prepared {
	queryType := ClassifyQuery(intent, chunks, wf)
	sorted := slices.Clone(chunks)
	slices.SortStableFunc(sorted, func(a, b model.RetrievedChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	accepted, truncated := s.guard.Enforce(sorted)
	return prepared{
		queryType: queryType,
		accepted:  accepted,
		truncated: truncated,
		request: llm.Request{
			Messages:    buildMessages(req, queryType, accepted, wf),
			Temperature: s.cfg.Temperature,
			MaxTokens:   s.cfg.MaxTokens,
		},
	}
}

// finalize is the single place an LLM outcome becomes an Answer, for both
// the blocking and the streaming path.
func (s *Service) finalize(p prepared, text, finishReason string, failed bool) Answer {
	answer := Answer{
		Text:            strings.TrimSpace(text),
		Citations:       BuildCitations(p.accepted, s.cfg.MaxCitations),
		GuardrailAction: ResolveGuardrail(MapFinishReason(finishReason), p.truncated),
	}
	if failed || answer.Text == "" {
		answer = Answer{Text: FallbackMessage, Citations: []model.Citation{}, GuardrailAction: GuardrailError}
	}
	return GuardKnowledge(answer, p.queryType == QueryRAG, len(p.accepted) > 0)
}

// Orchestrate runs the LLM call to completion. It never fails: errors
// yield the fallback answer with guardrail ERROR.
func (s *Service) Orchestrate(ctx context.Context, req model.ChatRequest, intent string, chunks []model.RetrievedChunk, wf model.WorkflowResult) Answer {
	p := s.prepare(req, intent, chunks, wf)
	log := s.logger.WithFields(reqctx.LogFields(ctx)).WithField("classification", p.queryType)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	completion, err := s.complete(ctx, p.request)
	if err != nil {
		llmRequests.WithLabelValues(modeBlocking, outcomeError).Inc()
		log.WithError(err).Error("LLM invocation failed")
		return s.finalize(p, "", "", true)
	}
	if strings.TrimSpace(completion.Text) == "" {
		llmRequests.WithLabelValues(modeBlocking, outcomeEmpty).Inc()
		log.Warn("LLM response was empty")
	} else {
		llmRequests.WithLabelValues(modeBlocking, outcomeOK).Inc()
	}
	return s.finalize(p, completion.Text, completion.FinishReason, false)
}

func (s *Service) complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if s.provider == nil {
		return llm.Completion{}, errors.New("no LLM provider configured")
	}
	stream, err := s.provider.Complete(ctx, req)
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Collect(stream)
}

// Stream runs the LLM call and delivers partial segments followed by
// exactly one final segment, then closes the channel. A provider that
// panics ends in the fallback final. If ctx is cancelled the channel is
// closed without a final segment.
func (s *Service) Stream(ctx context.Context, req model.ChatRequest, intent string, chunks []model.RetrievedChunk, wf model.WorkflowResult) <-chan Segment {
	out := make(chan Segment)
	p := s.prepare(req, intent, chunks, wf)

	go func() {
		defer close(out)
		log := s.logger.WithFields(reqctx.LogFields(ctx)).WithField("classification", p.queryType)

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		finalSent := false
		send := func(seg Segment) bool {
			select {
			case out <- seg:
				finalSent = finalSent || seg.Type == SegmentFinal
				return true
			case <-ctx.Done():
				return false
			}
		}
		defer func() {
			if r := recover(); r != nil {
				llmRequests.WithLabelValues(modeStreaming, outcomeError).Inc()
				log.WithField("panic", r).Error("LLM streaming panicked")
				if !finalSent && ctx.Err() == nil {
					answer := s.finalize(p, "", "", true)
					send(Segment{Type: SegmentFinal, Text: answer.Text, Answer: answer})
				}
			}
		}()
		fail := func(err error) {
			llmRequests.WithLabelValues(modeStreaming, outcomeError).Inc()
			log.WithError(err).Error("LLM streaming failed")
			answer := s.finalize(p, "", "", true)
			send(Segment{Type: SegmentFinal, Text: answer.Text, Answer: answer})
		}

		if s.provider == nil {
			fail(errors.New("no LLM provider configured"))
			return
		}
		stream, err := s.provider.Complete(callCtx, p.request)
		if err != nil {
			fail(err)
			return
		}
		defer stream.Close()

		var text strings.Builder
		var finish string
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fail(err)
				return
			}
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
			if chunk.Content == "" {
				continue
			}
			text.WriteString(chunk.Content)
			if !send(Segment{Type: SegmentPartial, Text: chunk.Content}) {
				return
			}
		}

		if strings.TrimSpace(text.String()) == "" {
			llmRequests.WithLabelValues(modeStreaming, outcomeEmpty).Inc()
			log.Warn("Streaming completed without content")
		} else {
			llmRequests.WithLabelValues(modeStreaming, outcomeOK).Inc()
		}
		answer := s.finalize(p, text.String(), finish, false)
		send(Segment{Type: SegmentFinal, Text: answer.Text, Answer: answer})
	}()

	return out
}
