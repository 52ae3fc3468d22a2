// Package assistant implements the journaling assistant: a single LLM
// completion that either suggests a journaling prompt or reflects on an
// entry the user wrote.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/pkg/provider/llm"
)

// Actions understood by [Assistant.Respond].
const (
	ActionGetPrompt   = "get_prompt"
	ActionGetFeedback = "get_feedback"
)

// Disclaimer closes every feedback reply.
const Disclaimer = "(Disclaimer: I am an AI assistant and not a substitute for professional help.)"

// ErrInvalidAction is returned for unknown actions and for feedback requests
// without text.
var ErrInvalidAction = errors.New("assistant: invalid action or missing text")

const persona = "You are VibeJournal's supportive and empathetic AI assistant."

const promptInstruction = persona + `
Your goal is to help users reflect on their day.
Provide one, and only one, unique and thoughtful journaling prompt.
Make it open-ended and related to self-reflection, gratitude, or daily experiences.
Do not ask a question back. Just provide the prompt.`

const feedbackInstruction = persona + `
The user shares a journal entry with you. Help them reflect. Follow these rules strictly:
1. Do not give medical, financial, or legal advice. Do not act as a therapist.
2. Start with a one-sentence summary that validates the primary emotion or theme of the entry.
3. Then ask one single, gentle, open-ended question to encourage deeper reflection.
4. End with the exact disclaimer: "` + Disclaimer + `"`

// Request is one assistant call.
type Request struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

// Assistant answers [Request]s with an LLM.
type Assistant struct {
	llm     llm.Provider
	metrics *observe.Metrics
}

// Option configures an [Assistant].
type Option func(*Assistant)

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// New creates an Assistant.
func New(p llm.Provider, opts ...Option) *Assistant {
	a := &Assistant{llm: p}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Respond runs the requested action and returns the model's reply.
func (a *Assistant) Respond(ctx context.Context, req Request) (string, error) {
	var cr llm.CompletionRequest
	switch {
	case req.Action == ActionGetPrompt:
		cr = llm.UserPrompt(promptInstruction, "Give me a journaling prompt for today.")
	case req.Action == ActionGetFeedback && strings.TrimSpace(req.Text) != "":
		cr = llm.UserPrompt(feedbackInstruction, req.Text)
	default:
		return "", ErrInvalidAction
	}

	ctx, span := observe.StartSpan(ctx, "assistant.respond")
	start := time.Now()
	resp, err := a.llm.Complete(ctx, cr)
	a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		a.metrics.RecordProviderRequest(ctx, a.llm.Model(), "llm", "error")
		return "", fmt.Errorf("assistant: %s: %w", req.Action, err)
	}
	a.metrics.RecordProviderRequest(ctx, a.llm.Model(), "llm", "ok")
	observe.Logger(ctx).Info("assistant response generated", "action", req.Action, "tokens", resp.Usage.TotalTokens)
	return strings.TrimSpace(resp.Content), nil
}
