// Package llmscore provides a sentiment provider that asks a general-purpose
// LLM to score a text. It is meant as a fallback for deployments without a
// dedicated sentiment API.
package llmscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MrWong99/vibejournal/pkg/provider/llm"
	"github.com/MrWong99/vibejournal/pkg/provider/sentiment"
)

// ErrNoJSON is returned when the model reply contains no JSON object.
var ErrNoJSON = errors.New("llmscore: reply contains no JSON object")

const systemPrompt = `You rate the sentiment of personal journal entries.
Reply with a single JSON object and nothing else:
{"score": <number from -1.0 (very negative) to 1.0 (very positive)>,
 "magnitude": <number >= 0 describing how much emotion the text carries overall>}`

var _ sentiment.Provider = (*Provider)(nil)

// Provider implements sentiment.Provider on top of an llm.Provider.
type Provider struct {
	llm llm.Provider
}

// New wraps p.
func New(p llm.Provider) (*Provider, error) {
	if p == nil {
		return nil, errors.New("llmscore: llm provider must not be nil")
	}
	return &Provider{llm: p}, nil
}

// Analyze implements sentiment.Provider.
func (p *Provider) Analyze(ctx context.Context, text string) (*sentiment.Result, error) {
	req := llm.UserPrompt(systemPrompt, text)
	req.MaxTokens = 64
	req.JSONObject = true

	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llmscore: complete: %w", err)
	}
	return parse(resp.Content)
}

// parse extracts the outermost JSON object from reply. Score is clamped to
// [-1, 1] and magnitude to [0, +Inf).
func parse(reply string) (*sentiment.Result, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}

	var raw struct {
		Score     *float64 `json:"score"`
		Magnitude *float64 `json:"magnitude"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("llmscore: decode reply: %w", err)
	}

	res := &sentiment.Result{}
	if raw.Score != nil {
		res.Score = sentiment.Float64(math.Max(-1, math.Min(1, *raw.Score)))
	}
	if raw.Magnitude != nil {
		res.Magnitude = sentiment.Float64(math.Max(0, *raw.Magnitude))
	}
	return res, nil
}
