// Package sentiment defines the Provider interface for document-level
// sentiment analysis backends.
//
// A provider scores a whole text with a signed score in [-1, 1] (negative to
// positive) and a non-negative magnitude that grows with the amount of
// emotional content regardless of sign. Backends may omit either value; the
// [Result] accessors treat an omitted value as zero.
package sentiment

import "context"

// Result is the document sentiment of an analysed text.
type Result struct {
	// Score is nil when the backend did not report one.
	Score *float64

	// Magnitude is nil when the backend did not report one.
	Magnitude *float64
}

// ScoreOrZero returns the score, or 0 when absent.
func (r *Result) ScoreOrZero() float64 {
	if r == nil || r.Score == nil {
		return 0
	}
	return *r.Score
}

// MagnitudeOrZero returns the magnitude, or 0 when absent.
func (r *Result) MagnitudeOrZero() float64 {
	if r == nil || r.Magnitude == nil {
		return 0
	}
	return *r.Magnitude
}

// Provider analyses the sentiment of plain text.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Analyze scores text as a single document. A nil Result with a nil error
	// is treated the same as a Result with both values absent.
	Analyze(ctx context.Context, text string) (*Result, error)
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
