// Package mood maps a document sentiment score onto the coarse mood labels
// stored on every processed recording.
//
// The classifier is a pure function with no I/O. Scores are expected in the
// range [-1, 1] but any finite value is accepted; values outside the range
// simply land in the positive or negative bucket.
package mood

// Mood is the label persisted in a recording's "mood" field.
type Mood string

const (
	// Positive is assigned when the sentiment score is strictly above [Threshold].
	Positive Mood = "positive"

	// Negative is assigned when the sentiment score is strictly below -[Threshold].
	Negative Mood = "negative"

	// Neutral covers the closed interval [-Threshold, Threshold] and recordings
	// whose transcript carried no words at all.
	Neutral Mood = "neutral"

	// Unknown marks a recording whose transcription or sentiment analysis failed.
	Unknown Mood = "unknown"
)

// Threshold is the absolute score a recording must exceed to leave the
// neutral bucket. Scores exactly at ±Threshold are neutral.
const Threshold = 0.25

// Classify returns the mood for a sentiment score.
func Classify(score float64) Mood {
	switch {
	case score > Threshold:
		return Positive
	case score < -Threshold:
		return Negative
	default:
		return Neutral
	}
}

// IsValid reports whether m is one of the four known labels.
func (m Mood) IsValid() bool {
	switch m {
	case Positive, Negative, Neutral, Unknown:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (m Mood) String() string { return string(m) }
