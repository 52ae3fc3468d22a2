// Package stt defines the Provider interface for batch Speech-to-Text
// backends.
//
// Journal recordings are uploaded whole, so transcription is modelled after
// the long-running recognition APIs offered by cloud speech services: the
// caller submits an audio URI and receives an [Operation] whose Wait blocks
// until the transcript is ready. Backends that only expose a synchronous
// endpoint run it on a goroutine behind [Start].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"strings"
)

// Encoding identifies the audio codec of a recording.
type Encoding int

const (
	// EncodingUnspecified lets the backend detect the codec from the file
	// header where supported.
	EncodingUnspecified Encoding = iota

	// EncodingFLAC is lossless FLAC. This is what the mobile client uploads.
	EncodingFLAC

	// EncodingLinear16 is uncompressed 16-bit little-endian PCM.
	EncodingLinear16

	// EncodingOggOpus is Opus in an Ogg container.
	EncodingOggOpus

	// EncodingWebMOpus is Opus in a WebM container.
	EncodingWebMOpus
)

// String returns the lower-case codec name.
func (e Encoding) String() string {
	switch e {
	case EncodingFLAC:
		return "flac"
	case EncodingLinear16:
		return "linear16"
	case EncodingOggOpus:
		return "ogg_opus"
	case EncodingWebMOpus:
		return "webm_opus"
	default:
		return "unspecified"
	}
}

// RecognitionConfig describes the audio and the recognition language.
type RecognitionConfig struct {
	// Encoding is the audio codec.
	Encoding Encoding

	// SampleRate in Hz. Zero lets the backend read it from the file header.
	SampleRate int

	// Channels is the number of audio channels. Journal recordings are mono.
	Channels int

	// Language is a BCP-47 tag such as "en-US".
	Language string
}

// Alternative is one candidate transcription of a result.
type Alternative struct {
	Transcript string

	// Confidence in [0, 1]. Zero when the backend does not report it.
	Confidence float64
}

// Result is one consecutive portion of the audio. Alternatives are ordered
// by decreasing likelihood.
type Result struct {
	Alternatives []Alternative
}

// Operation is a pending recognition.
type Operation interface {
	// Wait blocks until the recognition completes or ctx is done.
	Wait(ctx context.Context) ([]Result, error)
}

// Provider submits long-running recognition requests.
type Provider interface {
	// LongRunningRecognize starts recognising the audio at uri. An error here
	// means the request was rejected before any work began.
	LongRunningRecognize(ctx context.Context, uri string, cfg RecognitionConfig) (Operation, error)
}

// JoinTranscript concatenates the top alternative of every result with a
// newline. Results without alternatives contribute nothing.
func JoinTranscript(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		parts = append(parts, r.Alternatives[0].Transcript)
	}
	return strings.Join(parts, "\n")
}

// BaseLanguage reduces a BCP-47 tag to its primary subtag ("en-US" → "en")
// for backends that accept ISO-639-1 codes only.
func BaseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

// Start runs fn on a new goroutine and returns an [Operation] that waits for
// it. fn receives ctx, so cancelling the context passed to
// LongRunningRecognize aborts the work.
func Start(ctx context.Context, fn func(ctx context.Context) ([]Result, error)) Operation {
	op := &asyncOp{done: make(chan struct{})}
	go func() {
		defer close(op.done)
		op.results, op.err = fn(ctx)
	}()
	return op
}

type asyncOp struct {
	done    chan struct{}
	results []Result
	err     error
}

func (o *asyncOp) Wait(ctx context.Context) ([]Result, error) {
	select {
	case <-o.done:
		return o.results, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Completed returns an Operation that is already finished.
func Completed(results []Result, err error) Operation {
	op := &asyncOp{done: make(chan struct{}), results: results, err: err}
	close(op.done)
	return op
}
