// Package audio opens uploaded recordings by URI.
//
// Transcription backends that cannot read object storage themselves (local
// whisper.cpp, OpenAI, Deepgram) fetch the audio bytes through a [Source].
// A [Router] dispatches on the URI scheme so that "file:///…", "s3://…" and
// any other registered scheme can be served side by side.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
)

// ErrUnsupportedScheme is returned by [Router.Open] when no source is
// registered for the URI's scheme.
var ErrUnsupportedScheme = errors.New("audio: unsupported URI scheme")

// Source opens an audio object for reading. The caller must close the
// returned reader.
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context, uri string) (io.ReadCloser, error)

// Open implements [Source].
func (f SourceFunc) Open(ctx context.Context, uri string) (io.ReadCloser, error) { return f(ctx, uri) }

// Router is a [Source] that delegates to per-scheme sources.
type Router struct {
	mu      sync.RWMutex
	schemes map[string]Source
}

var _ Source = (*Router)(nil)

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{schemes: make(map[string]Source)}
}

// Handle registers src for scheme (without "://"). Registering a scheme twice
// replaces the earlier source.
func (r *Router) Handle(scheme string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[strings.ToLower(scheme)] = src
}

// Open implements [Source].
func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("audio: parse %q: %w", uri, err)
	}
	r.mu.RLock()
	src, ok := r.schemes[strings.ToLower(u.Scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return src.Open(ctx, uri)
}

// ContentType guesses the MIME type of an audio object from its extension.
// Unknown extensions map to "application/octet-stream".
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4", ".aac":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

// BaseName returns the last path element of uri, for upload file names.
func BaseName(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(uri)
}
