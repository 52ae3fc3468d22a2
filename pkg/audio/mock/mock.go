// Package mock provides a test double for audio.Source.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/vibejournal/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// Source returns Data for every Open call, or Err when set.
type Source struct {
	mu sync.Mutex

	Data []byte
	Err  error

	// OpenCalls records every URI passed to Open.
	OpenCalls []string
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, uri)
	if s.Err != nil {
		return nil, s.Err
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}
