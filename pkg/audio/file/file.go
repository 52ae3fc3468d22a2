// Package file serves audio objects from the local filesystem. It is used in
// development, where uploads are mirrored into a directory instead of a
// bucket.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/vibejournal/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// Source opens "file://" URIs. When Root is set, paths are resolved inside
// it and may not escape it.
type Source struct {
	Root string
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("file source: parse %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("file source: %w: %q", audio.ErrUnsupportedScheme, u.Scheme)
	}

	p := filepath.FromSlash(u.Host + u.Path)
	if s.Root != "" {
		p = filepath.Join(s.Root, filepath.Clean("/"+p))
		rel, err := filepath.Rel(s.Root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, errors.New("file source: path escapes root")
		}
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	return f, nil
}
