package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSource_Open(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "u1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "u1", "r1.flac"), []byte("fLaC"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &Source{Root: root}
	rc, err := s.Open(context.Background(), "file:///u1/r1.flac")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "fLaC" {
		t.Errorf("data = %q, want fLaC", data)
	}

	if _, err := s.Open(context.Background(), "file:///missing.flac"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := s.Open(context.Background(), "s3://bucket/key"); err == nil {
		t.Error("expected error for wrong scheme")
	}
}
