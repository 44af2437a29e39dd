package audio

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scratch is a per-request directory holding every temporary artifact of one
// pipeline run. Release removes it and everything inside.
type Scratch struct {
	dir string
}

// NewScratch creates a fresh directory under base (os.TempDir when empty).
func NewScratch(base string) (*Scratch, error) {
	dir, err := os.MkdirTemp(base, "voicegeo-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

func (s *Scratch) Dir() string { return s.dir }

// Path returns a file path inside the scratch directory.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// WriteFile stores b under name and returns its path.
func (s *Scratch) WriteFile(name string, b []byte) (string, error) {
	p := s.Path(name)
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return p, nil
}

// Release is safe to call more than once.
func (s *Scratch) Release() error {
	if s == nil || s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}
