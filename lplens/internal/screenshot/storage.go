package screenshot

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/hazyhaar/lplens/horosafe"
)

// DefaultPrefix is the reference prefix under which stored images are served.
const DefaultPrefix = "/screenshots"

// ErrBadRef is returned when a reference does not point into the storage area.
var ErrBadRef = errors.New("screenshot: reference outside storage area")

// Storage is the durable area holding captured images. References handed
// out by Save are stable and are what snapshots persist.
type Storage struct {
	Root   string // directory on disk
	Prefix string // reference prefix, default DefaultPrefix
}

// NewStorage returns a Storage rooted at dir.
func NewStorage(dir string) *Storage {
	return &Storage{Root: dir, Prefix: DefaultPrefix}
}

func (s *Storage) prefix() string {
	if s.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimRight(s.Prefix, "/")
}

// FileName is the on-disk name for a capture of id taken at t.
func FileName(id string, t time.Time) string {
	return fmt.Sprintf("%s-%d.png", id, t.UnixMilli())
}

// Save writes data as the capture of id taken at t and returns its reference.
// The root directory is created if absent.
func (s *Storage) Save(id string, t time.Time, data []byte) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("screenshot: invalid id %q", id)
	}
	name := FileName(id, t)
	full, err := horosafe.SafePath(s.Root, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return "", fmt.Errorf("screenshot: mkdir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("screenshot: write: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("screenshot: rename: %w", err)
	}
	return path.Join(s.prefix(), name), nil
}

// Resolve maps a reference back to its file path.
func (s *Storage) Resolve(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, s.prefix()+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", ErrBadRef
	}
	return horosafe.SafePath(s.Root, name)
}

// ReadFile returns the bytes of a stored image.
func (s *Storage) ReadFile(ref string) ([]byte, error) {
	p, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}
