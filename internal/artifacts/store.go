// Package artifacts manages the on-disk layout of per-job stage outputs.
//
// Files are written to a temporary name and renamed into place, so a partial
// write from a crash or cancellation is never visible under its final name.
// The queue database records a row per committed file; this package only
// handles bytes on disk.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store writes and reads job artifacts under a fixed root directory.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the artifact root directory.
func (s *Store) Root() string {
	return s.root
}

// JobDir returns the directory holding all artifacts for a job.
func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// StageDir returns the directory holding a stage's artifacts for a job.
func (s *Store) StageDir(jobID, stage string) string {
	return filepath.Join(s.root, jobID, stage)
}

// WriteFile atomically writes data under the stage directory and returns the
// final absolute path. The file only appears under its final name once fully
// written.
func (s *Store) WriteFile(jobID, stage, name string, data []byte) (string, error) {
	dir := s.StageDir(jobID, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}
	final := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("commit artifact: %w", err)
	}
	return final, nil
}

// WriteJSON marshals v and writes it as an artifact file.
func (s *Store) WriteJSON(jobID, stage, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}
	return s.WriteFile(jobID, stage, name, data)
}

// Promote moves an externally produced file (e.g. a tool's output in a scratch
// directory) into the stage directory under its final name.
func (s *Store) Promote(jobID, stage, name, sourcePath string) (string, error) {
	dir := s.StageDir(jobID, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}
	final := filepath.Join(dir, name)
	if err := os.Rename(sourcePath, final); err == nil {
		return final, nil
	}
	// Rename can fail across filesystems; fall back to a copy through the
	// atomic write path.
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", fmt.Errorf("read source artifact: %w", err)
	}
	path, err := s.WriteFile(jobID, stage, name, data)
	if err != nil {
		return "", err
	}
	_ = os.Remove(sourcePath)
	return path, nil
}

// ScratchDir creates and returns a scratch workspace for a stage run. Scratch
// contents are never recorded as artifacts.
func (s *Store) ScratchDir(jobID, stage string) (string, error) {
	dir := filepath.Join(s.root, jobID, stage, "scratch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// ReadJSON decodes an artifact file into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RemoveJob deletes every artifact belonging to a job.
func (s *Store) RemoveJob(jobID string) error {
	if jobID == "" {
		return nil
	}
	return os.RemoveAll(s.JobDir(jobID))
}
