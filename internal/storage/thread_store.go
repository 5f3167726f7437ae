// Package storage persists conversation threads as JSON files in a sessions directory.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"neurochat/pkg/chattypes"
)

// ErrInvalidFilename is returned for thread file names that fail validation.
var ErrInvalidFilename = errors.New("invalid thread filename")

// ThreadMetadata describes a persisted conversation.
type ThreadMetadata struct {
	SessionID   string `json:"session_id"`
	Model       string `json:"model"`
	SystemRole  string `json:"system_role"`
	AssistantID string `json:"assistant_id,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Thread is the on-disk form of a conversation.
type Thread struct {
	Metadata ThreadMetadata      `json:"metadata"`
	Messages []chattypes.Message `json:"messages"`
}

// ThreadInfo is a listing entry.
type ThreadInfo struct {
	Filename  string `json:"filename"`
	UpdatedAt string `json:"updated_at"`
}

// ThreadStore reads and writes threads under a single directory.
type ThreadStore struct {
	dir string
}

// NewThreadStore creates a store rooted at dir. The directory is created on first write.
func NewThreadStore(dir string) *ThreadStore {
	return &ThreadStore{dir: dir}
}

// Dir returns the sessions directory.
func (s *ThreadStore) Dir() string {
	return s.dir
}

// FilenameFor returns the file name used for a session id.
func FilenameFor(sessionID string) string {
	return "session_" + sessionID + ".json"
}

// ValidateFilename rejects empty names, names without a .json suffix and anything that could
// escape the sessions directory.
func ValidateFilename(filename string) error {
	switch {
	case strings.TrimSpace(filename) == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidFilename)
	case strings.Contains(filename, ".."), strings.ContainsAny(filename, `/\`):
		return fmt.Errorf("%w: path traversal is not allowed", ErrInvalidFilename)
	case !strings.HasSuffix(filename, ".json"):
		return fmt.Errorf("%w: only .json files are allowed", ErrInvalidFilename)
	}
	return nil
}

// List returns the saved threads, most recently updated first.
func (s *ThreadStore) List() ([]ThreadInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ThreadInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	type stamped struct {
		info ThreadInfo
		mod  time.Time
	}
	found := make([]stamped, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, stamped{
			info: ThreadInfo{Filename: entry.Name(), UpdatedAt: fi.ModTime().UTC().Format(time.RFC3339)},
			mod:  fi.ModTime(),
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].mod.Equal(found[j].mod) {
			return found[i].info.Filename < found[j].info.Filename
		}
		return found[i].mod.After(found[j].mod)
	})

	out := make([]ThreadInfo, 0, len(found))
	for _, f := range found {
		out = append(out, f.info)
	}
	return out, nil
}

// Load reads a thread by file name.
func (s *ThreadStore) Load(filename string) (*Thread, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read thread %s: %w", filename, err)
	}

	var thread Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("failed to parse thread %s: %w", filename, err)
	}
	return &thread, nil
}

// Save writes a thread and returns its file name.
func (s *ThreadStore) Save(thread *Thread) (string, error) {
	if thread.Metadata.SessionID == "" {
		return "", fmt.Errorf("thread has no session id")
	}
	filename := FilenameFor(thread.Metadata.SessionID)
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}

	data, err := json.MarshalIndent(thread, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode thread: %w", err)
	}

	// Write to a temp file and rename it into place.
	path := filepath.Join(s.dir, filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write thread: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to store thread: %w", err)
	}
	return filename, nil
}

// Delete removes a thread by file name.
func (s *ThreadStore) Delete(filename string) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", filename, err)
	}
	return nil
}
