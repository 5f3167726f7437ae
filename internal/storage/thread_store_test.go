package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurochat/pkg/chattypes"
)

func sampleThread(id string) *Thread {
	return &Thread{
		Metadata: ThreadMetadata{
			SessionID:   id,
			Model:       "gemini-2.0-flash",
			SystemRole:  "You are helpful.",
			AssistantID: "default",
			Title:       "hello",
		},
		Messages: []chattypes.Message{
			{Role: chattypes.RoleUser, Text: "hi", Timestamp: time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)},
			{Role: chattypes.RoleAssistant, Text: "hello", Timestamp: time.Date(2025, 1, 1, 0, 0, 2, 0, time.UTC)},
		},
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{name: "valid", filename: "session_abc.json"},
		{name: "empty", filename: "", wantErr: true},
		{name: "blank", filename: "   ", wantErr: true},
		{name: "not json", filename: "notes.txt", wantErr: true},
		{name: "parent traversal", filename: "..json", wantErr: true},
		{name: "dotdot prefix", filename: "../x.json", wantErr: true},
		{name: "forward slash", filename: "a/b.json", wantErr: true},
		{name: "backslash", filename: `a\b.json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilename)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestThreadStore_SaveLoadDelete(t *testing.T) {
	store := NewThreadStore(filepath.Join(t.TempDir(), "sessions"))

	filename, err := store.Save(sampleThread("abc"))
	require.NoError(t, err)
	assert.Equal(t, "session_abc.json", filename)

	loaded, err := store.Load(filename)
	require.NoError(t, err)
	assert.Equal(t, sampleThread("abc"), loaded)

	require.NoError(t, store.Delete(filename))
	_, err = store.Load(filename)
	assert.Error(t, err)
}

func TestThreadStore_ListOrdersByUpdate(t *testing.T) {
	dir := t.TempDir()
	store := NewThreadStore(dir)

	_, err := store.Save(sampleThread("old"))
	require.NoError(t, err)
	_, err = store.Save(sampleThread("new"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "session_old.json"), past, past))

	infos, err := store.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "session_new.json", infos[0].Filename)
	assert.Equal(t, "session_old.json", infos[1].Filename)
	assert.NotEmpty(t, infos[0].UpdatedAt)
}

func TestThreadStore_ListMissingDirectory(t *testing.T) {
	store := NewThreadStore(filepath.Join(t.TempDir(), "missing"))

	infos, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestThreadStore_RejectsInvalidNames(t *testing.T) {
	store := NewThreadStore(t.TempDir())

	_, err := store.Load("../etc/passwd.json")
	assert.ErrorIs(t, err, ErrInvalidFilename)
	assert.ErrorIs(t, store.Delete("x.txt"), ErrInvalidFilename)

	_, err = store.Save(&Thread{})
	assert.Error(t, err)
}
