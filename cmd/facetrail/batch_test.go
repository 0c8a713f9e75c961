package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

func TestMediaFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.mp4", "notes.txt", "nested/c.png"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{"top level only", false, []string{"a.mp4", "b.jpg"}},
		{"recursive", true, []string{"a.mp4", "b.jpg", "nested/c.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := mediaFiles(dir, tt.recursive)
			require.NoError(t, err)

			got := make([]string, len(files))
			for i, f := range files {
				rel, err := filepath.Rel(dir, f)
				require.NoError(t, err)
				got[i] = filepath.ToSlash(rel)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMediaFiles_MissingDir(t *testing.T) {
	_, err := mediaFiles(filepath.Join(t.TempDir(), "missing"), false)
	assert.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	keys := sortedKeys(map[domain.JobState]int64{
		domain.JobStateSuccess:    3,
		domain.JobStateFailure:    1,
		domain.JobStatePending:    2,
		domain.JobStateProcessing: 0,
	})
	assert.Equal(t, []domain.JobState{
		domain.JobStateFailure,
		domain.JobStatePending,
		domain.JobStateProcessing,
		domain.JobStateSuccess,
	}, keys)
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"batch", "cache", "process", "search", "stats", "watch", "worker"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}

	sub, _, err := rootCmd.Find([]string{"cache", "clear"})
	require.NoError(t, err)
	assert.Equal(t, "clear", sub.Name())
}
