package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "progress.json"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := newStore(t)
	p, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFileStore_SaveOverwritesAndLoads(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(1, "110000", "北京市"))
	require.NoError(t, s.Save(1, "120000", "天津市"))

	p, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, "120000", p.LastID)
	assert.Equal(t, "天津市", p.Path)
	assert.Equal(t, int64(1700000000), p.Timestamp)

	raw, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"path":"天津市"`)

	entries, err := os.ReadDir(filepath.Dir(s.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestFileStore_Clear(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(1, "110000", "北京市"))
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	p, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	tests := map[string]string{
		"not json":   "{oops",
		"no last id": `{"level":1,"last_id":"","path":"x"}`,
		"bad level":  `{"level":9,"last_id":"1","path":"x"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, os.WriteFile(s.Path, []byte(body), 0o644))
			_, err := s.Load()
			assert.True(t, errors.Is(err, ErrCorrupt))
		})
	}
}

func TestFileStore_LoadEmptyFile(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.Path, nil, 0o644))
	p, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, p)
}
