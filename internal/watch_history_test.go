package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWatchHistory(t *testing.T) {
	ids, err := LoadWatchHistory("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	path := filepath.Join(t.TempDir(), "watch-history.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"header": "YouTube", "title": "Watched Shed build", "titleUrl": "https://www.youtube.com/watch?v=tAP1eZYEuKA"},
  {"header": "YouTube", "title": "Visited a channel", "titleUrl": "https://www.youtube.com/channel/UCabc"},
  {"header": "YouTube", "title": "Watched a video that has been removed"}
]`), 0o644))

	ids, err = LoadWatchHistory(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"tAP1eZYEuKA": {}}, ids)

	require.NoError(t, os.WriteFile(path, []byte(`{"not": "a list"}`), 0o644))
	_, err = LoadWatchHistory(path)
	assert.ErrorContains(t, err, "parsing watch history")
}
