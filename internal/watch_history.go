package internal

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadWatchHistory reads video IDs from a Google Takeout watch-history.json.
// An empty path yields an empty set.
func LoadWatchHistory(path string) (map[string]struct{}, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading watch history: %w", err)
	}

	var entries []struct {
		TitleURL string `json:"titleUrl"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing watch history %s: %w", path, err)
	}

	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.TitleURL == "" {
			continue
		}
		if ref := ParseVideoRef(e.TitleURL); ref.IsValid() {
			ids[ref.ID] = struct{}{}
		}
	}
	return ids, nil
}
