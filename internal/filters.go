package internal

import (
	"sort"
	"time"
)

// FilterSet configures ApplyFilters. Zero values disable a filter.
type FilterSet struct {
	Cutoff            time.Time
	ExcludeShorts     bool
	ShortsMax         time.Duration
	State             StateStore
	RetryNoTranscript bool
	MaxErrorAttempts  int
	Watched           map[string]struct{}
	Cap               int
}

// FilterCounts records how many candidates each filter removed.
type FilterCounts struct {
	Duplicate int
	Age       int
	Shorts    int
	Processed int
	Watched   int
	Capped    int
}

// ApplyFilters removes duplicates, then applies the age, shorts, processed
// and watch-history filters in that order. Survivors are sorted newest first
// and capped. Filters only ever remove candidates.
func ApplyFilters(cands []VideoCandidate, f FilterSet) ([]VideoCandidate, FilterCounts) {
	var counts FilterCounts
	seen := make(map[string]struct{}, len(cands))
	out := make([]VideoCandidate, 0, len(cands))

	for _, c := range cands {
		if _, dup := seen[c.ID]; dup {
			counts.Duplicate++
			continue
		}
		seen[c.ID] = struct{}{}

		switch {
		case !f.Cutoff.IsZero() && !c.PublishedAt.IsZero() && c.PublishedAt.Before(f.Cutoff):
			counts.Age++
		case f.ExcludeShorts && classifyDuration(c, f.ShortsMax) == DurationShort:
			counts.Shorts++
		case f.State != nil && skipProcessed(f, c.ID):
			counts.Processed++
		case f.Watched != nil && isWatched(f.Watched, c.ID):
			counts.Watched++
		default:
			out = append(out, c)
		}
	}

	SortNewestFirst(out)
	if f.Cap > 0 && len(out) > f.Cap {
		counts.Capped = len(out) - f.Cap
		out = out[:f.Cap]
	}
	return out, counts
}

func isWatched(watched map[string]struct{}, id string) bool {
	_, ok := watched[id]
	return ok
}

// skipProcessed decides whether the stored record rules a video out.
func skipProcessed(f FilterSet, id string) bool {
	rec, ok := f.State.Lookup(id)
	if !ok {
		return false
	}
	switch rec.Outcome {
	case OutcomeSummarized, OutcomeSeeded:
		return true
	case OutcomeNoTranscript:
		return !f.RetryNoTranscript
	case OutcomeError:
		return f.MaxErrorAttempts > 0 && rec.Attempts >= f.MaxErrorAttempts
	}
	return false
}

// classifyDuration reports whether a candidate is a Short. Candidates found
// through a /shorts/ URL keep their class; unknown durations stay unknown.
func classifyDuration(c VideoCandidate, shortsMax time.Duration) DurationClass {
	if c.DurationClass == DurationShort {
		return DurationShort
	}
	if c.Duration <= 0 {
		return DurationUnknown
	}
	if shortsMax > 0 && c.Duration <= shortsMax {
		return DurationShort
	}
	return DurationNormal
}

// SortNewestFirst orders candidates by publish time, ties broken by ID.
func SortNewestFirst(cands []VideoCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].PublishedAt.Equal(cands[j].PublishedAt) {
			return cands[i].ID < cands[j].ID
		}
		return cands[i].PublishedAt.After(cands[j].PublishedAt)
	})
}
