package internal

import "fmt"

// CandidateState is the position of one candidate in a run.
type CandidateState string

const (
	StatePending            CandidateState = "pending"
	StateTranscriptFetching CandidateState = "transcript_fetching"
	StateSummarizing        CandidateState = "summarizing"
	StateWritten            CandidateState = "written"
	StateNoTranscript       CandidateState = "no_transcript"
	StateBlocked            CandidateState = "blocked"
	StateError              CandidateState = "error"
	StateRecorded           CandidateState = "recorded"
	StateAborted            CandidateState = "aborted"
	StateListed             CandidateState = "listed"
)

var allowedTransitions = map[CandidateState]map[CandidateState]bool{
	StatePending: {
		StateTranscriptFetching: true,
		StateListed:             true, // dry run
	},
	StateTranscriptFetching: {
		StateSummarizing:  true,
		StateNoTranscript: true,
		StateBlocked:      true,
		StateError:        true,
		StateListed:       true, // dry run with transcripts shown
	},
	StateSummarizing: {
		StateWritten: true,
		StateError:   true,
	},
	StateWritten: {
		StateRecorded: true,
		StateError:    true,
	},
	StateNoTranscript: {
		StateRecorded: true,
	},
	StateError: {
		StateRecorded: true,
	},
	StateBlocked: {
		StateAborted: true,
	},
}

// IsTerminal reports whether no further transition is allowed.
func (s CandidateState) IsTerminal() bool {
	_, ok := allowedTransitions[s]
	return !ok
}

func CanTransition(from, to CandidateState) bool {
	return allowedTransitions[from][to]
}

// candidateTracker enforces the transition table for one candidate.
type candidateTracker struct {
	videoID string
	state   CandidateState
}

func newCandidateTracker(videoID string) *candidateTracker {
	return &candidateTracker{videoID: videoID, state: StatePending}
}

func (t *candidateTracker) to(next CandidateState) error {
	if !CanTransition(t.state, next) {
		return fmt.Errorf("invalid candidate transition: %q -> %q (video_id=%s)", t.state, next, t.videoID)
	}
	t.state = next
	return nil
}
