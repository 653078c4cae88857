package behavior

import "time"

// Submission is one graded answer in a participant's history.
type Submission struct {
	Timestamp time.Time `json:"timestamp"`
	Passed    bool      `json:"passed"`
}

// UserProfile is the rolling state of one participant as last read from the
// profile store. Submissions are ordered by timestamp, oldest first.
//
// A profile is a read-only snapshot: neither the cache nor the detectors
// modify it. New history only appears after the store is read again.
type UserProfile struct {
	ParticipantID string       `json:"participant_id"`
	Submissions   []Submission `json:"submissions"`
	FetchedAt     time.Time    `json:"fetched_at"`
}

// EmptyProfile returns the profile of a participant with no recorded history.
func EmptyProfile(participantID string, fetchedAt time.Time) *UserProfile {
	return &UserProfile{
		ParticipantID: participantID,
		Submissions:   []Submission{},
		FetchedAt:     fetchedAt,
	}
}

// SubmissionCount returns the number of submissions in the snapshot.
func (p *UserProfile) SubmissionCount() int {
	if p == nil {
		return 0
	}
	return len(p.Submissions)
}
