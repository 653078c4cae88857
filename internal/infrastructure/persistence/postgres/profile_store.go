package postgres

import (
	"context"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE STORE
// Builds participant profiles from the raw event log.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStoreConfig bounds how much history a profile carries.
type ProfileStoreConfig struct {
	// MaxSubmissions is the number of most recent submissions loaded.
	MaxSubmissions int

	// Lookback limits history to submissions that occurred within Lookback
	// of the participant's newest submission. Event time is the anchor, so a
	// replayed backlog keeps its recent history. Zero disables the limit.
	Lookback time.Duration
}

// DefaultProfileStoreConfig returns default history bounds.
func DefaultProfileStoreConfig() ProfileStoreConfig {
	return ProfileStoreConfig{
		MaxSubmissions: 200,
		Lookback:       24 * time.Hour,
	}
}

// ProfileStore implements behavior.ProfileStore.
type ProfileStore struct {
	conn *Connection
	cfg  ProfileStoreConfig
	now  func() time.Time
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(conn *Connection, cfg ProfileStoreConfig) *ProfileStore {
	if cfg.MaxSubmissions <= 0 {
		cfg.MaxSubmissions = DefaultProfileStoreConfig().MaxSubmissions
	}
	return &ProfileStore{conn: conn, cfg: cfg, now: time.Now}
}

// Fetch loads the participant's most recent submissions, oldest first.
// A participant with no recorded events at all is reported as
// shared.ErrProfileNotFound.
func (s *ProfileStore) Fetch(ctx context.Context, participantID string) (*behavior.UserProfile, error) {
	now := s.now().UTC()

	rows, err := s.conn.Query(ctx, `
		SELECT occurred_at, passed FROM (
			SELECT occurred_at,
			       received_at,
			       COALESCE((payload->>'passed')::boolean, false) AS passed
			FROM behavior_events
			WHERE participant_id = $1
			  AND event_type = $2
			  AND ($3::bigint = 0 OR occurred_at >= (
			      SELECT max(occurred_at) FROM behavior_events
			      WHERE participant_id = $1 AND event_type = $2
			  ) - $3::bigint * interval '1 microsecond')
			ORDER BY occurred_at DESC, received_at DESC
			LIMIT $4
		) recent
		ORDER BY occurred_at ASC, received_at ASC
	`, participantID, string(behavior.EventTypeTestSubmission), s.cfg.Lookback.Microseconds(), s.cfg.MaxSubmissions)
	if err != nil {
		return nil, storeUnavailable("query submissions", err)
	}
	defer rows.Close()

	profile := behavior.EmptyProfile(participantID, now)
	for rows.Next() {
		var sub behavior.Submission
		if err := rows.Scan(&sub.Timestamp, &sub.Passed); err != nil {
			return nil, storeUnavailable("scan submission", err)
		}
		profile.Submissions = append(profile.Submissions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storeUnavailable("read submissions", err)
	}

	if len(profile.Submissions) > 0 {
		return profile, nil
	}

	var known bool
	err = s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM behavior_events WHERE participant_id = $1)`,
		participantID,
	).Scan(&known)
	if err != nil {
		return nil, storeUnavailable("check participant", err)
	}
	if !known {
		return nil, shared.NewDomainError("behavior", "FetchProfile", shared.ErrProfileNotFound,
			"no events recorded for "+participantID)
	}
	return profile, nil
}

func storeUnavailable(step string, err error) error {
	return shared.WrapError("behavior", "FetchProfile", shared.ErrStoreUnavailable, step, err)
}
