package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/userstate"
)

// EpisodeRepository implements userstate.Repository on user_state_episodes.
type EpisodeRepository struct {
	conn *Connection
}

// NewEpisodeRepository creates a new EpisodeRepository.
func NewEpisodeRepository(conn *Connection) *EpisodeRepository {
	return &EpisodeRepository{conn: conn}
}

// Save inserts an episode.
func (r *EpisodeRepository) Save(ctx context.Context, ep *userstate.Episode) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO user_state_episodes (id, participant_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, ep.ID, ep.ParticipantID, string(ep.Kind), ep.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert episode: %w", err)
	}
	return nil
}

// CountSince counts a participant's episodes of one kind since the given time.
func (r *EpisodeRepository) CountSince(ctx context.Context, participantID string, kind userstate.Kind, since time.Time) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `
		SELECT count(*) FROM user_state_episodes
		WHERE participant_id = $1 AND kind = $2 AND occurred_at >= $3
	`, participantID, string(kind), since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count episodes: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes episodes that occurred before cutoff.
func (r *EpisodeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM user_state_episodes WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old episodes: %w", err)
	}
	return tag.RowsAffected(), nil
}
