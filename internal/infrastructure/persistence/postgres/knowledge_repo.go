package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/behavior-interpreter/internal/domain/knowledge"
)

// KnowledgeRepository implements knowledge.Repository on knowledge_states.
type KnowledgeRepository struct {
	conn *Connection
}

// NewKnowledgeRepository creates a new KnowledgeRepository.
func NewKnowledgeRepository(conn *Connection) *KnowledgeRepository {
	return &KnowledgeRepository{conn: conn}
}

// WithStateLock serializes updates of one participant/topic pair. The
// transaction-scoped advisory lock also covers the first insert, when there
// is no row to lock yet.
func (r *KnowledgeRepository) WithStateLock(
	ctx context.Context,
	participantID, topicID string,
	fn func(*knowledge.State) (*knowledge.State, error),
) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			participantID+"\x1f"+topicID,
		); err != nil {
			return fmt.Errorf("failed to lock knowledge state: %w", err)
		}

		current, err := scanState(tx.QueryRow(ctx, `
			SELECT participant_id, topic_id, p_known, attempts, correct_count, updated_at
			FROM knowledge_states
			WHERE participant_id = $1 AND topic_id = $2
			FOR UPDATE
		`, participantID, topicID))
		if err != nil && !IsNoRows(err) {
			return fmt.Errorf("failed to load knowledge state: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_states (participant_id, topic_id, p_known, attempts, correct_count, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (participant_id, topic_id) DO UPDATE SET
				p_known       = EXCLUDED.p_known,
				attempts      = EXCLUDED.attempts,
				correct_count = EXCLUDED.correct_count,
				updated_at    = EXCLUDED.updated_at
		`, next.ParticipantID, next.TopicID, next.PKnown, next.Attempts, next.CorrectCount, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save knowledge state: %w", err)
		}
		return nil
	})
}

// ListByParticipant returns all states of a participant ordered by topic.
func (r *KnowledgeRepository) ListByParticipant(ctx context.Context, participantID string) ([]*knowledge.State, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT participant_id, topic_id, p_known, attempts, correct_count, updated_at
		FROM knowledge_states
		WHERE participant_id = $1
		ORDER BY topic_id
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge states: %w", err)
	}
	defer rows.Close()

	states := make([]*knowledge.State, 0)
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func scanState(row pgx.Row) (*knowledge.State, error) {
	var st knowledge.State
	if err := row.Scan(&st.ParticipantID, &st.TopicID, &st.PKnown, &st.Attempts, &st.CorrectCount, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}
