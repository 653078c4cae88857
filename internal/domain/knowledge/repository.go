package knowledge

import (
	"context"
	"errors"
)

// Ошибки домена knowledge.
var (
	ErrEmptyParticipant = errors.New("knowledge: participant id is required")
	ErrEmptyTopic       = errors.New("knowledge: topic id is required")
)

// Repository определяет хранилище состояний BKT.
// Реализация находится в infrastructure/persistence/postgres.
type Repository interface {
	// WithStateLock загружает состояние темы под блокировкой строки и вызывает fn.
	// Если состояния нет, fn получает nil. Изменённое состояние, возвращённое
	// fn, сохраняется в той же транзакции.
	WithStateLock(ctx context.Context, participantID, topicID string, fn func(*State) (*State, error)) error

	// ListByParticipant возвращает все состояния участника, отсортированные по теме.
	ListByParticipant(ctx context.Context, participantID string) ([]*State, error)
}
