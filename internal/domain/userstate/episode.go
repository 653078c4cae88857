// Package userstate содержит эпизоды аффективного состояния участника
// (фрустрация, замешательство), зафиксированные интерпретатором поведения.
package userstate

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind - тип эпизода.
type Kind string

const (
	// KindFrustration - серия быстрых неудачных попыток.
	KindFrustration Kind = "frustration"

	// KindConfusion - запрос помощи с признаками непонимания.
	KindConfusion Kind = "confusion"
)

// IsValid проверяет, что тип эпизода известен.
func (k Kind) IsValid() bool {
	return k == KindFrustration || k == KindConfusion
}

// String возвращает строковое представление типа.
func (k Kind) String() string {
	return string(k)
}

// ErrInvalidEpisode возвращается при попытке создать некорректный эпизод.
var ErrInvalidEpisode = errors.New("userstate: invalid episode")

// Episode - один зафиксированный эпизод состояния участника.
type Episode struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Kind          Kind      `json:"kind"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEpisode создаёт эпизод с проверкой полей.
func NewEpisode(id, participantID string, kind Kind, occurredAt time.Time) (*Episode, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(participantID) == "" {
		return nil, ErrInvalidEpisode
	}
	if !kind.IsValid() {
		return nil, ErrInvalidEpisode
	}
	return &Episode{
		ID:            id,
		ParticipantID: participantID,
		Kind:          kind,
		OccurredAt:    occurredAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит эпизоды.
type Repository interface {
	// Save сохраняет эпизод.
	Save(ctx context.Context, episode *Episode) error

	// CountSince возвращает число эпизодов данного типа у участника с момента since.
	CountSince(ctx context.Context, participantID string, kind Kind, since time.Time) (int, error)

	// DeleteOlderThan удаляет эпизоды старше cutoff и возвращает их количество.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher рассылает эпизоды подписчикам (сервисам интервенций).
type Publisher interface {
	Publish(ctx context.Context, episode *Episode) error
}
