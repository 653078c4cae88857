// Package knowledge содержит модель байесовского отслеживания знаний (BKT)
// для пары участник/тема. Это чистый доменный слой без внешних зависимостей.
package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARAMETERS
// ══════════════════════════════════════════════════════════════════════════════

// Params - параметры классической модели Bayesian Knowledge Tracing.
type Params struct {
	// PInit - априорная вероятность, что тема уже освоена.
	PInit float64 `json:"p_init"`

	// PTransit - вероятность освоить тему после одной попытки.
	PTransit float64 `json:"p_transit"`

	// PSlip - вероятность ошибиться, зная тему.
	PSlip float64 `json:"p_slip"`

	// PGuess - вероятность угадать, не зная тему.
	PGuess float64 `json:"p_guess"`
}

// DefaultParams возвращает параметры по умолчанию.
func DefaultParams() Params {
	return Params{
		PInit:    0.2,
		PTransit: 0.15,
		PSlip:    0.1,
		PGuess:   0.2,
	}
}

// Validate проверяет, что все вероятности в [0, 1] и модель не вырождена.
func (p Params) Validate() error {
	check := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("knowledge: %s must be within [0, 1], got %v", name, v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"p_init", p.PInit},
		{"p_transit", p.PTransit},
		{"p_slip", p.PSlip},
		{"p_guess", p.PGuess},
	} {
		if err := check(c.name, c.v); err != nil {
			return err
		}
	}
	if p.PSlip+p.PGuess >= 1 {
		return fmt.Errorf("knowledge: p_slip + p_guess must be below 1, got %v", p.PSlip+p.PGuess)
	}
	return nil
}

// Update вычисляет новую вероятность освоения темы после одного ответа.
//
// Сначала апостериорная вероятность по наблюдению (правильно/неправильно),
// затем переход: P(L) = post + (1 - post) * PTransit.
func (p Params) Update(prior float64, correct bool) float64 {
	prior = clamp(prior)

	var posterior float64
	if correct {
		num := prior * (1 - p.PSlip)
		den := num + (1-prior)*p.PGuess
		posterior = safeDiv(num, den, prior)
	} else {
		num := prior * p.PSlip
		den := num + (1-prior)*(1-p.PGuess)
		posterior = safeDiv(num, den, prior)
	}

	return clamp(posterior + (1-posterior)*p.PTransit)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// MasteredThreshold - вероятность, начиная с которой тема считается освоенной.
const MasteredThreshold = 0.95

// State - текущая оценка знания темы участником.
type State struct {
	ParticipantID string    `json:"participant_id"`
	TopicID       string    `json:"topic_id"`
	PKnown        float64   `json:"p_known"`
	Attempts      int       `json:"attempts"`
	CorrectCount  int       `json:"correct_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewState создаёт состояние для темы, которую участник ещё не решал.
func NewState(participantID, topicID string, params Params) (*State, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, ErrEmptyParticipant
	}
	if strings.TrimSpace(topicID) == "" {
		return nil, ErrEmptyTopic
	}
	return &State{
		ParticipantID: participantID,
		TopicID:       topicID,
		PKnown:        clamp(params.PInit),
	}, nil
}

// Apply применяет один ответ к состоянию.
func (s *State) Apply(params Params, correct bool, at time.Time) {
	s.PKnown = params.Update(s.PKnown, correct)
	s.Attempts++
	if correct {
		s.CorrectCount++
	}
	s.UpdatedAt = at
}

// Accuracy возвращает долю правильных ответов.
func (s *State) Accuracy() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(s.Attempts)
}

// IsMastered проверяет, освоена ли тема.
func (s *State) IsMastered() bool {
	return s.PKnown >= MasteredThreshold
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func safeDiv(num, den, fallback float64) float64 {
	if den <= 0 {
		return fallback
	}
	return num / den
}
