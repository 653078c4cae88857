// Package knowledge applies Bayesian Knowledge Tracing updates on behalf of
// the behavior interpreter.
package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/knowledge"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// Service keeps per-topic mastery estimates. It implements
// behavior.KnowledgeModelUpdater.
type Service struct {
	repo   knowledge.Repository
	params knowledge.Params
	log    *logger.Logger
	now    func() time.Time
}

// NewService creates a knowledge service. Invalid params fall back to the
// defaults.
func NewService(repo knowledge.Repository, params knowledge.Params, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if err := params.Validate(); err != nil {
		log.Warn("invalid BKT params, using defaults", logger.Err(err))
		params = knowledge.DefaultParams()
	}
	return &Service{
		repo:   repo,
		params: params,
		log:    log.With(logger.Component("knowledge")),
		now:    time.Now,
	}
}

// Update applies one graded outcome to the participant's topic estimate.
func (s *Service) Update(ctx context.Context, participantID, topicID string, passed bool) error {
	var updated *knowledge.State

	err := s.repo.WithStateLock(ctx, participantID, topicID, func(st *knowledge.State) (*knowledge.State, error) {
		if st == nil {
			fresh, err := knowledge.NewState(participantID, topicID, s.params)
			if err != nil {
				return nil, shared.WrapError("knowledge", "Update", shared.ErrInvalidInput, "cannot create state", err)
			}
			st = fresh
		}
		st.Apply(s.params, passed, s.now().UTC())
		updated = st
		return st, nil
	})
	if err != nil {
		return err
	}

	s.log.Debug("knowledge state updated",
		logger.ParticipantID(participantID),
		logger.TopicID(topicID),
		logger.Bool("passed", passed),
		logger.Float64("p_known", updated.PKnown),
		logger.Int("attempts", updated.Attempts),
	)
	return nil
}

// States lists the participant's estimates ordered by topic.
func (s *Service) States(ctx context.Context, participantID string) ([]*knowledge.State, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, knowledge.ErrEmptyParticipant
	}
	return s.repo.ListByParticipant(ctx, participantID)
}
