// Package userstate records and broadcasts frustration and confusion episodes.
package userstate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/internal/domain/userstate"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// Service implements behavior.UserStateNotifier. Each notification is saved
// to the episode repository and then published; both are attempted.
type Service struct {
	repo      userstate.Repository
	publisher userstate.Publisher // optional
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewService creates a notifier. publisher may be nil when no broadcast
// channel is configured.
func NewService(repo userstate.Repository, publisher userstate.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log.With(logger.Component("userstate")),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NotifyFrustration records a frustration episode.
func (s *Service) NotifyFrustration(ctx context.Context, participantID string) error {
	return s.record(ctx, participantID, userstate.KindFrustration)
}

// NotifyConfusion records a confusion episode.
func (s *Service) NotifyConfusion(ctx context.Context, participantID string) error {
	return s.record(ctx, participantID, userstate.KindConfusion)
}

// EpisodesToday counts the participant's episodes of the kind since midnight UTC.
func (s *Service) EpisodesToday(ctx context.Context, participantID string, kind userstate.Kind) (int, error) {
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.CountSince(ctx, participantID, kind, midnight)
}

func (s *Service) record(ctx context.Context, participantID string, kind userstate.Kind) error {
	episode, err := userstate.NewEpisode(s.newID(), participantID, kind, s.now().UTC())
	if err != nil {
		return shared.WrapError("userstate", "Notify", shared.ErrInvalidInput, "invalid episode", err)
	}

	var errs []error
	if err := s.repo.Save(ctx, episode); err != nil {
		errs = append(errs, err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, episode); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return shared.WrapError("userstate", "Notify", shared.ErrNotifier,
			"failed to deliver "+kind.String()+" episode", err)
	}

	s.log.Info("episode recorded",
		logger.ParticipantID(participantID),
		logger.String("kind", kind.String()),
		logger.String("episode_id", episode.ID),
	)
	return nil
}
