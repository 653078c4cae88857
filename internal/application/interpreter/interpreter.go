// Package interpreter turns observed learner events into frustration and
// confusion signals and dispatches them to the user state notifier and the
// knowledge model.
package interpreter

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/behavior-interpreter/internal/domain/behavior"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// Signal names reported to the Recorder.
const (
	SignalFrustration = "frustration"
	SignalConfusion   = "confusion"
)

// Result labels reported to the Recorder.
const (
	ResultOK        = "ok"
	ResultIgnored   = "ignored"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

// Recorder receives interpretation metrics. Implemented by the metrics
// package; NopRecorder discards everything.
type Recorder interface {
	EventInterpreted(eventType, result string, took time.Duration)
	SignalFired(signal string)
	CacheLookup(hit bool)
}

// NopRecorder is a Recorder that does nothing.
type NopRecorder struct{}

func (NopRecorder) EventInterpreted(string, string, time.Duration) {}
func (NopRecorder) SignalFired(string)                             {}
func (NopRecorder) CacheLookup(bool)                               {}

// Outcome describes what Interpret decided and which side effects succeeded.
type Outcome struct {
	EventType    behavior.EventType `json:"event_type"`
	Frustrated   bool               `json:"frustrated"`
	Confused     bool               `json:"confused"`
	Notified     bool               `json:"notified"`
	ModelUpdated bool               `json:"model_updated"`
	Ignored      bool               `json:"ignored"`
}

// Interpreter is the per-event orchestrator. It holds no per-event state, so
// one instance serves any number of concurrent callers.
type Interpreter struct {
	profiles *ProfileCache
	updater  behavior.KnowledgeModelUpdater
	notifier behavior.UserStateNotifier
	log      *logger.Logger
	rec      Recorder
}

// New creates an Interpreter. A nil log or rec is replaced by a no-op.
func New(
	profiles *ProfileCache,
	updater behavior.KnowledgeModelUpdater,
	notifier behavior.UserStateNotifier,
	log *logger.Logger,
	rec Recorder,
) *Interpreter {
	if log == nil {
		log = logger.Nop()
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Interpreter{
		profiles: profiles,
		updater:  updater,
		notifier: notifier,
		log:      log.With(logger.Component("interpreter")),
		rec:      rec,
	}
}

// Interpret evaluates one event.
//
// Malformed events return an error matching shared.ErrMalformedEvent and
// trigger nothing. Unknown event types are logged and ignored. Collaborator
// failures are returned joined, one error per failed call; a failed model
// update does not undo a delivered notification. Calling Interpret twice with
// the same event fires its side effects twice.
func (i *Interpreter) Interpret(ctx context.Context, ev behavior.Event) (Outcome, error) {
	start := time.Now()
	out := Outcome{EventType: ev.Type()}
	log := i.log.With(logger.ParticipantID(ev.ParticipantID), logger.EventType(ev.Type().String()))

	if err := ev.Validate(); err != nil {
		log.Warn("rejected malformed event", logger.Err(err))
		i.rec.EventInterpreted(ev.Type().String(), ResultMalformed, time.Since(start))
		return out, err
	}

	if unknown, ok := ev.Payload.(behavior.UnknownEvent); ok {
		log.Warn("ignoring event of unknown type", logger.String("type", unknown.Type.String()))
		out.Ignored = true
		i.rec.EventInterpreted(ev.Type().String(), ResultIgnored, time.Since(start))
		return out, nil
	}

	profile, err := i.profiles.Get(ctx, ev.ParticipantID)
	if err != nil {
		log.Error("failed to resolve profile", logger.Err(err))
		i.rec.EventInterpreted(ev.Type().String(), ResultFailed, time.Since(start))
		return out, err
	}

	switch p := ev.Payload.(type) {
	case behavior.TestSubmission:
		err = i.interpretSubmission(ctx, log, ev, p, profile, &out)
	case behavior.AIHelpRequest:
		err = i.interpretHelpRequest(ctx, log, ev, p, &out)
	}

	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	i.rec.EventInterpreted(ev.Type().String(), result, time.Since(start))
	return out, err
}

func (i *Interpreter) interpretSubmission(
	ctx context.Context,
	log *logger.Logger,
	ev behavior.Event,
	sub behavior.TestSubmission,
	profile *behavior.UserProfile,
	out *Outcome,
) error {
	report := behavior.EvaluateFrustration(profile.Submissions, ev.Timestamp)
	out.Frustrated = report.Frustrated

	log.Debug("evaluated frustration",
		logger.Int("window", report.WindowSize),
		logger.Float64("error_rate", report.ErrorRate),
		logger.Float64("avg_interval", report.AvgInterval),
		logger.Bool("frustrated", report.Frustrated),
	)

	if !report.Frustrated || sub.Passed {
		return nil
	}
	i.rec.SignalFired(SignalFrustration)
	log.Info("frustration detected")

	var errs []error

	if err := i.notifier.NotifyFrustration(ctx, ev.ParticipantID); err != nil {
		log.Error("failed to notify frustration", logger.Err(err))
		errs = append(errs, shared.WrapError("behavior", "NotifyFrustration", shared.ErrNotifier,
			"frustration notification failed", err))
	} else {
		out.Notified = true
	}

	if sub.HasTopic() {
		if err := i.updater.Update(ctx, ev.ParticipantID, sub.TopicID, false); err != nil {
			log.Error("failed to update knowledge model", logger.TopicID(sub.TopicID), logger.Err(err))
			errs = append(errs, shared.WrapError("behavior", "UpdateModel", shared.ErrModelUpdate,
				"knowledge model update failed for topic "+sub.TopicID, err))
		} else {
			out.ModelUpdated = true
		}
	}

	return errors.Join(errs...)
}

func (i *Interpreter) interpretHelpRequest(
	ctx context.Context,
	log *logger.Logger,
	ev behavior.Event,
	req behavior.AIHelpRequest,
	out *Outcome,
) error {
	if !behavior.DetectConfusion(req.Message) {
		return nil
	}
	out.Confused = true
	i.rec.SignalFired(SignalConfusion)
	log.Info("confusion detected")

	if err := i.notifier.NotifyConfusion(ctx, ev.ParticipantID); err != nil {
		log.Error("failed to notify confusion", logger.Err(err))
		return shared.WrapError("behavior", "NotifyConfusion", shared.ErrNotifier,
			"confusion notification failed", err)
	}
	out.Notified = true
	return nil
}
