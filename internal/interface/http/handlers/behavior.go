package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/alem-hub/behavior-interpreter/internal/application/command"
	"github.com/alem-hub/behavior-interpreter/internal/domain/knowledge"
	"github.com/alem-hub/behavior-interpreter/internal/domain/shared"
	"github.com/alem-hub/behavior-interpreter/internal/interface/wire"
	"github.com/alem-hub/behavior-interpreter/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEHAVIOR LOG
// ══════════════════════════════════════════════════════════════════════════════

// IngestHandler runs one decoded event.
type IngestHandler interface {
	Handle(ctx context.Context, cmd command.IngestEventCommand) (*command.IngestEventResult, error)
}

// AcceptedResponse is the 202 body of POST /api/v1/behavior/log.
type AcceptedResponse struct {
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	EventID    string          `json:"event_id"`
	Duplicate  bool            `json:"duplicate,omitempty"`
	Signals    SignalsResponse `json:"signals"`
	ReceivedAt time.Time       `json:"received_at"`
}

// SignalsResponse reports what the interpreter concluded.
type SignalsResponse struct {
	Frustrated   bool `json:"frustrated"`
	Confused     bool `json:"confused"`
	ModelUpdated bool `json:"model_updated"`
	Ignored      bool `json:"ignored"`
}

// BehaviorHandler serves the event log endpoint.
type BehaviorHandler struct {
	ingest IngestHandler
}

// NewBehaviorHandler creates a new BehaviorHandler.
func NewBehaviorHandler(ingest IngestHandler) *BehaviorHandler {
	return &BehaviorHandler{ingest: ingest}
}

// Log decodes one event envelope and runs it through the interpreter.
//
//	202 accepted (also for unknown event types and duplicates)
//	400 malformed event
//	413 body too large
//	502 notifier or knowledge model failure
//	503 profile store unavailable
func (h *BehaviorHandler) Log(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "Could not read request body")
		return
	}

	decoded, err := wire.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_event", err.Error())
		return
	}

	res, err := h.ingest.Handle(r.Context(), command.IngestEventCommand{
		EventID:    decoded.EventID,
		Event:      decoded.Event,
		RawPayload: decoded.EventData,
		Source:     "http",
	})
	if err != nil {
		switch {
		case shared.IsMalformed(err):
			writeError(w, http.StatusBadRequest, "malformed_event", err.Error())
		case shared.IsStoreUnavailable(err):
			log.Warn("profile store unavailable", logger.Err(err))
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Participant history is temporarily unavailable")
		case shared.IsCollaboratorFailure(err):
			log.Error("collaborator failure", logger.Err(err))
			writeError(w, http.StatusBadGateway, "collaborator_failure", "Event interpreted but not every action succeeded", errorList(err)...)
		default:
			log.Error("event ingest failed", logger.Err(err))
			writeError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		Status:    "accepted",
		Message:   "Event processing started",
		EventID:   res.EventID,
		Duplicate: res.Duplicate,
		Signals: SignalsResponse{
			Frustrated:   res.Outcome.Frustrated,
			Confused:     res.Outcome.Confused,
			ModelUpdated: res.Outcome.ModelUpdated,
			Ignored:      res.Outcome.Ignored,
		},
		ReceivedAt: res.ReceivedAt,
	})
}

// errorList flattens an errors.Join tree into messages.
func errorList(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, errorList(e)...)
		}
		return out
	}
	return []string{err.Error()}
}

// ══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE
// ══════════════════════════════════════════════════════════════════════════════

// KnowledgeReader lists a participant's knowledge estimates.
type KnowledgeReader interface {
	States(ctx context.Context, participantID string) ([]*knowledge.State, error)
}

// TopicKnowledge is one topic in the knowledge response.
type TopicKnowledge struct {
	TopicID      string    `json:"topic_id"`
	PKnown       float64   `json:"p_known"`
	Attempts     int       `json:"attempts"`
	CorrectCount int       `json:"correct_count"`
	Accuracy     float64   `json:"accuracy"`
	Mastered     bool      `json:"mastered"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// KnowledgeResponse is the body of GET /api/v1/participants/{id}/knowledge.
type KnowledgeResponse struct {
	ParticipantID string           `json:"participant_id"`
	Topics        []TopicKnowledge `json:"topics"`
}

// KnowledgeHandler serves knowledge estimates.
type KnowledgeHandler struct {
	reader KnowledgeReader
}

// NewKnowledgeHandler creates a new KnowledgeHandler.
func NewKnowledgeHandler(reader KnowledgeReader) *KnowledgeHandler {
	return &KnowledgeHandler{reader: reader}
}

// Get lists the participant's topics ordered by topic id.
func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	participantID := mux.Vars(r)["id"]

	states, err := h.reader.States(r.Context(), participantID)
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyParticipant) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		logger.FromContext(r.Context()).Error("failed to list knowledge", logger.ParticipantID(participantID), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		return
	}

	resp := KnowledgeResponse{ParticipantID: participantID, Topics: make([]TopicKnowledge, 0, len(states))}
	for _, s := range states {
		resp.Topics = append(resp.Topics, TopicKnowledge{
			TopicID:      s.TopicID,
			PKnown:       s.PKnown,
			Attempts:     s.Attempts,
			CorrectCount: s.CorrectCount,
			Accuracy:     s.Accuracy(),
			Mastered:     s.IsMastered(),
			UpdatedAt:    s.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
