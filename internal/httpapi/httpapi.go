// Package httpapi serves the backend's HTTP surface: health and metrics
// endpoints, push-style triggers for the recording pipeline and the daily
// reminder job, and the assistant and purchase verification calls made by
// the mobile client.
//
// Authentication happens upstream. Endpoints acting on behalf of a user read
// the authenticated user ID from the X-User-ID header set by the gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/vibejournal/internal/assistant"
	"github.com/MrWong99/vibejournal/internal/entitlement"
	"github.com/MrWong99/vibejournal/internal/health"
	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/internal/reminder"
	"github.com/MrWong99/vibejournal/internal/vibe"
	"github.com/MrWong99/vibejournal/pkg/mood"
	"github.com/MrWong99/vibejournal/pkg/store"
)

// UserHeader carries the authenticated user ID.
const UserHeader = observe.UserHeader

const maxBodyBytes = 1 << 20

// Deps are the components served over HTTP. Nil components leave their
// routes unregistered.
type Deps struct {
	Health       *health.Handler
	Metrics      http.Handler
	Runner       *vibe.Runner
	Job          *reminder.Job
	Assistant    *assistant.Assistant
	Entitlements *entitlement.Service
}

// Server routes requests to the components in [Deps].
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// New registers routes for every configured component.
func New(d Deps) *Server {
	s := &Server{deps: d, mux: http.NewServeMux()}
	if d.Health != nil {
		d.Health.Register(s.mux)
	}
	if d.Metrics != nil {
		s.mux.Handle("GET /metrics", d.Metrics)
	}
	if d.Runner != nil {
		s.mux.HandleFunc("POST /v1/events/recording-created", s.recordingCreated)
	}
	if d.Job != nil {
		s.mux.HandleFunc("POST /v1/jobs/daily-reminders", s.dailyReminders)
	}
	if d.Assistant != nil {
		s.mux.HandleFunc("POST /v1/assistant", s.requireUser(s.assistant))
	}
	if d.Entitlements != nil {
		s.mux.HandleFunc("POST /v1/purchases/verify", s.requireUser(s.verifyPurchase))
	}
	return s
}

// Handler returns the routed handler wrapped in request metrics and tracing.
func (s *Server) Handler(m *observe.Metrics) http.Handler {
	return observe.Middleware(m)(s.mux)
}

// recordingEvent is the recording snapshot carried by a created event. Field
// names follow the mobile client's documents.
type recordingEvent struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	AudioPath     string  `json:"audioPath"`
	Transcription *string `json:"transcription"`
	Mood          string  `json:"mood"`
}

type recordingResult struct {
	ID        string `json:"id"`
	Processed bool   `json:"processed"`
	Outcome   string `json:"outcome,omitempty"`
}

func (s *Server) recordingCreated(w http.ResponseWriter, r *http.Request) {
	var ev recordingEvent
	if !decode(w, r, &ev) {
		return
	}
	if strings.TrimSpace(ev.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	m := mood.Mood(ev.Mood)
	if m != "" && !m.IsValid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mood %q", ev.Mood))
		return
	}
	rec := store.Recording{
		ID:            ev.ID,
		UserID:        ev.UserID,
		AudioPath:     ev.AudioPath,
		Transcription: ev.Transcription,
		Mood:          m,
	}

	// The recording must reach a terminal state even if the caller gives up.
	outcome, ran, err := s.deps.Runner.Submit(context.WithoutCancel(r.Context()), rec)
	if err != nil {
		observe.Logger(r.Context()).Error("recording processing failed", "recording_id", rec.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store processing result")
		return
	}
	res := recordingResult{ID: rec.ID, Processed: ran}
	if ran {
		res.Outcome = outcome.String()
	}
	writeJSON(w, http.StatusOK, res)
}

type reminderResult struct {
	Status string          `json:"status"`
	Report reminder.Report `json:"report"`
}

func (s *Server) dailyReminders(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Job.Run(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reminderResult{Status: "ok", Report: rep})
	case errors.Is(err, reminder.ErrLeaseHeld):
		writeError(w, http.StatusConflict, "a reminder run is already in progress")
	case errors.Is(err, reminder.ErrNoRecipients):
		writeJSON(w, http.StatusOK, reminderResult{Status: "no_recipients"})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type assistantResponse struct {
	ResponseText string `json:"responseText"`
}

func (s *Server) assistant(w http.ResponseWriter, r *http.Request, _ string) {
	var req assistant.Request
	if !decode(w, r, &req) {
		return
	}
	text, err := s.deps.Assistant.Respond(r.Context(), req)
	switch {
	case errors.Is(err, assistant.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, "invalid action or missing text")
	case err != nil:
		observe.Logger(r.Context()).Error("assistant call failed", "action", req.Action, "err", err)
		writeError(w, http.StatusBadGateway, "failed to get a response from the assistant")
	default:
		writeJSON(w, http.StatusOK, assistantResponse{ResponseText: text})
	}
}

type purchaseRequest struct {
	PurchaseToken  string `json:"purchaseToken"`
	SubscriptionID string `json:"subscriptionId"`
}

type purchaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) verifyPurchase(w http.ResponseWriter, r *http.Request, userID string) {
	var req purchaseRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := s.deps.Entitlements.Verify(r.Context(), userID, req.SubscriptionID, req.PurchaseToken)
	switch {
	case errors.Is(err, entitlement.ErrMissingPurchase):
		writeError(w, http.StatusBadRequest, "missing purchase token or subscription ID")
	case err != nil:
		observe.Logger(r.Context()).Error("purchase verification failed", "user_id", userID, "err", err)
		writeError(w, http.StatusBadGateway, "an error occurred while verifying the purchase")
	case !ok:
		writeError(w, http.StatusForbidden, "purchase is not valid or has expired")
	default:
		writeJSON(w, http.StatusOK, purchaseResponse{Success: true, Message: "Premium access granted!"})
	}
}

// requireUser rejects requests without an authenticated user.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r, user)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
