package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"groupquiz-service/internal/app"
	"groupquiz-service/internal/domain"
	"groupquiz-service/internal/phase"
	"groupquiz-service/internal/token"
)

// API is the REST surface under /api/groups/{groupID}/...
type API struct {
	sessions    *app.SessionService
	runs        *app.RunService
	guard       *app.ResultsGuard
	progress    app.ProgressStore
	leaderboard app.LeaderboardStore
	verifier    AuthVerifier
	ws          *WSHandler
	defaults    domain.QuizSettings
	logger      *slog.Logger
}

func NewAPI(sessions *app.SessionService, runs *app.RunService, guard *app.ResultsGuard,
	progress app.ProgressStore, leaderboard app.LeaderboardStore,
	verifier AuthVerifier, ws *WSHandler, defaults domain.QuizSettings, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		sessions:    sessions,
		runs:        runs,
		guard:       guard,
		progress:    progress,
		leaderboard: leaderboard,
		verifier:    verifier,
		ws:          ws,
		defaults:    defaults,
		logger:      logger,
	}
}

// Router builds the chi router for the whole HTTP surface.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(BearerAuth(a.verifier))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", a.ws.ServeWS)

	r.Route("/api/groups/{groupID}/sessions", func(r chi.Router) {
		r.Post("/", a.createSession)
		r.Get("/", a.listSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", a.getSession)
			r.Delete("/", a.deleteSession)
			r.Post("/start", a.startSession)
			r.Post("/complete", a.completeSession)
			r.Post("/cancel", a.cancelSession)
			r.Get("/phase", a.resolvePhase)
			r.Get("/progress", a.getProgress)
			r.Delete("/progress", a.resetProgress)
			r.Get("/results", a.checkResults)
			r.Get("/leaderboard", a.getLeaderboard)
			a.runRoutes(r)
		})
	})
	return r
}

type createSessionRequest struct {
	Title         string            `json:"title"`
	ScheduledAt   *time.Time        `json:"scheduledAt,omitempty"`
	EncodedTokens string            `json:"encodedTokens,omitempty"`
	Tokens        map[string]string `json:"tokens,omitempty"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokens := req.Tokens
	if req.EncodedTokens != "" {
		decoded, err := token.DecodeMap(req.EncodedTokens)
		if err != nil {
			// Corrupted segment means no tokens; fall back to the explicit map.
			a.logger.Warn("discarding corrupted token segment", "error", err)
		}
		if len(decoded) > 0 {
			tokens = decoded
		}
	}

	session, err := a.sessions.CreateSession(r.Context(), chi.URLParam(r, "groupID"), userID, req.Title, req.ScheduledAt, tokens)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.sessions.ListByGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := a.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	if err := a.sessions.Delete(r.Context(), chi.URLParam(r, "sessionID"), userID); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.sessions.Start)
}

func (a *API) completeSession(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.sessions.Complete)
}

func (a *API) cancelSession(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.sessions.Cancel)
}

func (a *API) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, sessionID, userID string) (domain.Session, error)) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	session, err := fn(r.Context(), chi.URLParam(r, "sessionID"), userID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// resolvePhase derives the canonical phase for the caller and reconciles it
// against an optional current route segment.
func (a *API) resolvePhase(w http.ResponseWriter, r *http.Request) {
	session, err := a.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	state := phase.AppState(r.URL.Query().Get("state"))
	derived := phase.Derive(state, session.Status, session.ScheduledAt, time.Now())

	questionsReady := len(session.QuestionTokens) > 0
	decision := phase.Reconcile(r.URL.Query().Get("segment"), derived, questionsReady)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"phase":    derived,
		"redirect": decision.Redirect,
		"target":   decision.Target,
	})
}

func (a *API) getProgress(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	record, err := a.progress.Get(r.Context(), chi.URLParam(r, "sessionID"), userID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) resetProgress(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := a.guard.DiscardAndRestart(r.Context(), sessionID, userID); err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.runs.Drop(sessionID, userID)
	w.WriteHeader(http.StatusNoContent)
}

// checkResults runs the existing-results guard. It never fails closed: an
// unauthenticated caller or a backend failure reports proceed=true.
func (a *API) checkResults(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	decision := a.guard.CheckBeforeStart(r.Context(), chi.URLParam(r, "sessionID"), userID)
	writeJSON(w, http.StatusOK, decision)
}

func (a *API) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := a.leaderboard.List(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrProgressNotFound),
		errors.Is(err, domain.ErrQuestionSetNotFound),
		errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotManager):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAttemptCompleted),
		errors.Is(err, domain.ErrSetIncomplete),
		errors.Is(err, domain.ErrRunCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrQuestionOutOfRange),
		errors.Is(err, domain.ErrSkipDisabled),
		errors.Is(err, domain.ErrMalformedUpdate),
		errors.Is(err, domain.ErrUnknownStep):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
