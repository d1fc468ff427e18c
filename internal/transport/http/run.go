package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"groupquiz-service/internal/app"
	"groupquiz-service/internal/domain"
)

// runRoutes mounts the per-user quiz-run operations under a session.
func (a *API) runRoutes(r chi.Router) {
	r.Post("/run", a.startRun)
	r.Get("/run", a.runView)
	r.Post("/run/answer", a.selectAnswer)
	r.Post("/run/advance", a.advanceQuestion)
	r.Post("/run/navigate", a.navigateQuestion)
	r.Post("/run/submit-set", a.submitSet)
	r.Post("/run/next-set", a.nextSet)
	r.Post("/run/restart", a.restartRun)
}

type startRunRequest struct {
	AllowSkip       *bool `json:"allowSkip,omitempty"`
	SetTimeLimitMin *int  `json:"setTimeLimitMinutes,omitempty"`
}

func (a *API) startRun(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req startRunRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := a.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	settings := a.defaults
	if req.AllowSkip != nil {
		settings.AllowSkip = *req.AllowSkip
	}
	if req.SetTimeLimitMin != nil {
		settings.SetTimeLimit = time.Duration(*req.SetTimeLimitMin) * time.Minute
	}
	run, err := a.runs.StartRun(r.Context(), session, userID, settings)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

func (a *API) runView(w http.ResponseWriter, r *http.Request) {
	run, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

type answerRequest struct {
	QuestionIndex int    `json:"questionIndex"`
	Letter        string `json:"letter"`
}

func (a *API) selectAnswer(w http.ResponseWriter, r *http.Request) {
	run, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := run.SelectAnswer(r.Context(), req.QuestionIndex, req.Letter); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

func (a *API) advanceQuestion(w http.ResponseWriter, r *http.Request) {
	run, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	if err := run.AdvanceQuestion(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

type navigateRequest struct {
	QuestionIndex int `json:"questionIndex"`
}

func (a *API) navigateQuestion(w http.ResponseWriter, r *http.Request) {
	run, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := run.NavigateTo(req.QuestionIndex); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

func (a *API) submitSet(w http.ResponseWriter, r *http.Request) {
	run, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	if err := run.SubmitSet(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

func (a *API) nextSet(w http.ResponseWriter, r *http.Request) {
	run, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	if err := run.AdvanceToNextSet(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

func (a *API) restartRun(w http.ResponseWriter, r *http.Request) {
	run, ok := a.requireRun(w, r)
	if !ok {
		return
	}
	if err := run.Restart(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.View())
}

func (a *API) requireRun(w http.ResponseWriter, r *http.Request) (*app.Run, bool) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	run, ok := a.runs.Run(chi.URLParam(r, "sessionID"), userID)
	if !ok {
		a.writeDomainError(w, domain.ErrRunNotFound)
		return nil, false
	}
	return run, true
}
