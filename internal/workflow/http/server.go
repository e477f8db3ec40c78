package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/ratelimit"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/internal/workflow"
)

// API expõe o fluxo de criação de apostas para o adapter de chat
type API struct {
	Engine  *workflow.Engine
	Limiter *ratelimit.Limiter
	Log     *zap.Logger
}

// Router retorna o roteador HTTP com os endpoints do fluxo
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/sessions/{owner}/{context}/events", a.handleEvent) // entrada do usuário
	r.Get("/v1/ratelimit/stats", a.rateStats)                      // ?owner= para um capper
	return r
}

// eventRequest é o evento como enviado pelo adapter
type eventRequest struct {
	Type    string            `json:"type"` // start | select | submit | cancel
	Kind    string            `json:"kind,omitempty"`
	Replace bool              `json:"replace,omitempty"`
	Option  string            `json:"option,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type eventResponse struct {
	workflow.Result
	Error string `json:"error,omitempty"`
}

func (req eventRequest) toEvent() (workflow.Event, error) {
	switch strings.ToLower(req.Type) {
	case "start":
		ev := workflow.Start{Replace: req.Replace}
		if req.Kind != "" {
			k, err := wager.ParseKind(req.Kind)
			if err != nil {
				return nil, err
			}
			ev.Kind = k
		}
		return ev, nil
	case "select":
		return workflow.Select{Option: req.Option}, nil
	case "submit":
		return workflow.Submit{Fields: req.Fields}, nil
	case "cancel":
		return workflow.Cancel{}, nil
	}
	return nil, &wager.ValidationError{Field: "type", Reason: "unknown event type " + strconv.Quote(req.Type)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor mapeia a taxonomia de erros do fluxo para HTTP
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, wager.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wager.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, wager.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, wager.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, wager.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, wager.ErrPersistence):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *API) handleEvent(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	contextID := chi.URLParam(r, "context")

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	res, err := a.Engine.HandleInput(r.Context(), owner, contextID, ev)
	out := eventResponse{Result: res}
	if err != nil {
		out.Error = err.Error()
		var rl *wager.RateLimitedError
		if errors.As(err, &rl) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl.RetryAfter)))
		}
		if status := statusFor(err); status >= http.StatusInternalServerError && a.Log != nil {
			a.Log.Warn("workflow input failed", zap.String("owner", owner), zap.String("context", contextID), zap.Error(err))
		}
	}
	writeJSON(w, statusFor(err), out)
}

// retryAfterSeconds arredonda para cima: o cliente nunca volta antes da janela liberar
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (a *API) rateStats(w http.ResponseWriter, r *http.Request) {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		writeJSON(w, http.StatusOK, a.Limiter.OwnerStats(owner))
		return
	}
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid top"})
			return
		}
		top = n
	}
	writeJSON(w, http.StatusOK, a.Limiter.GlobalStats(top))
}
