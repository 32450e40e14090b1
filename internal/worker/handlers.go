package worker

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/coachctx/internal/assembler"
	"github.com/thebtf/coachctx/internal/budget"
	"github.com/thebtf/coachctx/internal/classify"
	"github.com/thebtf/coachctx/pkg/models"
)

// Request limits.
const (
	// MaxQueryChars caps the query text accepted by the API.
	MaxQueryChars = 4000

	// MaxTotalBudget caps a caller supplied token budget.
	MaxTotalBudget = 128000
)

// ContextRequest is the request body for context assembly.
type ContextRequest struct {
	AthleteID   string `json:"athlete_id"`
	Query       string `json:"query"`
	QueryType   string `json:"query_type,omitempty"`
	Level       string `json:"level,omitempty"`
	TotalBudget int    `json:"total_budget,omitempty"`
}

// ContextResponse is the response for context assembly.
type ContextResponse struct {
	Context   *models.EnhancedContext `json:"context"`
	Stats     models.ContextStats     `json:"stats"`
	RequestID string                  `json:"request_id,omitempty"`
}

// ClassifyRequest is the request body for query classification.
type ClassifyRequest struct {
	Text string `json:"text"`
}

// ClassifyResponse is the response for query classification.
type ClassifyResponse struct {
	QueryType   models.QueryType `json:"query_type"`
	WorkoutType string           `json:"workout_type,omitempty"`
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth answers immediately, even while initializing.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.GetInitError(); err != nil {
		status = "error"
	}

	resp := map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}
	if h := s.getHealth(); h != nil {
		resp["database"] = h.HealthCheck(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReady returns 200 only when fully initialized.
func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		if err := s.GetInitError(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "service initializing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requireReady returns 503 until the engine is available.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				writeError(w, http.StatusInternalServerError, "service initialization failed: "+err.Error())
				return
			}
			writeError(w, http.StatusServiceUnavailable, "service initializing")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleContext assembles the enhanced context for one query.
func (s *Service) handleContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	areq, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ec := s.getEngine().Assemble(r.Context(), areq)
	writeJSON(w, http.StatusOK, ContextResponse{
		Context:   ec,
		Stats:     assembler.GetContextStats(ec),
		RequestID: GetRequestID(r.Context()),
	})
}

// validate checks the request and converts it for the engine.
func (req ContextRequest) validate() (assembler.Request, error) {
	if err := ValidateAthleteID(req.AthleteID); err != nil {
		return assembler.Request{}, err
	}
	query := strings.TrimSpace(req.Query)
	switch {
	case query == "":
		return assembler.Request{}, errBadRequest("query is required")
	case len(query) > MaxQueryChars:
		return assembler.Request{}, errBadRequest("query too long")
	case req.TotalBudget < 0 || req.TotalBudget > MaxTotalBudget:
		return assembler.Request{}, errBadRequest("total_budget out of range")
	}

	var qt models.QueryType
	if req.QueryType != "" {
		parsed, err := models.ParseQueryType(req.QueryType)
		if err != nil {
			return assembler.Request{}, err
		}
		qt = parsed
	}

	return assembler.Request{
		AthleteID:   req.AthleteID,
		Query:       query,
		QueryType:   qt,
		Level:       strings.ToLower(strings.TrimSpace(req.Level)),
		TotalBudget: req.TotalBudget,
	}, nil
}

type errBadRequest string

func (e errBadRequest) Error() string { return string(e) }

// handleClassify classifies free text without assembling a context.
func (s *Service) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	writeJSON(w, http.StatusOK, ClassifyResponse{
		QueryType:   classify.Classify(req.Text),
		WorkoutType: classify.GuessWorkoutType(req.Text),
	})
}

// handleWeights returns the weight table in use.
func (s *Service) handleWeights(w http.ResponseWriter, _ *http.Request) {
	if e := s.getEngine(); e != nil {
		writeJSON(w, http.StatusOK, e.Table())
		return
	}
	writeJSON(w, http.StatusOK, budget.DefaultTable)
}

// handleStats returns rate limiter statistics.
func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"ready":      s.ready.Load(),
		"rate_limit": s.limiter.Stats(),
	})
}

// ValidateAthleteID checks that id is a UUID.
func ValidateAthleteID(id string) error {
	if id == "" {
		return errBadRequest("athlete_id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return errBadRequest("athlete_id must be a UUID")
	}
	return nil
}
