package worker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/coachctx/internal/assembler"
	"github.com/thebtf/coachctx/internal/budget"
	"github.com/thebtf/coachctx/internal/config"
	"github.com/thebtf/coachctx/pkg/models"
)

const testAthleteID = "7f1c9a52-3a4e-4c55-9d1e-2b8f0c6d4e11"

type stubEngine struct {
	mu   sync.Mutex
	last assembler.Request
}

func (e *stubEngine) Assemble(_ context.Context, req assembler.Request) *models.EnhancedContext {
	e.mu.Lock()
	e.last = req
	e.mu.Unlock()
	return assembler.Merge(models.QueryDailyAdvice,
		models.UserLayer{Text: "user", TokenCount: 1, FatigueScore: 5},
		models.CoachLayer{Text: "coach", WorkoutsIncluded: []string{"Tempo"}, TokenCount: 2},
		models.BookLayer{Text: "book", Sources: []models.BookSource{{BookTitle: "B"}}, TokenCount: 1},
	)
}

func (e *stubEngine) Table() budget.Table { return budget.DefaultTable }

func testService(t *testing.T, mutate func(*config.Config)) (*Service, *stubEngine) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	svc := newService("test-version", cfg)
	engine := &stubEngine{}
	svc.engine = engine
	svc.ready.Store(true)
	t.Cleanup(svc.cancel)
	return svc, engine
}

func do(t *testing.T, svc *Service, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	svc, _ := testService(t, nil)
	rr := do(t, svc, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp["status"])
	assert.Equal(t, "test-version", resp["version"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestHandleContext(t *testing.T) {
	svc, engine := testService(t, nil)
	rr := do(t, svc, http.MethodPost, "/api/context", ContextRequest{
		AthleteID:   testAthleteID,
		Query:       "  What should I do today?  ",
		QueryType:   "daily_advice",
		Level:       " Advanced ",
		TotalBudget: 6000,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, assembler.Request{
		AthleteID:   testAthleteID,
		Query:       "What should I do today?",
		QueryType:   models.QueryDailyAdvice,
		Level:       "advanced",
		TotalBudget: 6000,
	}, engine.last)

	var resp ContextResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Context)
	assert.Contains(t, resp.Context.CombinedPrompt, assembler.BookHeader)
	assert.Equal(t, 4, resp.Stats.TotalTokens)
	assert.Equal(t, 1, resp.Stats.SourceCount)
	assert.Equal(t, 1, resp.Stats.WorkoutsIncludedCount)
	assert.Equal(t, rr.Header().Get("X-Request-ID"), resp.RequestID)
}

func TestHandleContext_QueryTypeOptional(t *testing.T) {
	svc, engine := testService(t, nil)
	rr := do(t, svc, http.MethodPost, "/api/context", ContextRequest{AthleteID: testAthleteID, Query: "hello"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, engine.last.QueryType)
	assert.Zero(t, engine.last.TotalBudget)
}

func TestHandleContext_Validation(t *testing.T) {
	tests := []struct {
		name string
		body ContextRequest
		want string
	}{
		{"missing athlete", ContextRequest{Query: "q"}, "athlete_id is required"},
		{"bad athlete", ContextRequest{AthleteID: "../etc", Query: "q"}, "athlete_id must be a UUID"},
		{"missing query", ContextRequest{AthleteID: testAthleteID, Query: "   "}, "query is required"},
		{"bad type", ContextRequest{AthleteID: testAthleteID, Query: "q", QueryType: "gossip"}, "unknown query type"},
		{"negative budget", ContextRequest{AthleteID: testAthleteID, Query: "q", TotalBudget: -1}, "total_budget"},
		{"huge budget", ContextRequest{AthleteID: testAthleteID, Query: "q", TotalBudget: MaxTotalBudget + 1}, "total_budget"},
	}
	svc, _ := testService(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, svc, http.MethodPost, "/api/context", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestHandleContext_InvalidJSON(t *testing.T) {
	svc, _ := testService(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/context", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleContext_NotReady(t *testing.T) {
	svc, _ := testService(t, nil)
	svc.ready.Store(false)

	rr := do(t, svc, http.MethodPost, "/api/context", ContextRequest{AthleteID: testAthleteID, Query: "q"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	svc.initError = errors.New("database: connection refused")
	rr = do(t, svc, http.MethodPost, "/api/context", ContextRequest{AthleteID: testAthleteID, Query: "q"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = do(t, svc, http.MethodGet, "/health", nil)
	assert.Contains(t, rr.Body.String(), `"status":"error"`)
}

func TestHandleClassify(t *testing.T) {
	svc, _ := testService(t, nil)
	rr := do(t, svc, http.MethodPost, "/api/classify", ClassifyRequest{Text: "Create a 12-week plan with tempo work today"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.QueryDailyAdvice, resp.QueryType)
	assert.Equal(t, "tempo", resp.WorkoutType)

	rr = do(t, svc, http.MethodPost, "/api/classify", ClassifyRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleWeights(t *testing.T) {
	svc, _ := testService(t, nil)
	rr := do(t, svc, http.MethodGet, "/api/weights", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var table budget.Table
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &table))
	assert.Equal(t, budget.DefaultTable, table)
}

func TestTokenAuthOnAPIRoutes(t *testing.T) {
	svc, _ := testService(t, func(c *config.Config) { c.APIToken = "s3cret" })

	rr := do(t, svc, http.MethodGet, "/api/weights", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/weights", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, svc, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "health stays open")
}

func TestRateLimitOnAPIRoutes(t *testing.T) {
	svc, _ := testService(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, svc, http.MethodGet, "/api/weights", nil).Code)
	}
	rr := do(t, svc, http.MethodGet, "/api/weights", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}
