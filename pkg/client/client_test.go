package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/coachctx/pkg/models"
)

func TestClient_Context(t *testing.T) {
	var got ContextRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/context", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ContextResponse{
			Context: &models.EnhancedContext{
				QueryType:      models.QueryDailyAdvice,
				CombinedPrompt: "## Athlete Data\n...",
				TotalTokens:    42,
			},
			Stats:     models.ContextStats{TotalTokens: 42},
			RequestID: "req-1",
		})
	}))
	defer server.Close()

	c := New(server.URL+"/", WithToken("secret"))
	resp, err := c.Context(context.Background(), ContextRequest{
		AthleteID: "5b3f5d2e-0c1a-4c55-9a51-1f7c8a2d9e10",
		Query:     "How should I run today?",
		QueryType: models.QueryDailyAdvice,
	})
	require.NoError(t, err)

	assert.Equal(t, "How should I run today?", got.Query)
	assert.Equal(t, models.QueryDailyAdvice, got.QueryType)
	require.NotNil(t, resp.Context)
	assert.Equal(t, 42, resp.Context.TotalTokens)
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestClient_Classify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/classify", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-Auth-Token"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "review my plan", body["text"])
		_ = json.NewEncoder(w).Encode(Classification{QueryType: models.QueryPlanReview})
	}))
	defer server.Close()

	got, err := New(server.URL).Classify(context.Background(), "review my plan")
	require.NoError(t, err)
	assert.Equal(t, models.QueryPlanReview, got.QueryType)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"service initializing"}`))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Context(context.Background(), ContextRequest{Query: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "service initializing", apiErr.Message)
	assert.True(t, IsUnavailable(err))
	assert.False(t, c.Ready(context.Background()))
}

func TestClient_ErrorWithoutJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New(server.URL).Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "worker returned 500", err.Error())
	assert.False(t, IsUnavailable(err))
}

func TestClient_HealthAndReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			_, _ = w.Write([]byte(`{"status":"ready","version":"v1.2.0","uptime":"3s"}`))
		case "/api/ready":
			_, _ = w.Write([]byte(`{"status":"ready"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := New(server.URL)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", h.Status)
	assert.Equal(t, "v1.2.0", h.Version)
	assert.True(t, c.Ready(context.Background()))
}

func TestFromEnv(t *testing.T) {
	t.Setenv("COACHCTX_WORKER_HOST", "")
	t.Setenv("COACHCTX_WORKER_PORT", "")
	t.Setenv("COACHCTX_API_TOKEN", "")
	assert.Equal(t, "http://127.0.0.1:37810", FromEnv().baseURL)

	t.Setenv("COACHCTX_WORKER_HOST", "coach.internal")
	t.Setenv("COACHCTX_WORKER_PORT", "9000")
	t.Setenv("COACHCTX_API_TOKEN", "tok")
	c := FromEnv()
	assert.Equal(t, "http://coach.internal:9000", c.baseURL)
	assert.Equal(t, "tok", c.token)

	t.Setenv("COACHCTX_WORKER_PORT", "nope")
	assert.Equal(t, "http://coach.internal:37810", FromEnv().baseURL)
}
