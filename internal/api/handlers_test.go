package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/docuchat/console/internal/brain"
	"github.com/docuchat/console/internal/store"
)

type stubConfigStore struct{}

func (stubConfigStore) ActiveAgentConfig(ctx context.Context, agentType, appID, orgID string) (*store.AgentConfigRow, error) {
	return nil, nil
}

type stubContextStore struct{}

func (stubContextStore) ResolveConversationContext(ctx context.Context, q store.ContextQuery) (*store.ContextRow, error) {
	return &store.ContextRow{ConversationID: "conv-1"}, nil
}

type stubGenerator struct {
	response string
}

func (g stubGenerator) Generate(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return g.response, nil
}

func newTestServer(t *testing.T, llmResponse, agentURL string) *Server {
	t.Helper()
	engine := brain.NewEngine(
		stubConfigStore{},
		stubContextStore{},
		brain.NewAnalyzer(stubGenerator{response: llmResponse}),
		brain.NewRouter(agentURL, nil),
	)
	return NewServer(0, 100, engine)
}

func postQuery(srv *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/query", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

const conversationalResponse = `{"intent": "conversational", "requires_search": false}`

func TestHandleQuery_MissingQuery(t *testing.T) {
	srv := newTestServer(t, conversationalResponse, "http://unused")

	rec := postQuery(srv, `{"user_id": "u-1", "query": "   "}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "query is required"}`, rec.Body.String())
}

func TestHandleQuery_MalformedBody(t *testing.T) {
	srv := newTestServer(t, conversationalResponse, "http://unused")

	rec := postQuery(srv, `{"query": `, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "malformed request body"}`, rec.Body.String())
}

func TestHandleQuery_MissingUserID(t *testing.T) {
	srv := newTestServer(t, conversationalResponse, "http://unused")

	rec := postQuery(srv, `{"query": "Bonjour"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "user_id is required"}`, rec.Body.String())
}

func TestHandleQuery_UserIDFromTokenSubject(t *testing.T) {
	srv := newTestServer(t, conversationalResponse, "http://unused")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-from-token",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	rec := postQuery(srv, `{"query": "Bonjour"}`, map[string]string{
		"Authorization": "Bearer " + token,
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["reply"])
	assert.Equal(t, "conv-1", body["conversation_id"])
}

func TestHandleQuery_ConversationalBuffered(t *testing.T) {
	srv := newTestServer(t, conversationalResponse, "http://unused")

	rec := postQuery(srv, `{"query": "Bonjour", "user_id": "u-1"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["reply"])
	assert.Contains(t, body, "analysis")
}

func TestHandleQuery_DelegatedBuffered(t *testing.T) {
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer caller-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"answer": "24 mois", "conversation_id": "conv-1"}`))
	}))
	defer agent.Close()

	srv := newTestServer(t, `{"intent": "factual", "requires_search": true}`, agent.URL)

	rec := postQuery(srv, `{"query": "quelle est la durée ?", "user_id": "u-1"}`, map[string]string{
		"Authorization": "Bearer caller-token",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "24 mois", body["answer"])
	assert.Contains(t, body, "analysis")
}

func TestHandleQuery_DownstreamErrorStatusPropagates(t *testing.T) {
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "generation failed"}`))
	}))
	defer agent.Close()

	srv := newTestServer(t, `{"requires_search": true}`, agent.URL)

	rec := postQuery(srv, `{"query": "durée ?", "user_id": "u-1"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "generation failed"}`, rec.Body.String())
}

func TestHandleQuery_StreamingConversational(t *testing.T) {
	srv := newTestServer(t, conversationalResponse, "http://unused")

	rec := postQuery(srv, `{"query": "Bonjour", "user_id": "u-1", "stream": true}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	receivedIdx := strings.Index(body, `"step":"received"`)
	analyzingIdx := strings.Index(body, `"step":"analyzing"`)
	messageIdx := strings.Index(body, "event: message")
	doneIdx := strings.Index(body, "event: done")
	require.True(t, receivedIdx >= 0 && analyzingIdx >= 0 && messageIdx >= 0 && doneIdx >= 0, body)
	assert.Less(t, receivedIdx, analyzingIdx)
	assert.Less(t, analyzingIdx, messageIdx)
	assert.Less(t, messageIdx, doneIdx)
}

func TestHandleQuery_StreamingProxiesDownstreamBytes(t *testing.T) {
	downstream := "event: message\ndata: {\"chunk\": \"Le marché dure\"}\n\nevent: done\ndata: {}\n\n"
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(downstream))
	}))
	defer agent.Close()

	srv := newTestServer(t, `{"requires_search": true}`, agent.URL)

	rec := postQuery(srv, `{"query": "durée ?", "user_id": "u-1", "stream": true}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(rec.Body.String(), downstream), "downstream frames pass through untouched")
}

func TestHandleQuery_StreamingErrorGoesInBand(t *testing.T) {
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "agent down"}`))
	}))
	defer agent.Close()

	srv := newTestServer(t, `{"requires_search": true}`, agent.URL)

	rec := postQuery(srv, `{"query": "durée ?", "user_id": "u-1", "stream": true}`, nil)

	// The transport already committed 200; the failure is an in-band frame.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: error")
	assert.Contains(t, rec.Body.String(), "agent down")
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, conversationalResponse, "http://unused")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, rec.Body.String())
}

func TestWriteEngineError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			"validation error",
			&brain.ValidationError{Field: "query", Reason: "is required"},
			http.StatusBadRequest,
			`{"error": "query is required"}`,
		},
		{
			"downstream error keeps its status",
			&brain.DownstreamError{Status: http.StatusServiceUnavailable, Message: "agent down"},
			http.StatusServiceUnavailable,
			`{"error": "agent down"}`,
		},
		{
			"downstream error with non-HTTP status becomes 502",
			&brain.DownstreamError{Status: 0, Message: "dial failed"},
			http.StatusBadGateway,
			`{"error": "dial failed"}`,
		},
		{
			"context error hides detail",
			&brain.ContextError{Err: errors.New("rpc unreachable")},
			http.StatusInternalServerError,
			`{"error": "failed to load conversation context"}`,
		},
		{
			"unknown error",
			errors.New("boom"),
			http.StatusInternalServerError,
			`{"error": "internal error"}`,
		},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, writeEngineError(c, tt.err))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestSubjectFromToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-42",
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	assert.Equal(t, "u-42", subjectFromToken(token))
	assert.Equal(t, "", subjectFromToken("not-a-jwt"))
	assert.Equal(t, "", subjectFromToken(""))
}
