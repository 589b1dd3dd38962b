package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abgdnv/shopassist/internal/assistant"
	"github.com/abgdnv/shopassist/internal/config"
	"github.com/abgdnv/shopassist/internal/snapshot"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAsker struct{}

func (echoAsker) Ask(_ context.Context, req assistant.Request) string {
	return req.RequestedBy + ": " + req.Prompt
}

type staticVerifier struct{}

func (staticVerifier) Verify(_ context.Context, token string) (jwt.Token, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return jwt.NewBuilder().Subject("operator-1").Build()
}

func newDeps(verifier *staticVerifier) *Dependencies {
	deps := &Dependencies{
		Assistant:   echoAsker{},
		Batches:     snapshot.NewInMemoryStore(),
		MetricsPath: "/metrics",
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("batch_rows_processed_total 0\n"))
		}),
		Logger: slog.New(slog.DiscardHandler),
	}
	if verifier != nil {
		deps.Verifier = verifier
	}
	return deps
}

func TestSetupHttpHandler(t *testing.T) {
	testCases := []struct {
		name           string
		verifier       *staticVerifier
		method         string
		path           string
		body           string
		token          string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "health without auth",
			verifier:       &staticVerifier{},
			method:         http.MethodGet,
			path:           "/healthz",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "metrics",
			method:         http.MethodGet,
			path:           "/metrics",
			expectedStatus: http.StatusOK,
			expectedBody:   "batch_rows_processed_total 0\n",
		},
		{
			name:           "ask without auth configured",
			method:         http.MethodPost,
			path:           "/api/v1/assistant/ask",
			body:           `{"request":"hello"}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"answer":": hello"}`,
		},
		{
			name:           "ask missing token",
			verifier:       &staticVerifier{},
			method:         http.MethodPost,
			path:           "/api/v1/assistant/ask",
			body:           `{"request":"hello"}`,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":"Authorization header is required"}`,
		},
		{
			name:           "ask invalid token",
			verifier:       &staticVerifier{},
			method:         http.MethodPost,
			path:           "/api/v1/assistant/ask",
			body:           `{"request":"hello"}`,
			token:          "bad",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":"Invalid token"}`,
		},
		{
			name:           "ask with token",
			verifier:       &staticVerifier{},
			method:         http.MethodPost,
			path:           "/api/v1/assistant/ask",
			body:           `{"request":"hello"}`,
			token:          "good",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"answer":"operator-1: hello"}`,
		},
		{
			name:           "batches require token",
			verifier:       &staticVerifier{},
			method:         http.MethodGet,
			path:           "/api/v1/batches",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":"Authorization header is required"}`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			handler := SetupHttpHandler(newDeps(tc.verifier))
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()

			// when
			handler.ServeHTTP(rec, req)

			// then
			assert.Equal(t, tc.expectedStatus, rec.Code)
			if strings.HasPrefix(tc.expectedBody, "{") {
				assert.JSONEq(t, tc.expectedBody, rec.Body.String())
			} else {
				assert.Equal(t, tc.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestSetupHttpServer(t *testing.T) {
	// given
	cfg := &config.Config{}
	cfg.HTTPServer.Port = 8085
	cfg.HTTPServer.MaxHeaderBytes = 4096

	// when
	srv := SetupHttpServer(newDeps(nil), cfg)

	// then
	require.NotNil(t, srv.Handler)
	assert.Equal(t, ":8085", srv.Addr)
	assert.Equal(t, 4096, srv.MaxHeaderBytes)
}
