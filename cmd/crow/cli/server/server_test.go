package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/answer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubAnswerer struct {
	got []string
	fn  func(question string) (*answer.Answer, error)
}

func (s *stubAnswerer) Answer(_ context.Context, question string) (*answer.Answer, error) {
	s.got = append(s.got, question)
	return s.fn(question)
}

func okAnswerer() *stubAnswerer {
	return &stubAnswerer{fn: func(q string) (*answer.Answer, error) {
		return &answer.Answer{
			ID:       "01JTESTANSWER0000000000000",
			Question: q,
			Columns:  []string{"PREF_NAME"},
			SQL:      "SELECT pref_name FROM molecule_dictionary",
			Result:   "pref_name\nASPIRIN\n",
		}, nil
	}}
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	s := New(okAnswerer(), Options{Name: "DrugCrow"}, zap.NewNop())

	rec := do(t, s.Handler(), http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Hi there! I am DrugCrow!", body["message"])
}

func TestHealth(t *testing.T) {
	s := New(okAnswerer(), Options{Version: "v0.3.0"}, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "v0.3.0", body["version"])
}

func TestAnswer_Success(t *testing.T) {
	stub := okAnswerer()
	s := New(stub, Options{AuthToken: "sekret"}, zap.NewNop())

	rec := do(t, s.Handler(), http.MethodPost, "/answer", "sekret", `{"message":"List molecule names","name":"DrugCrow"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pref_name\nASPIRIN\n", resp.Data)
	assert.Equal(t, "SELECT pref_name FROM molecule_dictionary", resp.SQL)
	assert.Equal(t, []string{"PREF_NAME"}, resp.Columns)
	assert.Equal(t, "01JTESTANSWER0000000000000", resp.ID)
	assert.Equal(t, []string{"List molecule names"}, stub.got)
}

func TestAnswer_Unauthorized(t *testing.T) {
	tests := []struct {
		name       string
		serverTok  string
		requestTok string
	}{
		{name: "missing token", serverTok: "sekret"},
		{name: "wrong token", serverTok: "sekret", requestTok: "guess"},
		{name: "server without token", requestTok: "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := okAnswerer()
			s := New(stub, Options{AuthToken: tt.serverTok}, zap.NewNop())

			rec := do(t, s.Handler(), http.MethodPost, "/answer", tt.requestTok, `{"message":"hi"}`)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Empty(t, stub.got)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body.Error)
		})
	}
}

func TestAnswer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "empty question", err: answer.ErrEmptyQuestion, body: `{"message":""}`, wantCode: http.StatusBadRequest, wantErr: "invalid_question"},
		{name: "suspicious question", err: fmt.Errorf("%w (fingerprint s&sos)", answer.ErrSuspiciousQuestion), body: `{"message":"1' OR '1'='1"}`, wantCode: http.StatusBadRequest, wantErr: "invalid_question"},
		{name: "pipeline failure", err: errors.New("run query: connection refused"), body: `{"message":"List molecules"}`, wantCode: http.StatusInternalServerError, wantErr: "answer_failed"},
		{name: "bad json", body: `{"message":`, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnswerer{fn: func(string) (*answer.Answer, error) { return &answer.Answer{}, tt.err }}
			s := New(stub, Options{AuthToken: "sekret"}, zap.NewNop())

			rec := do(t, s.Handler(), http.MethodPost, "/answer", "sekret", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestRun_Shutdown(t *testing.T) {
	s := New(okAnswerer(), Options{AuthToken: "sekret"}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
