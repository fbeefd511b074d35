package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddlewareRecordsStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/joinLobby", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP Request", entry.Message)
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, "/api/joinLobby", entry.Data["path"])
	assert.Equal(t, http.MethodPost, entry.Data["method"])
}

func TestLogWebSocketDisconnectIncludesError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	LogWebSocketConnect(logger, "1.2.3.4:5", "/ws/lobby/classic")
	assert.Equal(t, "WebSocket connected", hook.LastEntry().Message)

	LogWebSocketDisconnect(logger, "1.2.3.4:5", "/ws/lobby/classic", errors.New("eof"))
	entry := hook.LastEntry()
	assert.Equal(t, "WebSocket disconnected", entry.Message)
	assert.Contains(t, entry.Data, "error")
}
