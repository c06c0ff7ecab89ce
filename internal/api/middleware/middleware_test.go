package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("echoes configured origin", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://clinic.example.com"})(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
		req.Header.Set("Origin", "https://clinic.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "https://clinic.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("omits header for unknown origin", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://clinic.example.com"})(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("answers preflight without calling next", func(t *testing.T) {
		called := false
		handler := CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodOptions, "/api/providers/D1/queue", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestObservabilityAndLogging_CaptureStatusAndRoute(t *testing.T) {
	mux := http.NewServeMux()
	var pattern string
	mux.HandleFunc("GET /api/queue-entries/{id}", func(w http.ResponseWriter, r *http.Request) {
		pattern = r.Pattern
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusOK) // superfluous, ignored
	})

	handler := ObservabilityMiddleware(nil)(LoggingMiddleware(mux))

	req := httptest.NewRequest(http.MethodGet, "/api/queue-entries/e1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "GET /api/queue-entries/{id}", pattern)
}

func TestResponseWriter_RecordsFirstStatusAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, err := rw.Write([]byte("data: x\n\n"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusInternalServerError)
	rw.Flush()

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.True(t, rec.Flushed)
}
