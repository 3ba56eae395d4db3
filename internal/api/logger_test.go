package api

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"movievault/internal/logging"
)

func TestRequestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))
	t.Cleanup(func() { logging.SetLogger(prev) })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger())
	NewHandler(&mockSubmitter{}, "secret").RegisterRoutes(router)

	doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil)
	if buf.Len() != 0 {
		t.Fatalf("health checks should log at debug, got %s", buf.String())
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/events", map[string]any{"kind": "start"}, nil), http.StatusUnauthorized)
	line := buf.String()
	if !strings.Contains(line, `"level":"warn"`) || !strings.Contains(line, `"status":401`) || !strings.Contains(line, `"path":"/api/events"`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}
