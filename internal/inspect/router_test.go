package inspect_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/checkpoint"
	"github.com/hashgraph/hedera-services-sub037/internal/inspect"
)

func setupRouter(t *testing.T, cfg inspect.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir, _ := writeJournal(t)
	logger := zap.NewNop()
	return inspect.NewRouter(ctx, cfg,
		inspect.NewJournalHandler(dir, false, logger),
		inspect.NewCheckpointHandler(checkpoint.NewMemory(), logger),
		logger)
}

func TestRouter_Healthz(t *testing.T) {
	router := setupRouter(t, inspect.Config{})

	w, resp := get(t, router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("expected X-Frame-Options DENY, got %q", got)
	}
}

func TestRouter_MountsHandlers(t *testing.T) {
	router := setupRouter(t, inspect.Config{})

	for _, path := range []string{"/api/v1/journal", "/api/v1/journal/verify", "/api/v1/checkpoints"} {
		w, _ := get(t, router, path)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := setupRouter(t, inspect.Config{})
	get(t, router, "/api/v1/journal/verify")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "eventrecover_http_requests_total") {
		t.Error("expected request counter in /metrics output")
	}
}

func TestRouter_RateLimit(t *testing.T) {
	router := setupRouter(t, inspect.Config{RateLimitRPS: 1, RateLimitBurst: 2})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", codes[2])
	}
}

func TestRouter_CORS(t *testing.T) {
	router := setupRouter(t, inspect.Config{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected allowed origin header, got %q", got)
	}
}
