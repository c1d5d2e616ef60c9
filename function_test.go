package edgewriter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Set up test environment variables
	os.Setenv("ENGINE", "echo")
	os.Setenv("ENGINE_MODEL", "test-model")
	os.Setenv("CACHE_TYPE", "memory")
	os.Setenv("CACHE_DURATION_HOURS", "1")

	// Run tests
	code := m.Run()

	// Clean up
	os.Unsetenv("ENGINE")
	os.Unsetenv("ENGINE_MODEL")
	os.Unsetenv("CACHE_TYPE")
	os.Unsetenv("CACHE_DURATION_HOURS")

	os.Exit(code)
}

func TestHandleHealthCheck(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	Handle(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}

	if response["model"] != "test-model" {
		t.Errorf("Expected model 'test-model', got '%v'", response["model"])
	}
}

func TestHandleInvalidRoute(t *testing.T) {
	req := httptest.NewRequest("GET", "/invalid/route", nil)
	w := httptest.NewRecorder()

	Handle(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandleGenerate(t *testing.T) {
	body := bytes.NewBufferString(`{"task":"Paraphrase","text":"The meeting moved to Friday."}`)
	req := httptest.NewRequest("POST", "/generate", body)
	w := httptest.NewRecorder()

	Handle(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["text"] != "The meeting moved to Friday." {
		t.Errorf("Unexpected text: %v", response["text"])
	}
	if _, ok := response["tokens"]; !ok {
		t.Error("Expected 'tokens' field in response")
	}
}

func TestHandleCacheStats(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/cache/stats", nil)
	w := httptest.NewRecorder()

	Handle(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	// Check that it contains expected cache statistics fields
	if _, ok := response["total_entries"]; !ok {
		t.Error("Expected 'total_entries' field in cache stats")
	}

	if _, ok := response["hit_count"]; !ok {
		t.Error("Expected 'hit_count' field in cache stats")
	}

	if _, ok := response["miss_count"]; !ok {
		t.Error("Expected 'miss_count' field in cache stats")
	}
}

func TestHandleRetriesFailedSetup(t *testing.T) {
	mu.Lock()
	saved := router
	router = nil
	mu.Unlock()
	defer func() {
		mu.Lock()
		router = saved
		setupHandler = setup
		mu.Unlock()
	}()

	calls := 0
	setupHandler = func(ctx context.Context) (http.Handler, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("engine unreachable")
		}
		return setup(ctx)
	}

	w := httptest.NewRecorder()
	Handle(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d after failed setup, got %d", http.StatusServiceUnavailable, w.Code)
	}

	w = httptest.NewRecorder()
	Handle(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d once setup succeeds, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	Handle(w, httptest.NewRequest("GET", "/health", nil))
	if calls != 2 {
		t.Errorf("Expected setup to run twice, got %d", calls)
	}
}
