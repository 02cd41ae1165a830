package storyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"storyview-server-go/internal/domain/share"
	"storyview-server-go/internal/domain/story"
	"storyview-server-go/internal/platform/config"
	platformtesting "storyview-server-go/internal/platform/testing"
)

func newTestService(t *testing.T) (*gin.Engine, *story.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := story.NewRegistry(nil, nil)
	shareSvc, err := share.NewService(config.ShareConfig{Secret: "test-secret", TTLHours: 1}, nil, nil)
	if err != nil {
		t.Fatalf("share.NewService: %v", err)
	}

	svc, err := NewService(Options{
		Config:   platformtesting.SetupTestConfig(t),
		Logger:   platformtesting.SetupTestLogger(t),
		Registry: registry,
		Share:    shareSvc,
		CacheStats: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"type": "memory"}, nil
		},
		WSCounts: func() (int, int) { return 2, 2 },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	engine := gin.New()
	if err := svc.Register(context.Background(), engine.Group("/api")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return engine, registry
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	engine, _ := newTestService(t)

	w := doJSON(t, engine, http.MethodPost, "/api/documents", map[string]string{"title": "Trip"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	created := decodeData(t, w)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created document has no id")
	}

	w = doJSON(t, engine, http.MethodGet, "/api/documents/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodGet, "/api/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodDelete, "/api/documents/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, engine, http.MethodGet, "/api/documents/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", w.Code)
	}
}

func TestElementAndDocumentNotFound(t *testing.T) {
	engine, _ := newTestService(t)

	w := doJSON(t, engine, http.MethodGet, "/api/documents/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("document status = %d, want 404", w.Code)
	}
	w = doJSON(t, engine, http.MethodGet, "/api/documents/missing/elements/el", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("element status = %d, want 404", w.Code)
	}
}

func TestShareFlowOverHTTP(t *testing.T) {
	engine, registry := newTestService(t)

	doc, err := registry.Create(context.Background(), "Shared")
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}

	w := doJSON(t, engine, http.MethodPost, "/api/share", map[string]string{"document_id": doc.ID()})
	if w.Code != http.StatusCreated {
		t.Fatalf("share create status = %d: %s", w.Code, w.Body.String())
	}
	link := decodeData(t, w)
	token, _ := link["token"].(string)
	if token == "" {
		t.Fatal("share link missing token")
	}

	w = doJSON(t, engine, http.MethodGet, "/api/share/"+token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("share resolve status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodGet, "/api/share/bogus-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token status = %d, want 401", w.Code)
	}

	w = doJSON(t, engine, http.MethodPost, "/api/share", map[string]string{"document_id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("share for missing document = %d, want 404", w.Code)
	}
}

func TestSystemStatus(t *testing.T) {
	engine, _ := newTestService(t)

	w := doJSON(t, engine, http.MethodGet, "/api/system", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("system status = %d", w.Code)
	}
	status := decodeData(t, w)
	for _, key := range []string{"uptime_s", "goroutines", "documents", "cache", "ws_clients"} {
		if _, ok := status[key]; !ok {
			t.Fatalf("system status missing %q: %v", key, status)
		}
	}
}
