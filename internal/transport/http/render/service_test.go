package render

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"storyview-server-go/internal/domain/blur"
	"storyview-server-go/internal/domain/placeholder"
	"storyview-server-go/internal/platform/config"
	platformtesting "storyview-server-go/internal/platform/testing"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	worker := blur.NewWorker(nil)
	t.Cleanup(worker.Stop)
	gen := placeholder.NewGenerator(config.PlaceholderConfig{MaxCanvas: 256}, worker, nil)

	cfg := config.DefaultConfig()
	logger := platformtesting.SetupTestLogger(t)
	svc, err := NewService(cfg, gen, logger)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	engine := gin.New()
	if err := svc.Register(nil, engine.Group("/api")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return engine
}

func postJSON(t *testing.T, engine *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestPlaceholderEndpointReturnsPNG(t *testing.T) {
	engine := newTestEngine(t)

	w := postJSON(t, engine, "/api/render/placeholder", map[string]any{
		"descriptor": "ff0000 00ff00 0000ff 000000",
		"width":      32,
		"height":     32,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("body is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Fatalf("unexpected dimensions: %v", img.Bounds())
	}
}

func TestPlaceholderEndpointRejectsNonSquarePalette(t *testing.T) {
	engine := newTestEngine(t)

	w := postJSON(t, engine, "/api/render/placeholder", map[string]any{
		"descriptor": "ff0000 00ff00 0000ff",
		"width":      32,
		"height":     32,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestPlaceholderEndpointRejectsBadBody(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/api/render/placeholder", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSelectEndpointScenarios(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantURL  string
	}{
		{
			name: "smallest candidate covering the target",
			body: map[string]any{
				"declaration":    "a.jpg 320w, b.jpg 640w",
				"viewport_width": 300,
				"dpr":            1,
			},
			wantCode: http.StatusOK,
			wantURL:  "a.jpg",
		},
		{
			name: "largest candidate when none covers",
			body: map[string]any{
				"declaration":    "a.jpg 320w, b.jpg 640w",
				"viewport_width": 400,
				"dpr":            2,
			},
			wantCode: http.StatusOK,
			wantURL:  "b.jpg",
		},
		{
			name:     "empty declaration rejected",
			body:     map[string]any{"declaration": " , "},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "negative dpr rejected",
			body: map[string]any{
				"declaration": "a.jpg 320w",
				"dpr":         -1,
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, engine, "/api/srcset/select", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantURL == "" {
				return
			}
			var resp struct {
				Data struct {
					URL string `json:"url"`
				} `json:"data"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Data.URL != tt.wantURL {
				t.Fatalf("url = %q, want %q", resp.Data.URL, tt.wantURL)
			}
		})
	}
}
