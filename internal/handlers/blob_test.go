package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/bleepstore/blobd/internal/auth"
	"github.com/bleepstore/blobd/internal/blob"
	"github.com/bleepstore/blobd/internal/metadata"
	"github.com/bleepstore/blobd/internal/storage"
)

// newTestRouter wires a BlobHandler over an in-memory store and the local
// filesystem backend.
func newTestRouter(t *testing.T, maxBody int64) http.Handler {
	t.Helper()
	local, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	svc, err := blob.NewService(metadata.NewMemoryStore(), map[storage.Tag]storage.Backend{storage.TagLocal: local}, storage.TagLocal)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("blobd test", "0.0.0"))
	NewBlobHandler(svc, maxBody).Register(api)
	return router
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetBlob(t *testing.T) {
	h := newTestRouter(t, 1<<20)

	rec := do(t, h, http.MethodPost, "/api/v1/blobs", `{"id":"doc-1","data":"aGVsbG8gd29ybGQ="}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created CreateBlobBody
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID != "doc-1" || created.Size != 11 || created.Message != "Blob stored successfully" || created.Backend != storage.TagLocal {
		t.Errorf("created = %+v", created)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/blobs/doc-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got GetBlobBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Data != "aGVsbG8gd29ybGQ=" || got.Size != 11 || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("got = %+v", got)
	}
}

func TestCreateBlobErrors(t *testing.T) {
	h := newTestRouter(t, 1<<20)
	if rec := do(t, h, http.MethodPost, "/api/v1/blobs", `{"id":"taken","data":"eA=="}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", rec.Code)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate", `{"id":"taken","data":"eQ=="}`, http.StatusConflict},
		{"bad base64", `{"id":"b","data":"not-base64!!"}`, http.StatusBadRequest},
		{"traversal", `{"id":"../../etc/passwd","data":"eA=="}`, http.StatusBadRequest},
		{"empty id", `{"id":"","data":"eA=="}`, http.StatusUnprocessableEntity},
		{"missing data", `{"id":"c"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/blobs", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGetMissingBlob(t *testing.T) {
	h := newTestRouter(t, 1<<20)
	rec := do(t, h, http.MethodGet, "/api/v1/blobs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var problem huma.ErrorModel
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatal(err)
	}
	if problem.Detail != "Blob not found" {
		t.Errorf("detail = %q", problem.Detail)
	}
}

func TestCreateBlobBodyLimit(t *testing.T) {
	h := newTestRouter(t, 64)
	body := `{"id":"big","data":"` + strings.Repeat("QUFB", 64) + `"}`
	rec := do(t, h, http.MethodPost, "/api/v1/blobs", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestCallerFrom(t *testing.T) {
	if got := callerFrom(context.Background()); got != blob.Anonymous {
		t.Errorf("callerFrom(empty) = %q", got)
	}
	ctx := auth.ContextWithSubject(context.Background(), "alice")
	if got := callerFrom(ctx); got != "alice" {
		t.Errorf("callerFrom = %q", got)
	}
}
