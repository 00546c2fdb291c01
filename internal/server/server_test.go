package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/markbook-app/markbook/internal/export"
	"github.com/markbook-app/markbook/internal/store"
	"github.com/markbook-app/markbook/internal/syncer"
)

type stubRenderer struct {
	lastPayload *export.Payload
	err         error
}

func (r *stubRenderer) Render(_ context.Context, p *export.Payload) ([]byte, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	r.lastPayload = p
	return []byte("spreadsheet-bytes"), "application/vnd.ms-excel", nil
}

func testServer(t *testing.T, renderer Renderer, status StatusSource) (*Server, string) {
	t.Helper()
	st := store.New()
	c, err := st.CreateClassroom(store.ClassroomInput{Name: "7B"})
	if err != nil {
		t.Fatalf("CreateClassroom failed: %v", err)
	}
	if _, err := st.AddStudent(c.ID, store.StudentInput{Name: "Ada"}); err != nil {
		t.Fatalf("AddStudent failed: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return New(st, renderer, status, cfg), c.ID
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestExportClass(t *testing.T) {
	r := &stubRenderer{}
	s, cid := testServer(t, r, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/export",
		strings.NewReader(`{"type":"class","classroom_id":"`+cid+`"}`))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.ms-excel" {
		t.Errorf("content type = %q", got)
	}
	if rec.Body.String() != "spreadsheet-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if r.lastPayload == nil || r.lastPayload.Type != "class" || len(r.lastPayload.ClassRows) != 1 {
		t.Errorf("renderer got wrong payload: %+v", r.lastPayload)
	}
}

func TestExportUnknownClassroom(t *testing.T) {
	s, _ := testServer(t, &stubRenderer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/export",
		strings.NewReader(`{"type":"class","classroom_id":"nope"}`))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestExportBadType(t *testing.T) {
	s, cid := testServer(t, &stubRenderer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/export",
		strings.NewReader(`{"type":"pdf","classroom_id":"`+cid+`"}`))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExportRenderFailure(t *testing.T) {
	s, cid := testServer(t, &stubRenderer{err: errors.New("boom")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/export",
		strings.NewReader(`{"type":"class","classroom_id":"`+cid+`"}`))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestExportWithoutRenderer(t *testing.T) {
	s, cid := testServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/export",
		strings.NewReader(`{"type":"class","classroom_id":"`+cid+`"}`))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := store.New()
	ctrl := syncer.New(st, nopLocal{}, nil, "", quietSyncConfig())
	s, _ := testServer(t, nil, ctrl)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got syncer.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if got.State != syncer.StateIdle {
		t.Errorf("state = %s", got.State)
	}
}

func TestStatusWebSocket(t *testing.T) {
	st := store.New()
	ctrl := syncer.New(st, nopLocal{}, nil, "", quietSyncConfig())
	s, _ := testServer(t, nil, ctrl)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The connect-time snapshot comes first.
	var first syncer.Status
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if first.State != syncer.StateIdle {
		t.Errorf("initial state = %s", first.State)
	}

	// A transition reaches the subscriber.
	ctrl.MarkPending("edit while offline")
	var next syncer.Status
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if next.Pending != 1 {
		t.Errorf("pending = %d, want 1", next.Pending)
	}
}

const echoContentType = "Content-Type"

type nopLocal struct{}

func (nopLocal) Save(context.Context, *store.Snapshot) error { return nil }

func quietSyncConfig() *syncer.Config {
	cfg := syncer.DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}
