package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/dashclone/internal/domain"
)

func newTestHandler(t *testing.T) (*http.ServeMux, *taskStub) {
	t.Helper()
	p, tasks := checkFixture()
	svc, _, _ := newTestService(p, tasks)
	return NewHandler(svc).Routes(), tasks
}

func TestStatusEndpoint(t *testing.T) {
	mux, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Running || status.CurrentStatus != "Idle" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStopWithoutRunReturnsConflict(t *testing.T) {
	mux, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestUpsertTaskValidation(t *testing.T) {
	mux, tasks := newTestHandler(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"database_type":"message"}`)
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/tasks", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing template id must be rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	body = strings.NewReader(`{"database_type":"message","template_dashboard_id":77,"enabled":true}`)
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/tasks", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var saved domain.TaskConfig
	if err := json.NewDecoder(rec.Body).Decode(&saved); err != nil {
		t.Fatalf("failed to decode config: %v", err)
	}
	if saved.TemplateDashboardID != 77 {
		t.Fatalf("unexpected saved config: %+v", saved)
	}
	if len(tasks.configs) != 2 {
		t.Fatalf("expected 2 configs, got %+v", tasks.configs)
	}
}

func TestDeleteTask(t *testing.T) {
	mux, tasks := newTestHandler(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tasks/content", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(tasks.configs) != 0 {
		t.Fatalf("config must be removed, got %+v", tasks.configs)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tasks/content", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestScanDatabasesEndpoint(t *testing.T) {
	mux, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/databases", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var infos []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&infos); err != nil {
		t.Fatalf("failed to decode scan: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 databases, got %d", len(infos))
	}
}
