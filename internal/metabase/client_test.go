package metabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClient starts an in-memory Metabase that logs in with one fixed
// session token and dispatches everything else to handle.
func newTestClient(t *testing.T, handle http.HandlerFunc) (*Client, *int) {
	t.Helper()
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/session" {
			var creds map[string]string
			if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
				t.Fatalf("failed to decode credentials: %v", err)
			}
			if creds["username"] != "svc@example.com" || creds["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			logins++
			json.NewEncoder(w).Encode(map[string]string{"id": "session-token"})
			return
		}
		if r.Header.Get(sessionHeader) != "session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handle(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:  srv.URL + "/",
		Username: "svc@example.com",
		Password: "secret",
	})
	return client, &logins
}

func TestClientAuthenticatesLazilyAndOnce(t *testing.T) {
	client, logins := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/database":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
				{"id": 1, "name": "Acme Prod", "engine": "sqlserver"},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	if *logins != 0 {
		t.Fatalf("client must not log in before the first call")
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		databases, err := client.ListDatabases(ctx)
		if err != nil {
			t.Fatalf("ListDatabases returned error: %v", err)
		}
		if len(databases) != 1 || databases[0].Name != "Acme Prod" {
			t.Fatalf("unexpected databases: %v", databases)
		}
	}
	if *logins != 1 {
		t.Fatalf("expected a single login, got %d", *logins)
	}
}

func TestClientNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetDashboard(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected a RemoteError, got %T", err)
	}
	if re.Status != http.StatusNotFound || re.Retryable() {
		t.Fatalf("404 must not be retryable: %+v", re)
	}
}

func TestClientRetryableClassification(t *testing.T) {
	status := http.StatusInternalServerError
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	_, err := client.GetCard(context.Background(), 7)
	if !IsRetryable(err) {
		t.Fatalf("5xx must be retryable, got %v", err)
	}

	status = http.StatusBadRequest
	_, err = client.GetCard(context.Background(), 7)
	if IsRetryable(err) {
		t.Fatalf("4xx must not be retryable, got %v", err)
	}

	// Transport-level failure: nothing listens on the target port.
	dead := NewClient(Config{BaseURL: "http://127.0.0.1:1", Username: "u", Password: "p"})
	_, err = dead.ListCards(context.Background())
	if !IsRetryable(err) {
		t.Fatalf("transport failure must be retryable, got %v", err)
	}
}

func TestClientFindDatabaseByName(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"id": 1, "name": "Acme Prod"},
			{"id": 2, "name": "Globex Prod"},
		}})
	})

	db, err := client.FindDatabaseByName(context.Background(), "globex prod")
	if err != nil {
		t.Fatalf("FindDatabaseByName returned error: %v", err)
	}
	if db.ID != 2 {
		t.Fatalf("expected database 2, got %d", db.ID)
	}

	_, err = client.FindDatabaseByName(context.Background(), "Initech")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientCreateDashboardPayload(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/dashboard" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 55, "name": got["name"]})
	})

	collection := 9
	dash, err := client.CreateDashboard(context.Background(), "Acme Dashboard", "ops view", &collection)
	if err != nil {
		t.Fatalf("CreateDashboard returned error: %v", err)
	}
	if dash.ID != 55 {
		t.Fatalf("expected id 55, got %d", dash.ID)
	}
	if got["collection_id"] != float64(9) || got["description"] != "ops view" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestClientUpdateDashboardUsesPut(t *testing.T) {
	var method, path string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		fmt.Fprint(w, "{}")
	})

	err := client.UpdateDashboard(context.Background(), 12, map[string]any{"name": "renamed"})
	if err != nil {
		t.Fatalf("UpdateDashboard returned error: %v", err)
	}
	if method != http.MethodPut || path != "/api/dashboard/12" {
		t.Fatalf("expected PUT /api/dashboard/12, got %s %s", method, path)
	}
}
