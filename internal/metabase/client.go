package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/dashclone/internal/domain"
)

const sessionHeader = "X-Metabase-Session"

// Config holds the connection settings for one Metabase instance.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// DefaultConfig returns connection defaults; credentials come from config.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:3000",
		Timeout: 60 * time.Second,
	}
}

// Client talks to the Metabase HTTP API. It authenticates lazily and keeps
// the session token for subsequent calls.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu      sync.Mutex
	session string
}

// NewClient creates a client for the given instance.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}
}

// Authenticate logs in and stores the session token.
func (c *Client) Authenticate(ctx context.Context) error {
	payload := map[string]string{"username": c.username, "password": c.password}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.roundTrip(ctx, http.MethodPost, "/api/session", payload, &resp, false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.mu.Lock()
	c.session = resp.ID
	c.mu.Unlock()
	log.Printf("[METABASE] authenticated with %s", c.baseURL)
	return nil
}

func (c *Client) sessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.sessionToken() == "" {
		if err := c.Authenticate(ctx); err != nil {
			return err
		}
	}
	return c.roundTrip(ctx, method, path, body, out, true)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any, withSession bool) error {
	op := fmt.Sprintf("%s %s", method, path)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withSession {
		req.Header.Set(sessionHeader, c.sessionToken())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		inner := fmt.Errorf("%s", strings.TrimSpace(string(data)))
		if resp.StatusCode == http.StatusNotFound {
			inner = ErrNotFound
		}
		return &RemoteError{Op: op, Status: resp.StatusCode, Err: inner}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// ListDatabases returns all data sources.
func (c *Client) ListDatabases(ctx context.Context) ([]domain.Database, error) {
	var resp struct {
		Data []domain.Database `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/database", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FindDatabaseByName returns the database whose name matches
// case-insensitively, or ErrNotFound.
func (c *Client) FindDatabaseByName(ctx context.Context, name string) (*domain.Database, error) {
	databases, err := c.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	for i := range databases {
		if strings.EqualFold(databases[i].Name, name) {
			return &databases[i], nil
		}
	}
	return nil, fmt.Errorf("database %q: %w", name, ErrNotFound)
}

// GetDatabaseMetadata fetches all tables and fields of one database.
func (c *Client) GetDatabaseMetadata(ctx context.Context, databaseID int) (*domain.DatabaseMetadata, error) {
	var meta domain.DatabaseMetadata
	path := fmt.Sprintf("/api/database/%d/metadata", databaseID)
	if err := c.do(ctx, http.MethodGet, path, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetDashboard fetches a dashboard with its cards, tabs and parameters.
func (c *Client) GetDashboard(ctx context.Context, id int) (*domain.Dashboard, error) {
	var dash domain.Dashboard
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/dashboard/%d", id), nil, &dash); err != nil {
		return nil, err
	}
	return &dash, nil
}

// ListDashboards returns the lightweight dashboard listing.
func (c *Client) ListDashboards(ctx context.Context) ([]domain.Dashboard, error) {
	var dashboards []domain.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &dashboards); err != nil {
		return nil, err
	}
	return dashboards, nil
}

// CreateDashboard creates an empty dashboard.
func (c *Client) CreateDashboard(ctx context.Context, name, description string, collectionID *int) (*domain.Dashboard, error) {
	payload := map[string]any{
		"name":        name,
		"description": description,
	}
	if collectionID != nil {
		payload["collection_id"] = *collectionID
	}
	var dash domain.Dashboard
	if err := c.do(ctx, http.MethodPost, "/api/dashboard", payload, &dash); err != nil {
		return nil, err
	}
	log.Printf("[METABASE] created dashboard %q (id %d)", name, dash.ID)
	return &dash, nil
}

// UpdateDashboard applies a partial update; attaching tabs and dashcards in
// one payload is the atomic update the orchestrator relies on.
func (c *Client) UpdateDashboard(ctx context.Context, id int, payload map[string]any) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/dashboard/%d", id), payload, nil)
}

// DeleteDashboard removes a dashboard.
func (c *Client) DeleteDashboard(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/dashboard/%d", id), nil, nil)
}

// GetCard fetches a question.
func (c *Client) GetCard(ctx context.Context, id int) (*domain.Card, error) {
	var card domain.Card
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/card/%d", id), nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// ListCards returns all questions.
func (c *Client) ListCards(ctx context.Context) ([]domain.Card, error) {
	var cards []domain.Card
	if err := c.do(ctx, http.MethodGet, "/api/card", nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// CreateCard creates a question from a prepared payload.
func (c *Client) CreateCard(ctx context.Context, payload map[string]any) (*domain.Card, error) {
	var card domain.Card
	if err := c.do(ctx, http.MethodPost, "/api/card", payload, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// ListCollections returns all collections.
func (c *Client) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	var collections []domain.Collection
	if err := c.do(ctx, http.MethodGet, "/api/collection", nil, &collections); err != nil {
		return nil, err
	}
	return collections, nil
}

// CreateCollection creates a collection, optionally inside a parent.
func (c *Client) CreateCollection(ctx context.Context, name string, parentID *int) (*domain.Collection, error) {
	payload := map[string]any{"name": name}
	if parentID != nil {
		payload["parent_id"] = *parentID
	}
	var col domain.Collection
	if err := c.do(ctx, http.MethodPost, "/api/collection", payload, &col); err != nil {
		return nil, err
	}
	log.Printf("[METABASE] created collection %q (id %d)", name, col.ID)
	return &col, nil
}
