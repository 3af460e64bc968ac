// Package testutil provides testing utilities for the ACX batch patch client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockACX is a configurable in-memory ACX API for tests: a token endpoint,
// a paginated record listing and a patch endpoint with scripted failures.
type MockACX struct {
	server *httptest.Server

	mu            sync.Mutex
	recordIDs     []string
	pageSize      int
	token         string
	listFailures  int
	patchFailures map[string]patchScript

	// Tracking
	RequestCount  int
	TokenRequests int
	PatchAttempts map[string]int
}

type patchScript struct {
	remaining int
	status    int
}

// NewMockACX creates a mock API serving the given record identifiers.
func NewMockACX(recordIDs []string, pageSize int) *MockACX {
	if pageSize <= 0 {
		pageSize = 100
	}

	mock := &MockACX{
		recordIDs:     recordIDs,
		pageSize:      pageSize,
		token:         "mock-token",
		patchFailures: make(map[string]patchScript),
		PatchAttempts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server base URL.
func (m *MockACX) URL() string {
	return m.server.URL
}

// TokenURL returns the mock token endpoint.
func (m *MockACX) TokenURL() string {
	return m.server.URL + "/oauth/token"
}

// Close shuts the server down.
func (m *MockACX) Close() {
	m.server.Close()
}

// FailPatch scripts the next n patch attempts for id to return status.
// Attempts beyond n succeed.
func (m *MockACX) FailPatch(id string, n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patchFailures[id] = patchScript{remaining: n, status: status}
}

// FailListings makes the next n list requests return 500.
func (m *MockACX) FailListings(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFailures = n
}

func (m *MockACX) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/oauth/token":
		m.handleToken(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/records":
		m.handleList(w, r)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/v1/records/"):
		m.handlePatch(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockACX) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.TokenRequests++
	token := m.token
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer","expires_in":3600}`, token)
}

func (m *MockACX) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if m.listFailures > 0 {
		m.listFailures--
		m.mu.Unlock()
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}
	ids := m.recordIDs
	pageSize := m.pageSize
	m.mu.Unlock()

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	totalPages := (len(ids) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	lo := (page - 1) * pageSize
	hi := lo + pageSize
	if lo > len(ids) {
		lo = len(ids)
	}
	if hi > len(ids) {
		hi = len(ids)
	}

	type rec struct {
		ID string `json:"id"`
	}
	records := make([]rec, 0, hi-lo)
	for _, id := range ids[lo:hi] {
		records = append(records, rec{ID: id})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Pages", strconv.Itoa(totalPages))
	json.NewEncoder(w).Encode(map[string]any{"records": records})
}

func (m *MockACX) handlePatch(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/records/")

	m.mu.Lock()
	m.PatchAttempts[id]++
	script, scripted := m.patchFailures[id]
	if scripted && script.remaining > 0 {
		script.remaining--
		m.patchFailures[id] = script
		m.mu.Unlock()
		http.Error(w, "scripted failure", script.status)
		return
	}

	known := false
	for _, rid := range m.recordIDs {
		if rid == id {
			known = true
			break
		}
	}
	m.mu.Unlock()

	if !known {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":%q}`, id)
}

// Attempts returns how many patch attempts were made for id.
func (m *MockACX) Attempts(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PatchAttempts[id]
}
