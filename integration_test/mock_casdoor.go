package integration_test

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	mockClientID     = "mock_client_id"
	mockClientSecret = "mock_client_secret"
	mockOrg          = "built-in"
)

type mockUser struct {
	Sub   string
	Name  string
	Email string
}

var mockCodes = map[string]mockUser{
	"valid_code_1":        {Sub: "mock_user_1", Name: "alice", Email: "alice@example.com"},
	"valid_code_2":        {Sub: "mock_user_1", Name: "alice", Email: "alice@example.com"},
	"another_user_code_1": {Sub: "mock_user_2", Name: "bob", Email: "bob@example.com"},
}

// MockCasdoorServer serves the token, userinfo and user object endpoints
type MockCasdoorServer struct {
	server *httptest.Server

	mu       sync.Mutex
	profiles map[string]map[string]any
}

func NewMockCasdoorServer() *MockCasdoorServer {
	m := &MockCasdoorServer{}
	m.Reset()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login/oauth/access_token", m.handleToken)
	mux.HandleFunc("/api/userinfo", m.handleUserInfo)
	mux.HandleFunc("/api/get-user", m.handleGetUser)
	mux.HandleFunc("/api/update-user", m.handleUpdateUser)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockCasdoorServer) URL() string {
	return m.server.URL
}

func (m *MockCasdoorServer) Close() {
	m.server.Close()
}

// Reset restores the stored user objects.
func (m *MockCasdoorServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = map[string]map[string]any{
		"alice": {"owner": mockOrg, "name": "alice", "displayName": "Alice", "score": json.Number("40")},
		"bob":   {"owner": mockOrg, "name": "bob", "displayName": "Bob"},
	}
}

// Profile returns a stored user object field.
func (m *MockCasdoorServer) Profile(username, field string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[username][field]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (m *MockCasdoorServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params map[string]string
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	if params["client_id"] != mockClientID || params["client_secret"] != mockClientSecret {
		writeJSON(w, http.StatusOK, map[string]string{"error": "invalid_client"})
		return
	}

	code := params["code"]
	if _, ok := mockCodes[code]; !ok || params["grant_type"] != "authorization_code" {
		// Casdoor answers grant failures with 200
		writeJSON(w, http.StatusOK, map[string]string{
			"error":             "invalid_grant",
			"error_description": "authorization code is invalid",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "access_" + code,
		"refresh_token": "refresh_" + code,
		"expires_in":    3600,
		"token_type":    "Bearer",
	})
}

func (m *MockCasdoorServer) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	user, ok := mockCodes[strings.TrimPrefix(token, "access_")]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"sub":   user.Sub,
		"name":  user.Name,
		"email": user.Email,
	})
}

func (m *MockCasdoorServer) authorized(r *http.Request) bool {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(mockClientID+":"+mockClientSecret))
	return r.Header.Get("Authorization") == want
}

func (m *MockCasdoorServer) username(r *http.Request) (string, bool) {
	return strings.CutPrefix(r.URL.Query().Get("id"), mockOrg+"/")
}

func (m *MockCasdoorServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "msg": "Unauthorized operation"})
		return
	}

	name, _ := m.username(r)
	m.mu.Lock()
	profile := m.profiles[name]
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "msg": "", "data": profile})
}

func (m *MockCasdoorServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !m.authorized(r) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "msg": "Unauthorized operation"})
		return
	}

	name, _ := m.username(r)
	var profile map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&profile); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "msg": err.Error()})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[name]; !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "msg": "the user does not exist"})
		return
	}
	m.profiles[name] = profile

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "msg": "", "data": "Affected"})
}
