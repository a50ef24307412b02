// Package gmailtest provides an in-process fake of the Gmail label and
// modify endpoints for tests.
package gmailtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// DefaultAccount is the profile returned to requests without a bearer token.
const DefaultAccount = "me@example.com"

// Modification is one recorded threads.modify or messages.modify call.
type Modification struct {
	Kind        string // "thread" or "message"
	ID          string
	AddLabelIDs []string
}

// Server is a fake Gmail API. Its zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	labels        []label
	nextID        int
	modifications []Modification
	listCalls     int
	createCalls   int
	failures      map[string]failure
	accounts      map[string]string
}

type label struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Type                  string `json:"type,omitempty"`
	LabelListVisibility   string `json:"labelListVisibility,omitempty"`
	MessageListVisibility string `json:"messageListVisibility,omitempty"`
}

type failure struct {
	status int
	body   string
}

// Endpoint keys accepted by Fail.
const (
	EndpointList          = "list"
	EndpointCreate        = "create"
	EndpointModifyThread  = "modifyThread"
	EndpointModifyMessage = "modifyMessage"
	EndpointProfile       = "profile"
)

// NewServer starts a fake seeded with the given label names.
func NewServer(existing ...string) *Server {
	s := &Server{failures: make(map[string]failure), accounts: make(map[string]string)}
	for _, name := range existing {
		s.addLabel(name, "user", "", "")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/profile", s.handleProfile)
	mux.HandleFunc("GET /gmail/v1/users/me/labels", s.handleList)
	mux.HandleFunc("POST /gmail/v1/users/me/labels", s.handleCreate)
	mux.HandleFunc("POST /gmail/v1/users/me/threads/{id}/modify", s.handleModify("thread", EndpointModifyThread))
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", s.handleModify("message", EndpointModifyMessage))
	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoint returns the base URL to pass to gmail.NewClient.
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// Fail makes the endpoint answer with status and a Google error body
// carrying message. An empty message sends a body without error.message.
func (s *Server) Fail(endpoint string, status int, message string) {
	body := `{"error":{"code":` + fmt.Sprint(status) + `}}`
	if message != "" {
		b, _ := json.Marshal(map[string]any{"error": map[string]any{"code": status, "message": message}})
		body = string(b)
	}
	s.mu.Lock()
	s.failures[endpoint] = failure{status: status, body: body}
	s.mu.Unlock()
}

// AddAccount makes the profile endpoint answer email for requests carrying
// token as their bearer token. Other bearer tokens are rejected with 401.
func (s *Server) AddAccount(token, email string) {
	s.mu.Lock()
	s.accounts[token] = email
	s.mu.Unlock()
}

// LabelID returns the id of the named label, or "" if it does not exist.
func (s *Server) LabelID(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.labels {
		if l.Name == name {
			return l.ID
		}
	}
	return ""
}

// LabelCount returns the number of labels called name.
func (s *Server) LabelCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.labels {
		if l.Name == name {
			n++
		}
	}
	return n
}

// Modifications returns a copy of the recorded modify calls.
func (s *Server) Modifications() []Modification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Modification(nil), s.modifications...)
}

// Calls returns how many list and create requests were served.
func (s *Server) Calls() (list, create int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls, s.createCalls
}

func (s *Server) addLabel(name, typ, labelVis, msgVis string) label {
	s.nextID++
	l := label{
		ID:                    fmt.Sprintf("Label_%d", s.nextID),
		Name:                  name,
		Type:                  typ,
		LabelListVisibility:   labelVis,
		MessageListVisibility: msgVis,
	}
	s.labels = append(s.labels, l)
	return l
}

func (s *Server) failed(w http.ResponseWriter, endpoint string) bool {
	f, ok := s.failures[endpoint]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
	return true
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed(w, EndpointProfile) {
		return
	}
	email := DefaultAccount
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if email, ok = s.accounts[token]; !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
			return
		}
	}
	writeJSON(w, map[string]any{"emailAddress": email})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.failed(w, EndpointList) {
		return
	}
	writeJSON(w, map[string]any{"labels": s.labels})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req label
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.failed(w, EndpointCreate) {
		return
	}
	writeJSON(w, s.addLabel(req.Name, req.Type, req.LabelListVisibility, req.MessageListVisibility))
}

func (s *Server) handleModify(kind, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AddLabelIDs []string `json:"addLabelIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failed(w, endpoint) {
			return
		}
		id := r.PathValue("id")
		s.modifications = append(s.modifications, Modification{Kind: kind, ID: id, AddLabelIDs: req.AddLabelIDs})
		writeJSON(w, map[string]any{"id": id})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
