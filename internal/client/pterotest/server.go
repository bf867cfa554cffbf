// Package pterotest runs an in-memory fake of the Pterodactyl Application
// API endpoints used by the panel service.
package pterotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valtp/saas-platform/panel-service/internal/client"
)

// Op names a fake endpoint for failure injection.
type Op string

const (
	OpCreateUser   Op = "create_user"
	OpListUsers    Op = "list_users"
	OpCreateServer Op = "create_server"
	OpDeleteServer Op = "delete_server"
	OpDeleteUser   Op = "delete_user"
)

// Call is one request received by the fake.
type Call struct {
	Method string
	Path   string
	Query  string
}

// Server is a fake Pterodactyl panel. Usernames and emails are unique
// case-insensitively, like the real panel.
type Server struct {
	*httptest.Server

	APIKey  string
	PerPage int

	mu            sync.Mutex
	users         map[int]client.User
	servers       map[int]client.Server
	nextUserID    int
	nextServerID  int
	failures      map[Op]int
	delay         time.Duration
	calls         []Call
	lastServerReq map[string]interface{}
}

// New starts a fake that accepts apiKey as its application key. Call Close
// when done.
func New(apiKey string) *Server {
	s := &Server{
		APIKey:       apiKey,
		PerPage:      50,
		users:        make(map[int]client.User),
		servers:      make(map[int]client.Server),
		nextUserID:   1,
		nextServerID: 1,
		failures:     make(map[Op]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/application/users", s.createUser)
	mux.HandleFunc("GET /api/application/users", s.listUsers)
	mux.HandleFunc("DELETE /api/application/users/{id}", s.deleteUser)
	mux.HandleFunc("POST /api/application/servers", s.createServer)
	mux.HandleFunc("DELETE /api/application/servers/{id}/force", s.deleteServer)

	s.Server = httptest.NewServer(s.authenticate(mux))
	return s
}

// Fail makes every request to op answer with status until cleared with 0.
func (s *Server) Fail(op Op, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, op)
		return
	}
	s.failures[op] = status
}

// SetDelay delays every response by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// AddUser seeds a user directly and returns it.
func (s *Server) AddUser(username, email string) client.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUser(username, email, false)
}

// AddRootAdmin seeds a root admin user.
func (s *Server) AddRootAdmin(username, email string) client.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUser(username, email, true)
}

// AddServer seeds a server owned by userID and returns its id.
func (s *Server) AddServer(name string, userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextServerID
	s.nextServerID++
	s.servers[id] = client.Server{ID: id, Name: name, User: userID}
	return id
}

func (s *Server) HasUser(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok
}

func (s *Server) HasServer(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.servers[id]
	return ok
}

func (s *Server) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Server) ServerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.servers)
}

// Calls returns a copy of the recorded requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts recorded requests with the given method whose path
// starts with prefix.
func (s *Server) CallCount(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

// LastServerRequest is the raw JSON body of the most recent server create.
func (s *Server) LastServerRequest() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastServerReq
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
		delay := s.delay
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if r.Header.Get("Authorization") != "Bearer "+s.APIKey {
			writeErrors(w, http.StatusUnauthorized, "AuthenticationException", "Unauthenticated.", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injected(w http.ResponseWriter, op Op) bool {
	s.mu.Lock()
	status := s.failures[op]
	s.mu.Unlock()
	if status == 0 {
		return false
	}
	writeErrors(w, status, "InjectedFailure", fmt.Sprintf("injected %s failure", op), "")
	return true
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpCreateUser) {
		return
	}

	var req client.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "BadRequestHttpException", "malformed body", "")
		return
	}
	if req.Username == "" || req.Email == "" {
		writeErrors(w, http.StatusUnprocessableEntity, "ValidationException", "The username field is required.", "required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, req.Username) {
			writeErrors(w, http.StatusUnprocessableEntity, "ValidationException", "The username has already been taken.", "unique")
			return
		}
		if strings.EqualFold(u.Email, req.Email) {
			writeErrors(w, http.StatusUnprocessableEntity, "ValidationException", "The email has already been taken.", "unique")
			return
		}
	}

	u := s.insertUser(req.Username, req.Email, false)
	u.FirstName = req.FirstName
	u.LastName = req.LastName
	s.users[u.ID] = u
	writeJSON(w, http.StatusCreated, map[string]interface{}{"object": "user", "attributes": u})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpListUsers) {
		return
	}

	q := r.URL.Query()
	username := strings.ToLower(q.Get("filter[username]"))
	email := strings.ToLower(q.Get("filter[email]"))
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	matched := make([]client.User, 0, len(s.users))
	for _, u := range s.users {
		if username != "" && !strings.Contains(strings.ToLower(u.Username), username) {
			continue
		}
		if email != "" && !strings.Contains(strings.ToLower(u.Email), email) {
			continue
		}
		matched = append(matched, u)
	}
	perPage := s.PerPage
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	totalPages := (len(matched) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	data := make([]map[string]interface{}, 0, end-start)
	for _, u := range matched[start:end] {
		data = append(data, map[string]interface{}{"object": "user", "attributes": u})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
		"meta": map[string]interface{}{
			"pagination": client.Pagination{
				Total:       len(matched),
				Count:       end - start,
				PerPage:     perPage,
				CurrentPage: page,
				TotalPages:  totalPages,
			},
		},
	})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpDeleteUser) {
		return
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeErrors(w, http.StatusNotFound, "NotFoundHttpException", "not found", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		writeErrors(w, http.StatusNotFound, "NotFoundHttpException", "The requested resource could not be found.", "")
		return
	}
	for _, srv := range s.servers {
		if srv.User == id {
			writeErrors(w, http.StatusBadRequest, "DisplayException", "Cannot delete a user with active servers attached to their account.", "")
			return
		}
	}
	delete(s.users, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createServer(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeErrors(w, http.StatusBadRequest, "BadRequestHttpException", "malformed body", "")
		return
	}
	s.mu.Lock()
	s.lastServerReq = raw
	s.mu.Unlock()

	if s.injected(w, OpCreateServer) {
		return
	}

	// Round-trip through the typed request for field access.
	body, _ := json.Marshal(raw)
	var req client.CreateServerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, "ValidationException", err.Error(), "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[req.User]; !ok {
		writeErrors(w, http.StatusUnprocessableEntity, "ValidationException", "The selected user is invalid.", "exists")
		return
	}

	id := s.nextServerID
	s.nextServerID++
	srv := client.Server{
		ID:         id,
		UUID:       fmt.Sprintf("00000000-0000-4000-8000-%012d", id),
		Identifier: fmt.Sprintf("%08x", id),
		Name:       req.Name,
		User:       req.User,
		Egg:        req.Egg,
		Limits:     req.Limits,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	s.servers[id] = srv
	writeJSON(w, http.StatusCreated, map[string]interface{}{"object": "server", "attributes": srv})
}

func (s *Server) deleteServer(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpDeleteServer) {
		return
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeErrors(w, http.StatusNotFound, "NotFoundHttpException", "not found", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[id]; !ok {
		writeErrors(w, http.StatusNotFound, "NotFoundHttpException", "The requested resource could not be found.", "")
		return
	}
	delete(s.servers, id)
	w.WriteHeader(http.StatusNoContent)
}

// insertUser requires s.mu to be held.
func (s *Server) insertUser(username, email string, rootAdmin bool) client.User {
	id := s.nextUserID
	s.nextUserID++
	u := client.User{
		ID:        id,
		UUID:      fmt.Sprintf("00000000-0000-4000-9000-%012d", id),
		Username:  username,
		Email:     email,
		RootAdmin: rootAdmin,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.users[id] = u
	return u
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, code, detail, rule string) {
	e := map[string]interface{}{
		"code":   code,
		"status": strconv.Itoa(status),
		"detail": detail,
	}
	if rule != "" {
		e["meta"] = map[string]string{"rule": rule, "source_field": "username"}
	}
	writeJSON(w, status, map[string]interface{}{"errors": []interface{}{e}})
}
