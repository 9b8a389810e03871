// Package remotetest runs an in-process fake of the back-office API. It records
// every request and can be told to fail the Nth call to a route.
package remotetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"udpadijaya/posagent/internal/remote"
)

type Request struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

type reply struct {
	status int
	body   any
}

type failure struct {
	nth     int
	status  int
	message string
}

type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []Request
	replies  map[string]reply
	failures map[string]failure
	counts   map[string]int
	nextID   int64
	hook     func(Request)
}

func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		replies:  map[string]reply{},
		failures: map[string]failure{},
		counts:   map[string]int{},
		nextID:   100,
	}

	r := chi.NewRouter()
	r.HandleFunc("/*", s.serve)
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) URL() string {
	return s.srv.URL
}

// Client returns a remote client pointed at the fake.
func (s *Server) Client(t testing.TB) *remote.Client {
	t.Helper()
	client, err := remote.New(s.srv.URL)
	if err != nil {
		t.Fatalf("remotetest client: %v", err)
	}
	return client
}

// Session is Client(t).Session with a static token.
func (s *Server) Session(t testing.TB, token string) *remote.Session {
	t.Helper()
	return s.Client(t).Session(remote.StaticToken(token))
}

// Reply sets the response for method+path. body is JSON-encoded as is.
func (s *Server) Reply(method string, path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[routeKey(method, path)] = reply{status: status, body: body}
}

// FailOn makes the nth call (1-based) to method+path answer with status and
// a {"message": message} body. Other calls behave normally.
func (s *Server) FailOn(method string, path string, nth int, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[routeKey(method, path)] = failure{nth: nth, status: status, message: message}
}

// OnRequest runs fn for every request after it is recorded and before it is
// answered, on the server's goroutine.
func (s *Server) OnRequest(fn func(Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) RequestsTo(method string, path string) []Request {
	key := routeKey(method, path)
	out := []Request{}
	for _, req := range s.Requests() {
		if routeKey(req.Method, req.Path) == key {
			out = append(out, req)
		}
	}
	return out
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(chi.URLParam(r, "*"), "/")
	req := Request{
		Method:        r.Method,
		Path:          path,
		Authorization: r.Header.Get("Authorization"),
	}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &req.Body)
	}

	key := routeKey(r.Method, path)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.counts[key]++
	count := s.counts[key]
	fail, failing := s.failures[key]
	rep, replied := s.replies[key]
	s.nextID++
	id := s.nextID
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	if failing && fail.nth == count {
		writeJSON(w, fail.status, map[string]string{"message": fail.message})
		return
	}
	if replied {
		writeJSON(w, rep.status, rep.body)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	case http.MethodPost:
		writeJSON(w, http.StatusCreated, map[string]any{"message": "created", "data": map[string]any{"id": id}})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func routeKey(method string, path string) string {
	return strings.ToUpper(method) + " " + strings.Trim(path, "/")
}
