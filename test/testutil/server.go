// Package testutil provides a fake connect server for tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// BasePath is the path prefix the fake server serves the API under.
const BasePath = "/connect/"

// RecordedRequest is a request received by the fake server.
type RecordedRequest struct {
	Method string
	Suffix string
	Header http.Header
	Body   []byte
}

// ConnectServer is an in-process connect server with canned responses.
// Unknown routes answer 404 with an empty body.
type ConnectServer struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewConnectServer starts a fake server that is closed when the test ends.
func NewConnectServer(t *testing.T) *ConnectServer {
	t.Helper()
	cs := &ConnectServer{routes: make(map[string]http.HandlerFunc)}
	cs.Server = httptest.NewServer(http.HandlerFunc(cs.serve))
	t.Cleanup(cs.Close)
	return cs
}

// BaseURL returns the base URL clients should be configured with.
func (cs *ConnectServer) BaseURL() string {
	return cs.URL + BasePath
}

func routeKey(method, suffix string) string {
	return method + " " + strings.Trim(suffix, "/")
}

// Handle answers method + suffix with status and body. A body that is not a
// []byte or string is encoded as JSON.
func (cs *ConnectServer) Handle(method, suffix string, status int, body any) {
	payload := encode(body)
	cs.HandleFunc(method, suffix, func(w http.ResponseWriter, _ *http.Request) {
		if len(payload) > 0 {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_, _ = w.Write(payload)
	})
}

// HandleError answers method + suffix with status and a connect error body.
func (cs *ConnectServer) HandleError(method, suffix string, status int, kind, message string) {
	cs.Handle(method, suffix, status, map[string]string{"kind": kind, "message": message})
}

// HandleFunc installs a custom handler for method + suffix.
func (cs *ConnectServer) HandleFunc(method, suffix string, h http.HandlerFunc) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.routes[routeKey(method, suffix)] = h
}

// Requests returns the requests received so far.
func (cs *ConnectServer) Requests() []RecordedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]RecordedRequest(nil), cs.requests...)
}

// RequestCount returns how many requests were received.
func (cs *ConnectServer) RequestCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.requests)
}

// LastRequest returns the most recent request, or the zero value.
func (cs *ConnectServer) LastRequest() RecordedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.requests) == 0 {
		return RecordedRequest{}
	}
	return cs.requests[len(cs.requests)-1]
}

func (cs *ConnectServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	suffix := strings.TrimPrefix(r.URL.Path, BasePath)

	cs.mu.Lock()
	cs.requests = append(cs.requests, RecordedRequest{
		Method: r.Method,
		Suffix: suffix,
		Header: r.Header.Clone(),
		Body:   body,
	})
	h, ok := cs.routes[routeKey(r.Method, suffix)]
	cs.mu.Unlock()

	if !ok || !strings.HasPrefix(r.URL.Path, BasePath) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, r)
}

func encode(body any) []byte {
	switch b := body.(type) {
	case nil:
		return nil
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			panic(err)
		}
		return data
	}
}
