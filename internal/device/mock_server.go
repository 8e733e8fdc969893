package device

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockServer simulates the bagging-machine controller over real HTTP. It is
// used by tests and by the daemon's simulate mode.
type MockServer struct {
	*httptest.Server
	mu        sync.RWMutex
	status    string
	bagLength string
	speed     string
	calls     map[string]int
	lastData  map[string]string
	delay     map[string]time.Duration
	failures  map[string]int // remaining forced failures per path, negative means forever
}

// NewMockServer starts a simulated controller with a stopped machine, a bag
// length of 20 and a speed of 30.
func NewMockServer() *MockServer {
	m := &MockServer{}
	m.resetNoLock()

	mux := http.NewServeMux()
	mux.HandleFunc(pathStatus, m.handleRead(func() string { return m.status }))
	mux.HandleFunc(pathGetBagLength, m.handleRead(func() string { return m.bagLength }))
	mux.HandleFunc(pathGetSpeed, m.handleRead(func() string { return m.speed }))
	mux.HandleFunc(pathSetBagLength, m.handleWrite(func(data string) { m.bagLength = data }))
	mux.HandleFunc(pathSetSpeed, m.handleWrite(func(data string) { m.speed = data }))
	mux.HandleFunc(pathStart, m.handleWrite(func(string) { m.status = "running" }))
	mux.HandleFunc(pathStop, m.handleWrite(func(string) { m.status = "stopped" }))

	m.Server = httptest.NewServer(mux)
	return m
}

// Reset restores the default machine state and clears counters, delays and failures.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetNoLock()
}

func (m *MockServer) resetNoLock() {
	m.status = "stopped"
	m.bagLength = "20"
	m.speed = "30"
	m.calls = make(map[string]int)
	m.lastData = make(map[string]string)
	m.delay = make(map[string]time.Duration)
	m.failures = make(map[string]int)
}

// SetStatus sets the raw body returned for the machine state.
func (m *MockServer) SetStatus(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = body
}

// SetBagLengthBody sets the raw body returned for the bag length.
func (m *MockServer) SetBagLengthBody(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bagLength = body
}

// SetSpeedBody sets the raw body returned for the speed.
func (m *MockServer) SetSpeedBody(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = body
}

// SetFailures makes the next count requests to path answer 500. A negative
// count fails every request until Reset.
func (m *MockServer) SetFailures(path string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = count
}

// SetDelay holds every response on path for d.
func (m *MockServer) SetDelay(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[path] = d
}

// Calls returns how many requests reached path.
func (m *MockServer) Calls(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[path]
}

// LastData returns the data query parameter of the last request to path.
func (m *MockServer) LastData(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastData[path]
}

// State returns the current raw state of the simulated machine.
func (m *MockServer) State() (status, bagLength, speed string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.bagLength, m.speed
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// begin records the request and reports whether it should fail.
func (m *MockServer) begin(r *http.Request) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := r.URL.Path
	m.calls[path]++
	if data := r.URL.Query().Get("data"); data != "" {
		m.lastData[path] = data
	}

	fail := false
	if n, ok := m.failures[path]; ok && n != 0 {
		fail = true
		if n > 0 {
			m.failures[path] = n - 1
		}
	}
	return m.delay[path], fail
}

func (m *MockServer) wait(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

func (m *MockServer) handleRead(body func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		delay, fail := m.begin(r)
		if !m.wait(r, delay) {
			return
		}
		if fail {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		m.mu.RLock()
		out := body()
		m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, out)
	}
}

func (m *MockServer) handleWrite(apply func(data string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		delay, fail := m.begin(r)
		if !m.wait(r, delay) {
			return
		}
		if fail {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		m.mu.Lock()
		apply(r.URL.Query().Get("data"))
		m.mu.Unlock()

		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "OK")
	}
}
