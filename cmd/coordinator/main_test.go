package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/sluice/internal/cluster"
)

// TestGetenv tests the getenv utility function
func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      string
		expected string
	}{
		{
			name:     "environment variable set",
			key:      "TEST_ENV_VAR",
			value:    "test_value",
			def:      "default",
			expected: "test_value",
		},
		{
			name:     "environment variable not set",
			key:      "UNSET_ENV_VAR",
			value:    "",
			def:      "default_value",
			expected: "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			result := getenv(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

// TestNewServer tests server creation
func TestNewServer(t *testing.T) {
	srv := newServer(3)

	if srv.size != 3 {
		t.Errorf("Expected size 3, got %d", srv.size)
	}
	if _, err := uuid.Parse(srv.session); err != nil {
		t.Errorf("Expected a uuid session, got %q: %v", srv.session, err)
	}
	if len(srv.peers) != 0 {
		t.Errorf("Expected 0 peers initially, got %d", len(srv.peers))
	}

	if other := newServer(3); other.session == srv.session {
		t.Error("Expected every server to issue a fresh session")
	}
}

func postRegister(t *testing.T, srv *server, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if s, ok := body.(string); ok {
		raw = []byte(s)
	} else {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	srv.handleRegister(rec, req)
	return rec
}

// TestHandleRegister tests the rank registration endpoint
func TestHandleRegister(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful registration",
			requestBody:    cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 1, Addr: "http://localhost:8081"}},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "rank out of range",
			requestBody:    cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 2, Addr: "http://localhost:8081"}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative rank",
			requestBody:    cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: -1, Addr: "http://localhost:8081"}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing address",
			requestBody:    cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 0}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON body",
			requestBody:    "invalid json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(2)
			rec := postRegister(t, srv, tt.requestBody)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			wantPeers := 0
			if tt.expectedStatus == http.StatusNoContent {
				wantPeers = 1
			}
			if len(srv.peers) != wantPeers {
				t.Errorf("Expected %d peers, got %d", wantPeers, len(srv.peers))
			}
		})
	}

	t.Run("re-registration updates the address", func(t *testing.T) {
		srv := newServer(2)
		postRegister(t, srv, cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 0, Addr: "http://a"}})
		postRegister(t, srv, cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 0, Addr: "http://b"}})

		if len(srv.peers) != 1 {
			t.Fatalf("Expected 1 peer, got %d", len(srv.peers))
		}
		if srv.peers[0].Addr != "http://b" {
			t.Errorf("Expected address http://b, got %s", srv.peers[0].Addr)
		}
	})
}

// TestHandlePeers tests the peer table becomes complete once every rank registered
func TestHandlePeers(t *testing.T) {
	srv := newServer(3)
	get := func() cluster.PeersResponse {
		rec := httptest.NewRecorder()
		srv.handlePeers(rec, httptest.NewRequest(http.MethodGet, "/peers", nil))
		var resp cluster.PeersResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		return resp
	}

	for _, rank := range []int{2, 0} {
		postRegister(t, srv, cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: rank, Addr: fmt.Sprintf("http://n%d", rank)}})
	}
	resp := get()
	if resp.Complete {
		t.Error("Expected incomplete peer table with 2 of 3 ranks")
	}
	if resp.Session != srv.session || resp.Size != 3 {
		t.Errorf("Unexpected header: %+v", resp)
	}

	postRegister(t, srv, cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 1, Addr: "http://n1"}})
	resp = get()
	if !resp.Complete {
		t.Error("Expected complete peer table")
	}
	for i, p := range resp.Peers {
		if p.Rank != i {
			t.Errorf("Expected peers sorted by rank, got rank %d at %d", p.Rank, i)
		}
	}
}

// TestHandleReports tests run reports are collected and listed
func TestHandleReports(t *testing.T) {
	srv := newServer(2)

	post := func(rep cluster.RunReport) int {
		raw, _ := json.Marshal(rep)
		rec := httptest.NewRecorder()
		srv.handleReports(rec, httptest.NewRequest(http.MethodPost, "/reports", bytes.NewReader(raw)))
		return rec.Code
	}
	list := func() (reports []cluster.RunReport, done bool) {
		rec := httptest.NewRecorder()
		srv.handleReports(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
		var resp struct {
			Reports []cluster.RunReport `json:"reports"`
			Done    bool                `json:"done"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		return resp.Reports, resp.Done
	}

	if code := post(cluster.RunReport{Rank: 0, Steps: 10, Volume: 12.5}); code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", code)
	}
	if _, done := list(); done {
		t.Error("Expected run not done after one report")
	}

	post(cluster.RunReport{Rank: 1, Steps: 3, Err: "boom"})
	reports, done := list()
	if !done || len(reports) != 2 {
		t.Errorf("Expected 2 reports and done, got %d done=%v", len(reports), done)
	}
	if reports[1].Err != "boom" {
		t.Errorf("Expected failure to be recorded, got %+v", reports[1])
	}

	rec := httptest.NewRecorder()
	srv.handleReports(rec, httptest.NewRequest(http.MethodPost, "/reports", bytes.NewReader([]byte("nope"))))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handleReports(rec, httptest.NewRequest(http.MethodDelete, "/reports", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

// TestRankLost tests a rank that stops answering is reported as failed
func TestRankLost(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gone.Close()

	srv := newServer(2)
	srv.monitorEvery = 10 * time.Millisecond
	defer srv.stopMonitor()

	postRegister(t, srv, cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 0, Addr: up.URL}})
	if srv.monitor != nil {
		t.Fatal("Expected no monitor before the peer table is complete")
	}
	postRegister(t, srv, cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: 1, Addr: gone.URL}})

	deadline := time.Now().Add(5 * time.Second)
	for len(srv.running()) > 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	running := srv.running()
	if len(running) != 1 || running[0].Rank != 0 {
		t.Fatalf("Expected only rank 0 still running, got %+v", running)
	}
	srv.mu.RLock()
	rep := srv.reports[0]
	srv.mu.RUnlock()
	if rep.Rank != 1 || rep.Err == "" {
		t.Errorf("Expected a failure report for rank 1, got %+v", rep)
	}

	srv.rankLost(1)
	srv.mu.RLock()
	n := len(srv.reports)
	srv.mu.RUnlock()
	if n != 1 {
		t.Errorf("Expected a lost rank to be recorded once, got %d reports", n)
	}
}

// TestConcurrentRegistration tests concurrent rank registration
func TestConcurrentRegistration(t *testing.T) {
	const numRanks = 50
	srv := newServer(numRanks)

	var wg sync.WaitGroup
	for i := 0; i < numRanks; i++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			raw, _ := json.Marshal(cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: rank, Addr: fmt.Sprintf("http://n%d", rank)}})
			rec := httptest.NewRecorder()
			srv.handleRegister(rec, httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(raw)))
		}(i)
	}
	wg.Wait()

	if len(srv.peers) != numRanks {
		t.Errorf("Expected %d peers after concurrent registration, got %d", numRanks, len(srv.peers))
	}
}

// TestHealthEndpoint tests the health check endpoint
func TestHealthEndpoint(t *testing.T) {
	mux := newServer(1).routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

// TestMainFunction tests the main function with signal handling
func TestMainFunction(t *testing.T) {
	t.Setenv("COORDINATOR_ADDR", "127.0.0.1:0")
	t.Setenv("RANKS", "2")
	t.Setenv("MONITOR_INTERVAL", "1s")

	done := make(chan bool)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.Logf("Main function panicked (expected during shutdown): %v", r)
			}
			done <- true
		}()
		main()
	}()

	// Give the server time to start
	time.Sleep(100 * time.Millisecond)

	process, _ := os.FindProcess(os.Getpid())
	process.Signal(syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Error("Main function did not shutdown within timeout")
	}
}
