package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/sluice/internal/cluster"
	"github.com/dreamware/sluice/internal/coordinator"
)

func main() {
	addr := getenv("COORDINATOR_ADDR", ":8080")
	size, err := strconv.Atoi(getenv("RANKS", "1"))
	if err != nil || size < 1 {
		log.Fatalf("RANKS must be a positive integer, got %q", os.Getenv("RANKS"))
	}
	every, err := time.ParseDuration(getenv("MONITOR_INTERVAL", "2s"))
	if err != nil {
		log.Fatalf("MONITOR_INTERVAL: %v", err)
	}
	srv := newServer(size)
	srv.monitorEvery = every
	defer srv.stopMonitor()

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("coordinator listening on %s (session %s, %d ranks)", addr, srv.session, size)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	log.Println("coordinator stopped")
}

// server is the rendezvous point of one run: ranks register their mailbox
// address, poll for the complete peer table and report when they finish.
// Once the table is complete, ranks that stop answering before they report
// are recorded as failed.
type server struct {
	mu      sync.RWMutex
	session string
	size    int
	peers   []cluster.PeerInfo
	reports []cluster.RunReport

	// monitorEvery is the rank health check interval; zero disables it.
	monitorEvery time.Duration
	monitor      *coordinator.RankMonitor
}

func newServer(size int) *server {
	return &server{
		session: uuid.NewString(),
		size:    size,
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/peers", s.handlePeers)
	mux.HandleFunc("/reports", s.handleReports)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Peer.Rank < 0 || req.Peer.Rank >= s.size || req.Peer.Addr == "" {
		http.Error(w, "rank out of range or missing addr", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.peers, func(p cluster.PeerInfo) bool { return p.Rank == req.Peer.Rank })
	if idx >= 0 {
		s.peers[idx] = req.Peer
	} else {
		s.peers = append(s.peers, req.Peer)
		slices.SortFunc(s.peers, func(a, b cluster.PeerInfo) int { return a.Rank - b.Rank })
		log.Printf("rank %d registered at %s (%d/%d)", req.Peer.Rank, req.Peer.Addr, len(s.peers), s.size)
		if len(s.peers) == s.size {
			s.startMonitor()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePeers(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.PeersResponse{
		Session:  s.session,
		Size:     s.size,
		Complete: len(s.peers) == s.size,
		Peers:    s.peers,
	})
}

// handleReports records a finished rank on POST and lists reports on GET.
func (s *server) handleReports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var rep cluster.RunReport
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		if i := slices.IndexFunc(s.reports, func(r cluster.RunReport) bool { return r.Rank == rep.Rank }); i >= 0 {
			s.reports[i] = rep
		} else {
			s.reports = append(s.reports, rep)
		}
		n := len(s.reports)
		s.mu.Unlock()
		if rep.Err != "" {
			log.Printf("rank %d failed after %d steps: %s", rep.Rank, rep.Steps, rep.Err)
		} else {
			log.Printf("rank %d finished %d steps, volume %.4f (%d/%d)", rep.Rank, rep.Steps, rep.Volume, n, s.size)
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		s.mu.RLock()
		defer s.mu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Reports []cluster.RunReport `json:"reports"`
			Done    bool                `json:"done"`
		}{Reports: s.reports, Done: len(s.reports) >= s.size})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// startMonitor begins watching the ranks. Callers hold s.mu.
func (s *server) startMonitor() {
	if s.monitorEvery <= 0 || s.monitor != nil {
		return
	}
	s.monitor = coordinator.NewRankMonitor(s.monitorEvery)
	s.monitor.SetOnUnhealthy(s.rankLost)
	go s.monitor.Start(context.Background(), s.running)
}

func (s *server) stopMonitor() {
	s.mu.RLock()
	m := s.monitor
	s.mu.RUnlock()
	if m != nil {
		m.Stop()
	}
}

// running returns the peers that have not reported yet.
func (s *server) running() []cluster.PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cluster.PeerInfo
	for _, p := range s.peers {
		if !slices.ContainsFunc(s.reports, func(r cluster.RunReport) bool { return r.Rank == p.Rank }) {
			out = append(out, p)
		}
	}
	return out
}

// rankLost records a failure report for a rank that stopped answering.
func (s *server) rankLost(rank int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.reports, func(r cluster.RunReport) bool { return r.Rank == rank }) {
		return
	}
	s.reports = append(s.reports, cluster.RunReport{Rank: rank, Err: fmt.Sprintf("rank %d stopped answering", rank)})
	log.Printf("rank %d lost before reporting (%d/%d)", rank, len(s.reports), s.size)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
