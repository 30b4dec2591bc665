package cluster

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/dreamware/sluice/internal/mailbox"
)

// HTTPTransport delivers envelopes between ranks running as separate
// processes. Each rank serves POST /mailbox for incoming envelopes and
// GET /health for readiness; Send posts to the destination rank's address.
//
// The transport is created before the process group is known so that the
// HTTP server can start listening; Connect then fixes the session and the
// peer table. Until Connect, /health answers 503 and /mailbox rejects all
// envelopes.
//
// Example:
//
//	tr := NewHTTPTransport(rank, mailbox.NewMemoryMailbox())
//	go http.ListenAndServe(listen, tr.Handler())
//	// ... rendezvous ...
//	tr.Connect(resp.Session, resp.Peers)
type HTTPTransport struct {
	*endpoint
	peersMu sync.RWMutex
	peers   []PeerInfo
	ready   bool
}

// NewHTTPTransport returns an unconnected transport for rank that queues
// inbound records in box.
func NewHTTPTransport(rank int, box mailbox.Mailbox) *HTTPTransport {
	return &HTTPTransport{endpoint: newEndpoint(rank, 0, "", box)}
}

// Connect installs the session id and peer table. Peers must cover ranks
// 0..len(peers)-1 exactly once and include this rank.
func (t *HTTPTransport) Connect(session string, peers []PeerInfo) error {
	sorted := append([]PeerInfo(nil), peers...)
	slices.SortFunc(sorted, func(a, b PeerInfo) int { return a.Rank - b.Rank })
	for i, p := range sorted {
		if p.Rank != i {
			return errors.Wrapf(ErrInvalidRank, "peer table has rank %d at position %d", p.Rank, i)
		}
		if p.Addr == "" {
			return errors.Errorf("peer %d has no address", p.Rank)
		}
	}
	if t.rank < 0 || t.rank >= len(sorted) {
		return errors.Wrapf(ErrInvalidRank, "local rank %d not in peer table of %d", t.rank, len(sorted))
	}

	t.mu.Lock()
	t.session = session
	t.size = len(sorted)
	t.mu.Unlock()

	t.peersMu.Lock()
	t.peers = sorted
	t.ready = true
	t.peersMu.Unlock()

	log.Printf("rank[%d] connected to %d peers (session %s)", t.rank, len(sorted), session)
	return nil
}

// Peers returns a copy of the peer table.
func (t *HTTPTransport) Peers() []PeerInfo {
	t.peersMu.RLock()
	defer t.peersMu.RUnlock()
	return append([]PeerInfo(nil), t.peers...)
}

func (t *HTTPTransport) isReady() bool {
	t.peersMu.RLock()
	defer t.peersMu.RUnlock()
	return t.ready
}

func (t *HTTPTransport) Send(ctx context.Context, dst int, msg any) error {
	env, err := t.seal(dst, msg)
	if err != nil {
		return err
	}

	t.peersMu.RLock()
	addr := t.peers[dst].Addr
	t.peersMu.RUnlock()

	err = PostJSON(ctx, strings.TrimRight(addr, "/")+"/mailbox", env, nil)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusConflict {
		return errors.Wrapf(ErrSessionMismatch, "rank %d send to %d", t.rank, dst)
	}
	return errors.Wrapf(err, "rank %d send %s to %d", t.rank, env.Kind, dst)
}

func (t *HTTPTransport) Receive(ctx context.Context, src int, out any) error {
	return t.open(ctx, src, out)
}

// Handler returns the HTTP routes of this rank.
func (t *HTTPTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mailbox", t.handleMailbox)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !t.isReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Rank  int           `json:"rank"`
			Stats mailbox.Stats `json:"stats"`
		}{Rank: t.rank, Stats: t.box.Stats()})
	})
	return mux
}

func (t *HTTPTransport) handleMailbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !t.isReady() {
		http.Error(w, "not connected", http.StatusServiceUnavailable)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	t.mu.Lock()
	session, size := t.session, t.size
	t.mu.Unlock()

	if env.Session != session {
		log.Printf("rank[%d] rejected envelope from %d: session %q", t.rank, env.From, env.Session)
		http.Error(w, "session mismatch", http.StatusConflict)
		return
	}
	if env.To != t.rank || env.From < 0 || env.From >= size {
		http.Error(w, "bad route", http.StatusBadRequest)
		return
	}
	if err := t.box.Push(env.From, raw); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WaitReady polls every peer's /health endpoint until all answer 200 or the
// context ends.
func WaitReady(ctx context.Context, peers []PeerInfo, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := append([]PeerInfo(nil), peers...)
	for {
		pending = slices.DeleteFunc(pending, func(p PeerInfo) bool {
			return checkHealth(ctx, p.Addr) == nil
		})
		if len(pending) == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "%d peers not ready (first: rank %d)", len(pending), pending[0].Rank)
		}
	}
}

func checkHealth(ctx context.Context, addr string) error {
	url := strings.TrimRight(addr, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{URL: url, Status: resp.StatusCode}
	}
	return nil
}
