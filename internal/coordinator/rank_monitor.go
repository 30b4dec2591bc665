package coordinator

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dreamware/sluice/internal/cluster"
)

// Rank status values.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// RankHealth tracks the liveness of one rank during a run.
type RankHealth struct {
	LastCheck        time.Time // Timestamp of the last check attempt
	LastHealthy      time.Time // Timestamp of the last successful check
	Rank             int
	Status           string // StatusUnknown, StatusHealthy or StatusUnhealthy
	ConsecutiveFails int
}

// RankMonitor polls the /health endpoint of every rank still running.
// A rank that fails maxFailures checks in a row is reported once through
// the unhealthy callback, so the coordinator can close the run instead of
// waiting on a report that will never come.
// Thread-safe: All methods are safe for concurrent access.
type RankMonitor struct {
	ranks       map[int]*RankHealth
	httpClient  *http.Client
	checkFunc   func(addr string) error
	onUnhealthy func(rank int)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewRankMonitor creates a monitor that checks every interval and marks a
// rank unhealthy after 3 consecutive failures.
//
// Example:
//
//	monitor := NewRankMonitor(2 * time.Second)
//	monitor.SetOnUnhealthy(srv.rankLost)
//	go monitor.Start(ctx, srv.running)
func NewRankMonitor(interval time.Duration) *RankMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &RankMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		ranks:       make(map[int]*RankHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a rank becomes unhealthy.
func (h *RankMonitor) SetOnUnhealthy(callback func(rank int)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the HTTP health check.
func (h *RankMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}

// Start checks the ranks returned by peers until ctx or Stop ends it.
// Ranks no longer returned by peers are dropped from tracking. Start blocks.
func (h *RankMonitor) Start(ctx context.Context, peers func() []cluster.PeerInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("rank monitor started with interval %v", h.interval)
	h.checkAll(peers())

	for {
		select {
		case <-ticker.C:
			h.checkAll(peers())
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop cancels the monitoring loop and waits for it to return.
func (h *RankMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	log.Println("rank monitor stopped")
}

func (h *RankMonitor) checkAll(peers []cluster.PeerInfo) {
	current := make(map[int]bool, len(peers))
	for _, p := range peers {
		current[p.Rank] = true
		h.check(p)
	}

	h.mu.Lock()
	for rank := range h.ranks {
		if !current[rank] {
			delete(h.ranks, rank)
		}
	}
	h.mu.Unlock()
}

func (h *RankMonitor) check(p cluster.PeerInfo) {
	h.mu.Lock()
	health, ok := h.ranks[p.Rank]
	if !ok {
		health = &RankHealth{
			Rank:        p.Rank,
			Status:      StatusUnknown,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.ranks[p.Rank] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(p.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()
	health.LastCheck = time.Now()

	if err == nil {
		if health.Status == StatusUnhealthy {
			log.Printf("rank %d recovered", p.Rank)
		}
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = time.Now()
		return
	}

	health.ConsecutiveFails++
	log.Printf("health check failed for rank %d (attempt %d/%d): %v",
		p.Rank, health.ConsecutiveFails, h.maxFailures, err)
	if health.ConsecutiveFails < h.maxFailures || health.Status == StatusUnhealthy {
		return
	}
	health.Status = StatusUnhealthy
	log.Printf("rank %d marked unhealthy after %d failures", p.Rank, health.ConsecutiveFails)
	if h.onUnhealthy != nil {
		go h.onUnhealthy(p.Rank)
	}
}

func (h *RankMonitor) defaultHealthCheck(addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	url = strings.TrimRight(url, "/") + "/health"

	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build health request")
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "health check request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// RankHealth returns a copy of the health record of rank, or nil when the
// rank is not tracked.
func (h *RankMonitor) RankHealth(rank int) *RankHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.ranks[rank]
	if !ok {
		return nil
	}
	c := *health
	return &c
}

// All returns copies of all tracked health records keyed by rank.
func (h *RankMonitor) All() map[int]*RankHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[int]*RankHealth, len(h.ranks))
	for rank, health := range h.ranks {
		c := *health
		result[rank] = &c
	}
	return result
}

// IsHealthy reports whether rank passed its latest check.
func (h *RankMonitor) IsHealthy(rank int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.ranks[rank]
	return ok && health.Status == StatusHealthy
}
