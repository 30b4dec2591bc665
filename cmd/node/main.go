// Package main implements the sluice node, one rank of a distributed
// simulation run. It owns a strip of the channel mesh, exchanges inlet state
// with the other ranks through its HTTP mailbox and steps the structures it
// is a member of.
//
// Lifecycle:
//
//	register ──► wait for full peer table ──► connect mailbox ──► wait for peers
//	    ──► build mesh and structures ──► step ──► post run report ──► exit
//
// Configuration:
//   - NODE_RANK: rank of this process in [0, RANKS) (required)
//   - NODE_LISTEN: listen address (default: ":8081")
//   - NODE_ADDR: public address for peers (default: "http://127.0.0.1:8081")
//   - COORDINATOR_ADDR: coordinator URL (required)
//   - SCENARIO: path of the YAML scenario (required)
//
// Example usage:
//
//	NODE_RANK=0 \
//	NODE_LISTEN=:8081 \
//	NODE_ADDR=http://localhost:8081 \
//	COORDINATOR_ADDR=http://localhost:8080 \
//	SCENARIO=scenario.yaml \
//	./node
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/dreamware/sluice/internal/cluster"
	"github.com/dreamware/sluice/internal/config"
	"github.com/dreamware/sluice/internal/mailbox"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// peerPollInterval is how often the coordinator's peer table is polled.
var peerPollInterval = 250 * time.Millisecond

func main() {
	rank, err := strconv.Atoi(mustGetenv("NODE_RANK"))
	if err != nil || rank < 0 {
		logFatal("NODE_RANK must be a non-negative integer: %v", err)
		return
	}
	listen := getenv("NODE_LISTEN", ":8081")
	public := getenv("NODE_ADDR", "http://127.0.0.1:8081")
	coord := mustGetenv("COORDINATOR_ADDR")
	sc, err := config.Load(mustGetenv("SCENARIO"))
	if err != nil {
		logFatal("node[%d] %v", rank, err)
		return
	}

	tr := cluster.NewHTTPTransport(rank, mailbox.NewMemoryMailbox())
	s := &http.Server{
		Addr:              listen,
		Handler:           tr.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("node[%d] listening on %s (public %s)", rank, listen, public)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("node[%d] interrupted", rank)
		cancel()
	}()

	register(ctx, coord, rank, public)
	rep, err := execute(ctx, coord, sc, tr)
	if err != nil {
		log.Printf("node[%d] run failed: %v", rank, err)
	}
	if err := cluster.PostJSON(ctx, coord+"/reports", rep, nil); err != nil {
		log.Printf("node[%d] report: %v", rank, err)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = s.Shutdown(shutdownCtx)
	log.Printf("node[%d] stopped", rank)
}

// execute joins the process group and runs the scenario on this rank.
func execute(ctx context.Context, coord string, sc *config.Scenario, tr *cluster.HTTPTransport) (cluster.RunReport, error) {
	rep := cluster.RunReport{Rank: tr.Rank()}
	peers, err := waitPeers(ctx, coord, peerPollInterval)
	if err != nil {
		rep.Err = err.Error()
		return rep, err
	}
	if err := tr.Connect(peers.Session, peers.Peers); err != nil {
		rep.Err = err.Error()
		return rep, err
	}
	if err := cluster.WaitReady(ctx, peers.Peers, peerPollInterval); err != nil {
		rep.Err = err.Error()
		return rep, err
	}
	log.Printf("node[%d] joined session %s with %d ranks", tr.Rank(), peers.Session, peers.Size)
	return run(ctx, sc, tr)
}

// run builds the node for tr and runs the scenario to completion. Rank 0
// draws the progress bar and writes the structure geometry.
func run(ctx context.Context, sc *config.Scenario, tr cluster.Transport) (cluster.RunReport, error) {
	n, err := NewNode(ctx, sc, tr)
	if err != nil {
		return cluster.RunReport{Rank: tr.Rank(), Err: err.Error()}, err
	}
	defer n.Close()

	if n.Rank == 0 && sc.Run.GeoJSON != "" {
		if err := n.WriteGeoJSON(sc.Run.GeoJSON); err != nil {
			log.Printf("node[%d] %v", n.Rank, err)
		}
	}

	var tick func()
	if n.Rank == 0 && sc.Run.Steps > 0 && !sc.Run.Quiet {
		var stop func()
		tick, stop = startProgress(sc.Run.Steps)
		defer stop()
	}
	return n.Run(ctx, os.Stdout, tick)
}

// waitPeers polls the coordinator until every rank has registered.
func waitPeers(ctx context.Context, coord string, interval time.Duration) (cluster.PeersResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var resp cluster.PeersResponse
		err := cluster.GetJSON(ctx, coord+"/peers", &resp)
		if err == nil && resp.Complete {
			return resp, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return cluster.PeersResponse{}, errors.Wrap(ctx.Err(), "waiting for peers")
		}
	}
}

// register announces this rank to the coordinator, retrying while the
// coordinator comes up. It is fatal when every attempt fails.
func register(ctx context.Context, coord string, rank int, addr string) {
	body := cluster.RegisterRequest{Peer: cluster.PeerInfo{Rank: rank, Addr: addr}}
	var lastErr error

	for i := 0; i < 10; i++ {
		lastErr = cluster.PostJSON(ctx, coord+"/register", body, nil)
		if lastErr == nil {
			log.Printf("node[%d] registered with coordinator @ %s", rank, coord)
			return
		}
		log.Printf("register retry %d: %v", i+1, lastErr)
		time.Sleep(400 * time.Millisecond)
	}

	logFatal("failed to register with coordinator: %v", lastErr)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustGetenv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		logFatal("missing env %s", k)
	}
	return v
}
