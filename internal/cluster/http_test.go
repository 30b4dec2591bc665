package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/sluice/internal/mailbox"
)

// newHTTPPair starts two HTTP transports behind test servers and connects them.
func newHTTPPair(t *testing.T, session string) ([]*HTTPTransport, []*httptest.Server) {
	t.Helper()

	trs := []*HTTPTransport{
		NewHTTPTransport(0, mailbox.NewMemoryMailbox()),
		NewHTTPTransport(1, mailbox.NewMemoryMailbox()),
	}
	srvs := []*httptest.Server{
		httptest.NewServer(trs[0].Handler()),
		httptest.NewServer(trs[1].Handler()),
	}
	t.Cleanup(func() {
		for _, s := range srvs {
			s.Close()
		}
	})

	peers := []PeerInfo{{Rank: 1, Addr: srvs[1].URL}, {Rank: 0, Addr: srvs[0].URL}}
	for _, tr := range trs {
		require.NoError(t, tr.Connect(session, peers))
	}
	return trs, srvs
}

// TestHTTPTransportRoundTrip verifies envelopes cross real HTTP connections
func TestHTTPTransportRoundTrip(t *testing.T) {
	ctx := context.Background()
	trs, _ := newHTTPPair(t, "run-1")

	require.NoError(t, trs[0].Send(ctx, 1, record{Depth: 0.5, Area: 3}))
	require.NoError(t, trs[0].Send(ctx, 1, record{Depth: 0.25, Area: 3}))

	var got record
	require.NoError(t, trs[1].Receive(ctx, 0, &got))
	assert.Equal(t, 0.5, got.Depth)
	require.NoError(t, trs[1].Receive(ctx, 0, &got))
	assert.Equal(t, 0.25, got.Depth)

	assert.Equal(t, 2, trs[1].Size())
	assert.Len(t, trs[1].Peers(), 2)
	assert.Equal(t, 0, trs[1].Peers()[0].Rank)
}

// TestHTTPTransportHealth verifies /health tracks Connect
func TestHTTPTransportHealth(t *testing.T) {
	tr := NewHTTPTransport(0, mailbox.NewMemoryMailbox())
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, tr.Connect("s", []PeerInfo{{Rank: 0, Addr: srv.URL}}))

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestHTTPTransportSessionMismatch verifies a foreign run cannot inject envelopes
func TestHTTPTransportSessionMismatch(t *testing.T) {
	trs, srvs := newHTTPPair(t, "run-1")

	env := Envelope{Session: "run-0", From: 0, To: 1, Seq: 1, Kind: KindOf(record{}), Payload: json.RawMessage(`{}`)}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := http.Post(srvs[1].URL+"/mailbox", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 0, trs[1].box.Pending(0))
}

// TestHTTPTransportBadRoute verifies envelopes addressed elsewhere are refused
func TestHTTPTransportBadRoute(t *testing.T) {
	_, srvs := newHTTPPair(t, "run-1")

	tests := []struct {
		name string
		env  Envelope
	}{
		{"wrong destination", Envelope{Session: "run-1", From: 0, To: 0, Seq: 1}},
		{"unknown sender", Envelope{Session: "run-1", From: 7, To: 1, Seq: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(tt.env)
			require.NoError(t, err)
			resp, err := http.Post(srvs[1].URL+"/mailbox", "application/json", bytes.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

// TestHTTPTransportConnectValidation verifies the peer table must be dense
func TestHTTPTransportConnectValidation(t *testing.T) {
	tests := []struct {
		name  string
		rank  int
		peers []PeerInfo
	}{
		{"gap in ranks", 0, []PeerInfo{{Rank: 0, Addr: "a"}, {Rank: 2, Addr: "b"}}},
		{"missing address", 0, []PeerInfo{{Rank: 0, Addr: ""}}},
		{"local rank absent", 3, []PeerInfo{{Rank: 0, Addr: "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewHTTPTransport(tt.rank, mailbox.NewMemoryMailbox())
			assert.Error(t, tr.Connect("s", tt.peers))
		})
	}
}

// TestWaitReady verifies WaitReady returns once every peer is connected
func TestWaitReady(t *testing.T) {
	t.Run("all ready", func(t *testing.T) {
		trs, _ := newHTTPPair(t, "run-1")
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, WaitReady(ctx, trs[0].Peers(), 10*time.Millisecond))
	})

	t.Run("peer never connects", func(t *testing.T) {
		tr := NewHTTPTransport(0, mailbox.NewMemoryMailbox())
		srv := httptest.NewServer(tr.Handler())
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := WaitReady(ctx, []PeerInfo{{Rank: 0, Addr: srv.URL}}, 10*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
