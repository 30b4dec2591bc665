package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// PeerInfo identifies one rank of the process group and where its mailbox listens.
type PeerInfo struct {
	Rank int    `json:"rank"`
	Addr string `json:"addr"`
}

type RegisterRequest struct {
	Peer PeerInfo `json:"peer"`
}

// PeersResponse is the rendezvous view of the process group. Complete is set
// once every rank in [0, Size) has registered.
type PeersResponse struct {
	Session  string     `json:"session"`
	Size     int        `json:"size"`
	Complete bool       `json:"complete"`
	Peers    []PeerInfo `json:"peers"`
}

// RunReport is what a rank posts to the coordinator once its run is over.
type RunReport struct {
	Rank       int     `json:"rank"`
	Steps      int     `json:"steps"`
	Structures int     `json:"structures"`
	Volume     float64 `json:"volume"`
	Err        string  `json:"err,omitempty"`
}

// Envelope carries one structured message between two ranks. Seq counts
// messages per (From, To) pair starting at 1.
type Envelope struct {
	Session string          `json:"session,omitempty"`
	From    int             `json:"from"`
	To      int             `json:"to"`
	Seq     uint64          `json:"seq"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// HTTPError reports a non-2xx response from a peer.
type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Status)
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &HTTPError{URL: url, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "get %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &HTTPError{URL: url, Status: resp.StatusCode}
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}
