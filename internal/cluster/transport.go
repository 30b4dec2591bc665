package cluster

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/pkg/errors"

	"github.com/dreamware/sluice/internal/mailbox"
)

var (
	// ErrInvalidRank is returned when a peer rank lies outside [0, Size).
	ErrInvalidRank = errors.New("rank out of range")
	// ErrSessionMismatch is returned when an envelope belongs to another run.
	ErrSessionMismatch = errors.New("session mismatch")
	// ErrUnexpectedKind is returned when a receive names a different record
	// type than the one the sender sent next.
	ErrUnexpectedKind = errors.New("unexpected message kind")
	// ErrOutOfOrder is returned when envelopes from one peer skip or repeat.
	ErrOutOfOrder = errors.New("message out of order")
)

// Transport is the point-to-point message service between the ranks of one
// run. Send and Receive block; messages between a fixed pair of ranks are
// delivered reliably and in order. Every Send must be matched by exactly one
// Receive naming the sender, with a record of the same type.
type Transport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dst int, msg any) error
	Receive(ctx context.Context, src int, out any) error
}

// KindOf names the record type carried by an envelope.
func KindOf(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "nil"
	}
	return t.String()
}

// endpoint holds the state shared by every transport: the local mailbox and
// the per-peer sequence counters.
type endpoint struct {
	mu      sync.Mutex
	rank    int
	size    int
	session string
	box     mailbox.Mailbox
	sent    map[int]uint64
	recv    map[int]uint64
}

func newEndpoint(rank, size int, session string, box mailbox.Mailbox) *endpoint {
	return &endpoint{
		rank:    rank,
		size:    size,
		session: session,
		box:     box,
		sent:    make(map[int]uint64),
		recv:    make(map[int]uint64),
	}
}

func (e *endpoint) Rank() int {
	return e.rank
}

func (e *endpoint) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

func (e *endpoint) checkRank(r int) error {
	if size := e.Size(); r < 0 || r >= size {
		return errors.Wrapf(ErrInvalidRank, "rank %d, size %d", r, size)
	}
	return nil
}

// seal wraps msg in the next envelope for dst.
func (e *endpoint) seal(dst int, msg any) (Envelope, error) {
	if err := e.checkRank(dst); err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "encode %s", KindOf(msg))
	}

	e.mu.Lock()
	e.sent[dst]++
	env := Envelope{
		Session: e.session,
		From:    e.rank,
		To:      dst,
		Seq:     e.sent[dst],
		Kind:    KindOf(msg),
		Payload: payload,
	}
	e.mu.Unlock()
	return env, nil
}

// open pops the next envelope from src and decodes it into out.
func (e *endpoint) open(ctx context.Context, src int, out any) error {
	if err := e.checkRank(src); err != nil {
		return err
	}
	raw, err := e.box.Pop(ctx, src)
	if err != nil {
		return errors.Wrapf(err, "rank %d receive from %d", e.rank, src)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrapf(err, "rank %d decode envelope from %d", e.rank, src)
	}

	e.mu.Lock()
	session := e.session
	want := e.recv[src] + 1
	if env.Seq == want {
		e.recv[src] = want
	}
	e.mu.Unlock()

	if env.Session != session {
		return errors.Wrapf(ErrSessionMismatch, "rank %d got session %q from %d", e.rank, env.Session, src)
	}
	if env.Seq != want {
		return errors.Wrapf(ErrOutOfOrder, "rank %d expected seq %d from %d, got %d", e.rank, want, src, env.Seq)
	}
	if kind := KindOf(out); env.Kind != kind {
		return errors.Wrapf(ErrUnexpectedKind, "rank %d expected %s from %d, got %s", e.rank, kind, src, env.Kind)
	}
	return errors.Wrapf(json.Unmarshal(env.Payload, out), "decode %s", env.Kind)
}
