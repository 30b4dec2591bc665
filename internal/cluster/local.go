package cluster

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/dreamware/sluice/internal/mailbox"
)

// LocalTransport connects the ranks of a group living in one process. Each
// rank is normally driven by its own goroutine.
type LocalTransport struct {
	*endpoint
	group []mailbox.Mailbox
}

// NewLocalGroup creates n connected transports, one per rank.
//
// Example:
//
//	ranks := NewLocalGroup(3)
//	go func() { ranks[1].Send(ctx, 0, msg) }()
//	ranks[0].Receive(ctx, 1, &msg)
func NewLocalGroup(n int) []*LocalTransport {
	boxes := make([]mailbox.Mailbox, n)
	for i := range boxes {
		boxes[i] = mailbox.NewMemoryMailbox()
	}

	group := make([]*LocalTransport, n)
	for i := range group {
		group[i] = &LocalTransport{
			endpoint: newEndpoint(i, n, "", boxes[i]),
			group:    boxes,
		}
	}
	return group
}

// Serial returns a single-rank transport. Nothing is ever sent on it by a
// structure whose roles all fall on rank 0.
func Serial() *LocalTransport {
	return NewLocalGroup(1)[0]
}

func (t *LocalTransport) Send(ctx context.Context, dst int, msg any) error {
	env, err := t.seal(dst, msg)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrapf(t.group[dst].Push(t.rank, raw), "rank %d send to %d", t.rank, dst)
}

func (t *LocalTransport) Receive(ctx context.Context, src int, out any) error {
	return t.open(ctx, src, out)
}

// Stats reports the local mailbox statistics.
func (t *LocalTransport) Stats() mailbox.Stats {
	return t.box.Stats()
}

// Close shuts down this rank's mailbox, releasing any blocked Receive.
func (t *LocalTransport) Close() error {
	return t.box.Close()
}
