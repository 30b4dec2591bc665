// Package mailbox provides the per-rank incoming message queues that back
// sluice's point-to-point transport.
//
// # Overview
//
// Every rank owns exactly one Mailbox. A transport delivers an encoded
// envelope by pushing it into the destination rank's mailbox under the
// sender's rank; the destination later pops it with a blocking receive
// naming that sender. Queues are independent per source, so a receive from
// rank 2 is never satisfied by a message from rank 3.
//
//	 rank 1 ──Push(1, env)──┐
//	                        ▼
//	              ┌───────────────────┐
//	              │  Mailbox (rank 0) │
//	              │  from 1: [e1 e2]  │──Pop(ctx, 1)──▶ e1
//	              │  from 2: [e7]     │
//	              └───────────────────┘
//	                        ▲
//	 rank 2 ──Push(2, env)──┘
//
// # Ordering
//
// Payloads from one source are handed out in the order they were pushed.
// There is no ordering between different sources, and none is needed: the
// structure protocol always names the rank it expects to hear from.
//
// # Blocking and Shutdown
//
// Pop blocks until a payload arrives, the context is done, or the mailbox
// is closed. There is no timeout of its own: a receive without a matching
// send waits forever unless the caller's context carries a deadline. A
// missing counterpart is a topology error, not a transient fault.
//
// # Implementations
//
// MemoryMailbox: in-memory queues guarded by a mutex
//   - Payloads are copied on Push
//   - Blocked readers are woken through a per-source channel
//   - Used directly by the in-process transport and behind the HTTP handler
package mailbox
