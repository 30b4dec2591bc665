// Package cluster provides the process-group plumbing for sluice: peer
// discovery records, the point-to-point Transport used by the structure
// protocol, and its in-process and HTTP implementations.
//
// # Overview
//
// A simulation run is split across ranks 0..N-1, one per mesh partition.
// The ranks cooperate only by exchanging small structured records (inlet
// states, inlet updates, statistics text) between fixed pairs. The package
// models this as a blocking, reliable, ordered send/receive service:
//
//	┌─────────┐  Send(ctx, 0, InflowState{...})   ┌─────────┐
//	│ rank 2  │ ─────────────────────────────────▶│ rank 0  │
//	│         │                                   │ mailbox │
//	└─────────┘      Receive(ctx, 2, &state) ◀────│ from 2  │
//	                                              └─────────┘
//
// # Envelopes
//
// Every record travels inside an Envelope carrying the run session, the
// sender and receiver ranks, a per-pair sequence number and the record's
// Go type name. The receiving side checks all four:
//   - Session: envelopes from another run are rejected (ErrSessionMismatch)
//   - Seq: a skipped or repeated envelope fails with ErrOutOfOrder
//   - Kind: receiving a record of another type fails with ErrUnexpectedKind
//
// The kind check turns a mismatched send/receive pairing, which would
// otherwise decode silently into the wrong fields, into an explicit error.
//
// # Implementations
//
// LocalTransport: all ranks inside one process
//   - NewLocalGroup(n) wires n mailboxes together
//   - Used by unit tests and single-process runs (Serial)
//
// HTTPTransport: one rank per process
//   - POST /mailbox accepts envelopes into the local mailbox
//   - GET /health reports readiness once Connect has been called
//   - Send uses PostJSON against the destination's address
//
// # Failure Handling
//
// There are no retries. A failed Send or Receive is returned wrapped to
// the caller, which treats it as fatal to the run. A Receive with no
// matching Send blocks until its context ends.
//
// # Bootstrap
//
// cmd/coordinator is a rendezvous server: ranks POST a RegisterRequest and
// poll for a PeersResponse until it is Complete, then Connect their
// transport and call WaitReady before the first timestep.
package cluster
