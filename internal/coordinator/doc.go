// Package coordinator decides which process does what for every flow-transfer
// structure in a partitioned run.
//
// # Overview
//
// A culvert's two inlets can fall in different mesh partitions, and each
// inlet can itself straddle several. For every structure the package fixes:
//
//   - one structure master, the rank that evaluates the discharge
//   - per inlet, the member ranks that hold any of its triangles
//   - per inlet, one inlet master that reduces the inlet's state
//   - the ranks holding each enquiry point
//
// These roles are captured in an immutable Topology, computed once at setup
// and never changed during timestepping.
//
// # Architecture
//
//	  partitions ──▶ Ownership ──▶ RoleRegistry.Assign ──▶ Topology
//	  (per rank)     (which ranks     (lowest-rank          (immutable,
//	                  own inlets)      masters)              per structure)
//
// # Core Components
//
// Topology: the role assignment of one structure
//   - Built from a TopologySpec with single-process defaults
//   - Checks that each inlet master belongs to its inlet
//   - Role predicates (IsMaster, IsInletMember, IsInletMaster, IsMember)
//
// RoleRegistry: all topologies of a run
//   - Assign derives a topology deterministically from ownership
//   - StructuresFor lists, in order, the structures a rank takes part in
//
// Sequence: structure numbering
//   - Produces the sequence number embedded in structure labels
//   - Owned by the setup code and reset per run
//
// RankMonitor: liveness during a run
//   - Polls each running rank's /health endpoint
//   - Reports a rank once after consecutive failures
//
// # Determinism
//
// Every rank runs the same assignment over the same ownership data, so the
// topologies agree across the process group without any exchange.
// Structures must be stepped in ascending ID order on every rank; a rank
// that skipped ahead to a later structure could wait on a peer that is
// still serving an earlier one.
package coordinator
