// Package mesh holds the triangulated domain that structures draw water
// from and deliver it to, split into one partition per rank.
//
// # Overview
//
// Every rank builds the same Mesh deterministically and keeps only its own
// Partition for state. Because the full triangulation is known everywhere,
// each rank can work out which partitions hold each structure inlet without
// communicating, and so arrive at the same role assignment.
//
//	 x=0                                                x=L
//	 ┌────────────┬────────────┬────────────┬────────────┐
//	 │ rank 0     │ rank 1     │ rank 2     │ rank 3     │
//	 │       ║    │            │  ║         │            │
//	 │  inlet 0   │            │ inlet 1    │            │
//	 └────────────┴────────────┴────────────┴────────────┘
//
// # Core Components
//
// Triangle: one cell with bed elevation, stage and momentum
//   - Depth is stage minus elevation, clamped at zero
//
// Partition: the triangles one rank owns
//   - Read/write/reduction counters, updated atomically
//   - Spatial queries: Near (exchange line) and Locate (enquiry point)
//
// InletRegion: a rank's share of one inlet, implementing structure.Enquiry
//   - Area-weighted averages reduce to the inlet master over the transport
//   - Setters only touch local triangles
//
// # Reductions
//
// Each collective read sends one partial {sum, area} from every inlet
// member to the inlet master, which combines them in ascending rank order.
// Non-master members get their local average back; the structure protocol
// ignores it.
//
// # Thread Safety
//
// Partition methods are safe for concurrent use. An InletRegion's
// collective reads must be called in the same order on every member.
package mesh
