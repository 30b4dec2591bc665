/*
Package structure moves water between two points of a partitioned
shallow-water domain through a culvert, pipe, weir or bridge.

# Overview

A structure has two inlets. Inlet 0 is the inflow, inlet 1 the outflow.
Each inlet's triangles may be spread over several partition ranks, so the
structure exchanges reduced inlet state between ranks every timestep:

	enquiry ranks ───reduce──> enquiry master ─InletEnergy──> structure master
	inflow members ──reduce──> inflow master ──InflowState──> structure master
	                                                                │ discharge
	inflow members <──────────────InletUpdate───────────────────────┤
	outflow members ─reduce──> outflow master ─OutflowState─> structure master
	outflow members <─────────────InletUpdate───────────────────────┘

Every exchange is a single record. A rank only performs the sends and
receives its roles require, as given by a coordinator.Topology.

# Geometry

A structure is placed either by two end points or by two exchange lines.
With end points the exchange lines are derived across the axis at each
end. Enquiry points, where the total energy on each side is sampled,
default to apron plus enquiry gap beyond each end.

# Discharge

The flow itself comes from a DischargeRoutine evaluated on the structure
master. FixedRate and Weir are provided; Unimplemented fails every step.
The inflow inlet loses volume semi-implicitly and the outflow inlet gains
the same volume, optionally with a momentum jet along the axis.

# Collective calls

New (with Logging), Step and Statistics are collective over the
structure's members. All ranks must call them for all structures in the
same order.
*/
package structure
