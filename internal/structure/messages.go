package structure

import "github.com/paulmach/orb"

// Records exchanged by the timestep protocol. Each exchange sends exactly
// one record, so sender and receiver can never disagree on field order.

// InflowState is the reduced state of the inflow inlet, sent by the inflow
// inlet master to the structure master.
type InflowState struct {
	Depth float64 `json:"depth"`
	Stage float64 `json:"stage"`
	Xmom  float64 `json:"xmom"`
	Ymom  float64 `json:"ymom"`
	Area  float64 `json:"area"`
}

// OutflowState is the reduced state of the outflow inlet, sent by the
// outflow inlet master to the structure master.
type OutflowState struct {
	Area    float64   `json:"area"`
	Depth   float64   `json:"depth"`
	Outward orb.Point `json:"outward"`
}

// InletEnergy is the total energy sampled at an inlet's enquiry point,
// sent by the enquiry master to the structure master.
type InletEnergy struct {
	Energy float64 `json:"energy"`
}

// InletUpdate carries the new depth and momentum of an inlet from the
// structure master to every member of that inlet.
type InletUpdate struct {
	Depth float64 `json:"depth"`
	Xmom  float64 `json:"xmom"`
	Ymom  float64 `json:"ymom"`
}

// InletStats carries an inlet's statistics text to the structure master.
type InletStats struct {
	Text string `json:"text"`
}
