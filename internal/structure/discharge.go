package structure

import (
	"context"
	"math"
)

// Gravity is the gravitational acceleration used by the bundled routines.
const Gravity = 9.81

// Ambient is the input to a discharge evaluation: the gathered inflow
// state, the total energy at both enquiry points and the structure's fixed
// dimensions.
type Ambient struct {
	Inflow InflowState
	// TotalEnergy is stage plus velocity head at each enquiry point,
	// inflow first.
	TotalEnergy [2]float64
	Timestep    float64
	Width       float64
	Height      float64
	Length      float64
	Manning     float64
}

// DeltaTotalEnergy is the energy drop from the inflow to the outflow
// enquiry point.
func (a Ambient) DeltaTotalEnergy() float64 {
	return a.TotalEnergy[Inflow] - a.TotalEnergy[Outflow]
}

// Discharge is the result of a discharge evaluation.
type Discharge struct {
	Q                float64
	BarrelSpeed      float64
	OutletDepth      float64
	DrivingEnergy    float64
	DeltaTotalEnergy float64
	// Case names the control regime, for reports.
	Case string
}

// DischargeRoutine computes the flow through a structure from the inflow
// state. It runs on the structure master only.
type DischargeRoutine interface {
	Discharge(ctx context.Context, amb Ambient) (Discharge, error)
}

// DischargeFunc adapts a function to DischargeRoutine.
type DischargeFunc func(ctx context.Context, amb Ambient) (Discharge, error)

// Discharge calls f.
func (f DischargeFunc) Discharge(ctx context.Context, amb Ambient) (Discharge, error) {
	return f(ctx, amb)
}

// Unimplemented is the routine of a generic structure with no physics.
type Unimplemented struct{}

// Discharge always fails with ErrDischargeUnimplemented.
func (Unimplemented) Discharge(context.Context, Ambient) (Discharge, error) {
	return Discharge{}, ErrDischargeUnimplemented
}

// FixedRate discharges a prescribed rate whenever the inflow inlet is wet.
type FixedRate struct {
	Q float64
}

// Discharge returns the prescribed rate through a barrel filled to the
// inflow depth, capped at the barrel height.
func (r FixedRate) Discharge(_ context.Context, amb Ambient) (Discharge, error) {
	energy := specificEnergy(amb.Inflow)
	delta := amb.DeltaTotalEnergy()
	depth := math.Min(amb.Inflow.Depth, amb.Height)
	if depth <= 0 || r.Q <= 0 {
		return Discharge{DrivingEnergy: energy, DeltaTotalEnergy: delta, Case: "dry"}, nil
	}

	speed := 0.0
	if amb.Width > 0 {
		speed = r.Q / (amb.Width * depth)
	}
	return Discharge{
		Q:                r.Q,
		BarrelSpeed:      speed,
		OutletDepth:      depth,
		DrivingEnergy:    energy,
		DeltaTotalEnergy: delta,
		Case:             "fixed rate",
	}, nil
}

// Weir treats the structure entrance as a broad-crested weir on the
// inflow specific energy, with critical depth at the outlet. Tailwater
// drowns the weir: the head is capped at the energy drop between the
// enquiry points, and nothing passes when that drop is not positive.
type Weir struct {
	// Coefficient scales the ideal weir discharge. Zero means 1.
	Coefficient float64
}

// Discharge returns the critical-depth flow over the weir.
func (r Weir) Discharge(_ context.Context, amb Ambient) (Discharge, error) {
	h := specificEnergy(amb.Inflow)
	delta := amb.DeltaTotalEnergy()
	if h <= 0 || amb.Width <= 0 {
		return Discharge{DeltaTotalEnergy: delta, Case: "dry"}, nil
	}
	if delta <= 0 {
		return Discharge{DrivingEnergy: h, DeltaTotalEnergy: delta, Case: "no flow"}, nil
	}
	cd := r.Coefficient
	if cd == 0 {
		cd = 1
	}

	head, regime := h, "weir flow"
	if delta < h {
		head, regime = delta, "drowned weir"
	}
	yc := 2.0 / 3.0 * head
	if amb.Height > 0 && yc > amb.Height {
		yc = amb.Height
	}
	speed := math.Sqrt(Gravity * yc)
	return Discharge{
		Q:                cd * amb.Width * yc * speed,
		BarrelSpeed:      speed,
		OutletDepth:      yc,
		DrivingEnergy:    h,
		DeltaTotalEnergy: delta,
		Case:             regime,
	}, nil
}

// specificEnergy is depth plus velocity head of the inflow state.
func specificEnergy(in InflowState) float64 {
	if in.Depth <= 0 {
		return 0
	}
	u := in.Xmom / in.Depth
	v := in.Ymom / in.Depth
	return in.Depth + (u*u+v*v)/(2*Gravity)
}
