package structure

import (
	"context"
	"log"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// OutflowResult is the outcome of applying a discharge to the outflow inlet.
type OutflowResult struct {
	Update        InletUpdate
	Loss          float64 // volume removed from the inflow inlet
	Gain          float64 // volume added to the outflow inlet
	ExtraDepth    float64
	ExtraMomentum orb.Point
	Direction     orb.Point
}

// InflowUpdate removes a discharge q from the inflow inlet over timestep
// semi-implicitly. Depth and momentum scale by the same factor in [0, 1]
// for non-negative q, so the inlet never goes negative. An inlet without
// area holds no volume and is emptied, which keeps the outflow gain at zero.
func InflowUpdate(old InflowState, q, timestep float64) InletUpdate {
	qStar := 0.0
	if old.Depth > 0 {
		qStar = q / old.Depth
	}
	factor := 0.0
	if old.Area > 0 {
		factor = 1 / (1 + qStar*timestep/old.Area)
	}
	return InletUpdate{
		Depth: old.Depth * factor,
		Xmom:  old.Xmom * factor,
		Ymom:  old.Ymom * factor,
	}
}

// OutflowUpdate adds to the outflow inlet the volume the inflow update
// removed. With jet set the outflow momentum is the barrel jet along the
// structure axis, otherwise it is zeroed.
func OutflowUpdate(old InflowState, updated InletUpdate, out OutflowState, d Discharge, timestep float64, jet bool) OutflowResult {
	loss := (old.Depth - updated.Depth) * old.Area

	dtStar := 0.0
	if old.Depth > 0 {
		dtStar = timestep * updated.Depth / old.Depth
	}
	extra := 0.0
	if out.Area > 0 {
		extra = d.Q * dtStar / out.Area
	}

	dir := scale(out.Outward, -1)
	res := OutflowResult{
		Loss:          loss,
		Gain:          extra * out.Area,
		ExtraDepth:    extra,
		ExtraMomentum: scale(dir, extra*d.BarrelSpeed),
		Direction:     dir,
	}

	res.Update.Depth = out.Depth + extra
	if jet {
		res.Update.Xmom = d.BarrelSpeed * res.Update.Depth * dir[0]
		res.Update.Ymom = d.BarrelSpeed * res.Update.Depth * dir[1]
	}
	return res
}

// Step advances the structure by one timestep. It is collective: every
// member rank must call it with the same timestep, and ranks outside the
// topology return immediately.
//
// Sequence, each exchange one record:
//  0. the enquiry ranks of each inlet reduce the total energy at the
//     enquiry point and the enquiry master sends InletEnergy to the
//     structure master
//  1. the inflow inlet master sends InflowState to the structure master
//  2. the master evaluates the discharge and the inflow update
//  3. the master sends InletUpdate to the other inflow members
//  4. the outflow inlet master sends OutflowState to the structure master
//  5. the master evaluates the outflow update
//  6. the master sends InletUpdate to the other outflow members
//
// Any transport or routine error aborts the step and is returned.
func (s *Structure) Step(ctx context.Context, timestep float64) error {
	rank := s.tr.Rank()
	if !s.topo.IsMember(rank) {
		return nil
	}
	master := s.topo.IsMaster(rank)

	// enquiry energies
	var energy [2]float64
	for i, in := range s.inlets {
		var rec InletEnergy
		if s.topo.IsEnquiryMember(i, rank) && in.enquiry != nil {
			e, err := in.enquiry.EnquiryTotalEnergy(ctx)
			if err != nil {
				return errors.Wrapf(err, "structure %s: inlet %d energy", s.label, i)
			}
			rec.Energy = e
		}
		if err := s.gather(ctx, s.topo.EnquiryMaster(i), &rec); err != nil {
			return errors.Wrapf(err, "structure %s: gather inlet %d energy", s.label, i)
		}
		energy[i] = rec.Energy
	}

	// inflow gather
	var inflow InflowState
	if e, ok := s.inlets[Inflow].Enquiry(); ok {
		st, err := readInflow(ctx, e)
		if err != nil {
			return errors.Wrapf(err, "structure %s: read inflow", s.label)
		}
		inflow = st
	}
	if err := s.gather(ctx, s.topo.InletMaster(Inflow), &inflow); err != nil {
		return errors.Wrapf(err, "structure %s: gather inflow", s.label)
	}

	var (
		d      Discharge
		update InletUpdate
	)
	if master {
		var err error
		d, err = s.routine.Discharge(ctx, Ambient{
			Inflow:      inflow,
			TotalEnergy: energy,
			Timestep:    timestep,
			Width:       s.width,
			Height:      s.height,
			Length:      s.geom.Length,
			Manning:     s.manning,
		})
		if err != nil {
			return errors.Wrapf(err, "structure %s", s.label)
		}
		update = InflowUpdate(inflow, d.Q, timestep)
	}
	if err := s.scatter(ctx, Inflow, &update); err != nil {
		return errors.Wrapf(err, "structure %s: scatter inflow", s.label)
	}

	// outflow gather
	var outflow OutflowState
	if e, ok := s.inlets[Outflow].Enquiry(); ok {
		st, err := readOutflow(ctx, e)
		if err != nil {
			return errors.Wrapf(err, "structure %s: read outflow", s.label)
		}
		outflow = st
	}
	if err := s.gather(ctx, s.topo.InletMaster(Outflow), &outflow); err != nil {
		return errors.Wrapf(err, "structure %s: gather outflow", s.label)
	}

	var outUpdate InletUpdate
	if master {
		res := OutflowUpdate(inflow, update, outflow, d, timestep, s.jet)
		outUpdate = res.Update
		s.mu.Lock()
		s.last = d
		s.mu.Unlock()
		if s.verbose {
			log.Printf("structure[%s] Q=%.5f speed=%.5f loss=%.5f gain=%.5f case=%q",
				s.label, d.Q, d.BarrelSpeed, res.Loss, res.Gain, d.Case)
		}
	}
	if err := s.scatter(ctx, Outflow, &outUpdate); err != nil {
		return errors.Wrapf(err, "structure %s: scatter outflow", s.label)
	}

	s.mu.Lock()
	s.stepCount++
	s.mu.Unlock()
	return nil
}

// gather moves a reduced record from the rank that holds it to the
// structure master. It is a no-op when both roles are held by one rank.
func (s *Structure) gather(ctx context.Context, from int, state any) error {
	rank := s.tr.Rank()
	switch {
	case s.topo.IsMaster(rank) && rank != from:
		return s.tr.Receive(ctx, from, state)
	case !s.topo.IsMaster(rank) && rank == from:
		return s.tr.Send(ctx, s.topo.Master(), state)
	}
	return nil
}

// scatter delivers the master's update of inlet i to every inlet member
// and applies it locally.
func (s *Structure) scatter(ctx context.Context, i int, update *InletUpdate) error {
	rank := s.tr.Rank()
	if s.topo.IsMaster(rank) {
		for _, p := range s.topo.InletProcs(i) {
			if p == rank {
				continue
			}
			if err := s.tr.Send(ctx, p, update); err != nil {
				return err
			}
		}
	} else if s.topo.IsInletMember(i, rank) {
		if err := s.tr.Receive(ctx, s.topo.Master(), update); err != nil {
			return err
		}
	}

	if e, ok := s.inlets[i].Enquiry(); ok {
		e.SetDepths(update.Depth)
		e.SetXmoms(update.Xmom)
		e.SetYmoms(update.Ymom)
	}
	return nil
}

func readInflow(ctx context.Context, e Enquiry) (InflowState, error) {
	var (
		st  InflowState
		err error
	)
	if st.Depth, err = e.GlobalAverageDepth(ctx); err != nil {
		return st, err
	}
	if st.Stage, err = e.GlobalAverageStage(ctx); err != nil {
		return st, err
	}
	if st.Xmom, err = e.GlobalAverageXmom(ctx); err != nil {
		return st, err
	}
	if st.Ymom, err = e.GlobalAverageYmom(ctx); err != nil {
		return st, err
	}
	st.Area, err = e.GlobalArea(ctx)
	return st, err
}

func readOutflow(ctx context.Context, e Enquiry) (OutflowState, error) {
	var (
		st  OutflowState
		err error
	)
	if st.Area, err = e.GlobalArea(ctx); err != nil {
		return st, err
	}
	if st.Depth, err = e.GlobalAverageDepth(ctx); err != nil {
		return st, err
	}
	st.Outward = e.OutwardVector()
	return st, nil
}
