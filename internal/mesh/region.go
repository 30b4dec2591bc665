package mesh

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"

	"github.com/dreamware/sluice/internal/cluster"
	"github.com/dreamware/sluice/internal/structure"
)

// partial is one rank's contribution to an area-weighted reduction.
type partial struct {
	Sum  float64 `json:"sum"`
	Area float64 `json:"area"`
}

// Domain builds inlet views over one rank's partition.
type Domain struct {
	tr     cluster.Transport
	part   *Partition
	radius float64
}

// NewDomain returns the domain of the calling rank. Inlet regions take the
// local triangles whose centroid lies within radius of the exchange line.
func NewDomain(tr cluster.Transport, part *Partition, radius float64) *Domain {
	return &Domain{tr: tr, part: part, radius: radius}
}

// Partition returns the local partition.
func (d *Domain) Partition() *Partition { return d.part }

// NewEnquiry selects the local triangles of an inlet.
func (d *Domain) NewEnquiry(spec structure.InletSpec) (structure.Enquiry, error) {
	if len(spec.Line) < 2 {
		return nil, errors.Errorf("inlet %d exchange line has %d points", spec.Index, len(spec.Line))
	}
	r := &InletRegion{
		tr:   d.tr,
		part: d.part,
		idx:  d.part.Near(spec.Line, d.radius),
		spec: spec,
	}
	if i, ok := d.part.Locate(spec.EnquiryPoint); ok {
		r.enquiry = i
		r.hasEnquiry = true
	}
	return r, nil
}

// InletRegion is one rank's share of an inlet's triangles. Collective reads
// reduce to the inlet master; other members get their local values back.
type InletRegion struct {
	tr         cluster.Transport
	part       *Partition
	idx        []int
	spec       structure.InletSpec
	enquiry    int
	hasEnquiry bool
}

// Local returns the number of local triangles in the region.
func (r *InletRegion) Local() int { return len(r.idx) }

// EnquiryTriangle returns the local triangle holding the enquiry point.
func (r *InletRegion) EnquiryTriangle() (Triangle, bool) {
	if !r.hasEnquiry {
		return Triangle{}, false
	}
	return r.part.Triangle(r.enquiry), true
}

// reduce sums partials of every inlet member on the inlet master.
func (r *InletRegion) reduce(ctx context.Context, local partial) (partial, error) {
	return r.reduceOver(ctx, r.spec.Master, r.spec.Procs, local)
}

// reduceOver sums partials of procs on master. Every rank in procs must call
// it; master receives from the others in ascending rank order.
func (r *InletRegion) reduceOver(ctx context.Context, master int, procs []int, local partial) (partial, error) {
	rank := r.tr.Rank()
	if rank != master {
		r.part.countReduction()
		if err := r.tr.Send(ctx, master, local); err != nil {
			return local, errors.Wrapf(err, "inlet %d reduce", r.spec.Index)
		}
		return local, nil
	}

	total := local
	for _, p := range procs {
		if p == rank {
			continue
		}
		var in partial
		if err := r.tr.Receive(ctx, p, &in); err != nil {
			return total, errors.Wrapf(err, "inlet %d reduce", r.spec.Index)
		}
		r.part.countReduction()
		total.Sum += in.Sum
		total.Area += in.Area
	}
	return total, nil
}

func (r *InletRegion) average(ctx context.Context, f func(Triangle) float64) (float64, error) {
	sum, area := r.part.Sum(r.idx, f)
	total, err := r.reduce(ctx, partial{Sum: sum, Area: area})
	if err != nil {
		return 0, err
	}
	if total.Area <= 0 {
		return 0, nil
	}
	return total.Sum / total.Area, nil
}

// GlobalArea returns the inlet area summed over its members.
func (r *InletRegion) GlobalArea(ctx context.Context) (float64, error) {
	_, area := r.part.Sum(r.idx, func(Triangle) float64 { return 0 })
	total, err := r.reduce(ctx, partial{Area: area})
	return total.Area, err
}

// GlobalAverageDepth returns the area-weighted mean depth of the inlet.
func (r *InletRegion) GlobalAverageDepth(ctx context.Context) (float64, error) {
	return r.average(ctx, Triangle.Depth)
}

// GlobalAverageStage returns the area-weighted mean stage of the inlet.
func (r *InletRegion) GlobalAverageStage(ctx context.Context) (float64, error) {
	return r.average(ctx, func(t Triangle) float64 { return t.Stage })
}

// GlobalAverageXmom returns the area-weighted mean x momentum of the inlet.
func (r *InletRegion) GlobalAverageXmom(ctx context.Context) (float64, error) {
	return r.average(ctx, func(t Triangle) float64 { return t.Xmom })
}

// GlobalAverageYmom returns the area-weighted mean y momentum of the inlet.
func (r *InletRegion) GlobalAverageYmom(ctx context.Context) (float64, error) {
	return r.average(ctx, func(t Triangle) float64 { return t.Ymom })
}

// EnquiryTotalEnergy reduces the total energy of the enquiry triangle over
// the enquiry ranks. The lowest enquiry rank gets the mean over the ranks
// that locate the point, or 0 when none does; the others get their own
// value back.
func (r *InletRegion) EnquiryTotalEnergy(ctx context.Context) (float64, error) {
	procs := r.spec.EnquiryProcs
	if len(procs) == 0 {
		procs = r.spec.Procs
	}
	if len(procs) == 0 {
		return 0, errors.Errorf("inlet %d has no enquiry ranks", r.spec.Index)
	}

	var local partial
	if tri, ok := r.EnquiryTriangle(); ok {
		local = partial{Sum: tri.TotalEnergy(), Area: 1}
	}
	total, err := r.reduceOver(ctx, procs[0], procs, local)
	if err != nil || total.Area <= 0 {
		return 0, err
	}
	return total.Sum / total.Area, nil
}

// SetDepths sets every local triangle's stage to its elevation plus depth.
func (r *InletRegion) SetDepths(depth float64) {
	r.part.Update(r.idx, func(t *Triangle) { t.Stage = t.Elevation + depth })
}

// SetXmoms sets every local triangle's x momentum.
func (r *InletRegion) SetXmoms(xmom float64) {
	r.part.Update(r.idx, func(t *Triangle) { t.Xmom = xmom })
}

// SetYmoms sets every local triangle's y momentum.
func (r *InletRegion) SetYmoms(ymom float64) {
	r.part.Update(r.idx, func(t *Triangle) { t.Ymom = ymom })
}

// OutwardVector returns the inlet's outward unit vector.
func (r *InletRegion) OutwardVector() orb.Point { return r.spec.Outward }

// Statistics reduces the triangle count and area, and describes the inlet
// on its master.
func (r *InletRegion) Statistics(ctx context.Context) (string, error) {
	_, area := r.part.Sum(r.idx, func(Triangle) float64 { return 0 })
	total, err := r.reduce(ctx, partial{Sum: float64(len(r.idx)), Area: area})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	line := r.spec.Line
	fmt.Fprintf(&b, "inlet triangles: %d\n", int(total.Sum))
	fmt.Fprintf(&b, "area: %.4f\n", total.Area)
	fmt.Fprintf(&b, "exchange line: (%.4f, %.4f) (%.4f, %.4f)\n", line[0][0], line[0][1], line[1][0], line[1][1])
	fmt.Fprintf(&b, "enquiry point: (%.4f, %.4f)\n", r.spec.EnquiryPoint[0], r.spec.EnquiryPoint[1])
	fmt.Fprintf(&b, "outward vector: (%.4f, %.4f)\n", r.spec.Outward[0], r.spec.Outward[1])
	fmt.Fprintf(&b, "ranks: %v\n", r.spec.Procs)
	return b.String(), nil
}
