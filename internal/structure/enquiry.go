package structure

import (
	"context"

	"github.com/paulmach/orb"
)

// Enquiry is one rank's view of the mesh triangles belonging to an inlet.
//
// The Global* reads are collective over the inlet's member ranks: every
// member must call them in the same order. Their results are meaningful on
// the inlet master, which is the only rank whose values the structure
// protocol forwards. Setters overwrite the local triangles only.
type Enquiry interface {
	GlobalArea(ctx context.Context) (float64, error)
	GlobalAverageDepth(ctx context.Context) (float64, error)
	GlobalAverageStage(ctx context.Context) (float64, error)
	GlobalAverageXmom(ctx context.Context) (float64, error)
	GlobalAverageYmom(ctx context.Context) (float64, error)

	// EnquiryTotalEnergy is stage plus velocity head at the enquiry point.
	// It is collective over the enquiry ranks and meaningful on the lowest
	// of them.
	EnquiryTotalEnergy(ctx context.Context) (float64, error)

	SetDepths(depth float64)
	SetXmoms(xmom float64)
	SetYmoms(ymom float64)

	// OutwardVector is the unit vector pointing away from the structure
	// through this inlet.
	OutwardVector() orb.Point

	// Statistics describes the inlet. Collective, like the Global* reads.
	Statistics(ctx context.Context) (string, error)
}

// InletSpec describes an inlet to the domain that builds its Enquiry.
type InletSpec struct {
	Index        int
	Line         orb.LineString
	EnquiryPoint orb.Point
	Outward      orb.Point
	Master       int
	Procs        []int
	EnquiryProcs []int
	Verbose      bool
}

// Domain is the local partition of the mesh, able to build inlet views.
// NewEnquiry is only called on ranks that hold part of the inlet or its
// enquiry point.
type Domain interface {
	NewEnquiry(spec InletSpec) (Enquiry, error)
}
