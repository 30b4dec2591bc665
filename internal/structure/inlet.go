package structure

import (
	"github.com/paulmach/orb"
)

// Inlet indices.
const (
	Inflow  = 0
	Outflow = 1
)

// Inlet is one end of a structure as seen from this rank.
type Inlet struct {
	index        int
	line         orb.LineString
	enquiryPoint orb.Point
	outward      orb.Point
	master       int
	procs        []int
	enquiry      Enquiry
	member       bool
}

// Enquiry returns the local view of the inlet's triangles. ok is false
// when this rank holds no part of the inlet.
func (in *Inlet) Enquiry() (e Enquiry, ok bool) {
	if !in.member {
		return nil, false
	}
	return in.enquiry, in.enquiry != nil
}

// Index returns 0 for the inflow inlet and 1 for the outflow inlet.
func (in *Inlet) Index() int { return in.index }

// Line returns the exchange line.
func (in *Inlet) Line() orb.LineString { return in.line.Clone() }

// EnquiryPoint returns the point where upstream conditions are sampled.
func (in *Inlet) EnquiryPoint() orb.Point { return in.enquiryPoint }

// Outward returns the unit vector pointing out of the structure through this inlet.
func (in *Inlet) Outward() orb.Point { return in.outward }

// Master returns the rank that reduces this inlet's state.
func (in *Inlet) Master() int { return in.master }

// Procs returns the ranks holding part of this inlet.
func (in *Inlet) Procs() []int { return append([]int(nil), in.procs...) }
