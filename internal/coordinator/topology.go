// Package coordinator assigns and describes the roles processes play for each
// flow-transfer structure. See doc.go for complete package documentation.
package coordinator

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

var (
	// ErrInvalidRank is returned for negative or out-of-range ranks.
	ErrInvalidRank = errors.New("invalid rank")
	// ErrInletMasterNotMember is returned when an inlet's master does not
	// hold any part of that inlet.
	ErrInletMasterNotMember = errors.New("inlet master is not an inlet member")
	// ErrNoOwner is returned when no rank holds any part of an inlet.
	ErrNoOwner = errors.New("inlet has no owning rank")
)

// TopologySpec carries the role parameters of one structure as supplied by
// the partitioning step. Nil member sets take single-process defaults.
//
// Fields:
//   - Master: rank that evaluates the discharge for the structure
//   - Procs: ranks holding any part of the structure (default: [Master])
//   - InletMasters: rank reducing each inlet's state (index 0 inflow, 1 outflow)
//   - InletProcs: ranks holding part of each inlet (default: [[InletMasters[i]]])
//   - EnquiryProcs: ranks holding each enquiry point (default: same as InletProcs,
//     also for an inlet given an empty set)
type TopologySpec struct {
	Master       int
	Procs        []int
	InletMasters [2]int
	InletProcs   [][]int
	EnquiryProcs [][]int
}

// Topology is the immutable role assignment of one structure across the
// process group. Accessors return copies.
//
// Invariants:
//   - each inlet master is a member of its inlet
//   - member sets are sorted and free of duplicates
//
// The structure master is expected to belong to at least one inlet member
// set; the factory building topologies guarantees it, NewTopology does not
// check it.
type Topology struct {
	master       int
	procs        []int
	inletMasters [2]int
	inletProcs   [2][]int
	enquiryProcs [2][]int
}

// NewTopology validates a spec and fills its defaults.
//
// Returns:
//   - ErrInvalidRank if any rank is negative
//   - ErrInletMasterNotMember if an inlet master is missing from its inlet set
//   - an error if InletProcs or EnquiryProcs is given with a length other than 2
//
// Example:
//
//	topo, err := NewTopology(TopologySpec{
//	    Master:       0,
//	    Procs:        []int{0, 1},
//	    InletMasters: [2]int{0, 1},
//	    InletProcs:   [][]int{{0}, {1}},
//	})
func NewTopology(spec TopologySpec) (Topology, error) {
	t := Topology{
		master:       spec.Master,
		inletMasters: spec.InletMasters,
	}

	if spec.Procs == nil {
		t.procs = []int{spec.Master}
	} else {
		t.procs = normalize(spec.Procs)
	}

	switch len(spec.InletProcs) {
	case 0:
		for i := range t.inletProcs {
			t.inletProcs[i] = []int{spec.InletMasters[i]}
		}
	case 2:
		for i := range t.inletProcs {
			t.inletProcs[i] = normalize(spec.InletProcs[i])
		}
	default:
		return Topology{}, errors.Errorf("inlet procs must list 2 inlets, got %d", len(spec.InletProcs))
	}

	switch len(spec.EnquiryProcs) {
	case 0:
		for i := range t.enquiryProcs {
			t.enquiryProcs[i] = slices.Clone(t.inletProcs[i])
		}
	case 2:
		for i := range t.enquiryProcs {
			if len(spec.EnquiryProcs[i]) == 0 {
				t.enquiryProcs[i] = slices.Clone(t.inletProcs[i])
				continue
			}
			t.enquiryProcs[i] = normalize(spec.EnquiryProcs[i])
		}
	default:
		return Topology{}, errors.Errorf("enquiry procs must list 2 inlets, got %d", len(spec.EnquiryProcs))
	}

	if err := t.checkRanks(); err != nil {
		return Topology{}, err
	}
	for i := range t.inletMasters {
		if !slices.Contains(t.inletProcs[i], t.inletMasters[i]) {
			return Topology{}, errors.Wrapf(ErrInletMasterNotMember, "inlet %d master %d not in %v",
				i, t.inletMasters[i], t.inletProcs[i])
		}
	}
	return t, nil
}

// SerialTopology returns the all-in-one topology: rank 0 holds every role.
func SerialTopology() Topology {
	t, _ := NewTopology(TopologySpec{})
	return t
}

func normalize(ranks []int) []int {
	out := slices.Clone(ranks)
	slices.Sort(out)
	return slices.Compact(out)
}

func (t Topology) checkRanks() error {
	check := func(r int) error {
		if r < 0 {
			return errors.Wrapf(ErrInvalidRank, "rank %d", r)
		}
		return nil
	}
	if err := check(t.master); err != nil {
		return err
	}
	for _, r := range t.Members() {
		if err := check(r); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every rank of the topology against a process group size.
func (t Topology) Validate(size int) error {
	if t.master >= size {
		return errors.Wrapf(ErrInvalidRank, "master %d, size %d", t.master, size)
	}
	for _, r := range t.Members() {
		if r >= size {
			return errors.Wrapf(ErrInvalidRank, "member %d, size %d", r, size)
		}
	}
	return nil
}

// Master returns the structure master rank.
func (t Topology) Master() int { return t.master }

// Procs returns the ranks holding any part of the structure.
func (t Topology) Procs() []int { return slices.Clone(t.procs) }

// InletMaster returns the master rank of inlet i.
func (t Topology) InletMaster(i int) int { return t.inletMasters[i] }

// InletMasters returns both inlet master ranks.
func (t Topology) InletMasters() [2]int { return t.inletMasters }

// InletProcs returns the member ranks of inlet i.
func (t Topology) InletProcs(i int) []int { return slices.Clone(t.inletProcs[i]) }

// EnquiryProcs returns the ranks holding enquiry point i.
func (t Topology) EnquiryProcs(i int) []int { return slices.Clone(t.enquiryProcs[i]) }

// EnquiryMaster returns the lowest rank holding enquiry point i. It
// reduces the energy sampled there and forwards it to the structure master.
func (t Topology) EnquiryMaster(i int) int { return t.enquiryProcs[i][0] }

// IsEnquiryMember reports whether rank holds enquiry point i.
func (t Topology) IsEnquiryMember(i, rank int) bool {
	return slices.Contains(t.enquiryProcs[i], rank)
}

// IsMaster reports whether rank is the structure master.
func (t Topology) IsMaster(rank int) bool { return rank == t.master }

// IsInletMember reports whether rank holds part of inlet i.
func (t Topology) IsInletMember(i, rank int) bool {
	return slices.Contains(t.inletProcs[i], rank)
}

// IsInletMaster reports whether rank reduces the state of inlet i.
func (t Topology) IsInletMaster(i, rank int) bool { return rank == t.inletMasters[i] }

// IsMember reports whether rank takes part in the structure's timestep
// protocol at all.
func (t Topology) IsMember(rank int) bool {
	return slices.Contains(t.Members(), rank)
}

// Members returns the sorted union of Procs, both inlet member sets and
// both enquiry sets.
func (t Topology) Members() []int {
	all := slices.Clone(t.procs)
	for i := range t.inletProcs {
		all = append(all, t.inletProcs[i]...)
		all = append(all, t.enquiryProcs[i]...)
	}
	return normalize(all)
}

func (t Topology) String() string {
	return fmt.Sprintf("master=%d procs=%v inlet_masters=%v inlet_procs=%v enquiry_procs=%v",
		t.master, t.procs, t.inletMasters, t.inletProcs, t.enquiryProcs)
}
