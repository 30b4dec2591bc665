package coordinator

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Ownership records which ranks hold mesh triangles relevant to one
// structure, as found by scanning every partition during setup.
//
// Fields:
//   - Inlets: ranks with triangles on each exchange line (index 0 inflow, 1 outflow)
//   - Enquiry: ranks holding the triangle nearest each enquiry point
type Ownership struct {
	Inlets  [2][]int
	Enquiry [2][]int
}

// RoleAssignment binds a structure index to its topology.
//
// Assignments are immutable once created. The registry returns copies to
// prevent external modification.
type RoleAssignment struct {
	// StructureID is the position of the structure in the scenario.
	// Valid range: [0, numStructures)
	StructureID int

	// Topology is the role assignment across ranks.
	Topology Topology
}

// RoleRegistry derives and stores the role topology of every structure in
// a run. It plays the part of the structure factory's partition analysis:
// given which ranks own each inlet, it picks inlet masters and the
// structure master deterministically, so every rank computing the same
// ownership arrives at the same topology without communicating.
//
// Assignment rules:
//   - inlet master = lowest rank owning part of that inlet
//   - structure master = master of the inflow inlet (index 0)
//   - procs = sorted union of inlet owners and enquiry owners
//   - an enquiry point nobody owns is sampled by its inlet's owners
//
//	┌──────────────────────────────────────────┐
//	│             RoleRegistry                 │
//	├──────────────────────────────────────────┤
//	│  assignments: map[structureID]→topology  │
//	│  numStructures: fixed at creation        │
//	│  mu: RWMutex for thread safety           │
//	├──────────────────────────────────────────┤
//	│  inlets {0,1} {2} → master 0, inlet m. 2 │
//	└──────────────────────────────────────────┘
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - All returned data is copied to prevent races
type RoleRegistry struct {
	// assignments maps structure IDs to their topology.
	assignments map[int]*RoleAssignment

	// mu protects concurrent access to the assignments map.
	mu sync.RWMutex

	// numStructures is the number of structures in the scenario.
	numStructures int
}

// NewRoleRegistry creates an empty registry for numStructures structures.
func NewRoleRegistry(numStructures int) *RoleRegistry {
	return &RoleRegistry{
		assignments:   make(map[int]*RoleAssignment),
		numStructures: numStructures,
	}
}

// Assign derives the topology of a structure from partition ownership and
// records it.
//
// Parameters:
//   - structureID: index of the structure (must be in [0, numStructures))
//   - own: ranks holding each inlet and each enquiry point
//
// Returns:
//   - the derived Topology
//   - ErrNoOwner if either inlet has no owning rank
//   - an error if the structure ID is out of range
//
// Thread Safety:
// This method is thread-safe and can be called concurrently.
//
// Example:
//
//	topo, err := registry.Assign(0, Ownership{
//	    Inlets: [2][]int{{0, 1}, {2}},
//	})
//	// topo.Master() == 0, topo.InletMaster(1) == 2
func (r *RoleRegistry) Assign(structureID int, own Ownership) (Topology, error) {
	if err := r.checkID(structureID); err != nil {
		return Topology{}, err
	}

	var masters [2]int
	for i := range own.Inlets {
		if len(own.Inlets[i]) == 0 {
			return Topology{}, errors.Wrapf(ErrNoOwner, "structure %d inlet %d", structureID, i)
		}
		masters[i] = slices.Min(own.Inlets[i])
	}

	procs := append(slices.Clone(own.Inlets[0]), own.Inlets[1]...)
	procs = append(procs, own.Enquiry[0]...)
	procs = append(procs, own.Enquiry[1]...)

	spec := TopologySpec{
		Master:       masters[0],
		Procs:        procs,
		InletMasters: masters,
		InletProcs:   [][]int{own.Inlets[0], own.Inlets[1]},
		EnquiryProcs: [][]int{own.Enquiry[0], own.Enquiry[1]},
	}

	topo, err := NewTopology(spec)
	if err != nil {
		return Topology{}, errors.Wrapf(err, "structure %d", structureID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[structureID] = &RoleAssignment{StructureID: structureID, Topology: topo}
	return topo, nil
}

// Set records an explicitly supplied topology, overwriting any previous one.
func (r *RoleRegistry) Set(structureID int, topo Topology) error {
	if err := r.checkID(structureID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[structureID] = &RoleAssignment{StructureID: structureID, Topology: topo}
	return nil
}

func (r *RoleRegistry) checkID(structureID int) error {
	if structureID < 0 || structureID >= r.numStructures {
		return errors.Errorf("invalid structure ID %d, must be in range [0, %d)", structureID, r.numStructures)
	}
	return nil
}

// Topology returns the topology of one structure and whether it is assigned.
func (r *RoleRegistry) Topology(structureID int) (Topology, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[structureID]
	if !ok {
		return Topology{}, false
	}
	return a.Topology, true
}

// All returns every assignment ordered by structure ID.
func (r *RoleRegistry) All() []RoleAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoleAssignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b RoleAssignment) int { return a.StructureID - b.StructureID })
	return out
}

// StructuresFor returns, in ascending order, the structures whose protocol
// the given rank takes part in. Iterating structures in this order on every
// rank keeps cross-structure message pairs consistent.
func (r *RoleRegistry) StructuresFor(rank int) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []int
	for id, a := range r.assignments {
		if a.Topology.IsMember(rank) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// NumStructures returns the number of structures the registry was sized for.
func (r *RoleRegistry) NumStructures() int {
	return r.numStructures
}
