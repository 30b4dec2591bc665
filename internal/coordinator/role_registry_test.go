package coordinator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoleRegistryAssign verifies masters are chosen deterministically from ownership
func TestRoleRegistryAssign(t *testing.T) {
	tests := []struct {
		name         string
		own          Ownership
		wantMaster   int
		wantInletMs  [2]int
		wantMembers  []int
		wantEnquiry0 []int
	}{
		{
			name:         "single rank owns everything",
			own:          Ownership{Inlets: [2][]int{{0}, {0}}},
			wantMaster:   0,
			wantInletMs:  [2]int{0, 0},
			wantMembers:  []int{0},
			wantEnquiry0: []int{0},
		},
		{
			name:         "inlets in different partitions",
			own:          Ownership{Inlets: [2][]int{{2}, {1}}},
			wantMaster:   2,
			wantInletMs:  [2]int{2, 1},
			wantMembers:  []int{1, 2},
			wantEnquiry0: []int{2},
		},
		{
			name: "inflow inlet straddles a boundary",
			own: Ownership{
				Inlets:  [2][]int{{3, 1}, {3}},
				Enquiry: [2][]int{{0}, {3}},
			},
			wantMaster:   1,
			wantInletMs:  [2]int{1, 3},
			wantMembers:  []int{0, 1, 3},
			wantEnquiry0: []int{0},
		},
		{
			name: "only the outflow enquiry point is owned",
			own: Ownership{
				Inlets:  [2][]int{{0}, {1}},
				Enquiry: [2][]int{nil, {2}},
			},
			wantMaster:   0,
			wantInletMs:  [2]int{0, 1},
			wantMembers:  []int{0, 1, 2},
			wantEnquiry0: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRoleRegistry(1)
			topo, err := reg.Assign(0, tt.own)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMaster, topo.Master())
			assert.Equal(t, tt.wantInletMs, topo.InletMasters())
			assert.Equal(t, tt.wantMembers, topo.Members())
			assert.Equal(t, tt.wantEnquiry0, topo.EnquiryProcs(0))

			stored, ok := reg.Topology(0)
			require.True(t, ok)
			assert.Equal(t, topo.String(), stored.String())
		})
	}
}

// TestRoleRegistryErrors verifies unowned inlets and bad IDs are rejected
func TestRoleRegistryErrors(t *testing.T) {
	reg := NewRoleRegistry(2)

	_, err := reg.Assign(0, Ownership{Inlets: [2][]int{{0}, nil}})
	assert.ErrorIs(t, err, ErrNoOwner)

	_, err = reg.Assign(2, Ownership{Inlets: [2][]int{{0}, {0}}})
	assert.Error(t, err)

	assert.Error(t, reg.Set(-1, SerialTopology()))

	_, ok := reg.Topology(0)
	assert.False(t, ok, "failed assignment must not be stored")
}

// TestRoleRegistryStructuresFor verifies per-rank structure lists are ordered
func TestRoleRegistryStructuresFor(t *testing.T) {
	reg := NewRoleRegistry(3)
	_, err := reg.Assign(2, Ownership{Inlets: [2][]int{{0}, {1}}})
	require.NoError(t, err)
	_, err = reg.Assign(0, Ownership{Inlets: [2][]int{{1}, {1}}})
	require.NoError(t, err)
	require.NoError(t, reg.Set(1, SerialTopology()))

	assert.Equal(t, []int{1, 2}, reg.StructuresFor(0))
	assert.Equal(t, []int{0, 2}, reg.StructuresFor(1))
	assert.Empty(t, reg.StructuresFor(5))

	all := reg.All()
	require.Len(t, all, 3)
	for i, a := range all {
		assert.Equal(t, i, a.StructureID)
	}
	assert.Equal(t, 3, reg.NumStructures())
}

// TestRoleRegistryConcurrentAssign verifies concurrent writers are safe
func TestRoleRegistryConcurrentAssign(t *testing.T) {
	const n = 50
	reg := NewRoleRegistry(n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := reg.Assign(id, Ownership{Inlets: [2][]int{{id % 4}, {(id + 1) % 4}}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, reg.All(), n)
}

// TestSequence verifies label numbering and reset
func TestSequence(t *testing.T) {
	seq := NewSequence()
	assert.Equal(t, 0, seq.Current())
	assert.Equal(t, 1, seq.Advance())
	assert.Equal(t, 2, seq.Advance())
	assert.Equal(t, 2, seq.Current())

	seq.Reset()
	assert.Equal(t, 0, seq.Current())
}
