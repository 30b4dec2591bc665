package mesh

import (
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Partition is the part of the mesh owned by one rank.
type Partition struct {
	Rank      int
	triangles []Triangle
	stats     OperationStats
	mu        sync.RWMutex
}

// OperationStats counts accesses to a partition.
type OperationStats struct {
	Reads      uint64 // Quantity reads
	Writes     uint64 // Quantity overwrites
	Reductions uint64 // Partial sums sent or combined for a collective read
}

// Info summarises a partition.
type Info struct {
	Rank      int
	Triangles int
	Area      float64
	Volume    float64
	Ops       OperationStats
}

// NewPartition wraps a set of triangles owned by rank.
func NewPartition(rank int, triangles []Triangle) *Partition {
	return &Partition{
		Rank:      rank,
		triangles: append([]Triangle(nil), triangles...),
	}
}

// Len returns the number of local triangles.
func (p *Partition) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.triangles)
}

// Triangles returns a copy of the local triangles.
func (p *Partition) Triangles() []Triangle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Triangle(nil), p.triangles...)
}

// Triangle returns local triangle i.
func (p *Partition) Triangle(i int) Triangle {
	atomic.AddUint64(&p.stats.Reads, 1)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.triangles[i]
}

// Near returns the indices of local triangles whose centroid lies within
// radius of the segment line[0]-line[1].
func (p *Partition) Near(line orb.LineString, radius float64) []int {
	if len(line) < 2 {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var idx []int
	for i, t := range p.triangles {
		if planar.DistanceFromSegment(line[0], line[1], t.Centroid) <= radius {
			idx = append(idx, i)
		}
	}
	return idx
}

// Locate returns the index of the local triangle containing pt.
func (p *Partition) Locate(pt orb.Point) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, t := range p.triangles {
		if planar.RingContains(t.Ring(), pt) {
			return i, true
		}
	}
	return -1, false
}

// Sum returns Σ f(t)·area and Σ area over the given local triangles.
func (p *Partition) Sum(idx []int, f func(Triangle) float64) (sum, area float64) {
	atomic.AddUint64(&p.stats.Reads, uint64(len(idx)))
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, i := range idx {
		t := p.triangles[i]
		sum += f(t) * t.Area
		area += t.Area
	}
	return sum, area
}

// Update applies f to each of the given local triangles.
func (p *Partition) Update(idx []int, f func(*Triangle)) {
	atomic.AddUint64(&p.stats.Writes, uint64(len(idx)))
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, i := range idx {
		f(&p.triangles[i])
	}
}

// Volume returns the water volume held by the partition.
func (p *Partition) Volume() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := 0.0
	for _, t := range p.triangles {
		v += t.Depth() * t.Area
	}
	return v
}

func (p *Partition) countReduction() {
	atomic.AddUint64(&p.stats.Reductions, 1)
}

// Stats returns the operation counters.
func (p *Partition) Stats() OperationStats {
	return OperationStats{
		Reads:      atomic.LoadUint64(&p.stats.Reads),
		Writes:     atomic.LoadUint64(&p.stats.Writes),
		Reductions: atomic.LoadUint64(&p.stats.Reductions),
	}
}

// Info returns a summary of the partition.
func (p *Partition) Info() Info {
	p.mu.RLock()
	area := 0.0
	for _, t := range p.triangles {
		area += t.Area
	}
	n := len(p.triangles)
	p.mu.RUnlock()

	return Info{
		Rank:      p.Rank,
		Triangles: n,
		Area:      area,
		Volume:    p.Volume(),
		Ops:       p.Stats(),
	}
}
