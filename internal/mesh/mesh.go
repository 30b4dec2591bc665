// Package mesh provides a partitioned triangular mesh holding shallow-water
// state, and the inlet views structures read and update. See doc.go for
// complete package documentation.
package mesh

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"

	"github.com/dreamware/sluice/internal/structure"
)

// Triangle is one mesh cell with its conserved quantities.
type Triangle struct {
	ID        int        // Global triangle index
	Vertices  [3]orb.Point
	Centroid  orb.Point
	Area      float64
	Elevation float64 // Bed elevation at the centroid
	Stage     float64 // Water surface elevation
	Xmom      float64 // Depth-integrated x momentum
	Ymom      float64 // Depth-integrated y momentum
}

// Depth returns the water depth, never negative.
func (t Triangle) Depth() float64 {
	return math.Max(t.Stage-t.Elevation, 0)
}

// TotalEnergy returns stage plus velocity head. A dry triangle has only
// its stage.
func (t Triangle) TotalEnergy() float64 {
	d := t.Depth()
	if d <= 0 {
		return t.Stage
	}
	u, v := t.Xmom/d, t.Ymom/d
	return t.Stage + (u*u+v*v)/(2*structure.Gravity)
}

// Ring returns the closed outline of the triangle.
func (t Triangle) Ring() orb.Ring {
	return orb.Ring{t.Vertices[0], t.Vertices[1], t.Vertices[2], t.Vertices[0]}
}

// NewTriangle builds a dry triangle with its centroid and area filled in.
func NewTriangle(id int, a, b, c orb.Point) Triangle {
	t := Triangle{ID: id, Vertices: [3]orb.Point{a, b, c}}
	t.Centroid, t.Area = planar.CentroidArea(orb.Polygon{t.Ring()})
	return t
}

// ChannelParams describes a straight rectangular channel along x.
type ChannelParams struct {
	Origin       orb.Point // Upstream end, on the centre line
	Length       float64
	Width        float64
	CellsAlong   int
	CellsAcross  int
	BedSlope     float64 // Drop in bed elevation per unit length downstream
	InitialDepth float64
}

// Mesh is the complete triangulation, identical on every rank.
type Mesh struct {
	Triangles []Triangle
	Bound     orb.Bound
	// CellSize is the larger side of the rectangular cells the triangles
	// were cut from.
	CellSize float64
}

// NewChannel triangulates a channel. Every rectangular cell is split along
// its diagonal into two triangles, numbered row by row.
func NewChannel(p ChannelParams) (*Mesh, error) {
	if p.Length <= 0 || p.Width <= 0 {
		return nil, errors.Errorf("channel needs positive size, got %gx%g", p.Length, p.Width)
	}
	if p.CellsAlong <= 0 || p.CellsAcross <= 0 {
		return nil, errors.Errorf("channel needs positive cell counts, got %dx%d", p.CellsAlong, p.CellsAcross)
	}
	if p.InitialDepth < 0 {
		return nil, errors.Errorf("initial depth must not be negative, got %g", p.InitialDepth)
	}

	dx := p.Length / float64(p.CellsAlong)
	dy := p.Width / float64(p.CellsAcross)
	y0 := p.Origin[1] - p.Width/2

	m := &Mesh{
		Triangles: make([]Triangle, 0, 2*p.CellsAlong*p.CellsAcross),
		Bound: orb.Bound{
			Min: orb.Point{p.Origin[0], y0},
			Max: orb.Point{p.Origin[0] + p.Length, y0 + p.Width},
		},
		CellSize: math.Max(dx, dy),
	}

	corner := func(i, j int) orb.Point {
		return orb.Point{p.Origin[0] + float64(i)*dx, y0 + float64(j)*dy}
	}
	for j := 0; j < p.CellsAcross; j++ {
		for i := 0; i < p.CellsAlong; i++ {
			p00, p10 := corner(i, j), corner(i+1, j)
			p01, p11 := corner(i, j+1), corner(i+1, j+1)
			for _, tri := range [2][3]orb.Point{{p00, p10, p11}, {p00, p11, p01}} {
				t := NewTriangle(len(m.Triangles), tri[0], tri[1], tri[2])
				t.Elevation = -p.BedSlope * (t.Centroid[0] - p.Origin[0])
				t.Stage = t.Elevation + p.InitialDepth
				m.Triangles = append(m.Triangles, t)
			}
		}
	}
	return m, nil
}

// Split cuts the mesh into n strips of equal width along x, by centroid.
// Partition r holds the r-th strip from the upstream end.
func (m *Mesh) Split(n int) ([]*Partition, error) {
	if n <= 0 {
		return nil, errors.Errorf("cannot split mesh into %d partitions", n)
	}

	owned := make([][]Triangle, n)
	width := m.Bound.Max[0] - m.Bound.Min[0]
	for _, t := range m.Triangles {
		r := 0
		if width > 0 {
			r = int(float64(n) * (t.Centroid[0] - m.Bound.Min[0]) / width)
		}
		r = min(max(r, 0), n-1)
		owned[r] = append(owned[r], t)
	}

	parts := make([]*Partition, n)
	for r := range parts {
		parts[r] = NewPartition(r, owned[r])
	}
	return parts, nil
}
