package structure

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// GeometryInput is what a structure's caller supplies about its shape.
// At least one of EndPoints or ExchangeLines must be set; when both are,
// the exchange lines are used and the end points only fix the axis.
type GeometryInput struct {
	EndPoints     []orb.Point
	ExchangeLines []orb.LineString
	EnquiryPoints []orb.Point
	Width         float64
	Apron         float64
	EnquiryGap    float64
}

// Geometry is the resolved shape of a structure.
type Geometry struct {
	EndPoints     []orb.Point
	ExchangeLines [2]orb.LineString
	EnquiryPoints [2]orb.Point
	// Vector is the unit axis from inlet 0 towards inlet 1.
	Vector orb.Point
	Length float64
	Skew   bool
}

// ResolveGeometry derives exchange lines, enquiry points and the axis.
//
// Non-skew (end points only): the exchange line at each end point spans
// width across the axis, centred on the end point. Skew (exchange lines):
// the axis joins the line midpoints unless end points are given.
// Enquiry points not supplied are placed apron+enquiry_gap outside each end.
//
// Returns ErrNoGeometry when neither input is given and ErrDegenerateAxis
// when the axis has zero length.
func ResolveGeometry(in GeometryInput) (Geometry, error) {
	if in.EndPoints != nil && len(in.EndPoints) != 2 {
		return Geometry{}, errors.Errorf("need 2 end points, got %d", len(in.EndPoints))
	}
	if in.EnquiryPoints != nil && len(in.EnquiryPoints) != 2 {
		return Geometry{}, errors.Errorf("need 2 enquiry points, got %d", len(in.EnquiryPoints))
	}

	switch {
	case in.ExchangeLines != nil:
		return resolveSkew(in)
	case in.EndPoints != nil:
		return resolveNonSkew(in)
	default:
		return Geometry{}, ErrNoGeometry
	}
}

func resolveNonSkew(in GeometryInput) (Geometry, error) {
	e0, e1 := in.EndPoints[0], in.EndPoints[1]
	length := planar.Distance(e0, e1)
	if length <= 0 {
		return Geometry{}, errors.Wrapf(ErrDegenerateAxis, "end points %v and %v coincide", e0, e1)
	}

	g := Geometry{
		EndPoints: []orb.Point{e0, e1},
		Vector:    scale(sub(e1, e0), 1/length),
		Length:    length,
	}

	normal := orb.Point{-g.Vector[1], g.Vector[0]}
	w := scale(normal, 0.5*in.Width)
	gap := scale(g.Vector, in.Apron+in.EnquiryGap)

	for i, e := range g.EndPoints {
		g.ExchangeLines[i] = orb.LineString{add(e, w), sub(e, w)}
		if in.EnquiryPoints == nil {
			// inlet 0 steps back along the axis, inlet 1 forward
			g.EnquiryPoints[i] = add(e, scale(gap, float64(2*i-1)))
		} else {
			g.EnquiryPoints[i] = in.EnquiryPoints[i]
		}
	}
	return g, nil
}

func resolveSkew(in GeometryInput) (Geometry, error) {
	if len(in.ExchangeLines) != 2 {
		return Geometry{}, errors.Errorf("need 2 exchange lines, got %d", len(in.ExchangeLines))
	}
	var centres [2]orb.Point
	for i, line := range in.ExchangeLines {
		if len(line) < 2 {
			return Geometry{}, errors.Errorf("exchange line %d needs 2 points, got %d", i, len(line))
		}
		centres[i] = midpoint(line[0], line[1])
	}

	axis := sub(centres[1], centres[0])
	if in.EndPoints != nil {
		axis = sub(in.EndPoints[1], in.EndPoints[0])
	}
	length := math.Hypot(axis[0], axis[1])
	if length <= 0 {
		return Geometry{}, errors.Wrap(ErrDegenerateAxis, "exchange line centres coincide")
	}

	g := Geometry{
		EndPoints: in.EndPoints,
		Vector:    scale(axis, 1/length),
		Length:    length,
		Skew:      true,
	}
	for i, line := range in.ExchangeLines {
		g.ExchangeLines[i] = orb.LineString{line[0], line[1]}
	}

	if in.EnquiryPoints == nil {
		gap := scale(g.Vector, in.Apron+in.EnquiryGap)
		g.EnquiryPoints[0] = sub(centres[0], gap)
		g.EnquiryPoints[1] = add(centres[1], gap)
	} else {
		g.EnquiryPoints = [2]orb.Point{in.EnquiryPoints[0], in.EnquiryPoints[1]}
	}
	return g, nil
}

func add(a, b orb.Point) orb.Point { return orb.Point{a[0] + b[0], a[1] + b[1]} }

func sub(a, b orb.Point) orb.Point { return orb.Point{a[0] - b[0], a[1] - b[1]} }

func scale(a orb.Point, k float64) orb.Point { return orb.Point{a[0] * k, a[1] * k} }

func midpoint(a, b orb.Point) orb.Point { return scale(add(a, b), 0.5) }
