package structure

import (
	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
)

// AppendFeatures adds the exchange lines and enquiry points of a geometry
// to fc, tagged with the structure label and inlet index.
func AppendFeatures(fc *geojson.FeatureCollection, label string, g Geometry) {
	for i := range g.ExchangeLines {
		line := geojson.NewLineStringFeature(coords(g.ExchangeLines[i]))
		line.SetProperty("structure", label)
		line.SetProperty("inlet", i)
		line.SetProperty("kind", "exchange_line")
		fc.AddFeature(line)

		p := g.EnquiryPoints[i]
		pt := geojson.NewPointFeature([]float64{p[0], p[1]})
		pt.SetProperty("structure", label)
		pt.SetProperty("inlet", i)
		pt.SetProperty("kind", "enquiry_point")
		fc.AddFeature(pt)
	}
}

// GeoJSON encodes the structure's geometry as a feature collection.
func (s *Structure) GeoJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	AppendFeatures(fc, s.label, s.geom)
	return fc.MarshalJSON()
}

func coords(ls orb.LineString) [][]float64 {
	out := make([][]float64, len(ls))
	for i, p := range ls {
		out[i] = []float64{p[0], p[1]}
	}
	return out
}
