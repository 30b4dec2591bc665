package mesh

import (
	"github.com/dreamware/sluice/internal/coordinator"
	"github.com/dreamware/sluice/internal/structure"
)

// Ownership reports which partitions hold each inlet and each enquiry
// point of a structure. Every rank holds the full partition list, so every
// rank derives the same answer.
func Ownership(parts []*Partition, g structure.Geometry, radius float64) coordinator.Ownership {
	var own coordinator.Ownership
	for i := 0; i < 2; i++ {
		for _, p := range parts {
			if len(p.Near(g.ExchangeLines[i], radius)) > 0 {
				own.Inlets[i] = append(own.Inlets[i], p.Rank)
			}
			if _, ok := p.Locate(g.EnquiryPoints[i]); ok {
				own.Enquiry[i] = append(own.Enquiry[i], p.Rank)
			}
		}
	}
	return own
}

// TotalVolume sums the water volume of all partitions.
func TotalVolume(parts []*Partition) float64 {
	v := 0.0
	for _, p := range parts {
		v += p.Volume()
	}
	return v
}
