// Package structure couples two points of a partitioned shallow-water
// domain through a flow-transfer structure. See doc.go for complete package
// documentation.
package structure

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/dreamware/sluice/internal/cluster"
	"github.com/dreamware/sluice/internal/coordinator"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Defaults applied by New.
const (
	DefaultDescription = " "
	DefaultType        = "generic structure"
	DefaultLabel       = "structure"
)

// Config describes one structure.
//
// Height and Apron default to Width when nil. A zero Topology means the
// serial topology with rank 0 in every role.
type Config struct {
	EndPoints     []orb.Point
	ExchangeLines []orb.LineString
	EnquiryPoints []orb.Point

	Width      float64
	Height     *float64
	Apron      *float64
	Manning    float64
	EnquiryGap float64

	Description string
	Label       string
	Type        string

	UseMomentumJet bool
	Logging        bool
	Verbose        bool
	// LogDir is where <label>.log is written when Logging is set.
	LogDir string

	Topology coordinator.Topology
}

// Structure is one rank's handle on a flow-transfer structure. Every rank
// listed in the topology must construct it, in the same order relative to
// other structures, and call its collective methods in lockstep.
type Structure struct {
	tr      cluster.Transport
	topo    coordinator.Topology
	routine DischargeRoutine
	geom    Geometry
	inlets  [2]*Inlet

	width   float64
	height  float64
	apron   float64
	manning float64

	label       string
	description string
	kind        string
	jet         bool
	verbose     bool

	mu        sync.Mutex
	last      Discharge
	logFile   *os.File
	logDir    string
	stepCount int
}

// New builds a structure on the calling rank.
//
// The enquiry of an inlet is built through domain only when this rank holds
// part of that inlet or its enquiry point. A nil routine behaves as Unimplemented and a nil seq
// as a fresh sequence. When cfg.Logging is set New runs the synchronized
// statistics exchange, so every member must call it.
func New(ctx context.Context, cfg Config, tr cluster.Transport, domain Domain, routine DischargeRoutine, seq *coordinator.Sequence) (*Structure, error) {
	if cfg.Width <= 0 {
		return nil, errors.Errorf("structure width must be positive, got %g", cfg.Width)
	}
	height := cfg.Width
	if cfg.Height != nil {
		height = *cfg.Height
	}
	apron := cfg.apron()

	geom, err := cfg.Geometry()
	if err != nil {
		return nil, err
	}

	topo := cfg.Topology
	if len(topo.Members()) == 0 {
		topo = coordinator.SerialTopology()
	}
	if err := topo.Validate(tr.Size()); err != nil {
		return nil, errors.Wrap(err, "structure topology")
	}
	if routine == nil {
		routine = Unimplemented{}
	}
	if seq == nil {
		seq = coordinator.NewSequence()
	}

	s := &Structure{
		tr:          tr,
		topo:        topo,
		routine:     routine,
		geom:        geom,
		width:       cfg.Width,
		height:      height,
		apron:       apron,
		manning:     cfg.Manning,
		description: orDefault(cfg.Description, DefaultDescription),
		kind:        orDefault(cfg.Type, DefaultType),
		jet:         cfg.UseMomentumJet,
		verbose:     cfg.Verbose,
		logDir:      cfg.LogDir,
	}

	rank := tr.Rank()
	s.label = fmt.Sprintf("%s_%d_P%d", orDefault(cfg.Label, DefaultLabel), seq.Current(), rank)
	if topo.IsMaster(rank) {
		seq.Advance()
	}

	outward := [2]orb.Point{geom.Vector, scale(geom.Vector, -1)}
	for i := range s.inlets {
		in := &Inlet{
			index:        i,
			line:         geom.ExchangeLines[i],
			enquiryPoint: geom.EnquiryPoints[i],
			outward:      outward[i],
			master:       topo.InletMaster(i),
			procs:        topo.InletProcs(i),
			member:       topo.IsInletMember(i, rank),
		}
		if in.member || topo.IsEnquiryMember(i, rank) {
			if domain == nil {
				return nil, errors.Wrapf(ErrNoDomain, "inlet %d", i)
			}
			e, err := domain.NewEnquiry(InletSpec{
				Index:        i,
				Line:         in.line,
				EnquiryPoint: in.enquiryPoint,
				Outward:      in.outward,
				Master:       in.master,
				Procs:        in.procs,
				EnquiryProcs: topo.EnquiryProcs(i),
				Verbose:      cfg.Verbose,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "inlet %d enquiry", i)
			}
			in.enquiry = e
		}
		s.inlets[i] = in
	}

	if cfg.Logging {
		if err := s.SetLogging(ctx, true); err != nil {
			return nil, err
		}
	}

	if s.verbose || topo.IsMaster(rank) {
		log.Printf("structure[%s] created: type=%q length=%.3f skew=%t %s",
			s.label, s.kind, geom.Length, geom.Skew, topo)
	}
	return s, nil
}

func (c Config) apron() float64 {
	if c.Apron != nil {
		return *c.Apron
	}
	return c.Width
}

// Geometry resolves the configured placement, with the apron defaulted as
// New does. Callers use it to work out partition ownership before New.
func (c Config) Geometry() (Geometry, error) {
	return ResolveGeometry(GeometryInput{
		EndPoints:     c.EndPoints,
		ExchangeLines: c.ExchangeLines,
		EnquiryPoints: c.EnquiryPoints,
		Width:         c.Width,
		Apron:         c.apron(),
		EnquiryGap:    c.EnquiryGap,
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Label returns the unique label "<label>_<seq>_P<rank>".
func (s *Structure) Label() string { return s.label }

// Description returns the free-text description.
func (s *Structure) Description() string { return s.description }

// Type returns the structure type name.
func (s *Structure) Type() string { return s.kind }

// Length returns the distance between the structure's ends.
func (s *Structure) Length() float64 { return s.geom.Length }

// Width returns the barrel width.
func (s *Structure) Width() float64 { return s.width }

// Diameter returns the barrel width, for circular barrels.
func (s *Structure) Diameter() float64 { return s.width }

// Height returns the barrel height.
func (s *Structure) Height() float64 { return s.height }

// Apron returns the apron length.
func (s *Structure) Apron() float64 { return s.apron }

// Manning returns the barrel roughness.
func (s *Structure) Manning() float64 { return s.manning }

// Geometry returns the resolved geometry.
func (s *Structure) Geometry() Geometry { return s.geom }

// Topology returns the role assignment.
func (s *Structure) Topology() coordinator.Topology { return s.topo }

// Master returns the structure master rank.
func (s *Structure) Master() int { return s.topo.Master() }

// InletMasters returns the inlet master ranks.
func (s *Structure) InletMasters() [2]int { return s.topo.InletMasters() }

// EnquiryProcs returns the enquiry member sets of both inlets.
func (s *Structure) EnquiryProcs() [2][]int {
	return [2][]int{s.topo.EnquiryProcs(0), s.topo.EnquiryProcs(1)}
}

// Inlets returns both inlets, inflow first.
func (s *Structure) Inlets() [2]*Inlet { return s.inlets }

// ParallelSafe reports that the structure may span several ranks.
func (s *Structure) ParallelSafe() bool { return true }

// IsMember reports whether this rank takes part in the structure.
func (s *Structure) IsMember() bool { return s.topo.IsMember(s.tr.Rank()) }

// Last returns the most recent discharge evaluation. Meaningful on the
// structure master only.
func (s *Structure) Last() Discharge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Discharge returns the most recent discharge on the structure master.
func (s *Structure) Discharge() float64 { return s.Last().Q }

// Velocity returns the most recent barrel speed on the structure master.
func (s *Structure) Velocity() float64 { return s.Last().BarrelSpeed }

// Steps returns the number of completed timesteps.
func (s *Structure) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepCount
}

// Close releases the log file, if any.
func (s *Structure) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile == nil {
		return nil
	}
	err := s.logFile.Close()
	s.logFile = nil
	return errors.Wrap(err, "close structure log")
}
