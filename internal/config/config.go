// Package config loads the YAML scenario a run is driven by: the process
// group, the channel mesh and the structures placed on it.
package config

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/sluice/internal/mesh"
	"github.com/dreamware/sluice/internal/structure"
)

// Routine kinds.
const (
	RoutineWeir  = "weir"
	RoutineFixed = "fixed"
	RoutineNone  = "none"
)

// Scenario is the root of a scenario file.
type Scenario struct {
	Run        Run         `yaml:"run"`
	Mesh       Mesh        `yaml:"mesh"`
	Structures []Structure `yaml:"structures"`
}

// Run describes the process group and time stepping.
type Run struct {
	Ranks       int     `yaml:"ranks"`
	Timestep    float64 `yaml:"timestep"`
	Steps       int     `yaml:"steps"`
	ReportEvery int     `yaml:"report_every,omitempty"`
	LogDir      string  `yaml:"log_dir,omitempty"`
	GeoJSON     string  `yaml:"geojson,omitempty"` // Output path for structure geometry
	Quiet       bool    `yaml:"quiet,omitempty"`   // No progress bar
}

// Mesh describes the channel the structures sit in.
type Mesh struct {
	Origin       [2]float64 `yaml:"origin"`
	Length       float64    `yaml:"length"`
	Width        float64    `yaml:"width"`
	CellsAlong   int        `yaml:"cells_along"`
	CellsAcross  int        `yaml:"cells_across"`
	BedSlope     float64    `yaml:"bed_slope"`
	InitialDepth float64    `yaml:"initial_depth"`
}

// Structure describes one structure. Exactly like structure.Config, end
// points or exchange lines must be given.
type Structure struct {
	Label         string         `yaml:"label,omitempty"`
	Description   string         `yaml:"description,omitempty"`
	Type          string         `yaml:"type,omitempty"`
	EndPoints     [][2]float64   `yaml:"end_points,omitempty"`
	ExchangeLines [][][2]float64 `yaml:"exchange_lines,omitempty"`
	EnquiryPoints [][2]float64   `yaml:"enquiry_points,omitempty"`
	Width         float64        `yaml:"width"`
	Height        *float64       `yaml:"height,omitempty"`
	Apron         *float64       `yaml:"apron,omitempty"`
	Manning       float64        `yaml:"manning,omitempty"`
	EnquiryGap    float64        `yaml:"enquiry_gap,omitempty"`
	MomentumJet   *bool          `yaml:"momentum_jet,omitempty"`
	Logging       bool           `yaml:"logging,omitempty"`
	Verbose       bool           `yaml:"verbose,omitempty"`
	Routine       Routine        `yaml:"routine"`
}

// Routine selects a discharge routine.
type Routine struct {
	Kind        string  `yaml:"kind"`
	Q           float64 `yaml:"q,omitempty"`
	Coefficient float64 `yaml:"coefficient,omitempty"`
}

// Load reads, defaults and validates a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	sc, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return sc, nil
}

// Parse decodes, defaults and validates a scenario.
func Parse(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.Run.Ranks == 0 {
		sc.Run.Ranks = 1
	}
	if sc.Run.ReportEvery == 0 {
		sc.Run.ReportEvery = 1
	}
	if sc.Mesh.CellsAlong == 0 {
		sc.Mesh.CellsAlong = 20
	}
	if sc.Mesh.CellsAcross == 0 {
		sc.Mesh.CellsAcross = 4
	}
	for i := range sc.Structures {
		s := &sc.Structures[i]
		if s.Routine.Kind == "" {
			s.Routine.Kind = RoutineWeir
		}
		if s.MomentumJet == nil {
			jet := true
			s.MomentumJet = &jet
		}
	}
}

// Validate checks the scenario for values a run cannot start with.
func (sc *Scenario) Validate() error {
	switch {
	case sc.Run.Ranks < 1:
		return errors.Errorf("run.ranks must be at least 1, got %d", sc.Run.Ranks)
	case sc.Run.Timestep <= 0:
		return errors.Errorf("run.timestep must be positive, got %g", sc.Run.Timestep)
	case sc.Run.Steps < 0:
		return errors.Errorf("run.steps must not be negative, got %d", sc.Run.Steps)
	case sc.Run.ReportEvery < 1:
		return errors.Errorf("run.report_every must be at least 1, got %d", sc.Run.ReportEvery)
	case sc.Mesh.Length <= 0 || sc.Mesh.Width <= 0:
		return errors.Errorf("mesh needs positive length and width, got %gx%g", sc.Mesh.Length, sc.Mesh.Width)
	}

	for i, s := range sc.Structures {
		if err := s.validate(); err != nil {
			return errors.Wrapf(err, "structures[%d]", i)
		}
	}
	return nil
}

func (s Structure) validate() error {
	if s.Width <= 0 {
		return errors.Errorf("width must be positive, got %g", s.Width)
	}
	if len(s.EndPoints) == 0 && len(s.ExchangeLines) == 0 {
		return structure.ErrNoGeometry
	}
	if len(s.EndPoints) != 0 && len(s.EndPoints) != 2 {
		return errors.Errorf("need 2 end points, got %d", len(s.EndPoints))
	}
	if len(s.ExchangeLines) != 0 && len(s.ExchangeLines) != 2 {
		return errors.Errorf("need 2 exchange lines, got %d", len(s.ExchangeLines))
	}
	if len(s.EnquiryPoints) != 0 && len(s.EnquiryPoints) != 2 {
		return errors.Errorf("need 2 enquiry points, got %d", len(s.EnquiryPoints))
	}
	_, err := s.Routine.Build()
	return err
}

// Build returns the discharge routine the config selects.
func (r Routine) Build() (structure.DischargeRoutine, error) {
	switch r.Kind {
	case RoutineWeir:
		if r.Coefficient < 0 {
			return nil, errors.Errorf("weir coefficient must not be negative, got %g", r.Coefficient)
		}
		return structure.Weir{Coefficient: r.Coefficient}, nil
	case RoutineFixed:
		if r.Q < 0 {
			return nil, errors.Errorf("fixed discharge must not be negative, got %g", r.Q)
		}
		return structure.FixedRate{Q: r.Q}, nil
	case RoutineNone:
		return structure.Unimplemented{}, nil
	default:
		return nil, errors.Errorf("unknown routine kind %q", r.Kind)
	}
}

// Params returns the channel parameters of the mesh section.
func (m Mesh) Params() mesh.ChannelParams {
	return mesh.ChannelParams{
		Origin:       orb.Point(m.Origin),
		Length:       m.Length,
		Width:        m.Width,
		CellsAlong:   m.CellsAlong,
		CellsAcross:  m.CellsAcross,
		BedSlope:     m.BedSlope,
		InitialDepth: m.InitialDepth,
	}
}

// Config converts the section to a structure config. The topology is left
// for the caller to fill in.
func (s Structure) Config(logDir string) structure.Config {
	cfg := structure.Config{
		EnquiryGap:     s.EnquiryGap,
		Width:          s.Width,
		Height:         s.Height,
		Apron:          s.Apron,
		Manning:        s.Manning,
		Description:    s.Description,
		Label:          s.Label,
		Type:           s.Type,
		UseMomentumJet: s.MomentumJet == nil || *s.MomentumJet,
		Logging:        s.Logging,
		Verbose:        s.Verbose,
		LogDir:         logDir,
	}
	for _, p := range s.EndPoints {
		cfg.EndPoints = append(cfg.EndPoints, orb.Point(p))
	}
	for _, line := range s.ExchangeLines {
		ls := make(orb.LineString, len(line))
		for i, p := range line {
			ls[i] = orb.Point(p)
		}
		cfg.ExchangeLines = append(cfg.ExchangeLines, ls)
	}
	for _, p := range s.EnquiryPoints {
		cfg.EnquiryPoints = append(cfg.EnquiryPoints, orb.Point(p))
	}
	return cfg
}
