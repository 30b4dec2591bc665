package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/gosuri/uiprogress"
	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"

	"github.com/dreamware/sluice/internal/cluster"
	"github.com/dreamware/sluice/internal/config"
	"github.com/dreamware/sluice/internal/coordinator"
	"github.com/dreamware/sluice/internal/mesh"
	"github.com/dreamware/sluice/internal/structure"
)

// Node is one rank of a run: its strip of the channel mesh and the
// structures it takes part in.
//
// Every rank builds the same mesh and derives the same role assignment from
// it, so no topology has to be shipped between ranks. Structures are built
// and stepped in ascending ID order on every rank, which keeps the point to
// point exchanges of different structures from crossing.
type Node struct {
	// Rank is this process's index in the group.
	Rank int

	sc       *config.Scenario
	tr       cluster.Transport
	parts    []*mesh.Partition
	domain   *mesh.Domain
	registry *coordinator.RoleRegistry

	// geoms holds the resolved geometry of every structure, member or not.
	geoms []structure.Geometry

	// structures maps structure IDs to the structures this rank is a member of.
	structures map[int]*structure.Structure

	// steps counts completed timesteps.
	steps int

	mu sync.RWMutex
}

// NewNode builds the mesh, assigns roles and constructs the structures this
// rank is a member of. Every rank of the group must call it with the same
// scenario, since structure construction may exchange messages.
func NewNode(ctx context.Context, sc *config.Scenario, tr cluster.Transport) (*Node, error) {
	if tr.Size() != sc.Run.Ranks {
		return nil, errors.Errorf("scenario wants %d ranks, group has %d", sc.Run.Ranks, tr.Size())
	}
	m, err := mesh.NewChannel(sc.Mesh.Params())
	if err != nil {
		return nil, errors.Wrap(err, "build mesh")
	}
	parts, err := m.Split(tr.Size())
	if err != nil {
		return nil, errors.Wrap(err, "split mesh")
	}

	n := &Node{
		Rank:       tr.Rank(),
		sc:         sc,
		tr:         tr,
		parts:      parts,
		domain:     mesh.NewDomain(tr, parts[tr.Rank()], m.CellSize),
		registry:   coordinator.NewRoleRegistry(len(sc.Structures)),
		structures: make(map[int]*structure.Structure),
	}

	seq := coordinator.NewSequence()
	for id, sec := range sc.Structures {
		cfg := sec.Config(sc.Run.LogDir)
		g, err := cfg.Geometry()
		if err != nil {
			return nil, errors.Wrapf(err, "structure %d", id)
		}
		n.geoms = append(n.geoms, g)

		topo, err := n.registry.Assign(id, mesh.Ownership(parts, g, m.CellSize))
		if err != nil {
			return nil, err
		}
		if !topo.IsMember(n.Rank) {
			continue
		}

		routine, err := sec.Routine.Build()
		if err != nil {
			return nil, errors.Wrapf(err, "structure %d", id)
		}
		cfg.Topology = topo
		s, err := structure.New(ctx, cfg, tr, n.domain, routine, seq)
		if err != nil {
			return nil, errors.Wrapf(err, "structure %d", id)
		}
		n.structures[id] = s
	}

	info := n.domain.Partition().Info()
	log.Printf("node[%d] holds %d triangles, member of %d/%d structures",
		n.Rank, info.Triangles, len(n.structures), len(sc.Structures))
	return n, nil
}

// Structures returns the IDs of the structures this rank is a member of, in
// stepping order.
func (n *Node) Structures() []int {
	return n.registry.StructuresFor(n.Rank)
}

// Structure returns a member structure by ID.
func (n *Node) Structure(id int) (*structure.Structure, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.structures[id]
	return s, ok
}

// Statistics writes the statistics report of every structure this rank is
// master of to w. All members take part in each exchange.
func (n *Node) Statistics(ctx context.Context, w io.Writer) error {
	for _, id := range n.Structures() {
		s, _ := n.Structure(id)
		text, err := s.Statistics(ctx)
		if err != nil {
			return err
		}
		if s.Master() == n.Rank {
			if _, err := io.WriteString(w, text); err != nil {
				return errors.Wrap(err, "write statistics")
			}
		}
	}
	return nil
}

// Step advances every member structure by one timestep, appends their log
// lines and, every ReportEvery steps, logs the masters' reports.
func (n *Node) Step(ctx context.Context) error {
	dt := n.sc.Run.Timestep

	n.mu.Lock()
	n.steps++
	step := n.steps
	n.mu.Unlock()
	t := float64(step) * dt

	for _, id := range n.Structures() {
		s, _ := n.Structure(id)
		if err := s.Step(ctx, dt); err != nil {
			return err
		}
		if err := s.LogTimesteppingStatistics(t); err != nil {
			return errors.Wrapf(err, "structure %s", s.Label())
		}
		if step%n.sc.Run.ReportEvery == 0 && s.Master() == n.Rank {
			log.Printf("node[%d] t=%.3f\n%s", n.Rank, t, s.TimesteppingReport())
		}
	}
	return nil
}

// Run performs the configured number of steps between two statistics
// reports and returns the rank's run report. tick, when not nil, is called
// after every step.
func (n *Node) Run(ctx context.Context, w io.Writer, tick func()) (cluster.RunReport, error) {
	rep := cluster.RunReport{Rank: n.Rank, Structures: len(n.Structures())}
	err := n.run(ctx, w, tick)

	n.mu.RLock()
	rep.Steps = n.steps
	n.mu.RUnlock()
	rep.Volume = n.domain.Partition().Volume()
	if err != nil {
		rep.Err = err.Error()
	}
	return rep, err
}

func (n *Node) run(ctx context.Context, w io.Writer, tick func()) error {
	if err := n.Statistics(ctx, w); err != nil {
		return err
	}
	for i := 0; i < n.sc.Run.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.Step(ctx); err != nil {
			return err
		}
		if tick != nil {
			tick()
		}
	}
	return n.Statistics(ctx, w)
}

// Close closes the log files of all member structures.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var first error
	for _, s := range n.structures {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteGeoJSON writes the exchange lines and enquiry points of every
// structure in the scenario to path.
func (n *Node) WriteGeoJSON(path string) error {
	fc := geojson.NewFeatureCollection()
	for id, g := range n.geoms {
		label := n.sc.Structures[id].Label
		if label == "" {
			label = structure.DefaultLabel
		}
		structure.AppendFeatures(fc, fmt.Sprintf("%s_%d", label, id), g)
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encode geojson")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	return errors.Wrapf(os.WriteFile(path, raw, 0o644), "write %s", path)
}

// startProgress draws a step counter on the terminal and returns the tick
// and stop functions for it.
func startProgress(steps int) (tick func(), stop func()) {
	uiprogress.Start()
	bar := uiprogress.AddBar(steps).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("step %d/%d", b.Current(), steps)
	})
	return func() { bar.Incr() }, uiprogress.Stop
}
