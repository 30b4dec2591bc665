package structure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LogHeader is the first line written after the statistics report in a
// structure log file.
const LogHeader = "time,discharge,velocity,driving_energy,delta_total_energy"

// Statistics assembles the structure report on the structure master.
// Collective: every member must call it. Inlet masters that are not the
// structure master forward their inlet's text; other ranks return " ".
func (s *Structure) Statistics(ctx context.Context) (string, error) {
	rank := s.tr.Rank()
	if !s.topo.IsMember(rank) {
		return " ", nil
	}
	master := s.topo.IsMaster(rank)

	var b strings.Builder
	if master {
		b.WriteString("===============================================\n")
		fmt.Fprintf(&b, "Structure Operator: %s\n", s.label)
		b.WriteString("===============================================\n")
		fmt.Fprintf(&b, "Structure Type: %s\n", s.kind)
		fmt.Fprintf(&b, "Description\n%s\n", s.description)
	}

	for i, in := range s.inlets {
		var stats InletStats
		if e, ok := in.Enquiry(); ok {
			text, err := e.Statistics(ctx)
			if err != nil {
				return "", errors.Wrapf(err, "structure %s: inlet %d statistics", s.label, i)
			}
			stats.Text = text
		}
		if err := s.gather(ctx, s.topo.InletMaster(i), &stats); err != nil {
			return "", errors.Wrapf(err, "structure %s: gather inlet %d statistics", s.label, i)
		}
		if master {
			b.WriteString("-------------------------------------\n")
			fmt.Fprintf(&b, "Inlet %d\n", i)
			b.WriteString("-------------------------------------\n")
			b.WriteString(stats.Text)
		}
	}

	if !master {
		return " ", nil
	}
	b.WriteString("=====================================\n")
	return b.String(), nil
}

// TimesteppingStatistics formats the last evaluation as one CSV line.
func (s *Structure) TimesteppingStatistics(t float64) string {
	d := s.Last()
	return fmt.Sprintf("%.5f, %.5f, %.5f, %.5f, %.5f",
		t, d.Q, d.BarrelSpeed, d.DrivingEnergy, d.DeltaTotalEnergy)
}

// TimesteppingReport describes the last evaluation for humans.
func (s *Structure) TimesteppingReport() string {
	d := s.Last()
	var b strings.Builder
	fmt.Fprintf(&b, "Structure report for %s:\n", s.label)
	b.WriteString("--------------------------\n")
	fmt.Fprintf(&b, "Type: %s\n", s.kind)
	fmt.Fprintf(&b, "Discharge [m^3/s]: %.2f\n", d.Q)
	fmt.Fprintf(&b, "Velocity  [m/s]: %.2f\n", d.BarrelSpeed)
	fmt.Fprintf(&b, "Inlet Driving Energy %.2f\n", d.DrivingEnergy)
	fmt.Fprintf(&b, "Delta Total Energy %.2f\n", d.DeltaTotalEnergy)
	fmt.Fprintf(&b, "Control at this instant: %s\n", d.Case)
	return b.String()
}

// SetLogging turns the per-step log on or off. Turning it on runs the
// synchronized statistics exchange and, on the structure master, truncates
// <label>.log and writes the report and LogHeader to it.
func (s *Structure) SetLogging(ctx context.Context, on bool) error {
	if !on {
		return s.Close()
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		return err
	}
	if !s.topo.IsMaster(s.tr.Rank()) {
		return nil
	}

	if err := s.Close(); err != nil {
		return err
	}
	path := filepath.Join(s.logDir, s.label+".log")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create structure log %s", path)
	}
	if _, err := fmt.Fprintf(f, "%s\n%s\n", stats, LogHeader); err != nil {
		f.Close()
		return errors.Wrapf(err, "write structure log %s", path)
	}

	s.mu.Lock()
	s.logFile = f
	s.mu.Unlock()
	return nil
}

// LogPath returns the log file path, or "" when logging is off on this rank.
func (s *Structure) LogPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile == nil {
		return ""
	}
	return s.logFile.Name()
}

// LogTimesteppingStatistics appends the current step line to the log file.
// It does nothing when logging is off or this rank is not the master.
func (s *Structure) LogTimesteppingStatistics(t float64) error {
	line := s.TimesteppingStatistics(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile == nil {
		return nil
	}
	_, err := fmt.Fprintln(s.logFile, line)
	return errors.Wrap(err, "append structure log")
}
