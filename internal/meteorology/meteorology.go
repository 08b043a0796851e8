// Package meteorology sequences decoded snapshots through a two frame
// window and interpolates fields in time between them.
package meteorology

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/sparse"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/interp"
	"github.com/waterinstitute/metget/internal/log"
	"github.com/waterinstitute/metget/internal/sources"
)

// Snapshot names the local files holding one forecast time of a source.
type Snapshot struct {
	Time  time.Time
	Paths []string
}

// Meteorology holds the two snapshots bracketing the current output time
// for one forcing domain. Snapshots are pushed in time order; the first
// snapshot is normally pushed twice so both frames start populated.
type Meteorology struct {
	grid     *grid.Grid
	svc      *sources.Service
	variable sources.VariableType
	backfill bool
	types    []sources.MetDataType

	file1, file2     *Snapshot
	interp1, interp2 *interp.Interpolator
	result1, result2 interp.Field
}

// New creates a sequencer for one domain.
func New(g *grid.Grid, svc *sources.Service, variable sources.VariableType, backfill bool) (*Meteorology, error) {
	wanted, err := svc.RequireVariables(variable)
	if err != nil {
		return nil, err
	}
	types := make([]sources.MetDataType, len(wanted))
	for i, v := range wanted {
		types[i] = v.Type
	}
	return &Meteorology{
		grid:     g,
		svc:      svc,
		variable: variable,
		backfill: backfill,
		types:    types,
		interp1:  interp.NewInterpolator(g, backfill),
		interp2:  interp.NewInterpolator(g, backfill),
	}, nil
}

// SetBackgroundPressure overrides the sea level pressure used where no
// source covers the output grid.
func (m *Meteorology) SetBackgroundPressure(mb float64) {
	m.interp1.SetDefault(sources.Pressure, mb)
	m.interp2.SetDefault(sources.Pressure, mb)
}

// DataTypes lists the fields this sequencer produces.
func (m *Meteorology) DataTypes() []sources.MetDataType { return m.types }

// Grid returns the output grid.
func (m *Meteorology) Grid() *grid.Grid { return m.grid }

// SetNextSnapshot advances the window. The current second frame becomes
// the first once both slots are occupied.
func (m *Meteorology) SetNextSnapshot(s Snapshot) {
	snap := s
	switch {
	case m.file1 == nil:
		m.file1 = &snap
	case m.file2 == nil:
		m.file2 = &snap
	default:
		m.file1, m.file2 = m.file2, &snap
	}
}

// ProcessFiles decodes and regrids whichever frames are stale. A rotated
// window reuses the previous second frame instead of reprocessing it.
func (m *Meteorology) ProcessFiles() error {
	if m.file1 == nil || m.file2 == nil {
		return fmt.Errorf("both window frames must be set before processing")
	}

	if m.result2 != nil {
		m.result1 = m.result2
	} else {
		field, err := m.process(m.interp1, m.file1)
		if err != nil {
			return err
		}
		m.result1 = field
		m.interp2.ShareCaches(m.interp1)
	}

	field, err := m.process(m.interp2, m.file2)
	if err != nil {
		return err
	}
	m.result2 = field
	return nil
}

func (m *Meteorology) process(ip *interp.Interpolator, s *Snapshot) (interp.Field, error) {
	log.Debugf("processing %s snapshot at %s (%d files)",
		m.svc.Name, s.Time.Format("2006-01-02 15:04"), len(s.Paths))
	data, err := interp.Read(s.Paths, m.svc, m.variable, s.Time)
	if err != nil {
		return nil, err
	}
	return ip.Process(data, m.types)
}

// TimeWeight returns the linear blend weight of the second frame at t,
// clamped to [0, 1].
func (m *Meteorology) TimeWeight(t time.Time) float64 {
	if !t.Before(m.file2.Time) {
		return 1.0
	}
	if !t.After(m.file1.Time) {
		return 0.0
	}
	return float64(t.Sub(m.file1.Time)) / float64(m.file2.Time.Sub(m.file1.Time))
}

// Get evaluates all fields at time t. Instantaneous fields blend linearly
// between the frames; accumulated fields become rates over the window and
// are zero outside it.
func (m *Meteorology) Get(t time.Time) (interp.Field, error) {
	if m.result1 == nil || m.result2 == nil {
		return nil, fmt.Errorf("snapshots have not been processed")
	}

	out := interp.Field{}
	weight := m.TimeWeight(t)
	for _, dt := range m.types {
		r1 := m.result1[dt]
		r2 := m.result2[dt]
		if m.svc.IsAccumulated(dt) {
			out[dt] = m.accumulatedRate(dt, t, r1, r2)
			continue
		}
		out[dt] = blend(r1, r2, weight)
	}
	return out, nil
}

// accumulatedRate converts an accumulation into a rate per hour. Sources
// with a fixed accumulation window report the total over that window, so
// the second frame is divided by the window directly; per step
// accumulations are differenced across the frames.
func (m *Meteorology) accumulatedRate(dt sources.MetDataType, t time.Time, r1, r2 *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(r1.Shape...)
	if t.After(m.file2.Time) || t.Before(m.file1.Time) {
		return out
	}

	if window := m.svc.AccumulationTime(dt); window > 0 {
		hours := float64(window) / 3600.0
		for i, v := range r2.Elements {
			out.Elements[i] = math.Max(v/hours, 0)
		}
		return out
	}

	dtHours := m.file2.Time.Sub(m.file1.Time).Hours()
	if dtHours <= 0 {
		return out
	}
	for i := range out.Elements {
		dv := r2.Elements[i] - r1.Elements[i]
		out.Elements[i] = math.Max(dv/dtHours, 0)
	}
	return out
}

func blend(r1, r2 *sparse.DenseArray, weight float64) *sparse.DenseArray {
	switch weight {
	case 0:
		return r1
	case 1:
		return r2
	}
	out := sparse.ZerosDense(r1.Shape...)
	for i := range out.Elements {
		out.Elements[i] = r1.Elements[i]*(1-weight) + r2.Elements[i]*weight
	}
	return out
}
