package meteorology

import (
	"math"
	"testing"
	"time"

	"github.com/ctessum/sparse"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/interp"
	"github.com/waterinstitute/metget/internal/sources"
)

func newTestSequencer(t *testing.T, service string, variable sources.VariableType) *Meteorology {
	t.Helper()
	g, err := grid.New(-100, 20, -90, 30, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := sources.LookupService(service)
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(g, svc, variable, false)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func constantArray(shape []int, v float64) *sparse.DenseArray {
	arr := sparse.ZerosDense(shape...)
	for i := range arr.Elements {
		arr.Elements[i] = v
	}
	return arr
}

func TestSetNextSnapshotRotation(t *testing.T) {
	m := newTestSequencer(t, "gfs-ncep", sources.VarWindPressure)
	t0 := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)

	// The first snapshot primes both frames.
	m.SetNextSnapshot(Snapshot{Time: t0, Paths: []string{"a"}})
	m.SetNextSnapshot(Snapshot{Time: t0, Paths: []string{"a"}})
	if m.file1.Time != t0 || m.file2.Time != t0 {
		t.Fatal("priming should fill both frames")
	}

	t1 := t0.Add(3 * time.Hour)
	m.SetNextSnapshot(Snapshot{Time: t1, Paths: []string{"b"}})
	if m.file1.Time != t0 || m.file2.Time != t1 {
		t.Fatalf("rotation gave window [%s, %s]", m.file1.Time, m.file2.Time)
	}

	t2 := t0.Add(6 * time.Hour)
	m.SetNextSnapshot(Snapshot{Time: t2, Paths: []string{"c"}})
	if m.file1.Time != t1 || m.file2.Time != t2 {
		t.Fatalf("rotation gave window [%s, %s]", m.file1.Time, m.file2.Time)
	}
}

func TestTimeWeightClamped(t *testing.T) {
	m := newTestSequencer(t, "gfs-ncep", sources.VarWindPressure)
	t0 := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(6 * time.Hour)
	m.file1 = &Snapshot{Time: t0}
	m.file2 = &Snapshot{Time: t1}

	cases := []struct {
		at   time.Time
		want float64
	}{
		{t0.Add(-time.Hour), 0},
		{t0, 0},
		{t0.Add(90 * time.Minute), 0.25},
		{t0.Add(3 * time.Hour), 0.5},
		{t1, 1},
		{t1.Add(time.Hour), 1},
	}
	for _, c := range cases {
		if got := m.TimeWeight(c.at); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("weight at %s = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestGetBlendsInstantaneous(t *testing.T) {
	m := newTestSequencer(t, "gfs-ncep", sources.VarWindPressure)
	t0 := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	m.file1 = &Snapshot{Time: t0}
	m.file2 = &Snapshot{Time: t0.Add(6 * time.Hour)}
	shape := []int{m.grid.NY(), m.grid.NX()}
	m.result1 = interp.Field{
		sources.Pressure: constantArray(shape, 1000),
		sources.WindU:    constantArray(shape, 0),
		sources.WindV:    constantArray(shape, 10),
	}
	m.result2 = interp.Field{
		sources.Pressure: constantArray(shape, 980),
		sources.WindU:    constantArray(shape, 8),
		sources.WindV:    constantArray(shape, 10),
	}

	field, err := m.Get(t0.Add(3 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got := field[sources.Pressure].Elements[0]; got != 990 {
		t.Errorf("pressure = %v, want 990", got)
	}
	if got := field[sources.WindU].Elements[0]; got != 4 {
		t.Errorf("u = %v, want 4", got)
	}
	if got := field[sources.WindV].Elements[0]; got != 10 {
		t.Errorf("v = %v, want 10", got)
	}
}

func TestGetAccumulatedRate(t *testing.T) {
	// gefs-ncep precipitation is accumulated per step.
	m := newTestSequencer(t, "gefs-ncep", sources.VarPrecipitation)
	t0 := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	m.file1 = &Snapshot{Time: t0}
	m.file2 = &Snapshot{Time: t0.Add(3 * time.Hour)}
	shape := []int{m.grid.NY(), m.grid.NX()}
	m.result1 = interp.Field{sources.Precipitation: constantArray(shape, 6)}
	m.result2 = interp.Field{sources.Precipitation: constantArray(shape, 12)}

	field, err := m.Get(t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	// 6 mm over 3 hours.
	if got := field[sources.Precipitation].Elements[0]; math.Abs(got-2) > 1e-12 {
		t.Errorf("rate = %v, want 2", got)
	}

	// Outside the window the rate is zero.
	field, err = m.Get(t0.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got := field[sources.Precipitation].Elements[0]; got != 0 {
		t.Errorf("rate outside window = %v, want 0", got)
	}
}

func TestGetAccumulatedRateZeroAfterPriming(t *testing.T) {
	// Both frames hold the first snapshot before the window advances, so
	// the differenced rate at the start of the run must be zero rather
	// than the first file's whole accumulation.
	m := newTestSequencer(t, "gefs-ncep", sources.VarPrecipitation)
	t0 := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	m.file1 = &Snapshot{Time: t0}
	m.file2 = &Snapshot{Time: t0}
	shape := []int{m.grid.NY(), m.grid.NX()}
	m.result1 = interp.Field{sources.Precipitation: constantArray(shape, 6)}
	m.result2 = interp.Field{sources.Precipitation: constantArray(shape, 6)}

	field, err := m.Get(t0)
	if err != nil {
		t.Fatal(err)
	}
	if got := field[sources.Precipitation].Elements[0]; got != 0 {
		t.Errorf("rate after priming = %v, want 0", got)
	}
}

func TestGetAccumulatedNeverNegative(t *testing.T) {
	m := newTestSequencer(t, "gefs-ncep", sources.VarPrecipitation)
	t0 := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	m.file1 = &Snapshot{Time: t0}
	m.file2 = &Snapshot{Time: t0.Add(3 * time.Hour)}
	shape := []int{m.grid.NY(), m.grid.NX()}
	// An accumulation reset makes the difference negative.
	m.result1 = interp.Field{sources.Precipitation: constantArray(shape, 12)}
	m.result2 = interp.Field{sources.Precipitation: constantArray(shape, 1)}

	field, err := m.Get(t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got := field[sources.Precipitation].Elements[0]; got != 0 {
		t.Errorf("rate = %v, want clamp to 0", got)
	}
}

func TestGetFixedAccumulationWindow(t *testing.T) {
	// wpc-ncep reports 6 hour accumulations regardless of the frame gap.
	m := newTestSequencer(t, "wpc-ncep", sources.VarPrecipitation)
	t0 := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	m.file1 = &Snapshot{Time: t0}
	m.file2 = &Snapshot{Time: t0.Add(6 * time.Hour)}
	shape := []int{m.grid.NY(), m.grid.NX()}
	m.result1 = interp.Field{sources.Precipitation: constantArray(shape, 0)}
	m.result2 = interp.Field{sources.Precipitation: constantArray(shape, 18)}

	field, err := m.Get(t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	// 18 mm over the fixed 6 hour window.
	if got := field[sources.Precipitation].Elements[0]; math.Abs(got-3) > 1e-12 {
		t.Errorf("rate = %v, want 3", got)
	}
}

func TestGetRequiresProcessing(t *testing.T) {
	m := newTestSequencer(t, "gfs-ncep", sources.VarWindPressure)
	if _, err := m.Get(time.Now()); err == nil {
		t.Fatal("expected an error before any snapshot is processed")
	}
}
