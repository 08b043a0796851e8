package interp

import (
	"math"
	"testing"
	"time"

	"github.com/ctessum/geom"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/sources"
)

// syntheticSource builds a rectilinear source carrying pressure values
// from a linear field so interpolation errors are exactly measurable.
func syntheticSource(xll, yll, dx float64, nx, ny int, f func(x, y float64) float64) *InterpData {
	svc, _ := sources.LookupService("gfs-ncep")
	d := &InterpData{
		Service:  svc,
		FileTime: time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC),
		NX:       nx,
		NY:       ny,
		Values:   map[sources.MetDataType][]float64{},
	}
	d.Lon = make([]float64, nx)
	for i := 0; i < nx; i++ {
		d.Lon[i] = xll + float64(i)*dx
	}
	d.Lat = make([]float64, ny)
	for j := 0; j < ny; j++ {
		d.Lat[j] = yll + float64(j)*dx
	}
	vals := make([]float64, nx*ny)
	d.Points = make([]geom.Point, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			vals[j*nx+i] = f(d.Lon[i], d.Lat[j])
			d.Points = append(d.Points, geom.Point{X: d.Lon[i], Y: d.Lat[j]})
		}
	}
	d.Values[sources.Pressure] = vals
	d.Resolution = computeResolution(d.Lon, d.Lat)
	d.computeBoundary()
	return d
}

func TestBilinearReproducesLinearField(t *testing.T) {
	f := func(x, y float64) float64 { return 2*x + 3*y + 100 }
	src := syntheticSource(-100, 20, 0.5, 21, 21, f)

	g, err := grid.New(-99, 21, -91, 29, 0.25, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, false)

	field, err := ip.Process([]*InterpData{src}, []sources.MetDataType{sources.Pressure})
	if err != nil {
		t.Fatal(err)
	}
	arr := field[sources.Pressure]
	for j := 0; j < g.NY(); j++ {
		for i := 0; i < g.NX(); i++ {
			want := f(g.X(i), g.Y(j))
			got := arr.Get(j, i)
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("cell (%d,%d): got %v want %v", j, i, got, want)
			}
		}
	}
}

func TestProcessFillsOutsideCoverage(t *testing.T) {
	src := syntheticSource(-100, 20, 0.5, 5, 5, func(x, y float64) float64 { return 950 })

	// Grid extends well past the source footprint.
	g, err := grid.New(-105, 15, -90, 30, 1.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, false)

	field, err := ip.Process([]*InterpData{src}, []sources.MetDataType{sources.Pressure})
	if err != nil {
		t.Fatal(err)
	}
	arr := field[sources.Pressure]
	corner := arr.Get(0, 0)
	if corner != sources.Pressure.DefaultValue() {
		t.Fatalf("uncovered cell = %v, want background %v", corner, sources.Pressure.DefaultValue())
	}
	inside := arr.Get(6, 7) // -98, 21
	if inside != 950 {
		t.Fatalf("covered cell = %v, want 950", inside)
	}
}

func TestProcessBackfillSentinel(t *testing.T) {
	fine := syntheticSource(-96, 24, 0.1, 11, 11, func(x, y float64) float64 { return 900 })
	coarse := syntheticSource(-100, 20, 0.5, 11, 11, func(x, y float64) float64 { return 1000 })

	g, err := grid.New(-105, 15, -90, 30, 1.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, true)

	field, err := ip.Process([]*InterpData{coarse, fine}, []sources.MetDataType{sources.Pressure})
	if err != nil {
		t.Fatal(err)
	}
	arr := field[sources.Pressure]
	if got := arr.Get(0, 0); got != sources.Pressure.FillValue() {
		t.Fatalf("uncovered cell = %v, want sentinel %v", got, sources.Pressure.FillValue())
	}
}

func TestMergePrefersFinerDomain(t *testing.T) {
	fine := syntheticSource(-97, 22, 0.1, 21, 21, func(x, y float64) float64 { return 900 })
	coarse := syntheticSource(-100, 20, 0.5, 21, 21, func(x, y float64) float64 { return 1000 })

	data := []*InterpData{coarse, fine}
	SortByResolution(data)
	if data[0] != fine || fine.DomainLevel != 0 {
		t.Fatal("finest domain should sort first")
	}

	g, err := grid.New(-99.5, 20.5, -90.5, 29.5, 0.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, false)
	field, err := ip.Process(data, []sources.MetDataType{sources.Pressure})
	if err != nil {
		t.Fatal(err)
	}
	arr := field[sources.Pressure]

	// Interior of the fine domain, away from the blend band.
	jc := int(math.Round((23.0 - g.YLowerLeft()) / g.YRes()))
	ic := int(math.Round((-96.0 - g.XLowerLeft()) / g.XRes()))
	if got := arr.Get(jc, ic); math.Abs(got-900) > 1e-9 {
		t.Fatalf("fine interior = %v, want 900", got)
	}
	// Far outside the fine domain.
	if got := arr.Get(g.NY()-1, 0); math.Abs(got-1000) > 1e-9 {
		t.Fatalf("coarse-only cell = %v, want 1000", got)
	}
}

func TestSmoothingBandMembership(t *testing.T) {
	fine := syntheticSource(-96, 24, 0.1, 21, 21, func(x, y float64) float64 { return 1 })

	g, err := grid.New(-100, 20, -90, 30, 0.25, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, false)
	band := ip.smoothingBand(fine)

	idx := func(x, y float64) int {
		i := int(math.Round((x - g.XLowerLeft()) / g.XRes()))
		j := int(math.Round((y - g.YLowerLeft()) / g.YRes()))
		return j*g.NX() + i
	}
	// On the fine boundary.
	if !band[idx(-96, 25)] {
		t.Error("cell on the boundary should be in the band")
	}
	// Center of the fine domain, a degree from any edge.
	if band[idx(-95, 25)] {
		t.Error("cell far inside the fine domain should not be in the band")
	}
	// Far outside.
	if band[idx(-99, 21)] {
		t.Error("distant cell should not be in the band")
	}
}

func TestSmoothBandPreservesConstantField(t *testing.T) {
	g, err := grid.New(0, 0, 10, 10, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, false)
	src := syntheticSource(-5, -5, 1, 21, 21, func(x, y float64) float64 { return 42 })
	field, err := ip.Process([]*InterpData{src}, []sources.MetDataType{sources.Pressure})
	if err != nil {
		t.Fatal(err)
	}
	arr := field[sources.Pressure]
	band := make([]bool, g.N())
	for i := range band {
		band[i] = true
	}
	smoothBand(arr, band, 2.0)
	for _, v := range arr.Elements {
		if math.Abs(v-42) > 1e-9 {
			t.Fatalf("constant field changed by blur: %v", v)
		}
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	k := gaussianKernel(1.5)
	var sum float64
	for _, v := range k {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("kernel sum = %v, want 1", sum)
	}
	if len(k)%2 != 1 {
		t.Fatalf("kernel length %d is even", len(k))
	}
}

func TestComputeResolution(t *testing.T) {
	lon := []float64{-100, -99.75, -99.5, -99.25, -99}
	lat := []float64{20, 20.25, 20.5}
	if got := computeResolution(lon, lat); math.Abs(got-0.25) > 1e-12 {
		t.Fatalf("resolution = %v, want 0.25", got)
	}
}

func TestReorderRows(t *testing.T) {
	d := &InterpData{NX: 2, NY: 3, latDescending: true}
	got := d.reorderRows([]float64{1, 2, 3, 4, 5, 6})
	want := []float64{5, 6, 3, 4, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reorder = %v, want %v", got, want)
		}
	}
}

func TestWrapLongitudes(t *testing.T) {
	// Regional grid already on [-180, 180): untouched.
	lon, shift := wrapLongitudes([]float64{-100, -99, -98})
	if shift != 0 || lon[0] != -100 {
		t.Fatalf("regional axis changed: %v shift %d", lon, shift)
	}

	// Regional grid in the 0..360 convention west of Greenwich: wraps
	// without a seam.
	lon, shift = wrapLongitudes([]float64{260, 261, 262})
	if shift != 0 || lon[0] != -100 || lon[2] != -98 {
		t.Fatalf("wrapped regional axis = %v shift %d", lon, shift)
	}

	// Global 0..360 axis: wrapping pointwise splits it at 180, so the
	// axis rotates to stay ascending.
	raw := make([]float64, 360)
	for i := range raw {
		raw[i] = float64(i)
	}
	lon, shift = wrapLongitudes(raw)
	if shift != 181 {
		t.Fatalf("seam shift = %d, want 181", shift)
	}
	if lon[0] != -179 || lon[len(lon)-1] != 180 {
		t.Fatalf("rotated axis spans [%v, %v], want [-179, 180]", lon[0], lon[len(lon)-1])
	}
	for i := 1; i < len(lon); i++ {
		if lon[i] <= lon[i-1] {
			t.Fatalf("rotated axis not ascending at %d: %v <= %v", i, lon[i], lon[i-1])
		}
	}
}

func TestReorderRowsLongitudeSeam(t *testing.T) {
	// One row of four columns rotated by two: values follow the axis.
	d := &InterpData{NX: 4, NY: 1, lonShift: 2}
	got := d.reorderRows([]float64{10, 11, 12, 13})
	want := []float64{12, 13, 10, 11}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotated row = %v, want %v", got, want)
		}
	}
}

// globalSource builds a source the way the GRIB reader does for a global
// 0..360 file: values are laid out against the raw axis, then the axis is
// wrapped and the columns rotated to match.
func globalSource(f func(lon, lat float64) float64) *InterpData {
	svc, _ := sources.LookupService("gfs-ncep")
	nx, ny := 360, 61
	d := &InterpData{
		Service:  svc,
		FileTime: time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC),
		NX:       nx,
		NY:       ny,
		Values:   map[sources.MetDataType][]float64{},
	}
	raw := make([]float64, nx)
	for i := range raw {
		raw[i] = float64(i)
	}
	d.Lon, d.lonShift = wrapLongitudes(raw)
	d.Lat = make([]float64, ny)
	for j := 0; j < ny; j++ {
		d.Lat[j] = -60 + float64(j)*2
	}
	vals := make([]float64, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			vals[j*nx+i] = f(raw[i], d.Lat[j])
		}
	}
	d.Values[sources.Pressure] = d.reorderRows(vals)
	d.Points = make([]geom.Point, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			d.Points = append(d.Points, geom.Point{X: d.Lon[i], Y: d.Lat[j]})
		}
	}
	d.Resolution = computeResolution(d.Lon, d.Lat)
	d.computeBoundary()
	return d
}

func TestGlobalSourceCoversWesternHemisphere(t *testing.T) {
	// 990 is distinguishable from the background pressure fill, so any
	// cell the source fails to cover shows up.
	src := globalSource(func(lon, lat float64) float64 { return 990 })

	g, err := grid.New(-98, 20, -78, 32, 0.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, false)
	field, err := ip.Process([]*InterpData{src}, []sources.MetDataType{sources.Pressure})
	if err != nil {
		t.Fatal(err)
	}
	arr := field[sources.Pressure]
	for j := 0; j < g.NY(); j++ {
		for i := 0; i < g.NX(); i++ {
			if got := arr.Get(j, i); math.Abs(got-990) > 1e-9 {
				t.Fatalf("cell (%d,%d) = %v, want full coverage at 990", j, i, got)
			}
		}
	}
}

func TestGlobalSourceValueAlignment(t *testing.T) {
	// Pressure varies with longitude so misrotated columns are visible.
	src := globalSource(func(lon, lat float64) float64 {
		if lon > 180 {
			lon -= 360
		}
		return 1000 + lon/10
	})

	g, err := grid.New(-100, 0, -80, 10, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	ip := NewInterpolator(g, false)
	field, err := ip.Process([]*InterpData{src}, []sources.MetDataType{sources.Pressure})
	if err != nil {
		t.Fatal(err)
	}
	arr := field[sources.Pressure]
	for i := 0; i < g.NX(); i++ {
		want := 1000 + g.X(i)/10
		if got := arr.Get(0, i); math.Abs(got-want) > 1e-9 {
			t.Fatalf("column %d (lon %v) = %v, want %v", i, g.X(i), got, want)
		}
	}
}

func TestConvexHullSquare(t *testing.T) {
	pts := []geom.Point{
		{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2},
		{X: 1, Y: 1}, {X: 0.5, Y: 1.5},
	}
	hull := convexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("hull has %d vertices, want 4", len(hull))
	}
}

func TestRectilinearBoundary(t *testing.T) {
	src := syntheticSource(-100, 20, 0.5, 5, 5, func(x, y float64) float64 { return 1 })
	if len(src.Boundary) != 1 || len(src.Boundary[0]) != 4 {
		t.Fatalf("boundary = %v, want a 4 vertex rectangle", src.Boundary)
	}
	if !src.IsRectilinear() {
		t.Fatal("synthetic source should be rectilinear")
	}
}
