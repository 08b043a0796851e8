// Package interp reads native meteorological files and interpolates them
// onto the requested output grid, merging nested domains into a single
// composite field.
package interp

import (
	"math"
	"sort"
	"time"

	"github.com/ctessum/geom"

	"github.com/waterinstitute/metget/internal/sources"
)

// InterpData holds one decoded source file: the native points, the values
// for each requested field, and the footprint of valid data.
type InterpData struct {
	Service  *sources.Service
	FileTime time.Time

	// Resolution is the mean native cell size in degrees.
	Resolution float64

	// NX and NY describe a rectilinear native grid with axes Lon and Lat.
	// Scattered sources leave them zero and carry only Points.
	NX, NY   int
	Lon, Lat []float64

	// Points is the flattened native point set, row-major over Lat then
	// Lon for rectilinear sources.
	Points []geom.Point

	// Values holds one flat array per field, aligned with Points.
	Values map[sources.MetDataType][]float64

	// Boundary is the footprint of valid data.
	Boundary geom.Polygon

	// DomainLevel ranks nesting, 0 = finest.
	DomainLevel int

	// latDescending records that the file scanned north to south before
	// the rows were flipped onto the ascending axis.
	latDescending bool

	// lonShift records how many columns the longitude axis was rotated to
	// stay ascending after wrapping onto [-180, 180).
	lonShift int
}

// IsRectilinear reports whether the native grid has separable axes.
func (d *InterpData) IsRectilinear() bool {
	return d.NX > 0 && d.NY > 0
}

// computeResolution returns the mean axis spacing of a rectilinear grid.
func computeResolution(lon, lat []float64) float64 {
	dx := meanSpacing(lon)
	dy := meanSpacing(lat)
	return (math.Abs(dx) + math.Abs(dy)) / 2
}

func meanSpacing(axis []float64) float64 {
	if len(axis) < 2 {
		return 0
	}
	return (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
}

// computeBoundary derives the valid-data footprint. Gap-free rectilinear
// grids get their rectangular hull; anything else gets the convex hull of
// the points carrying valid data, simplified to half the native resolution.
func (d *InterpData) computeBoundary() {
	if d.IsRectilinear() && !d.hasInvalidData() {
		d.Boundary = geom.Polygon{{
			{X: minOf(d.Lon), Y: minOf(d.Lat)},
			{X: maxOf(d.Lon), Y: minOf(d.Lat)},
			{X: maxOf(d.Lon), Y: maxOf(d.Lat)},
			{X: minOf(d.Lon), Y: maxOf(d.Lat)},
		}}
		return
	}

	valid := d.validPoints()
	hull := convexHull(valid)
	if len(hull) >= 3 {
		poly := geom.Polygon{hull}
		if simplified, ok := poly.Simplify(d.Resolution / 2).(geom.Polygon); ok {
			poly = simplified
		}
		d.Boundary = poly
	}
}

func (d *InterpData) hasInvalidData() bool {
	for _, vals := range d.Values {
		for _, v := range vals {
			if math.IsNaN(v) {
				return true
			}
		}
		break
	}
	return false
}

func (d *InterpData) validPoints() []geom.Point {
	var primary []float64
	for _, vals := range d.Values {
		primary = vals
		break
	}
	if primary == nil {
		return d.Points
	}
	var out []geom.Point
	for i, p := range d.Points {
		if !math.IsNaN(primary[i]) {
			out = append(out, p)
		}
	}
	return out
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

// convexHull computes the hull with the monotone chain construction.
func convexHull(pts []geom.Point) []geom.Point {
	if len(pts) < 3 {
		return nil
	}
	sorted := make([]geom.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b geom.Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower, upper []geom.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// SortByResolution orders sources finest first and assigns domain levels.
func SortByResolution(data []*InterpData) {
	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Resolution < data[j].Resolution
	})
	for i, d := range data {
		d.DomainLevel = i
	}
}
