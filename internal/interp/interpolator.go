package interp

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/log"
	"github.com/waterinstitute/metget/internal/sources"
	"github.com/waterinstitute/metget/internal/triangulation"
)

// Field holds one assembled snapshot: a [ny, nx] array per data type.
type Field map[sources.MetDataType]*sparse.DenseArray

// smoothingWidth scales both the blur radius and the width of the band
// around a nested domain's boundary, in multiples of the finer resolution.
const smoothingWidth = 5.0

// Interpolator regrids decoded source files onto the output grid and
// merges nested domains. Triangulations are cached across snapshots as
// long as the native point sets do not change.
type Interpolator struct {
	grid     *grid.Grid
	backfill bool
	defaults map[sources.MetDataType]float64

	targets []geom.Point

	tris    map[int]*triangulation.Triangulation
	weights map[int]*triangulation.WeightSet
	points  map[int][]geom.Point
}

// NewInterpolator creates an interpolator for an output grid.
func NewInterpolator(g *grid.Grid, backfill bool) *Interpolator {
	ip := &Interpolator{
		grid:     g,
		backfill: backfill,
		defaults: map[sources.MetDataType]float64{},
		tris:     map[int]*triangulation.Triangulation{},
		weights:  map[int]*triangulation.WeightSet{},
		points:   map[int][]geom.Point{},
	}
	ip.targets = make([]geom.Point, 0, g.N())
	for j := 0; j < g.NY(); j++ {
		for i := 0; i < g.NX(); i++ {
			ip.targets = append(ip.targets, geom.Point{X: g.X(i), Y: g.Y(j)})
		}
	}
	return ip
}

// SetDefault overrides the value used for cells no source covers, for
// example a request-supplied background pressure.
func (ip *Interpolator) SetDefault(dt sources.MetDataType, v float64) {
	ip.defaults[dt] = v
}

// ShareCaches copies another interpolator's triangulation caches, used
// when two time frames hold the same native grids.
func (ip *Interpolator) ShareCaches(other *Interpolator) {
	for k, v := range other.tris {
		ip.tris[k] = v
		ip.weights[k] = other.weights[k]
		ip.points[k] = other.points[k]
	}
}

// Process regrids and merges one snapshot's sources into a composite field.
func (ip *Interpolator) Process(data []*InterpData, selection []sources.MetDataType) (Field, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no source data to process")
	}
	SortByResolution(data)

	ny, nx := ip.grid.NY(), ip.grid.NX()
	composite := Field{}
	for _, dt := range selection {
		arr := sparse.ZerosDense(ny, nx)
		fillAll(arr, math.NaN())
		composite[dt] = arr
	}

	for level, d := range data {
		regridded, err := ip.regrid(level, d, selection)
		if err != nil {
			return nil, err
		}
		for dt, vals := range regridded {
			mergeWhereNaN(composite[dt], vals)
		}
		if level > 0 {
			finer := data[level-1]
			band := ip.smoothingBand(finer)
			for _, dt := range selection {
				smoothBand(composite[dt], band, smoothingWidth*finer.Resolution/ip.grid.XRes())
			}
		}
	}

	ip.removeNaN(composite, len(data))
	return composite, nil
}

// regrid produces per-type values on the output grid from one source.
func (ip *Interpolator) regrid(level int, d *InterpData, selection []sources.MetDataType) (map[sources.MetDataType][]float64, error) {
	out := map[sources.MetDataType][]float64{}
	for _, dt := range selection {
		vals, ok := d.Values[dt]
		if !ok {
			continue
		}
		var (
			regridded []float64
			err       error
		)
		if d.IsRectilinear() {
			regridded = ip.bilinear(d, vals)
		} else {
			regridded, err = ip.triangulated(level, d, vals)
			if err != nil {
				return nil, err
			}
		}
		out[dt] = regridded
	}
	return out, nil
}

// bilinear interpolates a rectilinear source onto the grid targets.
func (ip *Interpolator) bilinear(d *InterpData, vals []float64) []float64 {
	out := make([]float64, len(ip.targets))
	for k, p := range ip.targets {
		out[k] = bilinearAt(d, vals, p.X, p.Y)
	}
	return out
}

func bilinearAt(d *InterpData, vals []float64, x, y float64) float64 {
	// Sources kept in a 0..360 encoding need the target moved onto the
	// same circle.
	if x < d.Lon[0] && d.Lon[d.NX-1] > 180 {
		x += 360
	}
	i := sort.SearchFloat64s(d.Lon, x) - 1
	j := sort.SearchFloat64s(d.Lat, y) - 1
	if i < 0 || i >= d.NX-1 || j < 0 || j >= d.NY-1 {
		return math.NaN()
	}

	x0, x1 := d.Lon[i], d.Lon[i+1]
	y0, y1 := d.Lat[j], d.Lat[j+1]
	tx := (x - x0) / (x1 - x0)
	ty := (y - y0) / (y1 - y0)

	v00 := vals[j*d.NX+i]
	v10 := vals[j*d.NX+i+1]
	v01 := vals[(j+1)*d.NX+i]
	v11 := vals[(j+1)*d.NX+i+1]

	return (1-ty)*((1-tx)*v00+tx*v10) + ty*((1-tx)*v01+tx*v11)
}

// triangulated interpolates a scattered source through a Delaunay
// triangulation built in a stereographic plane centered on the source.
func (ip *Interpolator) triangulated(level int, d *InterpData, vals []float64) ([]float64, error) {
	tri, ok := ip.tris[level]
	if !ok || !samePoints(ip.points[level], d.Points) {
		log.Debugf("building triangulation for domain level %d (%d points)", level, len(d.Points))
		srcPts, tgtPts, err := projectForSource(d, ip.targets)
		if err != nil {
			return nil, err
		}
		tri, err = triangulation.New(srcPts)
		if err != nil {
			return nil, err
		}
		ip.tris[level] = tri
		ip.weights[level] = tri.Weights(tgtPts)
		ip.points[level] = d.Points
	}
	return tri.Interpolate(ip.weights[level], vals)
}

// projectForSource maps the source points and grid targets into a
// stereographic plane centered on the source's centroid.
func projectForSource(d *InterpData, targets []geom.Point) ([]geom.Point, []geom.Point, error) {
	var cx, cy float64
	for _, p := range d.Points {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(d.Points))
	cy /= float64(len(d.Points))

	lonlat, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		return nil, nil, err
	}
	stere, err := proj.Parse(fmt.Sprintf(
		"+proj=stere +lat_0=%.6f +lon_0=%.6f +datum=WGS84 +units=m +no_defs", cy, cx))
	if err != nil {
		return nil, nil, err
	}
	tr, err := lonlat.NewTransform(stere)
	if err != nil {
		return nil, nil, err
	}

	project := func(pts []geom.Point) ([]geom.Point, error) {
		out := make([]geom.Point, len(pts))
		for i, p := range pts {
			g, err := p.Transform(tr)
			if err != nil {
				return nil, err
			}
			out[i] = g.(geom.Point)
		}
		return out, nil
	}

	srcPts, err := project(d.Points)
	if err != nil {
		return nil, nil, err
	}
	tgtPts, err := project(targets)
	if err != nil {
		return nil, nil, err
	}
	return srcPts, tgtPts, nil
}

// smoothingBand flags grid cells whose distance to the finer domain's
// boundary is within the smoothing width.
func (ip *Interpolator) smoothingBand(finer *InterpData) []bool {
	band := make([]bool, len(ip.targets))
	if len(finer.Boundary) == 0 {
		return band
	}
	width := smoothingWidth * finer.Resolution
	for k, p := range ip.targets {
		if distanceToRing(finer.Boundary, p) <= width {
			band[k] = true
		}
	}
	return band
}

func distanceToRing(poly geom.Polygon, p geom.Point) float64 {
	min := math.Inf(1)
	for _, ring := range poly {
		n := len(ring)
		for i := 0; i < n; i++ {
			a := ring[i]
			b := ring[(i+1)%n]
			if d := segmentDistance(a, b, p); d < min {
				min = d
			}
		}
	}
	return min
}

func segmentDistance(a, b, p geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	t := 0.0
	if l2 > 0 {
		t = ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
		t = math.Max(0, math.Min(1, t))
	}
	qx, qy := a.X+t*dx, a.Y+t*dy
	return math.Hypot(p.X-qx, p.Y-qy)
}

// smoothBand applies a NaN-aware Gaussian blur, writing blurred values
// back only inside the band.
func smoothBand(arr *sparse.DenseArray, band []bool, sigmaCells float64) {
	if sigmaCells <= 0 {
		return
	}
	any := false
	for _, b := range band {
		if b {
			any = true
			break
		}
	}
	if !any {
		return
	}

	ny, nx := arr.Shape[0], arr.Shape[1]
	kernel := gaussianKernel(sigmaCells)
	radius := len(kernel) / 2

	// Separable convolution with renormalization over valid samples.
	pass := func(src []float64, w, h int, horizontal bool) []float64 {
		dst := make([]float64, len(src))
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				var sum, weight float64
				for k := -radius; k <= radius; k++ {
					var ii, jj int
					if horizontal {
						ii, jj = i+k, j
					} else {
						ii, jj = i, j+k
					}
					if ii < 0 || ii >= w || jj < 0 || jj >= h {
						continue
					}
					v := src[jj*w+ii]
					if math.IsNaN(v) {
						continue
					}
					kw := kernel[k+radius]
					sum += kw * v
					weight += kw
				}
				if weight > 0 {
					dst[j*w+i] = sum / weight
				} else {
					dst[j*w+i] = math.NaN()
				}
			}
		}
		return dst
	}

	blurred := pass(pass(arr.Elements, nx, ny, true), nx, ny, false)
	for k, inBand := range band {
		if inBand && !math.IsNaN(blurred[k]) && !math.IsNaN(arr.Elements[k]) {
			arr.Elements[k] = blurred[k]
		}
	}
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// removeNaN backfills cells no source covered. Without backfill, or with a
// single source domain, missing cells carry the variable's default value;
// nested requests with backfill mark them with the fill sentinel instead.
func (ip *Interpolator) removeNaN(f Field, nDomains int) {
	for dt, arr := range f {
		fill := dt.DefaultValue()
		if v, ok := ip.defaults[dt]; ok {
			fill = v
		}
		if ip.backfill && nDomains > 1 {
			fill = dt.FillValue()
		}
		for i, v := range arr.Elements {
			if math.IsNaN(v) {
				arr.Elements[i] = fill
			}
		}
	}
}

func mergeWhereNaN(dst *sparse.DenseArray, src []float64) {
	for i := range dst.Elements {
		if math.IsNaN(dst.Elements[i]) {
			dst.Elements[i] = src[i]
		}
	}
}

func fillAll(arr *sparse.DenseArray, v float64) {
	for i := range arr.Elements {
		arr.Elements[i] = v
	}
}

func samePoints(a, b []geom.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
