package interp

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/nilsmagnus/grib/griblib"

	"github.com/waterinstitute/metget/internal/sources"
)

// gribParam locates a field in a GRIB2 file by discipline, parameter
// category, and parameter number.
type gribParam struct {
	discipline uint8
	category   uint8
	number     uint8
}

var gribParams = map[string]gribParam{
	"10u":    {0, 2, 2},
	"10v":    {0, 2, 3},
	"prmsl":  {0, 3, 1},
	"sp":     {0, 3, 0},
	"mslma":  {0, 3, 192},
	"icec":   {10, 2, 0},
	"siconc": {10, 2, 0},
	"prate":  {0, 1, 7},
	"acpcp":  {0, 1, 10},
	"tp":     {0, 1, 8},
	"apcp":   {0, 1, 8},
	"r":      {0, 1, 1},
	"2r":     {0, 1, 1},
	"r2":     {0, 1, 1},
	"t":      {0, 0, 0},
	"2t":     {0, 0, 0},
	"t2m":    {0, 0, 0},
	"crain":  {0, 1, 192},
	"csnow":  {0, 1, 195},
	"cicep":  {0, 1, 194},
	"cfrzr":  {0, 1, 193},
}

// surfaceFilter narrows a parameter match to a vertical level, derived from
// the inventory long name.
type surfaceFilter struct {
	surfaceType uint8
	value       uint32
	checkValue  bool
}

func levelFromLongName(longName string) (surfaceFilter, bool) {
	switch {
	case strings.Contains(longName, "10 m above ground"):
		return surfaceFilter{surfaceType: 103, value: 10, checkValue: true}, true
	case strings.Contains(longName, "2 m above ground"):
		return surfaceFilter{surfaceType: 103, value: 2, checkValue: true}, true
	case strings.Contains(longName, "30-0 mb above ground"):
		return surfaceFilter{surfaceType: 108}, true
	case strings.Contains(longName, "mean sea level"):
		return surfaceFilter{surfaceType: 101}, true
	case strings.Contains(longName, "surface"):
		return surfaceFilter{surfaceType: 1}, true
	}
	return surfaceFilter{}, false
}

// ReadGRIB decodes the requested fields from a GRIB2 file.
func ReadGRIB(path string, svc *sources.Service, variable sources.VariableType, fileTime time.Time) (*InterpData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	messages, err := griblib.ReadMessages(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no GRIB messages in %s", path)
	}

	wanted := svc.SelectedVariables(variable)
	if len(wanted) == 0 {
		return nil, fmt.Errorf("service %s provides none of %s", svc.Name, variable)
	}

	data := &InterpData{
		Service:  svc,
		FileTime: fileTime,
		Values:   map[sources.MetDataType][]float64{},
	}

	for _, v := range wanted {
		msg := findMessage(messages, v)
		if msg == nil {
			continue
		}
		if data.Points == nil {
			if err := data.setGridFromMessage(msg); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		vals, err := decodeValues(msg, v, data.NX*data.NY)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", path, v.Type, err)
		}
		data.Values[v.Type] = data.reorderRows(vals)
	}

	if len(data.Values) == 0 {
		return nil, fmt.Errorf("%s contains none of the requested fields", path)
	}

	data.Resolution = computeResolution(data.Lon, data.Lat)
	data.computeBoundary()
	return data, nil
}

func findMessage(messages []*griblib.Message, v sources.Variable) *griblib.Message {
	p, ok := gribParams[v.GribName]
	if !ok {
		return nil
	}
	level, hasLevel := levelFromLongName(v.LongName)
	for _, m := range messages {
		if m.Section0.Discipline != p.discipline {
			continue
		}
		tmpl := m.Section4.ProductDefinitionTemplate
		if tmpl.ParameterCategory != p.category || tmpl.ParameterNumber != p.number {
			continue
		}
		if hasLevel {
			if uint8(tmpl.FirstSurface.Type) != level.surfaceType {
				continue
			}
			if level.checkValue && tmpl.FirstSurface.Value != level.value {
				continue
			}
		}
		return m
	}
	return nil
}

const gribDegrees = 1e-6

// setGridFromMessage derives the native axes from a lat/lon grid
// definition. Longitudes beyond 180 are moved onto the [-180, 180) circle.
func (d *InterpData) setGridFromMessage(m *griblib.Message) error {
	grid, ok := m.Section3.Definition.(*griblib.Grid0)
	if !ok {
		return fmt.Errorf("unsupported grid template %d", m.Section3.TemplateNumber)
	}

	nx, ny := int(grid.Ni), int(grid.Nj)
	lon0 := float64(grid.Lo1) * gribDegrees
	lat0 := float64(grid.La1) * gribDegrees
	lat1 := float64(grid.La2) * gribDegrees
	di := float64(grid.Di) * gribDegrees
	dj := float64(grid.Dj) * gribDegrees
	if lat1 < lat0 {
		dj = -dj
	}

	d.NX, d.NY = nx, ny
	raw := make([]float64, nx)
	for i := 0; i < nx; i++ {
		raw[i] = lon0 + float64(i)*di
	}
	d.Lon, d.lonShift = wrapLongitudes(raw)
	d.Lat = make([]float64, ny)
	for j := 0; j < ny; j++ {
		d.Lat[j] = lat0 + float64(j)*dj
	}

	d.latDescending = dj < 0
	if d.latDescending {
		reverse(d.Lat)
	}

	d.Points = make([]geom.Point, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			d.Points = append(d.Points, geom.Point{X: d.Lon[i], Y: d.Lat[j]})
		}
	}
	return nil
}

// wrapLongitudes moves an axis onto the [-180, 180) circle. Wrapping a
// global 0..360 axis pointwise breaks its monotonic ordering, so the axis
// is rotated at the wrap seam and the rotation recorded so the value
// columns can follow.
func wrapLongitudes(lon []float64) ([]float64, int) {
	wrapped := make([]float64, len(lon))
	for i, v := range lon {
		if v > 180 {
			v -= 360
		}
		wrapped[i] = v
	}

	seam := 0
	for i := 1; i < len(wrapped); i++ {
		if wrapped[i] < wrapped[i-1] {
			seam = i
			break
		}
	}
	if seam == 0 {
		return wrapped, 0
	}

	rotated := make([]float64, len(wrapped))
	copy(rotated, wrapped[seam:])
	copy(rotated[len(wrapped)-seam:], wrapped[:seam])
	for i := 1; i < len(rotated); i++ {
		if rotated[i] < rotated[i-1] {
			// Not a single seam; keep the native encoding.
			return lon, 0
		}
	}
	return rotated, seam
}

// reorderRows aligns the decoded values with the stored axes: rows flip
// when the file scans north to south, and columns rotate with the
// longitude seam.
func (d *InterpData) reorderRows(vals []float64) []float64 {
	if !d.latDescending && d.lonShift == 0 {
		return vals
	}
	out := make([]float64, len(vals))
	for j := 0; j < d.NY; j++ {
		srcRow := j
		if d.latDescending {
			srcRow = d.NY - 1 - j
		}
		if d.lonShift == 0 {
			copy(out[j*d.NX:(j+1)*d.NX], vals[srcRow*d.NX:(srcRow+1)*d.NX])
			continue
		}
		for i := 0; i < d.NX; i++ {
			out[j*d.NX+i] = vals[srcRow*d.NX+(i+d.lonShift)%d.NX]
		}
	}
	return out
}

func decodeValues(m *griblib.Message, v sources.Variable, n int) ([]float64, error) {
	raw := m.Section7.Data
	if len(raw) != n {
		return nil, fmt.Errorf("message has %d values for a %d point grid", len(raw), n)
	}
	out := make([]float64, n)
	for i, val := range raw {
		if math.IsNaN(val) {
			out[i] = math.NaN()
			continue
		}
		x := val
		if v.Type == sources.Temperature {
			// GRIB temperatures are Kelvin.
			x -= 273.15
		}
		out[i] = x * v.Scale
	}
	return out, nil
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
