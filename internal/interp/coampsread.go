package interp

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"

	"github.com/waterinstitute/metget/internal/sources"
)

// ReadCOAMPS decodes the requested fields from a COAMPS-TC NetCDF bundle.
// A snapshot may be split across several files; each variable is taken from
// the first file providing it.
func ReadCOAMPS(paths []string, svc *sources.Service, variable sources.VariableType, fileTime time.Time) (*InterpData, error) {
	data := &InterpData{
		Service:  svc,
		FileTime: fileTime,
		Values:   map[sources.MetDataType][]float64{},
	}

	wanted := svc.SelectedVariables(variable)
	if len(wanted) == 0 {
		return nil, fmt.Errorf("service %s provides none of %s", svc.Name, variable)
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		nc, err := cdf.Open(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}

		if data.Points == nil && hasVariable(nc, "lon") && hasVariable(nc, "lat") {
			if err := data.setCOAMPSGrid(nc); err != nil {
				f.Close()
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}

		for _, v := range wanted {
			if _, done := data.Values[v.Type]; done {
				continue
			}
			if !hasVariable(nc, v.VarName) {
				continue
			}
			vals, err := readNCVar(nc, v.VarName)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("%s %s: %w", path, v.VarName, err)
			}
			if v.Scale != 1.0 {
				for i := range vals {
					vals[i] *= v.Scale
				}
			}
			data.Values[v.Type] = vals
		}
		f.Close()
	}

	if data.Points == nil {
		return nil, fmt.Errorf("no coordinate variables found in bundle")
	}
	if len(data.Values) == 0 {
		return nil, fmt.Errorf("bundle contains none of the requested fields")
	}
	for t, vals := range data.Values {
		if len(vals) != data.NX*data.NY {
			return nil, fmt.Errorf("%s has %d values for a %d point grid", t, len(vals), data.NX*data.NY)
		}
	}

	data.Resolution = computeResolution(data.Lon, data.Lat)
	data.computeBoundary()
	return data, nil
}

// setCOAMPSGrid reads the separable axes out of the 2-D coordinate
// variables: the first row of lon and the first column of lat.
func (d *InterpData) setCOAMPSGrid(nc *cdf.File) error {
	lon2d, err := readNCVar(nc, "lon")
	if err != nil {
		return err
	}
	lat2d, err := readNCVar(nc, "lat")
	if err != nil {
		return err
	}
	dims := nc.Header.Lengths("lon")
	if len(dims) != 2 {
		return fmt.Errorf("lon has %d dimensions, want 2", len(dims))
	}
	ny, nx := dims[0], dims[1]

	d.NX, d.NY = nx, ny
	d.Lon = make([]float64, nx)
	for i := 0; i < nx; i++ {
		lon := lon2d[i]
		if lon > 180 {
			lon -= 360
		}
		d.Lon[i] = lon
	}
	d.Lat = make([]float64, ny)
	for j := 0; j < ny; j++ {
		d.Lat[j] = lat2d[j*nx]
	}

	d.Points = make([]geom.Point, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			d.Points = append(d.Points, geom.Point{X: d.Lon[i], Y: d.Lat[j]})
		}
	}
	return nil
}

func hasVariable(nc *cdf.File, name string) bool {
	for _, v := range nc.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// readNCVar reads a whole variable as float64, honoring _FillValue.
func readNCVar(nc *cdf.File, name string) ([]float64, error) {
	r := nc.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}

	var data []float64
	switch b := buf.(type) {
	case []float64:
		data = b
	case []float32:
		data = make([]float64, len(b))
		for i, v := range b {
			data[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("variable %s is not floating point", name)
	}

	if fv := nc.Header.GetAttribute(name, "_FillValue"); fv != nil {
		var fill float64
		switch f := fv.(type) {
		case []float64:
			fill = f[0]
		case []float32:
			fill = float64(f[0])
		default:
			return data, nil
		}
		for i, v := range data {
			if v == fill {
				data[i] = math.NaN()
			}
		}
	}
	return data, nil
}
