package output

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ctessum/cdf"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/interp"
	"github.com/waterinstitute/metget/internal/sources"
	"github.com/waterinstitute/metget/internal/version"
)

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

// cfNetCDFWriter emits one CF convention NetCDF file per domain.
type cfNetCDFWriter struct {
	variable   sources.VariableType
	start, end time.Time
	step       time.Duration
	domains    []*cfDomain
}

type cfDomain struct {
	name     string
	grid     *grid.Grid
	filename string

	file *os.File
	nc   *cdf.File
}

func newCFNetCDFWriter(variable sources.VariableType, start, end time.Time, step time.Duration) *cfNetCDFWriter {
	return &cfNetCDFWriter{variable: variable, start: start, end: end, step: step}
}

func (w *cfNetCDFWriter) AddDomain(name string, g *grid.Grid, filenames []string) error {
	if len(filenames) != 1 {
		return fmt.Errorf("cf-netcdf takes one file per domain, got %d", len(filenames))
	}
	w.domains = append(w.domains, &cfDomain{name: name, grid: g, filename: filenames[0]})
	return nil
}

func (w *cfNetCDFWriter) Open() error {
	for _, d := range w.domains {
		if err := w.openDomain(d); err != nil {
			return err
		}
	}
	return nil
}

func (w *cfNetCDFWriter) openDomain(d *cfDomain) error {
	nt := snapshotCount(w.start, w.end, w.step)
	ny, nx := d.grid.NY(), d.grid.NX()

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, ny, nx})

	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "long_name", "Longitude")
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddAttribute("lon", "axis", "X")

	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "long_name", "Latitude")
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddAttribute("lat", "axis", "Y")

	h.AddVariable("z", []string{"lat", "lon"}, []float64{0})
	h.AddAttribute("z", "units", "meters")
	h.AddAttribute("z", "long_name", "height above mean sea level")

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "long_name", "time")
	h.AddAttribute("time", "units", "minutes since "+w.start.Format("2006-01-02 15:04:05"))
	h.AddAttribute("time", "axis", "T")

	h.AddVariable("crs", []string{}, []int32{0})
	h.AddAttribute("crs", "long_name", "coordinate reference system")
	h.AddAttribute("crs", "grid_mapping_name", "latitude_longitude")
	h.AddAttribute("crs", "longitude_of_prime_meridian", []float64{0})
	h.AddAttribute("crs", "semi_major_axis", []float64{6378137.0})
	h.AddAttribute("crs", "inverse_flattening", []float64{298.257223563})
	h.AddAttribute("crs", "wkt", wgs84WKT)
	h.AddAttribute("crs", "crs_wkt", wgs84WKT)
	h.AddAttribute("crs", "proj4_params", "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs")
	h.AddAttribute("crs", "epsg_code", "EPSG:4326")

	for _, dt := range w.variable.Select() {
		name := dt.NetCDFVarName()
		h.AddVariable(name, []string{"time", "lat", "lon"}, []float64{0})
		h.AddAttribute(name, "units", dt.Units())
		h.AddAttribute(name, "long_name", dt.CFLongName())
		h.AddAttribute(name, "grid_mapping", "crs")
		h.AddAttribute(name, "_FillValue", []float64{dt.FillValue()})
	}

	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	h.AddAttribute("", "Conventions", "CF-1.6,UGRID-0.9")
	h.AddAttribute("", "title", "MetGet Forcing, CF-NetCDF Format")
	h.AddAttribute("", "institution", "MetGet")
	h.AddAttribute("", "source", "MetGet")
	h.AddAttribute("", "history", "Created "+now)
	h.AddAttribute("", "references", "https://github.com/waterinstitute/metget")
	h.AddAttribute("", "metadata_conventions", "Unidata Dataset Discovery v1.0")
	h.AddAttribute("", "summary", "Data generated by MetGet")
	h.AddAttribute("", "metget_server_version", version.Version)
	h.AddAttribute("", "date_created", now)
	h.Define()

	f, err := os.Create(d.filename)
	if err != nil {
		return err
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return err
	}
	d.file = f
	d.nc = nc

	if err := writeSlab(nc, "lon", []int{0}, []int{nx}, d.grid.XColumn(false)); err != nil {
		return err
	}
	if err := writeSlab(nc, "lat", []int{0}, []int{ny}, d.grid.YColumn()); err != nil {
		return err
	}
	z := make([]float64, ny*nx)
	for i := range z {
		z[i] = math.NaN()
	}
	if err := writeSlab(nc, "z", []int{0, 0}, []int{ny, nx}, z); err != nil {
		return err
	}
	return writeSlab(nc, "crs", nil, nil, []int32{4326})
}

func (w *cfNetCDFWriter) Write(domain int, t time.Time, field interp.Field) error {
	d := w.domains[domain]
	it := snapshotIndex(w.start, w.step, t)
	ny, nx := d.grid.NY(), d.grid.NX()

	minutes := t.Sub(w.start).Minutes()
	if err := writeSlab(d.nc, "time", []int{it}, []int{it + 1}, []float64{minutes}); err != nil {
		return err
	}

	for _, dt := range w.variable.Select() {
		values := make([]float64, ny*nx)
		if arr, ok := field[dt]; ok {
			copy(values, arr.Elements)
		} else {
			for i := range values {
				values[i] = dt.FillValue()
			}
		}
		if err := writeSlab(d.nc, dt.NetCDFVarName(), []int{it, 0, 0}, []int{it + 1, ny, nx}, values); err != nil {
			return err
		}
	}
	return nil
}

func (w *cfNetCDFWriter) Close() error {
	var firstErr error
	for _, d := range w.domains {
		if d.file == nil {
			continue
		}
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *cfNetCDFWriter) Files() []string {
	out := make([]string, len(w.domains))
	for i, d := range w.domains {
		out[i] = d.filename
	}
	return out
}
