package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/interp"
	"github.com/waterinstitute/metget/internal/sources"
)

var owiEpoch = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// owiNetCDFWriter writes every domain into a single NetCDF file. The
// classic format has no groups, so each domain's dimensions and variables
// carry the domain name as a prefix and a group_order attribute records
// the nesting order.
type owiNetCDFWriter struct {
	variable   sources.VariableType
	start, end time.Time
	step       time.Duration

	filename string
	domains  []*ncDomain

	file *os.File
	nc   *cdf.File
}

type ncDomain struct {
	name string
	grid *grid.Grid
}

func newOWINetCDFWriter(variable sources.VariableType, start, end time.Time, step time.Duration) *owiNetCDFWriter {
	return &owiNetCDFWriter{variable: variable, start: start, end: end, step: step}
}

func (w *owiNetCDFWriter) AddDomain(name string, g *grid.Grid, filenames []string) error {
	if len(filenames) != 1 {
		return fmt.Errorf("owi-netcdf takes a single output file, got %d", len(filenames))
	}
	if w.filename == "" {
		w.filename = filenames[0]
	} else if w.filename != filenames[0] {
		return fmt.Errorf("owi-netcdf domains share one file, got %s and %s", w.filename, filenames[0])
	}
	w.domains = append(w.domains, &ncDomain{name: name, grid: g})
	return nil
}

func (w *owiNetCDFWriter) Open() error {
	nt := snapshotCount(w.start, w.end, w.step)

	var dims []string
	var lengths []int
	for _, d := range w.domains {
		dims = append(dims, d.name+"_time", d.name+"_yi", d.name+"_xi")
		lengths = append(lengths, nt, d.grid.NY(), d.grid.NX())
	}

	h := cdf.NewHeader(dims, lengths)
	names := make([]string, len(w.domains))
	for i, d := range w.domains {
		names[i] = d.name
	}
	h.AddAttribute("", "group_order", strings.Join(names, " "))
	h.AddAttribute("", "institution", "MetGet")

	for rank, d := range w.domains {
		tdim := []string{d.name + "_time"}
		spatial := []string{d.name + "_yi", d.name + "_xi"}

		h.AddVariable(d.name+"_lat", spatial, []float64{0})
		h.AddAttribute(d.name+"_lat", "units", "degrees_north")
		h.AddAttribute(d.name+"_lat", "long_name", "latitude")
		h.AddAttribute(d.name+"_lat", "rank", []int32{int32(rank + 1)})

		h.AddVariable(d.name+"_lon", spatial, []float64{0})
		h.AddAttribute(d.name+"_lon", "units", "degrees_east")
		h.AddAttribute(d.name+"_lon", "long_name", "longitude")

		h.AddVariable(d.name+"_time", tdim, []int32{0})
		h.AddAttribute(d.name+"_time", "units", "minutes since 1990-01-01T00:00:00")

		for _, dt := range w.variable.Select() {
			name := d.name + "_" + dt.OWIVarName()
			h.AddVariable(name, append(tdim, spatial...), []float32{0})
			h.AddAttribute(name, "units", dt.Units())
			h.AddAttribute(name, "long_name", dt.CFLongName())
			h.AddAttribute(name, "_FillValue", []float32{float32(dt.FillValue())})
		}
	}
	h.Define()

	f, err := os.Create(w.filename)
	if err != nil {
		return err
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.nc = nc

	for _, d := range w.domains {
		if err := w.writeCoordinates(d); err != nil {
			return err
		}
	}
	return nil
}

func (w *owiNetCDFWriter) writeCoordinates(d *ncDomain) error {
	ny, nx := d.grid.NY(), d.grid.NX()
	lat := make([]float64, ny*nx)
	lon := make([]float64, ny*nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			lat[j*nx+i] = d.grid.Y(j)
			lon[j*nx+i] = d.grid.X(i)
		}
	}
	if err := writeSlab(w.nc, d.name+"_lat", []int{0, 0}, []int{ny, nx}, lat); err != nil {
		return err
	}
	return writeSlab(w.nc, d.name+"_lon", []int{0, 0}, []int{ny, nx}, lon)
}

func (w *owiNetCDFWriter) Write(domain int, t time.Time, field interp.Field) error {
	d := w.domains[domain]
	it := snapshotIndex(w.start, w.step, t)
	ny, nx := d.grid.NY(), d.grid.NX()

	minutes := int32(t.Sub(owiEpoch).Minutes())
	if err := writeSlab(w.nc, d.name+"_time", []int{it}, []int{it + 1}, []int32{minutes}); err != nil {
		return err
	}

	for _, dt := range w.variable.Select() {
		arr, ok := field[dt]
		if !ok {
			return fmt.Errorf("field %s missing from snapshot", dt)
		}
		data := make([]float32, len(arr.Elements))
		for i, v := range arr.Elements {
			data[i] = float32(v)
		}
		name := d.name + "_" + dt.OWIVarName()
		if err := writeSlab(w.nc, name, []int{it, 0, 0}, []int{it + 1, ny, nx}, data); err != nil {
			return err
		}
	}
	return nil
}

func (w *owiNetCDFWriter) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *owiNetCDFWriter) Files() []string {
	if w.filename == "" {
		return nil
	}
	return []string{w.filename}
}

func writeSlab(nc *cdf.File, name string, begin, end []int, data interface{}) error {
	wr := nc.Writer(name, begin, end)
	if _, err := wr.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
