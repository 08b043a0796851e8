package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/interp"
	"github.com/waterinstitute/metget/internal/sources"
)

// owiAsciiWriter emits the Oceanweather WIN/PRE fixed width text format.
// A wind and pressure request produces a .pre and a .wnd file per domain;
// every other selection goes into a single file.
type owiAsciiWriter struct {
	variable   sources.VariableType
	start, end time.Time
	step       time.Duration
	compress   bool
	domains    []*owiAsciiDomain
}

type owiAsciiDomain struct {
	name      string
	grid      *grid.Grid
	filenames []string

	files   []*os.File
	gzips   []*gzip.Writer
	writers []*bufio.Writer
}

func newOWIAsciiWriter(variable sources.VariableType, start, end time.Time, step time.Duration, compress bool) *owiAsciiWriter {
	return &owiAsciiWriter{
		variable: variable,
		start:    start,
		end:      end,
		step:     step,
		compress: compress,
	}
}

func (w *owiAsciiWriter) AddDomain(name string, g *grid.Grid, filenames []string) error {
	want := 1
	if w.variable == sources.VarWindPressure {
		want = 2
	}
	if len(filenames) != want {
		return fmt.Errorf("%s output needs %d files per domain, got %d", w.variable, want, len(filenames))
	}
	w.domains = append(w.domains, &owiAsciiDomain{name: name, grid: g, filenames: filenames})
	return nil
}

func (w *owiAsciiWriter) Open() error {
	header := fmt.Sprintf("Oceanweather WIN/PRE Format                            %s     %s\n",
		w.start.Format("2006010215"), w.end.Format("2006010215"))

	for _, d := range w.domains {
		for _, name := range d.filenames {
			f, err := os.Create(name)
			if err != nil {
				return err
			}
			d.files = append(d.files, f)
			var out io.Writer = f
			if w.compress {
				gz := gzip.NewWriter(f)
				d.gzips = append(d.gzips, gz)
				out = gz
			}
			bw := bufio.NewWriter(out)
			d.writers = append(d.writers, bw)
			if _, err := bw.WriteString(header); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *owiAsciiWriter) Write(domain int, t time.Time, field interp.Field) error {
	d := w.domains[domain]
	header := recordHeader(t, d.grid)

	if w.variable == sources.VarWindPressure {
		pre, wnd := d.writers[0], d.writers[1]
		if _, err := pre.WriteString(header); err != nil {
			return err
		}
		if err := writeRecord(pre, field[sources.Pressure].Elements); err != nil {
			return err
		}
		if _, err := wnd.WriteString(header); err != nil {
			return err
		}
		if err := writeRecord(wnd, field[sources.WindU].Elements); err != nil {
			return err
		}
		return writeRecord(wnd, field[sources.WindV].Elements)
	}

	out := d.writers[0]
	if _, err := out.WriteString(header); err != nil {
		return err
	}
	for _, dt := range w.variable.Select() {
		arr, ok := field[dt]
		if !ok {
			return fmt.Errorf("field %s missing from snapshot", dt)
		}
		if err := writeRecord(out, arr.Elements); err != nil {
			return err
		}
	}
	return nil
}

func (w *owiAsciiWriter) Close() error {
	var firstErr error
	for _, d := range w.domains {
		for _, bw := range d.writers {
			if err := bw.Flush(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		for _, gz := range d.gzips {
			if err := gz.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		for _, f := range d.files {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (w *owiAsciiWriter) Files() []string {
	var out []string
	for _, d := range w.domains {
		out = append(out, d.filenames...)
	}
	return out
}

// formatHeaderCoordinate renders a corner coordinate in eight columns,
// spending the width on precision when the magnitude allows it.
func formatHeaderCoordinate(v float64) string {
	switch {
	case v <= -100.0:
		return fmt.Sprintf("%8.3f", v)
	case v < 0.0 || v >= 100.0:
		return fmt.Sprintf("%8.4f", v)
	default:
		return fmt.Sprintf("%8.5f", v)
	}
}

func recordHeader(t time.Time, g *grid.Grid) string {
	return fmt.Sprintf("iLat=%4diLong=%4dDX=%6.4fDY=%6.4fSWLat=%8sSWLon=%8sDT=%s\n",
		g.NY(), g.NX(), g.XRes(), g.YRes(),
		formatHeaderCoordinate(g.YLowerLeft()),
		formatHeaderCoordinate(g.XLowerLeft()),
		t.Format("200601021504"))
}

// writeRecord emits the values with four decimal places, eight per line.
func writeRecord(w *bufio.Writer, values []float64) error {
	for i, v := range values {
		if _, err := fmt.Fprintf(w, "%10.4f", v); err != nil {
			return err
		}
		if (i+1)%8 == 0 {
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	if len(values)%8 != 0 {
		return w.WriteByte('\n')
	}
	return nil
}
