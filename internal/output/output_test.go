package output

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/sparse"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/interp"
	"github.com/waterinstitute/metget/internal/sources"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
	}{
		{"ascii", FormatOWIASCII},
		{"owi-ascii", FormatOWIASCII},
		{"adcirc-ascii", FormatOWIASCII},
		{"owi-netcdf", FormatOWINetCDF},
		{"adcirc-netcdf", FormatOWINetCDF},
		{"hec-netcdf", FormatCFNetCDF},
		{"cf-netcdf", FormatCFNetCDF},
		{"delft3d", FormatDelft3D},
		{"raw", FormatRaw},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseFormat("grib"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestFormatHeaderCoordinate(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{18.0, "18.00000"},
		{-98.0, "-98.0000"},
		{-100.5, "-100.500"},
		{150.25, "150.2500"},
		{0.0, " 0.00000"},
	}
	for _, c := range cases {
		if got := formatHeaderCoordinate(c.in); got != c.want {
			t.Errorf("formatHeaderCoordinate(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRecordHeader(t *testing.T) {
	g, err := grid.New(-98, 18, -88, 28, 0.25, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2023, 8, 1, 6, 0, 0, 0, time.UTC)
	got := recordHeader(at, g)
	want := "iLat=  41iLong=  41DX=0.2500DY=0.2500SWLat=18.00000SWLon=-98.0000DT=202308010600\n"
	if got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
}

func TestWriteRecordLineBreaks(t *testing.T) {
	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	values := make([]float64, 10)
	for i := range values {
		values[i] = float64(i)
	}
	if err := writeRecord(w, values); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if len(lines[0]) != 80 {
		t.Errorf("full line is %d chars, want 80", len(lines[0]))
	}
	if len(lines[1]) != 20 {
		t.Errorf("partial line is %d chars, want 20", len(lines[1]))
	}
	if !strings.HasPrefix(lines[0], "    0.0000    1.0000") {
		t.Errorf("unexpected line content: %q", lines[0])
	}
}

func TestSnapshotAccounting(t *testing.T) {
	start := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	step := time.Hour

	if got := snapshotCount(start, end, step); got != 25 {
		t.Errorf("count = %d, want 25", got)
	}
	if got := snapshotIndex(start, step, start); got != 0 {
		t.Errorf("index at start = %d, want 0", got)
	}
	if got := snapshotIndex(start, step, start.Add(6*time.Hour)); got != 6 {
		t.Errorf("index at +6h = %d, want 6", got)
	}
}

func constantField(g *grid.Grid, values map[sources.MetDataType]float64) interp.Field {
	f := interp.Field{}
	for dt, v := range values {
		arr := sparse.ZerosDense(g.NY(), g.NX())
		for i := range arr.Elements {
			arr.Elements[i] = v
		}
		f[dt] = arr
	}
	return f
}

func TestOWIAsciiWindPressure(t *testing.T) {
	g, err := grid.New(-90, 25, -89, 26, 0.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	dir := t.TempDir()
	pre := filepath.Join(dir, "fort.pre")
	wnd := filepath.Join(dir, "fort.wnd")

	w, err := NewWriter(FormatOWIASCII, sources.VarWindPressure, start, end, time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddDomain("d01", g, []string{pre, wnd}); err != nil {
		t.Fatal(err)
	}
	if err := w.Open(); err != nil {
		t.Fatal(err)
	}
	field := constantField(g, map[sources.MetDataType]float64{
		sources.Pressure: 1013,
		sources.WindU:    5,
		sources.WindV:    -5,
	})
	for _, at := range []time.Time{start, end} {
		if err := w.Write(0, at, field); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	preData, err := os.ReadFile(pre)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(preData), "\n")
	if !strings.HasPrefix(lines[0], "Oceanweather WIN/PRE Format") {
		t.Errorf("missing file header: %q", lines[0])
	}
	if !strings.Contains(lines[0], "2023080100") || !strings.Contains(lines[0], "2023080101") {
		t.Errorf("file header lacks the date range: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "iLat=   3iLong=   3") {
		t.Errorf("unexpected record header: %q", lines[1])
	}
	if !strings.Contains(lines[2], "1013.0000") {
		t.Errorf("unexpected pressure record: %q", lines[2])
	}

	wndData, err := os.ReadFile(wnd)
	if err != nil {
		t.Fatal(err)
	}
	// Header, record header, one 8 value line plus a 1 value line for each
	// of u and v, repeated for the second snapshot, then a trailing newline.
	wndLines := strings.Split(string(wndData), "\n")
	if len(wndLines) != 12 {
		t.Errorf("wind file has %d lines, want 12", len(wndLines))
	}
	if !strings.Contains(wndLines[2], "5.0000") {
		t.Errorf("unexpected u record: %q", wndLines[2])
	}
	if !strings.Contains(wndLines[4], "-5.0000") {
		t.Errorf("unexpected v record: %q", wndLines[4])
	}

	files := w.Files()
	if len(files) != 2 {
		t.Errorf("writer reports %d files, want 2", len(files))
	}
}

func TestOWIAsciiRejectsWrongFileCount(t *testing.T) {
	g, err := grid.New(-90, 25, -89, 26, 0.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	w, err := NewWriter(FormatOWIASCII, sources.VarWindPressure, start, start.Add(time.Hour), time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddDomain("d01", g, []string{"only-one"}); err == nil {
		t.Fatal("expected an error for a single file with wind_pressure")
	}
}

func TestNewWriterRawHasNoWriter(t *testing.T) {
	start := time.Now()
	if _, err := NewWriter(FormatRaw, sources.VarWindPressure, start, start, time.Hour, false); err == nil {
		t.Fatal("raw format should not produce a writer")
	}
}
