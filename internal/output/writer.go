// Package output encodes assembled forcing fields into the formats the
// downstream hydrodynamic models consume.
package output

import (
	"fmt"
	"time"

	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/interp"
	"github.com/waterinstitute/metget/internal/sources"
)

// Format is the requested output encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatOWIASCII
	FormatOWINetCDF
	FormatCFNetCDF
	FormatDelft3D
	FormatRaw
)

// ParseFormat converts a request format string.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "ascii", "owi-ascii", "adcirc-ascii":
		return FormatOWIASCII, nil
	case "owi-netcdf", "adcirc-netcdf":
		return FormatOWINetCDF, nil
	case "hec-netcdf", "cf-netcdf":
		return FormatCFNetCDF, nil
	case "delft3d":
		return FormatDelft3D, nil
	case "raw":
		return FormatRaw, nil
	}
	return FormatUnknown, fmt.Errorf("invalid output format: %s", s)
}

func (f Format) String() string {
	switch f {
	case FormatOWIASCII:
		return "owi-ascii"
	case FormatOWINetCDF:
		return "owi-netcdf"
	case FormatCFNetCDF:
		return "cf-netcdf"
	case FormatDelft3D:
		return "delft3d"
	case FormatRaw:
		return "raw"
	}
	return "unknown"
}

// Writer assembles time snapshots into forcing files. Domains are added
// before Open; Write is called once per domain per output time, in time
// order.
type Writer interface {
	AddDomain(name string, g *grid.Grid, filenames []string) error
	Open() error
	Write(domain int, t time.Time, field interp.Field) error
	Close() error

	// Files lists every file the writer produced.
	Files() []string
}

// NewWriter builds a writer for a gridded output format. Raw requests
// pass the source files through unmodified and take no writer.
func NewWriter(format Format, variable sources.VariableType, start, end time.Time, step time.Duration, compression bool) (Writer, error) {
	switch format {
	case FormatOWIASCII:
		return newOWIAsciiWriter(variable, start, end, step, compression), nil
	case FormatOWINetCDF:
		return newOWINetCDFWriter(variable, start, end, step), nil
	case FormatCFNetCDF:
		return newCFNetCDFWriter(variable, start, end, step), nil
	case FormatDelft3D:
		return nil, fmt.Errorf("delft3d output is not implemented")
	case FormatRaw:
		return nil, fmt.Errorf("raw output does not use a writer")
	}
	return nil, fmt.Errorf("invalid output format")
}

// snapshotCount returns the number of output times in [start, end].
func snapshotCount(start, end time.Time, step time.Duration) int {
	if step <= 0 {
		return 0
	}
	return int(end.Sub(start)/step) + 1
}

// snapshotIndex maps an output time onto its position in the series.
func snapshotIndex(start time.Time, step time.Duration, t time.Time) int {
	return int((t.Sub(start) + step/2) / step)
}
