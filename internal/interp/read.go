package interp

import (
	"fmt"
	"time"

	"github.com/waterinstitute/metget/internal/sources"
)

// Read decodes one snapshot's local files. Services that split a snapshot
// across files (nested model domains, parent/nest pairs) yield one
// InterpData per file; the interpolator merges them by resolution.
func Read(paths []string, svc *sources.Service, variable sources.VariableType, fileTime time.Time) ([]*InterpData, error) {
	var out []*InterpData
	for _, p := range paths {
		var (
			d   *InterpData
			err error
		)
		switch svc.Format {
		case sources.FormatGRIB:
			d, err = ReadGRIB(p, svc, variable, fileTime)
		case sources.FormatCOAMPSNetCDF:
			d, err = ReadCOAMPS([]string{p}, svc, variable, fileTime)
		default:
			err = fmt.Errorf("service %s files cannot be gridded", svc.Name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
