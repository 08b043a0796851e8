// Package build runs the request queue: parsing build requests,
// assembling forcing files from the archive, and uploading the products.
package build

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/waterinstitute/metget/internal/catalog"
	"github.com/waterinstitute/metget/internal/grid"
	"github.com/waterinstitute/metget/internal/output"
	"github.com/waterinstitute/metget/internal/sources"
)

// DomainInput is one requested output domain as it appears in the
// request JSON.
type DomainInput struct {
	Name           string  `json:"name" validate:"required"`
	Service        string  `json:"service" validate:"required"`
	Level          int     `json:"level" validate:"gte=0"`
	XInit          float64 `json:"x_init" validate:"gte=-180,lte=360"`
	YInit          float64 `json:"y_init" validate:"gte=-90,lte=90"`
	XEnd           float64 `json:"x_end" validate:"gte=-180,lte=360"`
	YEnd           float64 `json:"y_end" validate:"gte=-90,lte=90"`
	DI             float64 `json:"di" validate:"gt=0"`
	DJ             float64 `json:"dj" validate:"gt=0"`
	EnsembleMember string  `json:"ensemble_member,omitempty"`
	Storm          string  `json:"storm,omitempty"`
	Basin          string  `json:"basin,omitempty" validate:"omitempty,oneof=al ep cp wp"`
	Advisory       string  `json:"advisory,omitempty"`
	StormYear      int     `json:"storm_year,omitempty"`
	Tau            int     `json:"tau" validate:"gte=0"`

	// resolved during parsing
	svc  *sources.Service
	grid *grid.Grid
}

// Svc returns the resolved service descriptor.
func (d *DomainInput) Svc() *sources.Service { return d.svc }

// Grid returns the resolved output grid.
func (d *DomainInput) Grid() *grid.Grid { return d.grid }

// IsNHC reports whether the domain asks for storm track output.
func (d *DomainInput) IsNHC() bool { return d.Service == "nhc" }

// Scope returns the catalog scope the domain selects within.
func (d *DomainInput) Scope() catalog.Scope {
	return catalog.Scope{
		Storm:          d.Storm,
		EnsembleMember: d.EnsembleMember,
		StormYear:      d.StormYear,
		Basin:          d.Basin,
		Advisory:       d.Advisory,
	}
}

// Request is a fully parsed and validated build request.
type Request struct {
	Version            string        `json:"version" validate:"required"`
	Creator            string        `json:"creator" validate:"required"`
	RequestID          string        `json:"request_id"`
	StartDateRaw       string        `json:"start_date" validate:"required"`
	EndDateRaw         string        `json:"end_date" validate:"required"`
	TimeStepSeconds    int           `json:"time_step" validate:"gt=0"`
	Filename           string        `json:"filename" validate:"required"`
	FormatRaw          string        `json:"format" validate:"required"`
	DataTypeRaw        string        `json:"data_type"`
	BackgroundPressure float64       `json:"background_pressure"`
	DryRun             bool          `json:"dry_run"`
	Compression        bool          `json:"compression"`
	Backfill           bool          `json:"backfill"`
	EPSG               int           `json:"epsg" validate:"gt=0"`
	Nowcast            bool          `json:"nowcast"`
	MultipleForecasts  *bool         `json:"multiple_forecasts"`
	Strict             bool          `json:"strict"`
	APIKey             string        `json:"api_key"`
	SourceIP           string        `json:"source_ip"`
	Domains            []DomainInput `json:"domains" validate:"required,min=1,dive"`

	// resolved during parsing
	Start    time.Time
	End      time.Time
	TimeStep time.Duration
	Format   output.Format
	DataType sources.VariableType
	raw      []byte
}

var requestValidator = validator.New()

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %s", s)
}

// ParseRequest validates raw request JSON and resolves the services,
// grids, format, and dates it names.
func ParseRequest(data []byte) (*Request, error) {
	req := &Request{
		BackgroundPressure: 1013.0,
		EPSG:               4326,
		DataTypeRaw:        "wind_pressure",
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("malformed request json: %w", err)
	}
	req.raw = data

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.StormYearDefault()
	if err := requestValidator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	var err error
	if req.Start, err = parseDate(req.StartDateRaw); err != nil {
		return nil, err
	}
	if req.End, err = parseDate(req.EndDateRaw); err != nil {
		return nil, err
	}
	if !req.Start.Before(req.End) {
		return nil, fmt.Errorf("start date %s is not before end date %s", req.StartDateRaw, req.EndDateRaw)
	}
	req.TimeStep = time.Duration(req.TimeStepSeconds) * time.Second

	if req.Format, err = output.ParseFormat(req.FormatRaw); err != nil {
		return nil, err
	}
	if req.DataType, err = sources.ParseVariableType(req.DataTypeRaw); err != nil {
		return nil, err
	}

	for i := range req.Domains {
		if err := req.resolveDomain(&req.Domains[i]); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// StormYearDefault fills the storm year on domains that omit it.
func (r *Request) StormYearDefault() {
	for i := range r.Domains {
		if r.Domains[i].StormYear == 0 {
			r.Domains[i].StormYear = time.Now().UTC().Year()
		}
	}
}

func (r *Request) resolveDomain(d *DomainInput) error {
	if d.IsNHC() {
		if d.Storm == "" || d.Basin == "" {
			return fmt.Errorf("domain %s: nhc requires storm and basin", d.Name)
		}
		return nil
	}

	svc, err := sources.LookupService(d.Service)
	if err != nil {
		return fmt.Errorf("domain %s: %w", d.Name, err)
	}
	d.svc = svc

	if svc.IsEnsemble() && !svc.ValidEnsembleMember(d.EnsembleMember) {
		return fmt.Errorf("domain %s: invalid ensemble member %q for %s", d.Name, d.EnsembleMember, d.Service)
	}
	if svc.StormScoped && d.Storm == "" {
		return fmt.Errorf("domain %s: service %s requires a storm", d.Name, d.Service)
	}

	g, err := grid.New(d.XInit, d.YInit, d.XEnd, d.YEnd, d.DI, d.DJ)
	if err != nil {
		return fmt.Errorf("domain %s: %w", d.Name, err)
	}
	d.grid = g
	return nil
}

// Raw returns the original request JSON, recorded alongside the outputs.
func (r *Request) Raw() []byte { return r.raw }

// MultipleForecastsEnabled applies the policy default: on unless the
// request turned it off.
func (r *Request) MultipleForecastsEnabled() bool {
	if r.MultipleForecasts == nil {
		return true
	}
	return *r.MultipleForecasts
}

// SnapshotTimes lists every output time in the window.
func (r *Request) SnapshotTimes() []time.Time {
	var out []time.Time
	for t := r.Start; !t.After(r.End); t = t.Add(r.TimeStep) {
		out = append(out, t)
	}
	return out
}

// CreditUsage charges grid cells times snapshots per gridded domain. NHC
// track domains charge a flat rate, and raw requests charge per file.
func (r *Request) CreditUsage(rawFileCount int) int64 {
	const nhcFlat = 100 * 100 * 24

	// The window's end snapshot counts too, matching SnapshotTimes.
	steps := int64(r.End.Sub(r.Start)/r.TimeStep) + 1
	var credit int64
	for i := range r.Domains {
		d := &r.Domains[i]
		switch {
		case d.IsNHC():
			credit += nhcFlat
		case r.Format == output.FormatRaw:
			credit += int64(rawFileCount)
		default:
			credit += int64(d.grid.N()) * steps
		}
	}
	return credit
}

// DomainFilenames builds the local output names for one domain. OWI
// ASCII splits by data type; the NetCDF formats share a single file name
// except that multi domain CF output gets a per domain suffix.
func (r *Request) DomainFilenames(index int) ([]string, error) {
	d := &r.Domains[index]
	switch r.Format {
	case output.FormatOWIASCII:
		level := fmt.Sprintf("_%02d", d.Level)
		var fns []string
		switch r.DataType {
		case sources.VarWindPressure:
			base := fmt.Sprintf("%s_%02d%s", r.Filename, index, level)
			fns = []string{base + ".pre", base + ".wnd"}
		case sources.VarPrecipitation:
			fns = []string{r.Filename + level + ".precip"}
		case sources.VarHumidity:
			fns = []string{r.Filename + level + ".humid"}
		case sources.VarIce:
			fns = []string{r.Filename + level + ".ice"}
		default:
			return nil, fmt.Errorf("data type %s cannot be written as owi-ascii", r.DataType)
		}
		if r.Compression {
			for i := range fns {
				fns[i] += ".gz"
			}
		}
		return fns, nil
	case output.FormatOWINetCDF, output.FormatCFNetCDF:
		name := r.Filename
		if !strings.HasSuffix(name, ".nc") {
			name += ".nc"
		}
		if r.Format == output.FormatCFNetCDF && len(r.Domains) > 1 {
			name = fmt.Sprintf("%s_%02d.nc", strings.TrimSuffix(name, ".nc"), index)
		}
		return []string{name}, nil
	}
	return nil, fmt.Errorf("output format %s does not take generated filenames", r.Format)
}
