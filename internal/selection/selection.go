// Package selection chooses the set of archived files that cover a
// requested time window, applying the nowcast, single-forecast, and
// multiple-forecasts assembly policies.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/waterinstitute/metget/internal/catalog"
	"github.com/waterinstitute/metget/internal/database"
	"github.com/waterinstitute/metget/internal/log"
	"github.com/waterinstitute/metget/internal/sources"
)

// ErrIncompleteCoverage marks a domain whose selection cannot support time
// interpolation.
var ErrIncompleteCoverage = errors.New("selection does not cover the requested window")

// File is one selected snapshot.
type File struct {
	Cycle    time.Time
	Time     time.Time
	Tau      int
	Filepath string
}

// Tracks is the pair of advisory files selected for an NHC domain.
type Tracks struct {
	BestTrack *database.NhcBtkEntry
	Forecast  *database.NhcFcstEntry
}

// Params describes one domain's selection.
type Params struct {
	Service           *sources.Service
	Variable          sources.VariableType
	Start             time.Time
	End               time.Time
	Tau               int
	Nowcast           bool
	MultipleForecasts bool
	Scope             catalog.Scope
}

// Engine runs selections against the catalog.
type Engine struct {
	store *catalog.Store
}

// NewEngine creates a selection engine.
func NewEngine(store *catalog.Store) *Engine {
	return &Engine{store: store}
}

// NormalizeTau bumps a zero tau to one when the requested fields cannot be
// used from the zero-hour snapshot: running accumulations with no fixed
// accumulation window, and fields flagged as absent at tau=0. NHC track
// data is exempt.
func NormalizeTau(svc *sources.Service, variable sources.VariableType, tau int) int {
	if svc.Format == sources.FormatATCF || tau != 0 {
		return tau
	}
	for _, t := range variable.Select() {
		v, ok := svc.Variable(t)
		if !ok {
			continue
		}
		if (v.IsAccumulated && v.AccumulationTime == 0) || v.SkipTauZero {
			log.Warnf("%s %s is unusable at tau=0, setting tau to 1", svc.Name, t)
			return 1
		}
	}
	return tau
}

// Select returns the files covering the request window under the requested
// policy, ordered by valid time.
func (e *Engine) Select(p Params) ([]File, error) {
	if err := p.Scope.Validate(p.Service); err != nil {
		return nil, err
	}

	tau := NormalizeTau(p.Service, p.Variable, p.Tau)

	var (
		rows []database.CatalogEntry
		err  error
	)
	switch {
	case p.Nowcast:
		rows, err = e.store.Nowcast(p.Service, p.Scope, tau, p.Start, p.End)
	case p.MultipleForecasts:
		rows, err = e.multipleForecasts(p, tau)
		return rows2files(rows), err
	default:
		return e.singleForecast(p, tau)
	}
	if err != nil {
		return nil, err
	}
	return dedupeByTime(rows2files(rows)), nil
}

func (e *Engine) multipleForecasts(p Params, tau int) ([]database.CatalogEntry, error) {
	rows, err := e.store.MultipleForecasts(p.Service, p.Scope, tau, p.Start, p.End)
	if err != nil {
		return nil, err
	}
	return dedupeRows(rows), nil
}

func (e *Engine) singleForecast(p Params, tau int) ([]File, error) {
	cycle, ok, err := e.store.FirstCycle(p.Service, p.Scope, p.Start, p.End)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rows, err := e.store.CycleFiles(p.Service, p.Scope, cycle, tau, p.End)
	if err != nil {
		return nil, err
	}
	files := rows2files(rows)

	// With tau > 0 the leading window has no usable snapshots from the
	// chosen cycle; fill it from earlier cycles, the chosen cycle winning
	// any valid-time conflict.
	if tau > 0 {
		fallback, err := e.multipleForecasts(p, tau)
		if err != nil {
			return nil, err
		}
		files = mergeTauExcluded(files, rows2files(fallback))
	}
	return files, nil
}

// SelectTracks returns the NHC advisory files for a storm.
func (e *Engine) SelectTracks(scope catalog.Scope) (*Tracks, error) {
	btk, err := e.store.NhcBestTrack(scope)
	if err != nil {
		return nil, err
	}
	fcst, err := e.store.NhcForecast(scope)
	if err != nil {
		return nil, err
	}
	if btk == nil && fcst == nil {
		return nil, fmt.Errorf("no track data for %s storm %s (%d), advisory %s",
			scope.Basin, scope.Storm, scope.StormYear, scope.Advisory)
	}
	return &Tracks{BestTrack: btk, Forecast: fcst}, nil
}

// CheckCoverage errors unless the selection can bracket every output time.
func CheckCoverage(domain string, files []File) error {
	if len(files) < 2 {
		return fmt.Errorf("%w: domain %s selected %d files", ErrIncompleteCoverage, domain, len(files))
	}
	return nil
}

func rows2files(rows []database.CatalogEntry) []File {
	out := make([]File, 0, len(rows))
	for _, r := range rows {
		out = append(out, File{
			Cycle:    r.ForecastCycle,
			Time:     r.ForecastTime,
			Tau:      r.Tau,
			Filepath: r.Filepath,
		})
	}
	return out
}

func dedupeRows(rows []database.CatalogEntry) []database.CatalogEntry {
	var out []database.CatalogEntry
	seen := map[time.Time]bool{}
	for _, r := range rows {
		if seen[r.ForecastTime] {
			continue
		}
		seen[r.ForecastTime] = true
		out = append(out, r)
	}
	return out
}

func dedupeByTime(files []File) []File {
	var out []File
	seen := map[time.Time]bool{}
	for _, f := range files {
		if seen[f.Time] {
			continue
		}
		seen[f.Time] = true
		out = append(out, f)
	}
	return out
}

func mergeTauExcluded(single, fallback []File) []File {
	have := map[time.Time]bool{}
	for _, f := range single {
		have[f.Time] = true
	}
	for _, f := range fallback {
		if !have[f.Time] {
			single = append(single, f)
		}
	}
	sort.Slice(single, func(i, j int) bool { return single[i].Time.Before(single[j].Time) })
	return single
}
