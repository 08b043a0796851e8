package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/waterinstitute/metget/internal/catalog"
	"github.com/waterinstitute/metget/internal/log"
	"github.com/waterinstitute/metget/internal/meteorology"
	"github.com/waterinstitute/metget/internal/objectstore"
	"github.com/waterinstitute/metget/internal/output"
	"github.com/waterinstitute/metget/internal/selection"
	"github.com/waterinstitute/metget/internal/version"
)

// ErrRestoreWait reports that some selected files are parked in Glacier
// and restores are running. The request goes back in the queue until the
// objects come back.
var ErrRestoreWait = errors.New("waiting on glacier restores")

// Result summarizes one completed request.
type Result struct {
	RawFileCount int
	OutputFiles  []string
}

// Handler assembles one request end to end: selection, download, time
// interpolation, output writing, and upload.
type Handler struct {
	catalog *catalog.Store
	engine  *selection.Engine
	store   *objectstore.Store
	upload  *objectstore.Store

	subsetters map[string]*objectstore.GribSubsetter
}

// NewHandler wires a handler against the catalog and the two buckets.
func NewHandler(cat *catalog.Store, store, upload *objectstore.Store) *Handler {
	return &Handler{
		catalog:    cat,
		engine:     selection.NewEngine(cat),
		store:      store,
		upload:     upload,
		subsetters: map[string]*objectstore.GribSubsetter{},
	}
}

func (h *Handler) subsetter(bucket string) *objectstore.GribSubsetter {
	if s, ok := h.subsetters[bucket]; ok {
		return s
	}
	s := objectstore.NewGribSubsetter(h.store.API(), bucket)
	h.subsetters[bucket] = s
	return s
}

// domainRun carries one gridded domain through the time loop.
type domainRun struct {
	index int
	input *DomainInput
	files []selection.File
	met   *meteorology.Meteorology

	// idx2 is the files index currently loaded as the window's second
	// frame; local holds downloaded paths by files index.
	idx2  int
	local map[int][]string
}

// Process runs a request to completion. A request whose inputs are still
// thawing from Glacier returns ErrRestoreWait and can be retried later.
func (h *Handler) Process(ctx context.Context, req *Request) (*Result, error) {
	workDir := filepath.Join(os.TempDir(), req.RequestID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	runs, tracks, err := h.selectAll(req)
	if err != nil {
		return nil, err
	}
	if err := h.checkArchives(ctx, req, runs); err != nil {
		return nil, err
	}

	if req.Format == output.FormatRaw {
		return h.processRaw(ctx, req, runs)
	}

	var outputs []string
	inputFiles := map[string][]string{}

	for _, d := range req.Domains {
		if !d.IsNHC() {
			continue
		}
		trk := tracks[d.Name]
		path, used, err := h.processTrack(ctx, req, &d, trk, workDir)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
		inputFiles[d.Name] = used
	}

	if len(runs) > 0 {
		gridded, inputs, err := h.processGridded(ctx, req, runs, workDir)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, gridded...)
		for name, files := range inputs {
			inputFiles[name] = files
		}
	}

	res := &Result{OutputFiles: basenames(outputs)}
	if req.DryRun {
		log.Infof("dry run for request %s, skipping upload of %d files", req.RequestID, len(outputs))
		return res, nil
	}
	if err := h.uploadOutputs(ctx, req, outputs, inputFiles); err != nil {
		return nil, err
	}
	return res, nil
}

// selectAll runs the catalog selection for every domain. Gridded domains
// that cannot cover the window are fatal under strict mode or when they
// are the request's primary domain.
func (h *Handler) selectAll(req *Request) ([]*domainRun, map[string]*selection.Tracks, error) {
	var runs []*domainRun
	tracks := map[string]*selection.Tracks{}

	for i := range req.Domains {
		d := &req.Domains[i]
		if d.IsNHC() {
			trk, err := h.engine.SelectTracks(d.Scope())
			if err != nil {
				return nil, nil, fmt.Errorf("domain %s: %w", d.Name, err)
			}
			tracks[d.Name] = trk
			continue
		}

		files, err := h.engine.Select(selection.Params{
			Service:           d.Svc(),
			Variable:          req.DataType,
			Start:             req.Start,
			End:               req.End,
			Tau:               d.Tau,
			Nowcast:           req.Nowcast,
			MultipleForecasts: req.MultipleForecastsEnabled(),
			Scope:             d.Scope(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("domain %s: %w", d.Name, err)
		}
		if err := selection.CheckCoverage(d.Name, files); err != nil {
			if req.Strict || i == 0 {
				return nil, nil, err
			}
			log.Warnf("skipping domain %s: %v", d.Name, err)
			continue
		}

		if err := h.catalog.MarkAccessed(d.Svc(), filepaths(files)); err != nil {
			log.Warnf("marking catalog access for %s: %v", d.Name, err)
		}
		runs = append(runs, &domainRun{
			index: i,
			input: d,
			files: files,
			local: map[int][]string{},
		})
	}
	return runs, tracks, nil
}

// checkArchives scans every selected mirror file for Glacier residency,
// starting restores for anything frozen.
func (h *Handler) checkArchives(ctx context.Context, req *Request, runs []*domainRun) error {
	pending := 0
	for _, run := range runs {
		for _, f := range run.files {
			for _, p := range splitPaths(f.Filepath) {
				if strings.HasPrefix(p, "s3://") {
					continue
				}
				state, err := h.store.CheckArchiveInitiateRestore(ctx, p)
				if err != nil {
					return err
				}
				if state != objectstore.StateAvailable {
					pending++
				}
			}
		}
	}
	if pending > 0 {
		log.Infof("request %s has %d files restoring from glacier", req.RequestID, pending)
		return ErrRestoreWait
	}
	return nil
}

// processRaw copies the selected source files into the product bucket
// without regridding.
func (h *Handler) processRaw(ctx context.Context, req *Request, runs []*domainRun) (*Result, error) {
	var outputs []string
	inputFiles := map[string][]string{}
	count := 0

	for _, run := range runs {
		staged := make([][]string, len(run.files))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i, f := range run.files {
			i, f := i, f
			g.Go(func() error {
				paths, err := h.fetch(gctx, req, run, f)
				if err != nil {
					return err
				}
				staged[i] = paths
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, paths := range staged {
			run.local[i] = paths
			count += len(paths)
			for _, p := range paths {
				inputFiles[run.input.Name] = append(inputFiles[run.input.Name], filepath.Base(p))
				if !req.DryRun {
					key := req.RequestID + "/" + filepath.Base(p)
					if err := h.upload.Upload(ctx, p, key); err != nil {
						return nil, err
					}
				}
				outputs = append(outputs, filepath.Base(p))
			}
		}
		run.removeAll()
	}

	res := &Result{RawFileCount: count, OutputFiles: outputs}
	if req.DryRun {
		return res, nil
	}
	return res, h.uploadFileList(ctx, req, inputFiles, outputs)
}

// processTrack merges the best track and forecast advisories for a storm
// domain into one continuous ATCF file.
func (h *Handler) processTrack(ctx context.Context, req *Request, d *DomainInput, trk *selection.Tracks, workDir string) (string, []string, error) {
	var used []string

	btkPath, fcstPath := "", ""
	if trk.BestTrack != nil {
		p, err := h.store.Download(ctx, trk.BestTrack.Filepath, d.Service, trk.BestTrack.AdvisoryStart)
		if err != nil {
			return "", nil, err
		}
		btkPath = p
		used = append(used, filepath.Base(trk.BestTrack.Filepath))
	}
	if trk.Forecast != nil {
		p, err := h.store.Download(ctx, trk.Forecast.Filepath, d.Service, trk.Forecast.AdvisoryStart)
		if err != nil {
			return "", nil, err
		}
		fcstPath = p
		used = append(used, filepath.Base(trk.Forecast.Filepath))
	}
	defer os.Remove(btkPath)
	defer os.Remove(fcstPath)

	out := filepath.Join(workDir,
		fmt.Sprintf("%s_%s_%s_%s.trk", req.Filename, d.Basin, d.Storm, d.Advisory))

	switch {
	case btkPath != "" && fcstPath != "":
		if err := MergeTracks(btkPath, fcstPath, out); err != nil {
			return "", nil, err
		}
	case btkPath != "":
		if err := copyFile(btkPath, out); err != nil {
			return "", nil, err
		}
	default:
		if err := copyFile(fcstPath, out); err != nil {
			return "", nil, err
		}
	}
	return out, used, nil
}

// processGridded runs the time loop over every gridded domain, writing
// each snapshot through the shared output writer.
func (h *Handler) processGridded(ctx context.Context, req *Request, runs []*domainRun, workDir string) ([]string, map[string][]string, error) {
	writer, err := output.NewWriter(req.Format, req.DataType, req.Start, req.End, req.TimeStep, req.Compression)
	if err != nil {
		return nil, nil, err
	}

	inputFiles := map[string][]string{}
	for _, run := range runs {
		names, err := req.DomainFilenames(run.index)
		if err != nil {
			return nil, nil, err
		}
		for i := range names {
			names[i] = filepath.Join(workDir, names[i])
		}
		if err := writer.AddDomain(run.input.Name, run.input.Grid(), names); err != nil {
			return nil, nil, err
		}

		met, err := meteorology.New(run.input.Grid(), run.input.Svc(), req.DataType, req.Backfill)
		if err != nil {
			return nil, nil, err
		}
		met.SetBackgroundPressure(req.BackgroundPressure)
		run.met = met

		for _, f := range run.files {
			inputFiles[run.input.Name] = append(inputFiles[run.input.Name],
				filepath.Base(strings.Split(f.Filepath, ",")[0]))
		}
	}
	if err := writer.Open(); err != nil {
		return nil, nil, err
	}

	// Prime the window with the first snapshot in both frames so
	// accumulated rates start from zero instead of a spurious first delta.
	for _, run := range runs {
		paths, err := h.fetch(ctx, req, run, run.files[0])
		if err != nil {
			return nil, nil, err
		}
		run.local[0] = paths
		first := meteorology.Snapshot{Time: run.files[0].Time, Paths: paths}
		run.met.SetNextSnapshot(first)
		run.met.SetNextSnapshot(first)
		run.idx2 = 0
		if err := run.met.ProcessFiles(); err != nil {
			return nil, nil, err
		}
	}

	for _, t := range req.SnapshotTimes() {
		for i, run := range runs {
			for run.idx2+1 < len(run.files) && t.After(run.files[run.idx2].Time) {
				run.idx2++
				if err := h.push(ctx, req, run, run.idx2); err != nil {
					return nil, nil, err
				}
				if err := run.met.ProcessFiles(); err != nil {
					return nil, nil, err
				}
				run.remove(run.idx2 - 2)
			}

			field, err := run.met.Get(t)
			if err != nil {
				return nil, nil, err
			}
			if err := writer.Write(i, t, field); err != nil {
				return nil, nil, err
			}
		}
		log.Debugf("wrote snapshot %s for request %s", t.Format("2006-01-02 15:04"), req.RequestID)
	}

	if err := writer.Close(); err != nil {
		return nil, nil, err
	}
	for _, run := range runs {
		run.removeAll()
	}
	return writer.Files(), inputFiles, nil
}

// push downloads one selection entry and feeds it to the sequencer.
func (h *Handler) push(ctx context.Context, req *Request, run *domainRun, i int) error {
	paths, err := h.fetch(ctx, req, run, run.files[i])
	if err != nil {
		return err
	}
	run.local[i] = paths
	run.met.SetNextSnapshot(meteorology.Snapshot{Time: run.files[i].Time, Paths: paths})
	return nil
}

// fetch stages one selection entry locally. Upstream s3:// URLs go
// through the inventory subsetter; mirror keys come straight from the
// archive bucket. Multi file snapshots list their paths comma separated.
func (h *Handler) fetch(ctx context.Context, req *Request, run *domainRun, f selection.File) ([]string, error) {
	var out []string
	for _, p := range splitPaths(f.Filepath) {
		if strings.HasPrefix(p, "s3://") {
			local := filepath.Join(os.TempDir(), fmt.Sprintf("%s.%s.%s",
				run.input.Service, f.Time.Format("200601021504"), filepath.Base(p)))
			sub := h.subsetter(run.input.Svc().Bucket)
			if _, err := sub.Download(ctx, p, local, run.input.Svc(), req.DataType); err != nil {
				return nil, err
			}
			out = append(out, local)
			continue
		}
		local, err := h.store.Download(ctx, p, run.input.Service, f.Time)
		if err != nil {
			return nil, err
		}
		out = append(out, local)
	}
	return out, nil
}

// uploadOutputs ships the finished products plus the file manifest.
func (h *Handler) uploadOutputs(ctx context.Context, req *Request, outputs []string, inputFiles map[string][]string) error {
	for _, p := range outputs {
		if err := h.upload.Upload(ctx, p, req.RequestID+"/"+filepath.Base(p)); err != nil {
			return err
		}
	}
	return h.uploadFileList(ctx, req, inputFiles, basenames(outputs))
}

func (h *Handler) uploadFileList(ctx context.Context, req *Request, inputFiles map[string][]string, outputs []string) error {
	manifest := struct {
		Input       json.RawMessage     `json:"input"`
		Version     string              `json:"metget_version"`
		InputFiles  map[string][]string `json:"input_files"`
		OutputFiles []string            `json:"output_files"`
	}{
		Input:       json.RawMessage(req.Raw()),
		Version:     version.Version,
		InputFiles:  inputFiles,
		OutputFiles: outputs,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	local := filepath.Join(os.TempDir(), req.RequestID+".filelist.json")
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return err
	}
	defer os.Remove(local)
	return h.upload.Upload(ctx, local, req.RequestID+"/filelist.json")
}

func (r *domainRun) remove(i int) {
	for _, p := range r.local[i] {
		os.Remove(p)
		os.Remove(p + ".idx")
	}
	delete(r.local, i)
}

func (r *domainRun) removeAll() {
	for i := range r.local {
		r.remove(i)
	}
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func filepaths(files []selection.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Filepath)
	}
	return out
}

func basenames(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
