// Package engine adapts a RunRecord's committed method and parameters
// into a single invocation of an opaque analysis engine, captures its
// textual output, and packages everything it writes under output/ into
// the run's result zip.
package engine

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/filelayout"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/paramschema"
)

// Request is what the adapter hands the analysis engine for one run.
type Request struct {
	Method               string
	GlobalParams         map[string]any
	MethodSpecificParams map[string]any
	OutputDir            string
}

// AnalysisEngine is the opaque collaborator that performs the actual
// bioinformatics computation. emit is called once per line of
// human-readable progress output the engine produces.
type AnalysisEngine interface {
	Run(ctx context.Context, req Request, emit func(line string)) error
}

// Persister is the subset of StateManager the adapter needs to persist
// incremental output-log updates while the engine runs.
type Persister interface {
	SetPipelineRunDefinition(ctx context.Context, rec *model.RunRecord) error
}

// Adapter wires a concrete AnalysisEngine into the run lifecycle.
type Adapter struct {
	engine   AnalysisEngine
	persist  Persister
	cacheDir string
}

func New(eng AnalysisEngine, persist Persister, cacheDir string) *Adapter {
	return &Adapter{engine: eng, persist: persist, cacheDir: cacheDir}
}

// Execute runs rec's committed method to completion, mutating rec in
// place. It never returns an error to the caller for an analysis
// failure: any failure anywhere in gathering, invocation, or zipping is
// captured onto rec.Error/rec.ErrorTraceback instead. A non-nil return
// value signals an adapter-internal problem the caller should treat the
// same way it treats a store outage.
func (a *Adapter) Execute(ctx context.Context, rec *model.RunRecord) error {
	defer func() {
		if r := recover(); r != nil {
			rec.Error = fmt.Sprintf("panic: %v", r)
			rec.ErrorTraceback = string(debug.Stack())
		}
	}()

	layout := filelayout.New(a.cacheDir, rec.Ticket)
	req, err := a.buildRequest(rec, layout)
	if err != nil {
		rec.Error = err.Error()
		return nil
	}

	emit := func(line string) {
		rec.OutputLog += line + "\n"
		_ = a.persist.SetPipelineRunDefinition(ctx, rec)
	}

	if err := a.engine.Run(ctx, req, emit); err != nil {
		rec.Error = err.Error()
		return nil
	}

	zipName := filelayout.GenerateOutputZipFileName(rec.PipelineAnalysesMethod, time.Now().UTC())
	if err := zipAndRemoveOutputs(layout.OutputDir(), layout.OutputZipPath(zipName)); err != nil {
		rec.Error = err.Error()
		return nil
	}
	rec.PipelineOutputZipFileName = zipName
	return nil
}

// buildRequest gathers global and method-specific parameters, substituting
// absolute file paths for file-typed descriptors (collapsing a
// single-element list to a bare path for a non-list descriptor).
func (a *Adapter) buildRequest(rec *model.RunRecord, layout filelayout.Layout) (Request, error) {
	req := Request{
		Method:               rec.PipelineAnalysesMethod,
		GlobalParams:         map[string]any{},
		MethodSpecificParams: map[string]any{},
		OutputDir:            layout.OutputDir(),
	}

	globalDescs := paramschema.GlobalDescriptors()
	methodDescs := paramschema.MethodDescriptors(rec.PipelineAnalysesMethod)

	if err := fillParams(req.GlobalParams, globalDescs, rec, layout); err != nil {
		return Request{}, err
	}
	if err := fillParams(req.MethodSpecificParams, methodDescs, rec, layout); err != nil {
		return Request{}, err
	}
	return req, nil
}

func fillParams(dst map[string]any, descs []model.ParameterDescriptor, rec *model.RunRecord, layout filelayout.Layout) error {
	for _, d := range descs {
		if d.Type == model.ParamFile {
			names := rec.PipelineInputFileNames[d.Name]
			if len(names) == 0 {
				continue
			}
			paths := make([]string, len(names))
			for i, n := range names {
				paths[i] = layout.InputFilePath(d.Name, n)
			}
			if !d.IsList && len(paths) == 1 {
				dst[d.Name] = paths[0]
			} else {
				dst[d.Name] = paths
			}
			continue
		}
		var val any
		var ok bool
		if v, present := rec.PipelineParams.GlobalParams[d.Name]; present {
			val, ok = v, true
		} else if v, present := rec.PipelineParams.MethodSpecificParams[d.Name]; present {
			val, ok = v, true
		}
		if !ok || val == "" {
			continue
		}
		dst[d.Name] = val
	}
	return nil
}

func zipAndRemoveOutputs(outputDir, zipPath string) error {
	names, err := filelayout.OutputFilesForZip(outputDir)
	if err != nil {
		return fmt.Errorf("list output files: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("analysis produced no output files")
	}

	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, name := range names {
		if err := addFileToZip(zw, filepath.Join(outputDir, name), name); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}

	for _, name := range names {
		if err := os.Remove(filepath.Join(outputDir, name)); err != nil {
			return fmt.Errorf("remove zipped original %s: %w", name, err)
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}
