// Package fakeanalysis is a deterministic AnalysisEngine test double: it
// writes one small output file per invocation and emits a couple of
// progress lines, without touching any real bioinformatics tooling.
package fakeanalysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/metakeggweb/mekeweserver/internal/engine"
)

// Engine implements engine.AnalysisEngine. FailWith, if non-nil, is
// returned by Run instead of performing any work — used to exercise the
// adapter's failure path.
type Engine struct {
	FailWith error
}

func (e *Engine) Run(ctx context.Context, req engine.Request, emit func(line string)) error {
	if e.FailWith != nil {
		return e.FailWith
	}
	emit(fmt.Sprintf("starting %s", req.Method))
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(req.OutputDir, "result.txt")
	if err := os.WriteFile(path, []byte(fmt.Sprintf("method=%s\nglobals=%v\n", req.Method, req.GlobalParams)), 0o644); err != nil {
		return err
	}
	emit("done")
	return nil
}
