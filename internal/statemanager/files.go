package statemanager

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
	"github.com/metakeggweb/mekeweserver/internal/filelayout"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/paramschema"
)

// AttachInputFile stores an uploaded file under the run's input directory
// for param, sanitizing the filename and enforcing the cache size budget.
// A param that is not a list descriptor keeps at most one file: a second
// attach replaces the first and its file is removed from disk. Allowed in
// any state except queued/running, matching DeleteRun's gate: a failed or
// expired run can still have a bad input file replaced before re-running.
func (sm *StateManager) AttachInputFile(ctx context.Context, ticket model.Ticket, param, filename string, r io.Reader) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if rec.State == model.StateQueued || rec.State == model.StateRunning {
		return nil, apperrors.BadState("cannot attach input files while run is %s", rec.State)
	}

	desc, found := paramschema.Find(param)
	if !found || desc.Type != model.ParamFile {
		return nil, apperrors.BadParameter("%q is not a file parameter", param)
	}

	clean := filelayout.SanitizeFilename(filename)
	layout := sm.layout(ticket)
	inputDir := layout.InputDir(param)

	if !desc.IsList {
		for _, existing := range rec.PipelineInputFileNames[param] {
			if rerr := os.Remove(layout.InputFilePath(param, existing)); rerr != nil && !os.IsNotExist(rerr) {
				return nil, apperrors.FilesystemError(rerr)
			}
		}
		rec.PipelineInputFileNames[param] = nil
	}

	// Bound the write itself to one byte past the limit so an oversized
	// upload never lands fully on disk, regardless of what the caller's
	// declared content length claimed.
	body := r
	if sm.cfg.MaxFileSizeUploadLimitBytes != nil {
		body = io.LimitReader(r, *sm.cfg.MaxFileSizeUploadLimitBytes+1)
	}
	n, werr := filelayout.WriteFileAtomic(inputDir, clean, body)
	if werr != nil {
		return nil, apperrors.FilesystemError(werr)
	}
	if sm.cfg.MaxFileSizeUploadLimitBytes != nil && n > *sm.cfg.MaxFileSizeUploadLimitBytes {
		os.Remove(filepath.Join(inputDir, clean))
		return nil, apperrors.UploadTooLarge("uploaded file exceeds the %d byte limit", *sm.cfg.MaxFileSizeUploadLimitBytes)
	}

	// The cache budget is checked against the directory size now, after
	// the write, since that is the only way to know whether this upload
	// is the one that tips the cache over the limit.
	if sm.cfg.MaxCacheSizeBytes != nil {
		used, derr := filelayout.DirSizeBytes(sm.cacheDir)
		if derr != nil {
			return nil, apperrors.FilesystemError(derr)
		}
		if used > *sm.cfg.MaxCacheSizeBytes {
			os.Remove(filepath.Join(inputDir, clean))
			return nil, apperrors.OutOfStorage("cache size limit of %d bytes reached", *sm.cfg.MaxCacheSizeBytes)
		}
	}

	rec.PipelineInputFileNames[param] = append(rec.PipelineInputFileNames[param], clean)

	if err := sm.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RemoveInputFile deletes one previously attached file for param. A
// filename that isn't currently attached is not an error: it is logged
// and the record is returned unchanged, since the caller's desired end
// state (file gone) already holds.
func (sm *StateManager) RemoveInputFile(ctx context.Context, ticket model.Ticket, param, filename string) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if rec.State == model.StateQueued || rec.State == model.StateRunning {
		return nil, apperrors.BadState("cannot remove input files while run is %s", rec.State)
	}

	names := rec.PipelineInputFileNames[param]
	idx := -1
	for i, n := range names {
		if n == filename {
			idx = i
			break
		}
	}
	if idx == -1 {
		if sm.log != nil {
			sm.log.Printf("warn: remove input file %s/%s: not attached to run %s, ignoring", param, filename, ticket)
		}
		return rec, nil
	}

	layout := sm.layout(ticket)
	if rerr := os.Remove(layout.InputFilePath(param, filename)); rerr != nil && !os.IsNotExist(rerr) {
		return nil, apperrors.FilesystemError(rerr)
	}
	rec.PipelineInputFileNames[param] = append(names[:idx], names[idx+1:]...)

	if err := sm.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
