package statemanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
	"github.com/metakeggweb/mekeweserver/internal/filelayout"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/store"
)

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func inputFileStats(rec *model.RunRecord, layout filelayout.Layout) (count int, sizeBytes int64, err error) {
	for param, names := range rec.PipelineInputFileNames {
		count += len(names)
		size, derr := filelayout.DirSizeBytes(layout.InputDir(param))
		if derr != nil {
			return 0, 0, derr
		}
		sizeBytes += size
	}
	return count, sizeBytes, nil
}

// appendStatisticPoint computes and appends a StatisticPoint for a
// just-finished record.
func (sm *StateManager) appendStatisticPoint(ctx context.Context, rec *model.RunRecord) error {
	layout := sm.layout(rec.Ticket)
	inputCount, inputSize, ferr := inputFileStats(rec, layout)
	if ferr != nil {
		return apperrors.FilesystemError(ferr)
	}
	var resultSize int64
	if rec.PipelineOutputZipFileName != "" {
		size, derr := filelayout.DirSizeBytes(layout.OutputDir())
		if derr != nil {
			return apperrors.FilesystemError(derr)
		}
		resultSize = size
	}

	var waiting, running float64
	if rec.QueuedAt != nil && rec.StartedAt != nil {
		waiting = rec.StartedAt.Sub(*rec.QueuedAt).Seconds()
	}
	if rec.StartedAt != nil && rec.FinishedAt != nil {
		running = rec.FinishedAt.Sub(*rec.StartedAt).Seconds()
	}

	point := model.StatisticPoint{
		WaitingSeconds:  waiting,
		RunningSeconds:  running,
		Failed:          rec.State == model.StateFailed,
		Method:          rec.PipelineAnalysesMethod,
		FinishedAt:      *rec.FinishedAt,
		InputFileCount:  inputCount,
		InputSizeBytes:  inputSize,
		ResultSizeBytes: resultSize,
	}
	raw, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("encode statistic point: %w", err)
	}
	if err := sm.store.ListPushLeft(ctx, store.KeyPipelineStatistics, string(raw)); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

func (sm *StateManager) allStatisticPoints(ctx context.Context) ([]model.StatisticPoint, error) {
	raws, err := sm.store.ListRange(ctx, store.KeyPipelineStatistics, 0, -1)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	points := make([]model.StatisticPoint, 0, len(raws))
	for _, raw := range raws {
		var p model.StatisticPoint
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode statistic point: %w", err)
		}
		points = append(points, p)
	}
	return points, nil
}

// CalculateStatisticSummary aggregates statistic points whose
// FinishedAt falls within [now-daysLimit-daysOffset, now-daysOffset].
func (sm *StateManager) CalculateStatisticSummary(ctx context.Context, daysLimit, daysOffset int) (model.StatisticSummary, error) {
	points, err := sm.allStatisticPoints(ctx)
	if err != nil {
		return model.StatisticSummary{}, err
	}
	now := sm.now()
	windowEnd := now.AddDate(0, 0, -daysOffset)
	windowStart := windowEnd.AddDate(0, 0, -daysLimit)

	summary := model.StatisticSummary{
		WindowDays:    daysLimit,
		RunsPerMethod: map[string]int{},
	}
	var sumWaiting, sumRunning, sumInputCount float64
	var sumInputSize, sumResultSize float64

	for _, p := range points {
		if p.FinishedAt.Before(windowStart) || p.FinishedAt.After(windowEnd) {
			continue
		}
		summary.TotalRuns++
		if p.Failed {
			summary.FailedRuns++
		}
		if p.Method != "" {
			summary.RunsPerMethod[p.Method]++
		}
		sumWaiting += p.WaitingSeconds
		sumRunning += p.RunningSeconds
		sumInputCount += float64(p.InputFileCount)
		sumInputSize += float64(p.InputSizeBytes)
		sumResultSize += float64(p.ResultSizeBytes)
	}

	if summary.TotalRuns > 0 {
		n := float64(summary.TotalRuns)
		summary.AvgWaitingSeconds = sumWaiting / n
		summary.AvgRunningSeconds = sumRunning / n
		summary.AvgInputFileCount = sumInputCount / n
		summary.AvgInputSizeBytes = sumInputSize / n
		summary.AvgResultSizeBytes = sumResultSize / n
	}
	return summary, nil
}

// RemoveExpiredStatisticPoints drops points older than
// MaxStatisticsAgeDays, returning how many were dropped. A nil
// MaxStatisticsAgeDays means statistics are never pruned.
func (sm *StateManager) RemoveExpiredStatisticPoints(ctx context.Context) (int, error) {
	if sm.cfg.MaxStatisticsAgeDays == nil {
		return 0, nil
	}
	points, err := sm.allStatisticPoints(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := sm.now().AddDate(0, 0, -*sm.cfg.MaxStatisticsAgeDays)

	dropped := 0
	for _, p := range points {
		if p.FinishedAt.Before(cutoff) {
			raw, merr := json.Marshal(p)
			if merr != nil {
				return dropped, fmt.Errorf("encode statistic point: %w", merr)
			}
			if err := sm.store.ListRemove(ctx, store.KeyPipelineStatistics, 1, string(raw)); err != nil {
				return dropped, apperrors.StoreUnavailable(err)
			}
			dropped++
		}
	}
	return dropped, nil
}
