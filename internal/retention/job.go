package retention

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
)

// Store: часть OTPRepository, нужная очистке
type Store interface {
	CountRetiredByPurpose(ctx context.Context, before time.Time) (map[string]int64, error)
	PurgeRetired(ctx context.Context, before time.Time) (int64, error)
}

// Result: итог одного прогона очистки
type Result struct {
	Cutoff time.Time
	Counts map[string]int64
	Purged int64
	DryRun bool
}

// Job физически удаляет погашенные и истекшие коды старше retention
type Job struct {
	store     Store
	retention time.Duration
	now       func() time.Time
}

func NewJob(store Store, retention time.Duration) (*Job, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required for retention job")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	return &Job{store: store, retention: retention, now: time.Now}, nil
}

// Run считает записи к удалению и, если dryRun=false, удаляет их
func (j *Job) Run(ctx context.Context, dryRun bool) (*Result, error) {
	cutoff := j.now().Add(-j.retention)
	counts, err := j.store.CountRetiredByPurpose(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	result := &Result{Cutoff: cutoff, Counts: counts, DryRun: dryRun}
	if dryRun {
		log.Printf("[Retention] INFO: dry-run, к удалению %d записей старше %s", result.Total(), cutoff.Format(time.RFC3339))
		return result, nil
	}

	purged, err := j.store.PurgeRetired(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	result.Purged = purged
	log.Printf("[Retention] INFO: удалено %d записей старше %s", purged, cutoff.Format(time.RFC3339))
	return result, nil
}

// Total: сумма по всем назначениям
func (r *Result) Total() int64 {
	var total int64
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// WriteReport пишет xlsx-отчет: по строке на назначение и итог
func WriteReport(w io.Writer, r *Result) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Retention"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	if err := sw.SetRow("A1", []interface{}{"Назначение", "Записей", "Граница", "Режим"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	purposes := make([]string, 0, len(r.Counts))
	for p := range r.Counts {
		purposes = append(purposes, p)
	}
	sort.Strings(purposes)

	mode := "purge"
	if r.DryRun {
		mode = "dry-run"
	}
	cutoff := r.Cutoff.UTC().Format(time.RFC3339)
	row := 2
	for _, p := range purposes {
		if err := sw.SetRow(fmt.Sprintf("A%d", row), []interface{}{p, r.Counts[p], cutoff, mode}); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}
	if err := sw.SetRow(fmt.Sprintf("A%d", row), []interface{}{"TOTAL", r.Total(), cutoff, mode}); err != nil {
		return fmt.Errorf("write total: %w", err)
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return f.Write(w)
}
