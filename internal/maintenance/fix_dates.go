// Package maintenance holds one-off data repair jobs.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/darkroom/internal/domain"
	"github.com/DukeRupert/darkroom/internal/metrics"
)

// PhotoDates lists and updates wall-clock capture times.
// *repository.PhotoRepository satisfies it.
type PhotoDates interface {
	ListInvalidTakenAtNaive(ctx context.Context) ([]domain.Photo, error)
	UpdateTakenAtNaive(ctx context.Context, id, takenAtNaive string) error
}

// DateFix records one repaired photo.
type DateFix struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// DateRepairResult summarizes a repair run.
type DateRepairResult struct {
	Fixed   int       `json:"fixed"`
	DryRun  bool      `json:"dryRun"`
	Details []DateFix `json:"details"`
}

// DateRepairer rewrites malformed taken_at_naive values.
type DateRepairer struct {
	photos PhotoDates
	logger *slog.Logger
}

func NewDateRepairer(photos PhotoDates, logger *slog.Logger) *DateRepairer {
	return &DateRepairer{photos: photos, logger: logger}
}

// Run repairs every photo whose naive capture time is not canonical. With
// dryRun nothing is written and Fixed counts what would change. The first
// failed update aborts the run; earlier updates stay applied.
func (r *DateRepairer) Run(ctx context.Context, dryRun bool) (DateRepairResult, error) {
	result := DateRepairResult{DryRun: dryRun, Details: []DateFix{}}

	photos, err := r.photos.ListInvalidTakenAtNaive(ctx)
	if err != nil {
		return result, fmt.Errorf("list invalid dates: %w", err)
	}

	for _, p := range photos {
		fixed, repaired := domain.NormalizeTakenAtNaive(p.TakenAtNaive, p.TakenAt)
		if !repaired {
			continue
		}

		if !dryRun {
			if err := r.photos.UpdateTakenAtNaive(ctx, p.ID, fixed); err != nil {
				return result, fmt.Errorf("update photo %s: %w", p.ID, err)
			}
			metrics.TakenAtFixed()
		}

		r.logger.Info("repaired taken_at_naive",
			"photo_id", p.ID,
			"before", p.TakenAtNaive,
			"after", fixed,
			"dry_run", dryRun,
		)
		result.Fixed++
		result.Details = append(result.Details, DateFix{
			ID:     p.ID,
			URL:    p.URL,
			Before: p.TakenAtNaive,
			After:  fixed,
		})
	}

	return result, nil
}
