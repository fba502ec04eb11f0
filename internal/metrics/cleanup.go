package metrics

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// CleanupReport describes one eviction pass.
type CleanupReport struct {
	Deleted    int64
	SizeBefore int64
	SizeAfter  int64
}

// Cleanup deletes rows older than retentionDays and vacuums the file.
// Running it twice with the same horizon deletes nothing the second time.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (CleanupReport, error) {
	report := CleanupReport{}
	var err error
	if report.SizeBefore, err = s.SizeBytes(ctx); err != nil {
		return report, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_metrics WHERE timestamp < ?`, since(retentionDays))
	if err != nil {
		return report, fmt.Errorf("cleanup delete: %w", err)
	}
	report.Deleted, _ = res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return report, fmt.Errorf("vacuum: %w", err)
	}
	if report.SizeAfter, err = s.SizeBytes(ctx); err != nil {
		return report, err
	}
	log.Info().
		Int64("deleted", report.Deleted).
		Int64("size_before", report.SizeBefore).
		Int64("size_after", report.SizeAfter).
		Int("retention_days", retentionDays).
		Msg("metrics cleanup done")
	return report, nil
}

// AutoCleanupBySize evicts older rows in stages (keep 60 days, then 30)
// while the store exceeds maxMB. Returns nil when no action was needed.
func (s *Store) AutoCleanupBySize(ctx context.Context, maxMB int) (*CleanupReport, error) {
	if maxMB <= 0 {
		return nil, nil
	}
	budget := int64(maxMB) * 1024 * 1024
	size, err := s.SizeBytes(ctx)
	if err != nil {
		return nil, err
	}
	if size <= budget {
		return nil, nil
	}
	total := CleanupReport{SizeBefore: size, SizeAfter: size}
	for _, keepDays := range []int{60, 30} {
		report, err := s.Cleanup(ctx, keepDays)
		if err != nil {
			return nil, err
		}
		total.Deleted += report.Deleted
		total.SizeAfter = report.SizeAfter
		if total.SizeAfter <= budget {
			break
		}
	}
	return &total, nil
}

// SizeBytes reports on-disk size via the page pragmas; an in-memory store
// reports page usage the same way.
func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	if s.path != "" && s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil {
			return info.Size(), nil
		}
	}
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("page_size: %w", err)
	}
	return pageCount * pageSize, nil
}
