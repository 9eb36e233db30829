package storage

import (
	"context"
	"fmt"
)

// Stats summarizes the transaction table and the run ledger
type Stats struct {
	TotalTransactions int
	RawCount          int
	MatchedCount      int
	UnmatchedCount    int
	SourceCounts      map[string]int
	ActiveRules       int
	TotalRuns         int
	SchemaVersion     int64
}

// GetStats returns counts by status and source
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		SourceCounts: make(map[string]int),
	}

	query := `
	SELECT
		COUNT(*) as total,
		COUNT(CASE WHEN status = 'RAW' THEN 1 END) as raw,
		COUNT(CASE WHEN status = 'MATCHED' THEN 1 END) as matched,
		COUNT(CASE WHEN status = 'UNMATCHED' THEN 1 END) as unmatched
	FROM transactions
	`
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalTransactions,
		&stats.RawCount,
		&stats.MatchedCount,
		&stats.UnmatchedCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM transactions GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		stats.SourceCounts[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM rules WHERE is_active = 1),
		(SELECT COUNT(*) FROM reconciliation_runs)
	`).Scan(&stats.ActiveRules, &stats.TotalRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count rules and runs: %w", err)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	stats.SchemaVersion = version

	return stats, nil
}
