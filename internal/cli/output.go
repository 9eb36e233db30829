package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eshaffer321/reconciler-backend/internal/application/reconcile"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// PrintRunResult prints the summary of a reconciliation run
func PrintRunResult(w io.Writer, result *reconcile.RunResult) {
	run := result.Run
	fmt.Fprintf(w, "Run #%d completed in %s\n", run.ID, result.Duration.Round(time.Millisecond))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Raw=%s Matched=%s Unmatched=%s Pairs=%d\n",
		humanize.Comma(int64(run.RawCount)),
		humanize.Comma(int64(run.MatchedCount)),
		humanize.Comma(int64(run.UnmatchedCount)),
		len(result.Pairs))

	if len(result.Pairs) > 0 {
		fmt.Fprintln(w, "\nPairs:")
		for _, p := range result.Pairs {
			fmt.Fprintf(w, "  bank #%d <-> system #%d (rule %d)\n", p.BankID, p.SystemID, p.RuleID)
		}
	}

	// Skipped rules never affect counts but should not go unnoticed
	if len(result.SkippedRules) > 0 {
		fmt.Fprintln(w, "\nSkipped rules:")
		for _, s := range result.SkippedRules {
			fmt.Fprintf(w, "  - #%d %s (%s): %v\n", s.RuleID, s.RuleName, s.RuleType, s.Err)
		}
	}
}

// PrintHistory prints runs with times relative to now
func PrintHistory(w io.Writer, runs []model.Run, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No reconciliation runs yet.")
		return
	}

	fmt.Fprintf(w, "%-6s %-18s %8s %8s %10s\n", "RUN", "WHEN", "RAW", "MATCHED", "UNMATCHED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-6d %-18s %8s %8s %10s\n",
			r.ID,
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			humanize.Comma(int64(r.RawCount)),
			humanize.Comma(int64(r.MatchedCount)),
			humanize.Comma(int64(r.UnmatchedCount)))
	}
}

// PrintMigrations prints the schema migration status
func PrintMigrations(w io.Writer, dbPath string, states []storage.MigrationState) {
	fmt.Fprintf(w, "Database: %s\n", dbPath)
	for _, s := range states {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		fmt.Fprintf(w, "  %05d  %-40s %s\n", s.Version, s.Name, mark)
	}
}
