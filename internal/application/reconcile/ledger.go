package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/eshaffer321/reconciler-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// DefaultHistoryCacheTTL is how long a history page stays cached when no
// run has been recorded in the meantime.
const DefaultHistoryCacheTTL = 30 * time.Second

// Ledger is the append-only record of completed runs.
type Ledger struct {
	store  storage.RunRepository
	cache  *cache.Cache // nil disables caching
	logger *slog.Logger
}

// NewLedger creates a ledger. A non-positive ttl disables the history cache.
func NewLedger(store storage.RunRepository, ttl time.Duration, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		store:  store,
		logger: logger,
	}
	if ttl > 0 {
		l.cache = cache.New(ttl, 2*ttl)
	}
	return l
}

// Record commits the status transitions of a matching result together with
// its run record. Either everything is written or nothing is.
func (l *Ledger) Record(ctx context.Context, result matcher.Result) (*model.Run, error) {
	run, err := l.store.CommitRun(ctx, storage.RunCommit{
		Updates:        result.StatusUpdates(),
		Pairs:          result.MatchedPairs(),
		MatchedCount:   result.Stats.MatchedCount,
		UnmatchedCount: result.Stats.UnmatchedCount,
		RawCount:       result.Stats.RawCount,
	})
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		l.cache.Flush()
	}
	return run, nil
}

// History returns up to limit runs, most recent first. limit <= 0 returns all.
func (l *Ledger) History(ctx context.Context, limit int) ([]model.Run, error) {
	key := fmt.Sprintf("history:%d", limit)
	if l.cache != nil {
		if cached, ok := l.cache.Get(key); ok {
			l.logger.Debug("history served from cache", "limit", limit)
			return copyRuns(cached.([]model.Run)), nil
		}
	}

	runs, err := l.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	if l.cache != nil {
		l.cache.SetDefault(key, copyRuns(runs))
	}
	return runs, nil
}

// Get returns a single run with the pairs it matched.
func (l *Ledger) Get(ctx context.Context, id int64) (*model.RunDetail, error) {
	return l.store.GetRun(ctx, id)
}

func copyRuns(runs []model.Run) []model.Run {
	return append(make([]model.Run, 0, len(runs)), runs...)
}
