// Package reconcile runs reconciliation passes over the stored
// transactions and keeps the ledger of completed runs.
//
// At most one run is in flight per Coordinator. A run loads a snapshot of
// the active rules and RAW transactions, matches them, and commits every
// status change together with the run record. A trigger that arrives while
// a run is in flight fails with ErrRunInProgress instead of waiting.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/reconciler-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
)

// DefaultMaxRunDuration bounds a single run, including the commit.
const DefaultMaxRunDuration = 2 * time.Minute

// SnapshotStore loads the inputs of a run.
type SnapshotStore interface {
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
	ListRawTransactions(ctx context.Context) ([]model.Transaction, error)
}

// Config holds coordinator settings
type Config struct {
	MaxRunDuration time.Duration
}

// RunResult is what a successful trigger reports.
type RunResult struct {
	Run          model.Run
	Pairs        []model.MatchedPair
	SkippedRules []matcher.SkippedRule
	Duration     time.Duration
}

// Coordinator serializes reconciliation runs.
type Coordinator struct {
	store   SnapshotStore
	ledger  *Ledger
	matcher *matcher.Matcher
	config  Config
	logger  *slog.Logger

	runMu    sync.Mutex
	inFlight sync.Mutex // guards running
	running  bool
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store SnapshotStore, ledger *Ledger, m *matcher.Matcher, config Config, logger *slog.Logger) *Coordinator {
	if config.MaxRunDuration <= 0 {
		config.MaxRunDuration = DefaultMaxRunDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		ledger:  ledger,
		matcher: m,
		config:  config,
		logger:  logger,
	}
}

// InProgress reports whether a run currently holds the lock.
func (c *Coordinator) InProgress() bool {
	c.inFlight.Lock()
	defer c.inFlight.Unlock()
	return c.running
}

func (c *Coordinator) setRunning(v bool) {
	c.inFlight.Lock()
	c.running = v
	c.inFlight.Unlock()
}

// TriggerRun executes one reconciliation run synchronously.
//
// The caller's cancellation does not abort a run once it has started; the
// run is bounded by Config.MaxRunDuration instead.
func (c *Coordinator) TriggerRun(ctx context.Context) (*RunResult, error) {
	if !c.runMu.TryLock() {
		c.logger.Info("reconciliation trigger rejected, run in progress")
		return nil, ErrRunInProgress
	}
	c.setRunning(true)
	defer func() {
		c.setRunning(false)
		c.runMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.MaxRunDuration)
	defer cancel()

	start := time.Now()
	c.logger.Info("reconciliation run started")

	ruleSet, transactions, err := c.loadSnapshot(ctx)
	if err != nil {
		c.logger.Error("reconciliation run aborted, snapshot load failed", "error", err)
		return nil, &StoreError{Op: OpRead, Err: err}
	}

	result := c.matcher.Match(ruleSet, transactions)

	run, err := c.ledger.Record(ctx, result)
	if err != nil {
		c.logger.Error("reconciliation run rolled back, commit failed",
			"error", err,
			"deadline_exceeded", errors.Is(err, context.DeadlineExceeded),
		)
		return nil, &StoreError{Op: OpPersist, Err: err}
	}

	duration := time.Since(start)
	c.logger.Info("reconciliation run completed",
		"run_id", run.ID,
		"matched", run.MatchedCount,
		"unmatched", run.UnmatchedCount,
		"raw", run.RawCount,
		"skipped_rules", len(result.Skipped),
		"duration", duration,
	)

	return &RunResult{
		Run:          *run,
		Pairs:        result.MatchedPairs(),
		SkippedRules: result.Skipped,
		Duration:     duration,
	}, nil
}

// loadSnapshot reads active rules and RAW transactions concurrently.
func (c *Coordinator) loadSnapshot(ctx context.Context) ([]model.Rule, []model.Transaction, error) {
	var (
		ruleSet      []model.Rule
		transactions []model.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ruleSet, err = c.store.ListActiveRules(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		transactions, err = c.store.ListRawTransactions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ruleSet, transactions, nil
}
