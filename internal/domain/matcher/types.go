package matcher

import (
	"time"

	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
)

// Config holds matcher configuration
type Config struct {
	// Location is the timezone used to derive calendar dates from
	// transaction timestamps (default: UTC).
	Location *time.Location
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Location: time.UTC,
	}
}

// Pair is a matched BANK/SYSTEM pair and the rule that bound it.
type Pair struct {
	Bank   model.Transaction
	System model.Transaction
	RuleID int64
}

// SkippedRule records an active rule that could not be evaluated.
type SkippedRule struct {
	RuleID   int64
	RuleName string
	RuleType model.RuleType
	Err      error
}

// Stats are the run counters.
type Stats struct {
	MatchedCount   int // 2 per pair
	UnmatchedCount int
	RawCount       int
}

// Result is the outcome of one matching pass.
type Result struct {
	Pairs     []Pair
	Unmatched []model.Transaction
	Skipped   []SkippedRule
	Stats     Stats
}

// StatusUpdates lists the status transition for every transaction the
// run touched, pairs first, in a stable order.
func (r Result) StatusUpdates() []model.StatusUpdate {
	updates := make([]model.StatusUpdate, 0, 2*len(r.Pairs)+len(r.Unmatched))
	for _, p := range r.Pairs {
		updates = append(updates,
			model.StatusUpdate{TransactionID: p.Bank.ID, Version: p.Bank.Version, Status: model.StatusMatched},
			model.StatusUpdate{TransactionID: p.System.ID, Version: p.System.Version, Status: model.StatusMatched},
		)
	}
	for _, t := range r.Unmatched {
		updates = append(updates, model.StatusUpdate{TransactionID: t.ID, Version: t.Version, Status: model.StatusUnmatched})
	}
	return updates
}

// MatchedPairs converts pairs to their persisted form.
func (r Result) MatchedPairs() []model.MatchedPair {
	pairs := make([]model.MatchedPair, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		pairs = append(pairs, model.MatchedPair{BankID: p.Bank.ID, SystemID: p.System.ID, RuleID: p.RuleID})
	}
	return pairs
}
