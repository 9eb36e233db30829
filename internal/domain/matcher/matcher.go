// Package matcher pairs BANK transactions with SYSTEM transactions using
// an ordered set of reconciliation rules.
//
// Matching is greedy, priority-first and first-fit:
//   - Rules are applied in ascending (priority, id) order
//   - For each rule, BANK transactions are visited in ascending id order
//   - Each BANK transaction binds the first unmatched SYSTEM transaction
//     (ascending id) the rule accepts
//   - Whatever is left after the last rule is UNMATCHED
//
// The same rules and transactions always produce the same pairing.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig(), logger)
//	result := m.Match(activeRules, rawTransactions)
//	for _, pair := range result.Pairs {
//		// pair.Bank and pair.System are now MATCHED
//	}
package matcher

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/domain/rules"
)

// Matcher runs the matching pass
type Matcher struct {
	config Config
	logger *slog.Logger
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config, logger *slog.Logger) *Matcher {
	if config.Location == nil {
		config.Location = DefaultConfig().Location
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		config: config,
		logger: logger,
	}
}

type compiledRule struct {
	rule      model.Rule
	predicate rules.Predicate
}

// Match pairs the RAW transactions using the active rules.
// Inactive rules and non-RAW transactions are ignored.
func (m *Matcher) Match(ruleSet []model.Rule, transactions []model.Transaction) Result {
	var result Result

	bank, system := partition(transactions)
	result.Stats.RawCount = len(bank) + len(system)

	compiled := m.compile(ruleSet, &result)

	bankMatched := make([]bool, len(bank))
	systemMatched := make([]bool, len(system))

	for _, cr := range compiled {
		for bi := range bank {
			if bankMatched[bi] {
				continue
			}
			for si := range system {
				if systemMatched[si] {
					continue
				}
				if !rules.Evaluate(cr.predicate, bank[bi], system[si], m.config.Location) {
					continue
				}
				bankMatched[bi] = true
				systemMatched[si] = true
				result.Pairs = append(result.Pairs, Pair{
					Bank:   bank[bi],
					System: system[si],
					RuleID: cr.rule.ID,
				})
				break
			}
		}
	}

	for i, t := range bank {
		if !bankMatched[i] {
			result.Unmatched = append(result.Unmatched, t)
		}
	}
	for i, t := range system {
		if !systemMatched[i] {
			result.Unmatched = append(result.Unmatched, t)
		}
	}

	result.Stats.MatchedCount = 2 * len(result.Pairs)
	result.Stats.UnmatchedCount = len(result.Unmatched)

	return result
}

// compile orders the active rules and drops the ones that cannot be
// evaluated, recording them as skipped.
func (m *Matcher) compile(ruleSet []model.Rule, result *Result) []compiledRule {
	active := make([]model.Rule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.IsActive {
			active = append(active, r)
		}
	}
	SortRules(active)

	compiled := make([]compiledRule, 0, len(active))
	for _, r := range active {
		predicate, err := rules.Compile(r)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRule{
				RuleID:   r.ID,
				RuleName: r.RuleName,
				RuleType: r.RuleType,
				Err:      err,
			})
			m.logSkipped(r, err)
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, predicate: predicate})
	}
	return compiled
}

func (m *Matcher) logSkipped(r model.Rule, err error) {
	var unknownErr *rules.UnknownTypeError
	if errors.As(err, &unknownErr) {
		m.logger.Warn("data integrity: rule has unknown type, skipping",
			"rule_id", r.ID,
			"rule_name", r.RuleName,
			"rule_type", r.RuleType,
		)
		return
	}
	m.logger.Warn("rule value could not be parsed, skipping rule for this run",
		"rule_id", r.ID,
		"rule_name", r.RuleName,
		"rule_type", r.RuleType,
		"error", err,
	)
}

// SortRules orders rules by ascending priority, then ascending id.
func SortRules(ruleSet []model.Rule) {
	sort.SliceStable(ruleSet, func(i, j int) bool {
		if ruleSet[i].Priority != ruleSet[j].Priority {
			return ruleSet[i].Priority < ruleSet[j].Priority
		}
		return ruleSet[i].ID < ruleSet[j].ID
	})
}

// partition splits RAW transactions by source, each sorted by id.
func partition(transactions []model.Transaction) (bank, system []model.Transaction) {
	for _, t := range transactions {
		if !t.IsRaw() {
			continue
		}
		switch t.Source {
		case model.SourceBank:
			bank = append(bank, t)
		case model.SourceSystem:
			system = append(system, t)
		}
	}
	byID := func(s []model.Transaction) {
		sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
	}
	byID(bank)
	byID(system)
	return bank, system
}
