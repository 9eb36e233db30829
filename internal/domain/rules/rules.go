// Package rules compiles stored reconciliation rules into predicates and
// evaluates them against BANK/SYSTEM transaction pairs.
//
// Rule types form a closed set of variants. A stored rule whose type this
// build does not recognise compiles to Unknown, which never matches:
//
//	p, err := rules.Compile(rule)
//	if err != nil {
//		// *ParseError or *UnknownTypeError: skip the rule for this run
//	}
//	if rules.Evaluate(p, bankTxn, systemTxn, time.UTC) {
//		// pair the two transactions
//	}
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
)

// Predicate is a compiled rule. Implementations are limited to the
// variants declared in this package.
type Predicate interface {
	sealed()
}

// DateAmount matches equal amounts whose calendar dates are at most
// WindowDays apart.
type DateAmount struct {
	WindowDays int
}

// AmountGreaterThan matches equal amounts strictly above Threshold.
type AmountGreaterThan struct {
	Threshold decimal.Decimal
}

// Unknown is a rule type this build cannot evaluate. It never matches.
type Unknown struct {
	Type model.RuleType
}

func (DateAmount) sealed()        {}
func (AmountGreaterThan) sealed() {}
func (Unknown) sealed()           {}

// ParseError reports a ruleValue that cannot be parsed for its rule type.
type ParseError struct {
	RuleType model.RuleType
	Value    string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid ruleValue %q for %s: %s", e.Value, e.RuleType, e.Reason)
}

// UnknownTypeError reports a rule type with no evaluator.
type UnknownTypeError struct {
	RuleType model.RuleType
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown rule type %q", e.RuleType)
}

// Compile converts a stored rule into a predicate.
// For unknown types it returns Unknown together with an *UnknownTypeError.
func Compile(rule model.Rule) (Predicate, error) {
	switch rule.RuleType {
	case model.RuleMatchByDateAmount:
		window, err := parseWindow(rule.RuleType, rule.Value())
		if err != nil {
			return nil, err
		}
		return DateAmount{WindowDays: window}, nil
	case model.RuleAmountGreaterThan:
		threshold, err := parseThreshold(rule.RuleType, rule.Value())
		if err != nil {
			return nil, err
		}
		return AmountGreaterThan{Threshold: threshold}, nil
	default:
		return Unknown{Type: rule.RuleType}, &UnknownTypeError{RuleType: rule.RuleType}
	}
}

// Validate checks that ruleValue is acceptable for ruleType without
// building a predicate. Used when rules are written.
func Validate(ruleType model.RuleType, ruleValue *string) error {
	_, err := Compile(model.Rule{RuleType: ruleType, RuleValue: ruleValue})
	return err
}

// Evaluate reports whether the predicate pairs bank with system.
// Dates are compared as calendar days in loc (UTC when nil).
func Evaluate(p Predicate, bank, system model.Transaction, loc *time.Location) bool {
	switch r := p.(type) {
	case DateAmount:
		if !bank.Amount.Equal(system.Amount) {
			return false
		}
		return dayDistance(bank.CreatedAt, system.CreatedAt, loc) <= r.WindowDays
	case AmountGreaterThan:
		if !bank.Amount.Equal(system.Amount) {
			return false
		}
		return bank.Amount.GreaterThan(r.Threshold) && system.Amount.GreaterThan(r.Threshold)
	case Unknown:
		return false
	default:
		return false
	}
}

func parseWindow(ruleType model.RuleType, raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ParseError{RuleType: ruleType, Value: raw, Reason: "day window must be an integer"}
	}
	if days < 0 {
		return 0, &ParseError{RuleType: ruleType, Value: raw, Reason: "day window must not be negative"}
	}
	return days, nil
}

func parseThreshold(ruleType model.RuleType, raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, &ParseError{RuleType: ruleType, Value: raw, Reason: "threshold is required"}
	}
	threshold, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &ParseError{RuleType: ruleType, Value: raw, Reason: "threshold must be numeric"}
	}
	return threshold, nil
}

// dayDistance returns the absolute number of calendar days between a and b.
func dayDistance(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	da := civilDay(a.In(loc))
	db := civilDay(b.In(loc))
	diff := int(da.Sub(db).Hours() / 24)
	if diff < 0 {
		return -diff
	}
	return diff
}

// civilDay truncates t to midnight UTC of its calendar date so that
// subtraction is not affected by DST transitions.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
