// Package model defines the records shared by the reconciliation engine,
// its storage layer and the HTTP API.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which ledger a transaction came from.
type Source string

const (
	SourceBank   Source = "BANK"
	SourceSystem Source = "SYSTEM"
)

// ParseSource validates a source string.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceBank, SourceSystem:
		return Source(s), nil
	}
	return "", fmt.Errorf("invalid source %q: must be BANK or SYSTEM", s)
}

// Status is the reconciliation state of a transaction.
type Status string

const (
	StatusRaw       Status = "RAW"
	StatusMatched   Status = "MATCHED"
	StatusUnmatched Status = "UNMATCHED"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusRaw, StatusMatched, StatusUnmatched:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status %q: must be RAW, MATCHED or UNMATCHED", s)
}

// RuleType tags which predicate a rule evaluates. The set is open: rows
// written by newer releases may carry types this build does not know.
type RuleType string

const (
	RuleMatchByDateAmount RuleType = "MATCH_BY_DATE_AMOUNT"
	RuleAmountGreaterThan RuleType = "AMOUNT_GREATER_THAN"
)

// KnownRuleTypes lists the rule types this build can evaluate.
func KnownRuleTypes() []RuleType {
	return []RuleType{RuleMatchByDateAmount, RuleAmountGreaterThan}
}

// Transaction is a single BANK or SYSTEM ledger entry.
type Transaction struct {
	ID          int64
	Description string
	Amount      decimal.Decimal
	Source      Source
	Status      Status
	// Version increases on every edit, reset or status change.
	Version     int64
	CreatedAt   time.Time
}

// IsRaw reports whether the transaction has not been reconciled yet.
func (t Transaction) IsRaw() bool {
	return t.Status == StatusRaw
}

// Rule is a prioritized, toggleable matching predicate.
type Rule struct {
	ID          int64
	RuleName    string
	RuleType    RuleType
	Priority    int
	IsActive    bool
	Description string
	RuleValue   *string
	CreatedAt   time.Time
}

// Value returns the rule parameter, or "" when unset.
func (r Rule) Value() string {
	if r.RuleValue == nil {
		return ""
	}
	return *r.RuleValue
}

// Run summarizes one completed reconciliation run.
// MatchedCount + UnmatchedCount always equals RawCount.
type Run struct {
	ID             int64
	MatchedCount   int
	UnmatchedCount int
	RawCount       int
	CreatedAt      time.Time
}

// MatchedPair binds one BANK and one SYSTEM transaction within a run.
type MatchedPair struct {
	BankID   int64
	SystemID int64
	RuleID   int64
}

// StatusUpdate is a RAW -> MATCHED/UNMATCHED transition produced by a run.
// Version is the transaction version seen in the run's snapshot; the
// transition applies only if the row still carries it.
type StatusUpdate struct {
	TransactionID int64
	Version       int64
	Status        Status
}

// RunDetail is a run together with the pairs it produced.
type RunDetail struct {
	Run   Run
	Pairs []MatchedPair
}
