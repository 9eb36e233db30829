package dto

import (
	"encoding/json"
	"time"
)

// Envelope wraps every successful response body.
type Envelope struct {
	Data any `json:"data"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status        string             `json:"status"`
	Timestamp     string             `json:"timestamp"`
	RunInProgress bool               `json:"runInProgress"`
	SchemaVersion int64              `json:"schemaVersion,omitempty"`
	Transactions  *TransactionCounts `json:"transactions,omitempty"`
	ActiveRules   int                `json:"activeRules"`
	TotalRuns     int                `json:"totalRuns"`
}

// TransactionCounts summarizes transactions by status and source.
type TransactionCounts struct {
	Total     int            `json:"total"`
	Raw       int            `json:"raw"`
	Matched   int            `json:"matched"`
	Unmatched int            `json:"unmatched"`
	BySource  map[string]int `json:"bySource"`
}

// NewHealthResponse creates a healthy response with the current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID          int64       `json:"id"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Source      string      `json:"source"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// TransactionPageResponse is the paged transaction list.
type TransactionPageResponse struct {
	Transactions  []TransactionResponse `json:"transactions"`
	PageNumber    int                   `json:"pageNumber"`
	PageSize      int                   `json:"pageSize"`
	TotalElements int                   `json:"totalElements"`
	TotalPages    int                   `json:"totalPages"`
}

// RuleResponse represents a rule in API responses.
type RuleResponse struct {
	ID          int64     `json:"id"`
	RuleName    string    `json:"ruleName"`
	RuleType    string    `json:"ruleType"`
	Priority    int       `json:"priority"`
	IsActive    bool      `json:"isActive"`
	Description string    `json:"description"`
	RuleValue   *string   `json:"ruleValue"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RuleListResponse is the rule list.
type RuleListResponse struct {
	Rules []RuleResponse `json:"rules"`
}

// RunResponse is one entry of the reconciliation history.
type RunResponse struct {
	ID             int64     `json:"id"`
	MatchedCount   int       `json:"matchedCount"`
	UnmatchedCount int       `json:"unmatchedCount"`
	RawCount       int       `json:"rawCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PairResponse is one matched BANK/SYSTEM pair.
type PairResponse struct {
	BankTransactionID   int64 `json:"bankTransactionId"`
	SystemTransactionID int64 `json:"systemTransactionId"`
	RuleID              int64 `json:"ruleId"`
}

// RunDetailResponse is a run with the pairs it matched.
type RunDetailResponse struct {
	RunResponse
	Pairs []PairResponse `json:"pairs"`
}

// SkippedRuleResponse reports an active rule a run could not evaluate.
type SkippedRuleResponse struct {
	RuleID   int64  `json:"ruleId"`
	RuleName string `json:"ruleName"`
	RuleType string `json:"ruleType"`
	Reason   string `json:"reason"`
}

// RunResultResponse is returned by POST /transactions/reconcile.
type RunResultResponse struct {
	RunResponse
	Pairs        []PairResponse        `json:"pairs"`
	SkippedRules []SkippedRuleResponse `json:"skippedRules"`
	DurationMs   int64                 `json:"durationMs"`
}
