package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateTransactionRequest is the body of POST /transactions.
// Amount accepts a JSON number or a numeric string.
type CreateTransactionRequest struct {
	Description string           `json:"description" validate:"max=500"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Source      string           `json:"source" validate:"required,oneof=BANK SYSTEM"`
	CreatedAt   *time.Time       `json:"createdAt"` // optional, for imports
}

// UpdateTransactionRequest is the body of PUT /transactions/{id}.
// Status is not client-settable; only runs and resets change it.
type UpdateTransactionRequest struct {
	Description string           `json:"description" validate:"max=500"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Source      string           `json:"source" validate:"required,oneof=BANK SYSTEM"`
}

// RuleRequest is the body of POST /rules and PUT /rules/{id}.
type RuleRequest struct {
	RuleName    string  `json:"ruleName" validate:"required,max=200"`
	RuleType    string  `json:"ruleType" validate:"required"`
	Priority    int     `json:"priority" validate:"required,min=1"`
	IsActive    *bool   `json:"isActive"` // default true
	Description string  `json:"description" validate:"max=1000"`
	RuleValue   *string `json:"ruleValue"`
}

// Active returns IsActive, defaulting to true when omitted.
func (r RuleRequest) Active() bool {
	return r.IsActive == nil || *r.IsActive
}
