package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotRaw is returned when a write requires a RAW transaction.
	ErrNotRaw = errors.New("transaction is not RAW")

	// ErrStaleSnapshot is returned when a run tries to transition a
	// transaction that is no longer RAW (or no longer exists).
	ErrStaleSnapshot = errors.New("transaction changed since run snapshot")
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	TransactionRepository
	RuleRepository
	RunRepository
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// TransactionRepository handles transaction records
type TransactionRepository interface {
	// CreateTransaction inserts a RAW transaction and returns it with its id
	CreateTransaction(ctx context.Context, input TransactionInput) (*model.Transaction, error)

	// GetTransaction retrieves a transaction by id (ErrNotFound if missing)
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)

	// UpdateTransaction edits description, amount and source of a RAW transaction
	UpdateTransaction(ctx context.Context, id int64, edit TransactionEdit) (*model.Transaction, error)

	// DeleteTransaction removes a transaction
	DeleteTransaction(ctx context.Context, id int64) error

	// ResetTransaction puts a reconciled transaction back to RAW
	ResetTransaction(ctx context.Context, id int64) (*model.Transaction, error)

	// ListTransactions returns a page of transactions matching the filter
	ListTransactions(ctx context.Context, filter TransactionFilter) (*TransactionPage, error)

	// ListRawTransactions returns every RAW transaction, ordered by id
	ListRawTransactions(ctx context.Context) ([]model.Transaction, error)
}

// RuleRepository handles reconciliation rules
type RuleRepository interface {
	CreateRule(ctx context.Context, input RuleInput) (*model.Rule, error)
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	UpdateRule(ctx context.Context, id int64, input RuleInput) (*model.Rule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) (*model.Rule, error)
	DeleteRule(ctx context.Context, id int64) error

	// ListRules returns rules matching the filter ordered by (priority, id)
	ListRules(ctx context.Context, filter RuleFilter) ([]model.Rule, error)

	// ListActiveRules returns active rules ordered by (priority, id)
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
}

// RunRepository handles the append-only reconciliation run ledger
type RunRepository interface {
	// CommitRun applies every status update and appends the run record
	// (with its pairs) atomically. Updates only apply to RAW transactions;
	// if any update finds its transaction missing or no longer RAW the
	// whole commit is rolled back with ErrStaleSnapshot.
	CommitRun(ctx context.Context, commit RunCommit) (*model.Run, error)

	// ListRuns returns runs, most recent first
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// GetRun retrieves a run with its matched pairs
	GetRun(ctx context.Context, id int64) (*model.RunDetail, error)
}

// TransactionInput holds the fields of a new transaction.
type TransactionInput struct {
	Description string
	Amount      decimal.Decimal
	Source      model.Source
	CreatedAt   time.Time // zero = now
}

// TransactionEdit holds the client-editable fields of a transaction.
type TransactionEdit struct {
	Description string
	Amount      decimal.Decimal
	Source      model.Source
}

// TransactionFilter defines filters for listing transactions.
// Zero-valued fields are not applied.
type TransactionFilter struct {
	Status     model.Status // Filter by status (empty = all)
	Source     model.Source // Filter by source (empty = all)
	PageNumber int          // 1-based page (0 = 1)
	PageSize   int          // Page size (0 = DefaultPageSize)
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize applies paging defaults and bounds.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.PageNumber < 1 {
		f.PageNumber = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the row offset of the page.
func (f TransactionFilter) Offset() int {
	return (f.PageNumber - 1) * f.PageSize
}

// TransactionPage contains paginated transaction results
type TransactionPage struct {
	Transactions  []model.Transaction
	PageNumber    int
	PageSize      int
	TotalElements int
	TotalPages    int
}

func newTransactionPage(filter TransactionFilter, txns []model.Transaction, total int) *TransactionPage {
	pages := (total + filter.PageSize - 1) / filter.PageSize
	if pages < 1 {
		pages = 1
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	return &TransactionPage{
		Transactions:  txns,
		PageNumber:    filter.PageNumber,
		PageSize:      filter.PageSize,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// RuleInput holds the writable fields of a rule.
type RuleInput struct {
	RuleName    string
	RuleType    model.RuleType
	Priority    int
	IsActive    bool
	Description string
	RuleValue   *string
}

// RuleFilter defines filters for listing rules. Nil fields are not
// applied; set fields are ANDed.
type RuleFilter struct {
	IsActive *bool
	RuleType *model.RuleType
	Priority *int
}

// RunCommit is everything a successful run writes.
type RunCommit struct {
	Updates        []model.StatusUpdate
	Pairs          []model.MatchedPair
	MatchedCount   int
	UnmatchedCount int
	RawCount       int
}
