package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It is safe for concurrent use so coordinator tests can race triggers.
type MockRepository struct {
	mu           sync.Mutex
	transactions map[int64]model.Transaction
	rules        map[int64]model.Rule
	runs         []model.RunDetail
	nextTxnID    int64
	nextRuleID   int64
	nextRunID    int64

	// Clock used for created_at values (default time.Now)
	Now func() time.Time

	// Hooks run before the operation, outside the lock. Tests use them to
	// block a run mid-flight or to mutate data between load and commit.
	BeforeListRawTransactions func(ctx context.Context)
	BeforeListActiveRules     func(ctx context.Context)
	BeforeCommitRun           func(ctx context.Context)

	// Call counters for test assertions
	ListRawTransactionsCalls int
	ListActiveRulesCalls     int
	CommitRunCalls           int
	ListRunsCalls            int

	// Error injection for testing error paths
	ListRawTransactionsErr error
	ListActiveRulesErr     error
	CommitRunErr           error
	ListRunsErr            error
	GetRunErr              error
	GetStatsErr            error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		transactions: make(map[int64]model.Transaction),
		rules:        make(map[int64]model.Rule),
		nextTxnID:    1,
		nextRuleID:   1,
		nextRunID:    1,
		Now:          time.Now,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// ================================================================
// TRANSACTIONS
// ================================================================

// CreateTransaction stores a RAW transaction
func (m *MockRepository) CreateTransaction(_ context.Context, input TransactionInput) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.Now()
	}
	t := model.Transaction{
		ID:          m.nextTxnID,
		Description: input.Description,
		Amount:      input.Amount,
		Source:      input.Source,
		Status:      model.StatusRaw,
		Version:     1,
		CreatedAt:   createdAt.UTC(),
	}
	m.nextTxnID++
	m.transactions[t.ID] = t
	return &t, nil
}

// AddTransaction stores a transaction as-is, including its id and status
func (m *MockRepository) AddTransaction(t model.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.nextTxnID
	}
	if t.ID >= m.nextTxnID {
		m.nextTxnID = t.ID + 1
	}
	if t.Version == 0 {
		t.Version = 1
	}
	m.transactions[t.ID] = t
}

// GetTransaction retrieves a transaction by id
func (m *MockRepository) GetTransaction(_ context.Context, id int64) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// UpdateTransaction edits a RAW transaction
func (m *MockRepository) UpdateTransaction(_ context.Context, id int64, edit TransactionEdit) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !t.IsRaw() {
		return nil, ErrNotRaw
	}
	t.Description = edit.Description
	t.Amount = edit.Amount
	t.Source = edit.Source
	t.Version++
	m.transactions[id] = t
	return &t, nil
}

// DeleteTransaction removes a transaction
func (m *MockRepository) DeleteTransaction(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[id]; !ok {
		return ErrNotFound
	}
	delete(m.transactions, id)
	return nil
}

// ResetTransaction sets a transaction back to RAW
func (m *MockRepository) ResetTransaction(_ context.Context, id int64) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.IsRaw() {
		return &t, nil
	}
	t.Status = model.StatusRaw
	t.Version++
	m.transactions[id] = t
	return &t, nil
}

// ListTransactions pages transactions newest first
func (m *MockRepository) ListTransactions(_ context.Context, filter TransactionFilter) (*TransactionPage, error) {
	filter = filter.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []model.Transaction
	for _, t := range m.transactions {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Source != "" && t.Source != filter.Source {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := append([]model.Transaction(nil), matched[start:end]...)
	return newTransactionPage(filter, page, len(matched)), nil
}

// ListRawTransactions returns RAW transactions ordered by id
func (m *MockRepository) ListRawTransactions(ctx context.Context) ([]model.Transaction, error) {
	if m.BeforeListRawTransactions != nil {
		m.BeforeListRawTransactions(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListRawTransactionsCalls++
	if m.ListRawTransactionsErr != nil {
		return nil, m.ListRawTransactionsErr
	}

	var raw []model.Transaction
	for _, t := range m.transactions {
		if t.IsRaw() {
			raw = append(raw, t)
		}
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].ID < raw[j].ID })
	return raw, nil
}

// ================================================================
// RULES
// ================================================================

// CreateRule stores a rule
func (m *MockRepository) CreateRule(_ context.Context, input RuleInput) (*model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := ruleFromInput(m.nextRuleID, input, m.Now().UTC())
	m.nextRuleID++
	m.rules[r.ID] = r
	return &r, nil
}

// AddRule stores a rule as-is
func (m *MockRepository) AddRule(r model.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.nextRuleID
	}
	if r.ID >= m.nextRuleID {
		m.nextRuleID = r.ID + 1
	}
	m.rules[r.ID] = r
}

func ruleFromInput(id int64, input RuleInput, createdAt time.Time) model.Rule {
	return model.Rule{
		ID:          id,
		RuleName:    input.RuleName,
		RuleType:    input.RuleType,
		Priority:    input.Priority,
		IsActive:    input.IsActive,
		Description: input.Description,
		RuleValue:   input.RuleValue,
		CreatedAt:   createdAt,
	}
}

// GetRule retrieves a rule by id
func (m *MockRepository) GetRule(_ context.Context, id int64) (*model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// UpdateRule replaces a rule's writable fields
func (m *MockRepository) UpdateRule(_ context.Context, id int64, input RuleInput) (*model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	r := ruleFromInput(id, input, existing.CreatedAt)
	m.rules[id] = r
	return &r, nil
}

// SetRuleActive toggles a rule
func (m *MockRepository) SetRuleActive(_ context.Context, id int64, active bool) (*model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.IsActive = active
	m.rules[id] = r
	return &r, nil
}

// DeleteRule removes a rule
func (m *MockRepository) DeleteRule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// ListRules returns rules matching the filter ordered by (priority, id)
func (m *MockRepository) ListRules(_ context.Context, filter RuleFilter) ([]model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Rule, 0)
	for _, r := range m.rules {
		if filter.IsActive != nil && r.IsActive != *filter.IsActive {
			continue
		}
		if filter.RuleType != nil && r.RuleType != *filter.RuleType {
			continue
		}
		if filter.Priority != nil && r.Priority != *filter.Priority {
			continue
		}
		out = append(out, r)
	}
	sortRulesByPriority(out)
	return out, nil
}

// ListActiveRules returns active rules ordered by (priority, id)
func (m *MockRepository) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	if m.BeforeListActiveRules != nil {
		m.BeforeListActiveRules(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListActiveRulesCalls++
	if m.ListActiveRulesErr != nil {
		return nil, m.ListActiveRulesErr
	}
	out := make([]model.Rule, 0)
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sortRulesByPriority(out)
	return out, nil
}

func sortRulesByPriority(rules []model.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// ================================================================
// RUNS
// ================================================================

// CommitRun applies updates and appends the run, all or nothing
func (m *MockRepository) CommitRun(ctx context.Context, commit RunCommit) (*model.Run, error) {
	if m.BeforeCommitRun != nil {
		m.BeforeCommitRun(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitRunCalls++
	if m.CommitRunErr != nil {
		return nil, m.CommitRunErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, u := range commit.Updates {
		t, ok := m.transactions[u.TransactionID]
		if !ok || !t.IsRaw() || t.Version != u.Version {
			return nil, ErrStaleSnapshot
		}
	}
	for _, u := range commit.Updates {
		t := m.transactions[u.TransactionID]
		t.Status = u.Status
		t.Version++
		m.transactions[u.TransactionID] = t
	}

	run := model.Run{
		ID:             m.nextRunID,
		MatchedCount:   commit.MatchedCount,
		UnmatchedCount: commit.UnmatchedCount,
		RawCount:       commit.RawCount,
		CreatedAt:      m.Now().UTC(),
	}
	m.nextRunID++
	pairs := append([]model.MatchedPair{}, commit.Pairs...)
	m.runs = append(m.runs, model.RunDetail{Run: run, Pairs: pairs})
	return &run, nil
}

// ListRuns returns runs, most recent first
func (m *MockRepository) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListRunsCalls++
	if m.ListRunsErr != nil {
		return nil, m.ListRunsErr
	}
	out := make([]model.Run, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i].Run)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetRun retrieves a run with its pairs
func (m *MockRepository) GetRun(_ context.Context, id int64) (*model.RunDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetRunErr != nil {
		return nil, m.GetRunErr
	}
	for _, r := range m.runs {
		if r.Run.ID == id {
			detail := r
			detail.Pairs = append([]model.MatchedPair{}, r.Pairs...)
			return &detail, nil
		}
	}
	return nil, ErrNotFound
}

// GetStats returns mock statistics
func (m *MockRepository) GetStats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetStatsErr != nil {
		return nil, m.GetStatsErr
	}
	stats := &Stats{SourceCounts: make(map[string]int)}
	for _, t := range m.transactions {
		stats.TotalTransactions++
		stats.SourceCounts[string(t.Source)]++
		switch t.Status {
		case model.StatusRaw:
			stats.RawCount++
		case model.StatusMatched:
			stats.MatchedCount++
		case model.StatusUnmatched:
			stats.UnmatchedCount++
		}
	}
	for _, r := range m.rules {
		if r.IsActive {
			stats.ActiveRules++
		}
	}
	stats.TotalRuns = len(m.runs)
	return stats, nil
}

// Transactions returns a snapshot of every stored transaction, by id
func (m *MockRepository) Transactions() []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunCount returns the number of committed runs
func (m *MockRepository) RunCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}
