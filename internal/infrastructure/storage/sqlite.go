package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Storage provides SQLite database access for transactions, rules and runs.
// It implements the Repository interface.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance using the default driver
func NewStorage(dbPath string) (*Storage, error) {
	return Open(context.Background(), DriverCGO, dbPath)
}

// Open creates a storage instance with the given driver and runs all
// pending migrations.
func Open(ctx context.Context, driver, dbPath string) (*Storage, error) {
	dsn, err := buildDSN(driver, dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, now: time.Now}

	// Run all pending migrations
	if err := s.runMigrations(ctx, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// buildDSN enables foreign keys, WAL and a busy timeout on every pooled
// connection. Each driver spells connection pragmas differently.
func buildDSN(driver, dbPath string) (string, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	switch driver {
	case DriverCGO:
		return dbPath + sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", nil
	case DriverPureGo:
		return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	default:
		return "", fmt.Errorf("unsupported storage driver %q (want %q or %q)", driver, DriverCGO, DriverPureGo)
	}
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", v, err)
	}
	return t, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ================================================================
// TRANSACTIONS
// ================================================================

const transactionColumns = `id, description, amount, source, status, version, created_at`

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		t         model.Transaction
		source    string
		status    string
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.Description, &t.Amount, &source, &status, &t.Version, &createdAt); err != nil {
		return model.Transaction{}, err
	}
	t.Source = model.Source(source)
	t.Status = model.Status(status)
	ts, err := parseTime(createdAt)
	if err != nil {
		return model.Transaction{}, err
	}
	t.CreatedAt = ts
	return t, nil
}

// CreateTransaction inserts a new RAW transaction
func (s *Storage) CreateTransaction(ctx context.Context, input TransactionInput) (*model.Transaction, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	now := formatTime(s.now())

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (description, amount, source, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, input.Description, input.Amount.String(), string(input.Source), string(model.StatusRaw), formatTime(createdAt), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, id)
}

// GetTransaction retrieves a transaction by id
func (s *Storage) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransaction edits a RAW transaction
func (s *Storage) UpdateTransaction(ctx context.Context, id int64, edit TransactionEdit) (*model.Transaction, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET description = ?, amount = ?, source = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = 'RAW'
	`, edit.Description, edit.Amount.String(), string(edit.Source), formatTime(s.now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := s.requireAffected(ctx, result, id); err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, id)
}

// requireAffected distinguishes a missing transaction from a non-RAW one
// after a RAW-guarded write touched no rows.
func (s *Storage) requireAffected(ctx context.Context, result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetTransaction(ctx, id); err != nil {
		return err
	}
	return ErrNotRaw
}

// DeleteTransaction removes a transaction
func (s *Storage) DeleteTransaction(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetTransaction sets a transaction back to RAW. Resetting a RAW
// transaction leaves it untouched.
func (s *Storage) ResetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = 'RAW', version = version + 1, updated_at = ?
		WHERE id = ? AND status != 'RAW'
	`, formatTime(s.now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to reset transaction: %w", err)
	}
	// GetTransaction reports ErrNotFound for a missing id.
	return s.GetTransaction(ctx, id)
}

// ListTransactions returns a page of transactions, newest first
func (s *Storage) ListTransactions(ctx context.Context, filter TransactionFilter) (*TransactionPage, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(filter.Source))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + whereClause +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return newTransactionPage(filter, txns, total), nil
}

// ListRawTransactions returns the RAW snapshot used by a run
func (s *Storage) ListRawTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'RAW' AND source IN ('BANK', 'SYSTEM')
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// ================================================================
// RULES
// ================================================================

const ruleColumns = `id, rule_name, rule_type, priority, is_active, description, rule_value, created_at`

func scanRule(row rowScanner) (model.Rule, error) {
	var (
		r         model.Rule
		ruleType  string
		ruleValue sql.NullString
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.RuleName, &ruleType, &r.Priority, &r.IsActive, &r.Description, &ruleValue, &createdAt); err != nil {
		return model.Rule{}, err
	}
	r.RuleType = model.RuleType(ruleType)
	if ruleValue.Valid {
		v := ruleValue.String
		r.RuleValue = &v
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return model.Rule{}, err
	}
	r.CreatedAt = ts
	return r, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateRule inserts a new rule
func (s *Storage) CreateRule(ctx context.Context, input RuleInput) (*model.Rule, error) {
	now := formatTime(s.now())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (rule_name, rule_type, priority, is_active, description, rule_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, input.RuleName, string(input.RuleType), input.Priority, input.IsActive, input.Description,
		nullableString(input.RuleValue), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetRule(ctx, id)
}

// GetRule retrieves a rule by id
func (s *Storage) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRule replaces the writable fields of a rule
func (s *Storage) UpdateRule(ctx context.Context, id int64, input RuleInput) (*model.Rule, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rules
		SET rule_name = ?, rule_type = ?, priority = ?, is_active = ?, description = ?, rule_value = ?, updated_at = ?
		WHERE id = ?
	`, input.RuleName, string(input.RuleType), input.Priority, input.IsActive, input.Description,
		nullableString(input.RuleValue), formatTime(s.now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	if err := requireRow(result); err != nil {
		return nil, err
	}
	return s.GetRule(ctx, id)
}

// SetRuleActive toggles a rule
func (s *Storage) SetRuleActive(ctx context.Context, id int64, active bool) (*model.Rule, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET is_active = ?, updated_at = ? WHERE id = ?
	`, active, formatTime(s.now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule status: %w", err)
	}
	if err := requireRow(result); err != nil {
		return nil, err
	}
	return s.GetRule(ctx, id)
}

// DeleteRule removes a rule
func (s *Storage) DeleteRule(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRules returns rules matching the filter
func (s *Storage) ListRules(ctx context.Context, filter RuleFilter) ([]model.Rule, error) {
	var (
		where []string
		args  []any
	)
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.RuleType != nil {
		where = append(where, "rule_type = ?")
		args = append(args, string(*filter.RuleType))
	}
	if filter.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, *filter.Priority)
	}

	query := `SELECT ` + ruleColumns + ` FROM rules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority ASC, id ASC"

	return s.queryRules(ctx, query, args...)
}

// ListActiveRules returns the rules a run evaluates
func (s *Storage) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	rules, err := s.queryRules(ctx, `
		SELECT `+ruleColumns+` FROM rules
		WHERE is_active = 1
		ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	return rules, nil
}

func (s *Storage) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	rules := make([]model.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ================================================================
// RECONCILIATION RUNS
// ================================================================

// CommitRun writes a run's status transitions and its ledger record in a
// single database transaction.
func (s *Storage) CommitRun(ctx context.Context, commit RunCommit) (*model.Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin run commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	stamp := formatTime(now)

	updateStmt, err := tx.PrepareContext(ctx, `
		UPDATE transactions SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = 'RAW' AND version = ?
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = updateStmt.Close() }()

	for _, u := range commit.Updates {
		result, err := updateStmt.ExecContext(ctx, string(u.Status), stamp, u.TransactionID, u.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to update transaction %d: %w", u.TransactionID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n != 1 {
			return nil, fmt.Errorf("transaction %d: %w", u.TransactionID, ErrStaleSnapshot)
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (matched_count, unmatched_count, raw_count, created_at)
		VALUES (?, ?, ?, ?)
	`, commit.MatchedCount, commit.UnmatchedCount, commit.RawCount, stamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	for _, p := range commit.Pairs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reconciliation_matches (run_id, bank_transaction_id, system_transaction_id, rule_id)
			VALUES (?, ?, ?, ?)
		`, runID, p.BankID, p.SystemID, p.RuleID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert match: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	return &model.Run{
		ID:             runID,
		MatchedCount:   commit.MatchedCount,
		UnmatchedCount: commit.UnmatchedCount,
		RawCount:       commit.RawCount,
		CreatedAt:      now.UTC(),
	}, nil
}

const runColumns = `id, matched_count, unmatched_count, raw_count, created_at`

func scanRun(row rowScanner) (model.Run, error) {
	var (
		r         model.Run
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.MatchedCount, &r.UnmatchedCount, &r.RawCount, &createdAt); err != nil {
		return model.Run{}, err
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return model.Run{}, err
	}
	r.CreatedAt = ts
	return r, nil
}

// ListRuns returns recent runs, most recent first
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM reconciliation_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]model.Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run with its matched pairs
func (s *Storage) GetRun(ctx context.Context, id int64) (*model.RunDetail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM reconciliation_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT bank_transaction_id, system_transaction_id, rule_id
		FROM reconciliation_matches
		WHERE run_id = ?
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load run matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	detail := &model.RunDetail{Run: run, Pairs: make([]model.MatchedPair, 0)}
	for rows.Next() {
		var p model.MatchedPair
		if err := rows.Scan(&p.BankID, &p.SystemID, &p.RuleID); err != nil {
			return nil, err
		}
		detail.Pairs = append(detail.Pairs, p)
	}
	return detail, rows.Err()
}
