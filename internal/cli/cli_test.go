package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconciler-backend/internal/application/reconcile"
	"github.com/eshaffer321/reconciler-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// writeConfig creates a config file pointing at a temp database.
func writeConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "reconciler.db")
	configPath = filepath.Join(dir, "config.yaml")
	content := "storage:\n  database_path: " + dbPath + "\nobservability:\n  logging:\n    level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand("test")

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "reconcile", "history", "migrate"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
}

func TestMigrateCommand(t *testing.T) {
	configPath, dbPath := writeConfig(t)

	out, err := execute(t, "migrate", "--config", configPath)
	require.NoError(t, err)

	assert.Contains(t, out, dbPath)
	assert.Contains(t, out, "00001")
	assert.Contains(t, out, "create_transactions")
	assert.NotContains(t, out, "pending")
	assert.Equal(t, 4, strings.Count(out, "applied"))
}

func TestReconcileAndHistoryCommands(t *testing.T) {
	configPath, dbPath := writeConfig(t)

	store, err := storage.NewStorage(dbPath)
	require.NoError(t, err)
	ctx := t.Context()
	window := "0"
	_, err = store.CreateRule(ctx, storage.RuleInput{RuleName: "same day", RuleType: model.RuleMatchByDateAmount, Priority: 1, IsActive: true, RuleValue: &window})
	require.NoError(t, err)
	for _, input := range []storage.TransactionInput{
		{Description: "card", Amount: decimal.NewFromInt(50), Source: model.SourceBank},
		{Description: "invoice", Amount: decimal.NewFromInt(50), Source: model.SourceSystem},
		{Description: "fee", Amount: decimal.NewFromInt(7), Source: model.SourceBank},
	} {
		_, err = store.CreateTransaction(ctx, input)
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	out, err := execute(t, "reconcile", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Run #1 completed")
	assert.Contains(t, out, "Summary: Raw=3 Matched=2 Unmatched=1 Pairs=1")
	assert.Contains(t, out, "bank #1 <-> system #2 (rule 1)")

	out, err = execute(t, "history", "--config", configPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "1 "), lines[1])
}

func TestExplicitConfigMustLoad(t *testing.T) {
	_, err := execute(t, "migrate", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.yaml")
}

func TestPrintRunResult_SkippedRules(t *testing.T) {
	var buf bytes.Buffer
	PrintRunResult(&buf, &reconcile.RunResult{
		Run: model.Run{ID: 9, MatchedCount: 0, UnmatchedCount: 1200, RawCount: 1200},
		SkippedRules: []matcher.SkippedRule{
			{RuleID: 4, RuleName: "legacy", RuleType: "FUZZY", Err: errors.New("unknown rule type \"FUZZY\"")},
		},
		Duration: 1234 * time.Microsecond,
	})

	out := buf.String()
	assert.Contains(t, out, "Run #9 completed in 1ms")
	assert.Contains(t, out, "Raw=1,200")
	assert.Contains(t, out, "Skipped rules:")
	assert.Contains(t, out, "#4 legacy (FUZZY)")
}

func TestPrintHistory(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	PrintHistory(&buf, nil, now)
	assert.Equal(t, "No reconciliation runs yet.\n", buf.String())

	buf.Reset()
	PrintHistory(&buf, []model.Run{
		{ID: 2, MatchedCount: 2, RawCount: 2, CreatedAt: now.Add(-3 * time.Minute)},
		{ID: 1, UnmatchedCount: 1, RawCount: 1, CreatedAt: now.Add(-2 * time.Hour)},
	}, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "3 minutes ago")
	assert.Contains(t, lines[2], "2 hours ago")
}
