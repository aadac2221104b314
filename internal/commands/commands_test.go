package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gl-core/internal/commands"
	"github.com/example/gl-core/internal/ledger"
	"github.com/example/gl-core/internal/store"
	"github.com/example/gl-core/pkg/audit"
)

// runGlctl executes the root command in-process against a SQLite file and
// returns what it wrote to stdout.
func runGlctl(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := commands.NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--driver", "sqlite", "--database", dbPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newDB(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"APP_ENV", "DB_DRIVER", "DATABASE_URL", "FISCAL_YEAR_START", "CASH_ACCOUNT_PREFIXES", "DEFAULT_CURRENCY", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return filepath.Join(t.TempDir(), "gl.db")
}

func decodeOutput(t *testing.T, out string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestMigrate(t *testing.T) {
	db := newDB(t)
	out, err := runGlctl(t, db, "migrate")
	require.NoError(t, err)

	var got map[string]any
	decodeOutput(t, out, &got)
	assert.Equal(t, true, got["migrated"])
	assert.Equal(t, "sqlite", got["dialect"])

	_, err = os.Stat(db)
	assert.NoError(t, err)
}

func TestSeedTenants(t *testing.T) {
	db := newDB(t)
	chartSize := len(ledger.DefaultChart().Accounts)

	type seeded struct {
		Tenants []struct {
			Tenant  string `json:"tenant"`
			Created int    `json:"created"`
		} `json:"tenants"`
	}

	out, err := runGlctl(t, db, "seed", "--tenant", "acme", "--tenant", "globex", "--concurrency", "2")
	require.NoError(t, err)
	var first seeded
	decodeOutput(t, out, &first)
	require.Len(t, first.Tenants, 2)
	assert.Equal(t, "acme", first.Tenants[0].Tenant)
	assert.Equal(t, "globex", first.Tenants[1].Tenant)
	assert.Equal(t, chartSize, first.Tenants[0].Created)
	assert.Equal(t, chartSize, first.Tenants[1].Created)

	out, err = runGlctl(t, db, "seed", "--tenant", "acme")
	require.NoError(t, err)
	var again seeded
	decodeOutput(t, out, &again)
	require.Len(t, again.Tenants, 1)
	assert.Zero(t, again.Tenants[0].Created)

	t.Run("custom chart", func(t *testing.T) {
		chart := filepath.Join(t.TempDir(), "chart.yaml")
		require.NoError(t, os.WriteFile(chart, []byte(`accounts:
  - {code: "1000", name: Assets, type: ASSET, subType: CURRENT_ASSET, system: true}
  - {code: "1010", name: Petty Cash, type: ASSET, subType: CURRENT_ASSET, parent: "1000", cashFlow: CASH}
`), 0o644))

		out, err := runGlctl(t, db, "seed", "--tenant", "initech", "--chart", chart)
		require.NoError(t, err)
		var got seeded
		decodeOutput(t, out, &got)
		assert.Equal(t, 2, got.Tenants[0].Created)
	})

	t.Run("missing tenant flag", func(t *testing.T) {
		_, err := runGlctl(t, db, "seed")
		assert.Error(t, err)
	})
}

func TestAccountsTree(t *testing.T) {
	db := newDB(t)
	_, err := runGlctl(t, db, "seed", "--tenant", "acme")
	require.NoError(t, err)

	out, err := runGlctl(t, db, "accounts", "tree", "--tenant", "acme")
	require.NoError(t, err)

	var roots []struct {
		Code     string `json:"code"`
		Children []struct {
			Code string `json:"code"`
		} `json:"children"`
	}
	decodeOutput(t, out, &roots)
	codes := make([]string, 0, len(roots))
	for _, r := range roots {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"1000", "2000", "3000", "4000", "5000"}, codes)
	assert.NotEmpty(t, roots[0].Children)
}

func TestReportsAndVerify(t *testing.T) {
	db := newDB(t)
	_, err := runGlctl(t, db, "seed", "--tenant", "acme")
	require.NoError(t, err)

	// Book a capital injection directly through the service.
	ctx := context.Background()
	st, err := store.OpenSQLite(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	svc := ledger.NewService(st, ledger.Options{})
	bank, err := svc.Accounts.GetByCode(ctx, "acme", "1120")
	require.NoError(t, err)
	capital, err := svc.Accounts.GetByCode(ctx, "acme", "3100")
	require.NoError(t, err)
	je, err := svc.Journals.Create(ctx, ledger.NewJournalEntry{
		TenantID:    "acme",
		CreatedBy:   "owner",
		Date:        ledger.Date(2024, time.January, 5),
		Description: "Capital",
		Lines: []ledger.JournalLine{
			{AccountID: bank.ID, Side: ledger.SideDebit, Amount: decimal.NewFromInt(50000)},
			{AccountID: capital.ID, Side: ledger.SideCredit, Amount: decimal.NewFromInt(50000)},
		},
	})
	require.NoError(t, err)
	_, _, err = svc.Journals.Post(ctx, "acme", "owner", je.ID)
	require.NoError(t, err)
	st.Close()

	out, err := runGlctl(t, db, "report", "trial-balance", "--tenant", "acme", "--as-of", "2024-06-30")
	require.NoError(t, err)
	var tb ledger.TrialBalance
	decodeOutput(t, out, &tb)
	assert.True(t, tb.IsBalanced)
	assert.Equal(t, "50000.00", tb.TotalDebit.StringFixed(2))

	out, err = runGlctl(t, db, "report", "balance-sheet", "--tenant", "acme", "--as-of", "2024-06-30")
	require.NoError(t, err)
	var bs ledger.BalanceSheet
	decodeOutput(t, out, &bs)
	assert.Equal(t, "50000.00", bs.TotalAssets.StringFixed(2))
	assert.True(t, bs.Difference.IsZero())

	out, err = runGlctl(t, db, "report", "cash-flow", "--tenant", "acme", "--from", "2024-01-01", "--to", "2024-06-30")
	require.NoError(t, err)
	var cf ledger.CashFlowStatement
	decodeOutput(t, out, &cf)
	assert.Equal(t, "50000.00", cf.Financing.Total.StringFixed(2))

	out, err = runGlctl(t, db, "report", "pnl", "--tenant", "acme", "--from", "2024-01-01", "--to", "2024-06-30")
	require.NoError(t, err)
	var pl ledger.ProfitAndLoss
	decodeOutput(t, out, &pl)
	assert.True(t, pl.NetProfit.IsZero())

	out, err = runGlctl(t, db, "report", "vat", "--tenant", "acme", "--from", "2024-01-01", "--to", "2024-06-30")
	require.NoError(t, err)
	var vat ledger.VATReturn
	decodeOutput(t, out, &vat)
	assert.True(t, vat.NetVATPayable.IsZero())

	out, err = runGlctl(t, db, "verify", "--tenant", "acme")
	require.NoError(t, err)
	var verify struct {
		Valid bool `json:"valid"`
	}
	decodeOutput(t, out, &verify)
	assert.True(t, verify.Valid)

	t.Run("period must be ordered", func(t *testing.T) {
		_, err := runGlctl(t, db, "report", "pnl", "--tenant", "acme", "--from", "2024-07-01", "--to", "2024-06-01")
		assert.ErrorIs(t, err, ledger.ErrValidation)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := runGlctl(t, db, "report", "trial-balance", "--tenant", "acme", "--as-of", "June 30")
		assert.ErrorIs(t, err, ledger.ErrValidation)
	})
}

func TestUnsupportedDriver(t *testing.T) {
	newDB(t)
	cmd := commands.NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--driver", "mysql", "--database", "mysql://localhost/gl", "migrate"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

func TestAuditVerify(t *testing.T) {
	db := newDB(t)
	sink := filepath.Join(t.TempDir(), "audit.jsonl")

	chain, f, err := audit.OpenFile(sink)
	require.NoError(t, err)
	for _, action := range []string{"account.created", "ledger.posted"} {
		_, err := chain.Record(context.Background(), audit.Event{Action: action, TenantID: "acme", Actor: "owner"})
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	out, err := runGlctl(t, db, "audit", "verify", "--file", sink)
	require.NoError(t, err)
	var report audit.Report
	decodeOutput(t, out, &report)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Entries)

	raw, err := os.ReadFile(sink)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sink, bytes.Replace(raw, []byte("acme"), []byte("evil"), 1), 0o600))

	_, err = runGlctl(t, db, "audit", "verify", "--file", sink)
	assert.ErrorIs(t, err, audit.ErrBrokenChain)

	t.Run("needs a file", func(t *testing.T) {
		t.Setenv("AUDIT_SINK", "")
		_, err := runGlctl(t, db, "audit", "verify")
		assert.ErrorContains(t, err, "AUDIT_SINK")
	})
}
