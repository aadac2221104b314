package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gl-core/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite("", testLogger())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newAccount(tenantID, code string) *ledger.Account {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	return &ledger.Account{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Code:      code,
		Name:      "Account " + code,
		Type:      ledger.Asset,
		SubType:   ledger.CurrentAsset,
		Currency:  ledger.DefaultCurrency,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT id FROM accounts WHERE tenant_id = ? AND code IN (?, ?)`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `SELECT id FROM accounts WHERE tenant_id = $1 AND code IN ($2, $3)`, Postgres.rebind(q))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"postgres": Postgres, "PGX": Postgres, "sqlite3": SQLite, "sqlite": SQLite} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(2625000), toCents(fromCents(2625000)))
	assert.Equal(t, "-12.34", fromCents(-1234).StringFixed(2))
	assert.Equal(t, int64(1001), toCents(ledger.Tolerance.Mul(fromCents(100100))))
}

func TestDBTimeScan(t *testing.T) {
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	for _, src := range []any{"2024-02-29", []byte("2024-02-29"), "2024-02-29 00:00:00+00:00", want.In(time.FixedZone("GST", 4*3600))} {
		var got dbTime
		require.NoError(t, got.Scan(src))
		assert.True(t, got.Valid)
		assert.True(t, want.Equal(got.Time), "%v", src)
		assert.Equal(t, time.UTC, got.Time.Location())
	}

	var null dbTime
	require.NoError(t, null.Scan(nil))
	assert.False(t, null.Valid)
	assert.Nil(t, null.ptr())

	var bad dbTime
	assert.Error(t, bad.Scan("yesterday"))
	assert.Error(t, bad.Scan(42))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	assert.Equal(t, SQLite, s.Dialect())
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Ping(ctx))
}

func TestAccountsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acct := newAccount("t1", "1110")
	acct.Description = "Till"
	acct.CashFlowCategory = ledger.CashFlowCash

	require.NoError(t, s.InTx(ctx, func(tx ledger.Tx) error { return tx.InsertAccount(ctx, acct) }))

	err := s.ReadTx(ctx, func(tx ledger.Tx) error {
		got, err := tx.GetAccountByCode(ctx, "t1", "1110")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)
		assert.Equal(t, "Till", got.Description)
		assert.Equal(t, ledger.CashFlowCash, got.CashFlowCategory)
		assert.True(t, got.IsActive)
		assert.True(t, acct.CreatedAt.Equal(got.CreatedAt))

		_, err = tx.GetAccount(ctx, "t2", acct.ID)
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
		return nil
	})
	require.NoError(t, err)

	t.Run("duplicate code", func(t *testing.T) {
		err := s.InTx(ctx, func(tx ledger.Tx) error { return tx.InsertAccount(ctx, newAccount("t1", "1110")) })
		assert.ErrorIs(t, err, ledger.ErrDuplicateCode)
	})

	t.Run("insert if absent", func(t *testing.T) {
		var inserted bool
		err := s.InTx(ctx, func(tx ledger.Tx) error {
			var err error
			inserted, err = tx.InsertAccountIfAbsent(ctx, newAccount("t1", "1110"))
			return err
		})
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("lock reports missing accounts", func(t *testing.T) {
		err := s.InTx(ctx, func(tx ledger.Tx) error {
			return tx.LockAccounts(ctx, "t1", []string{acct.ID, "missing"})
		})
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.InsertAccount(ctx, newAccount("t1", "1000")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.ReadTx(ctx, func(tx ledger.Tx) error {
		accounts, err := tx.ListAccounts(ctx, "t1")
		assert.Empty(t, accounts)
		return err
	})
	require.NoError(t, err)
}

func TestInTxRetriesContention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}

	attempts := 0
	err := s.InTx(ctx, func(tx ledger.Tx) error {
		attempts++
		if attempts < maxRetries {
			return busy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, maxRetries, attempts)

	attempts = 0
	err = s.InTx(ctx, func(tx ledger.Tx) error {
		attempts++
		return busy
	})
	assert.ErrorIs(t, err, ledger.ErrContention)
	assert.Equal(t, maxRetries, attempts)

	attempts = 0
	err = s.InTx(ctx, func(tx ledger.Tx) error {
		attempts++
		return ledger.ErrAccountNotFound
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Equal(t, 1, attempts)
}

func TestJournalNumberRaceIsRetried(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	entry := func(number string) *ledger.JournalEntry {
		return &ledger.JournalEntry{
			ID:          uuid.New().String(),
			TenantID:    "t1",
			EntryNumber: number,
			Date:        day,
			Description: "manual",
			Status:      ledger.JournalDraft,
			CreatedBy:   "accountant",
			CreatedAt:   day,
		}
	}
	require.NoError(t, s.InTx(ctx, func(tx ledger.Tx) error {
		return tx.InsertJournalEntry(ctx, entry("JE-00001"))
	}))

	attempts := 0
	err := s.InTx(ctx, func(tx ledger.Tx) error {
		attempts++
		number := "JE-00001"
		if attempts > 1 {
			last, err := tx.LastJournalSequence(ctx, "t1")
			if err != nil {
				return err
			}
			number = fmt.Sprintf("JE-%05d", last+1)
		}
		return tx.InsertJournalEntry(ctx, entry(number))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	attempts = 0
	err = s.InTx(ctx, func(tx ledger.Tx) error {
		attempts++
		return tx.InsertJournalEntry(ctx, entry("JE-00002"))
	})
	assert.ErrorIs(t, err, ledger.ErrContention)
	assert.Equal(t, maxRetries, attempts)
}

func TestLedgerEntriesAreAppendOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	acct := newAccount("t1", "1110")
	entry := &ledger.LedgerEntry{
		ID:            uuid.New().String(),
		TenantID:      "t1",
		TransactionID: uuid.New().String(),
		AccountID:     acct.ID,
		Debit:         fromCents(1000),
		Credit:        fromCents(0),
		Date:          ledger.Date(2024, time.June, 1),
		Description:   "opening",
		SourceType:    ledger.SourceManual,
		SourceID:      "m1",
		PostedBy:      "test",
		CreatedAt:     time.Now().UTC(),
	}
	err := s.InTx(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertAccount(ctx, acct); err != nil {
			return err
		}
		return tx.InsertEntries(ctx, []*ledger.LedgerEntry{entry})
	})
	require.NoError(t, err)

	err = s.run(ctx, false, writeTimeout, func(t *tx) error {
		_, err := t.exec(ctx, `UPDATE ledger_entries SET debit_cents = 0 WHERE id = ?`, entry.ID)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	err = s.run(ctx, false, writeTimeout, func(t *tx) error {
		_, err := t.exec(ctx, `DELETE FROM ledger_entries WHERE id = ?`, entry.ID)
		return err
	})
	require.Error(t, err)

	err = s.ReadTx(ctx, func(tx ledger.Tx) error {
		got, err := tx.GetEntry(ctx, "t1", entry.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, "10.00", got.Debit.StringFixed(2))
		assert.Equal(t, entry.Date, got.Date)

		totals, err := tx.SumAccount(ctx, "t1", acct.ID)
		assert.Equal(t, "10.00", totals.Net().StringFixed(2))
		return err
	})
	require.NoError(t, err)
}

func TestNotFoundMapping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.ReadTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.GetEntry(ctx, "t1", "x")
		assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
		_, err = tx.GetJournalEntry(ctx, "t1", "x")
		assert.ErrorIs(t, err, ledger.ErrJournalEntryNotFound)
		_, err = tx.GetInvoice(ctx, "t1", "x")
		assert.ErrorIs(t, err, ledger.ErrDocumentNotFound)
		_, err = tx.GetBill(ctx, "t1", "x")
		assert.ErrorIs(t, err, ledger.ErrDocumentNotFound)
		_, err = tx.GetBankTransaction(ctx, "x")
		assert.ErrorIs(t, err, ledger.ErrBankTransactionNotFound)

		match, err := tx.FindMatchByEntry(ctx, "x")
		assert.NoError(t, err)
		assert.Nil(t, match)

		seq, err := tx.LastJournalSequence(ctx, "t1")
		assert.NoError(t, err)
		assert.Zero(t, seq)
		return nil
	})
	require.NoError(t, err)
}
