package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/example/gl-core/internal/ledger"
	"github.com/example/gl-core/internal/store"
	"github.com/example/gl-core/pkg/audit"
)

const tenant = "tenant-a"

var today = ledger.Date(2024, time.June, 30)

// harness is a seeded tenant on a private in-memory database.
type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Store
	svc    *ledger.Service
	chain  *audit.ChainLogger
	tenant string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.OpenSQLite("", logger)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))

	chain := audit.NewChainLogger(nil)
	svc := ledger.NewService(st, ledger.Options{
		Logger:  logger,
		Auditor: chain,
		Now:     func() time.Time { return today },
	})
	_, err = svc.Accounts.SeedDefaults(ctx, tenant)
	require.NoError(t, err)

	return &harness{t: t, ctx: ctx, store: st, svc: svc, chain: chain, tenant: tenant}
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *harness) account(code string) *ledger.Account {
	h.t.Helper()
	acct, err := h.svc.Accounts.GetByCode(h.ctx, h.tenant, code)
	require.NoError(h.t, err)
	return acct
}

// balance returns the cached debit-positive balance of code.
func (h *harness) balance(code string) string {
	return h.account(code).Balance.StringFixed(2)
}

func (h *harness) issueInvoice(id string, date time.Time, subtotal, tax string) *ledger.Invoice {
	h.t.Helper()
	inv, _, err := h.svc.Posting.IssueInvoice(h.ctx, ledger.InvoiceIssued{
		TenantID:  h.tenant,
		PostedBy:  "clerk",
		InvoiceID: id,
		Number:    "INV-" + id,
		Customer:  "Acme Trading",
		IssueDate: date,
		DueDate:   date.AddDate(0, 0, 30),
		Subtotal:  amt(subtotal),
		Tax:       amt(tax),
		Total:     amt(subtotal).Add(amt(tax)),
	})
	require.NoError(h.t, err)
	return inv
}

func (h *harness) pay(invoiceID, cashCode, amount string, date time.Time) (*ledger.Invoice, *ledger.Posting) {
	h.t.Helper()
	inv, posting, err := h.svc.Posting.RecordInvoicePayment(h.ctx, ledger.InvoicePaymentReceived{
		TenantID:  h.tenant,
		PostedBy:  "clerk",
		InvoiceID: invoiceID,
		AccountID: h.account(cashCode).ID,
		Amount:    amt(amount),
		Date:      date,
	})
	require.NoError(h.t, err)
	return inv, posting
}

// postJournal creates and posts a two-line journal entry.
func (h *harness) postJournal(date time.Time, debitCode, creditCode, amount string) *ledger.JournalEntry {
	h.t.Helper()
	je, err := h.svc.Journals.Create(h.ctx, ledger.NewJournalEntry{
		TenantID:    h.tenant,
		CreatedBy:   "accountant",
		Date:        date,
		Description: "manual entry",
		Lines: []ledger.JournalLine{
			{AccountID: h.account(debitCode).ID, Side: ledger.SideDebit, Amount: amt(amount)},
			{AccountID: h.account(creditCode).ID, Side: ledger.SideCredit, Amount: amt(amount)},
		},
	})
	require.NoError(h.t, err)
	je, _, err = h.svc.Journals.Post(h.ctx, h.tenant, "accountant", je.ID)
	require.NoError(h.t, err)
	return je
}

// entryFor returns the ledger row of posting that hits code.
func (h *harness) entryFor(p *ledger.Posting, code string) *ledger.LedgerEntry {
	h.t.Helper()
	id := h.account(code).ID
	for _, e := range p.Entries {
		if e.AccountID == id {
			return e
		}
	}
	h.t.Fatalf("posting %s has no line for %s", p.TransactionID, code)
	return nil
}

func (h *harness) actions() []string {
	var out []string
	for _, ev := range h.chain.Events() {
		out = append(out, ev.Action)
	}
	return out
}
