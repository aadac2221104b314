package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/gl-core/pkg/audit"
)

// Line is one line of a Transaction. Exactly one of Debit and Credit must be
// non-zero.
type Line struct {
	AccountID   string          `json:"accountId"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	// SourceID overrides the transaction's source id for this line.
	SourceID string `json:"sourceId,omitempty"`
}

// Transaction is a balanced set of lines committed to the ledger together.
type Transaction struct {
	TenantID    string     `json:"tenantId"`
	PostedBy    string     `json:"postedBy"`
	Date        time.Time  `json:"date"`
	Reference   string     `json:"reference,omitempty"`
	Description string     `json:"description"`
	SourceType  SourceType `json:"sourceType"`
	SourceID    string     `json:"sourceId"`
	Lines       []Line     `json:"lines"`
}

// Totals returns the debit and credit sums of the transaction's lines.
func (t Transaction) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range t.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Validate checks the transaction without touching storage.
func (t Transaction) Validate() error {
	var missing []string
	if t.TenantID == "" {
		missing = append(missing, "tenantId")
	}
	if t.PostedBy == "" {
		missing = append(missing, "postedBy")
	}
	if t.Date.IsZero() {
		missing = append(missing, "date")
	}
	if t.SourceID == "" {
		missing = append(missing, "sourceId")
	}
	if len(missing) > 0 {
		return validationf("transaction is missing required fields: %v", missing)
	}
	if !t.SourceType.Valid() {
		return validationf("invalid source type %q", t.SourceType)
	}
	if len(t.Lines) < 2 {
		return validationf("transaction needs at least two lines, got %d", len(t.Lines))
	}
	for i, l := range t.Lines {
		if l.AccountID == "" {
			return validationf("line %d: account is required", i+1)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return validationf("line %d: amounts must not be negative", i+1)
		}
		if !l.Debit.IsZero() && !l.Credit.IsZero() {
			return validationf("line %d: a line cannot carry both a debit and a credit", i+1)
		}
		if l.Debit.IsZero() && l.Credit.IsZero() {
			return validationf("line %d: a line needs a debit or a credit", i+1)
		}
		if !hasAtMostTwoDecimals(l.Debit) || !hasAtMostTwoDecimals(l.Credit) {
			return validationf("line %d: amounts are limited to two decimal places", i+1)
		}
	}
	debit, credit := t.Totals()
	if !withinTolerance(debit, credit) {
		return fmt.Errorf("debits %s, credits %s: %w", debit.StringFixed(2), credit.StringFixed(2), ErrUnbalancedTransaction)
	}
	return nil
}

// Posting is the result of a committed Transaction.
type Posting struct {
	TransactionID string          `json:"transactionId"`
	TenantID      string          `json:"tenantId"`
	PostedBy      string          `json:"postedBy"`
	SourceType    SourceType      `json:"sourceType"`
	SourceID      string          `json:"sourceId"`
	Entries       []*LedgerEntry  `json:"entries"`
	TotalDebit    decimal.Decimal `json:"totalDebit"`
	TotalCredit   decimal.Decimal `json:"totalCredit"`
}

// PostingEngine validates and commits transactions and keeps cached account
// balances equal to the ledger.
type PostingEngine struct {
	store Store
	opts  Options
}

// NewPostingEngine creates a posting engine backed by store.
func NewPostingEngine(store Store, opts Options) *PostingEngine {
	return &PostingEngine{store: store, opts: opts.withDefaults()}
}

// Post commits txn atomically: either every line is written and every
// touched balance recomputed, or nothing is.
func (e *PostingEngine) Post(ctx context.Context, txn Transaction) (*Posting, error) {
	var posting *Posting
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		posting, err = e.apply(ctx, tx, txn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("post %s %s: %w", txn.SourceType, txn.SourceID, err)
	}
	e.committed(ctx, posting)
	return posting, nil
}

// apply writes txn inside an open store transaction. Callers that compose
// several postings with document updates share one tx through it.
func (e *PostingEngine) apply(ctx context.Context, tx Tx, txn Transaction) (*Posting, error) {
	if err := txn.Validate(); err != nil {
		return nil, err
	}
	accountIDs := distinctAccounts(txn.Lines)
	if err := tx.LockAccounts(ctx, txn.TenantID, accountIDs); err != nil {
		return nil, err
	}
	for _, id := range accountIDs {
		acct, err := tx.GetAccount(ctx, txn.TenantID, id)
		if err != nil {
			return nil, err
		}
		if !acct.IsActive {
			return nil, fmt.Errorf("account %s: %w", acct.Code, ErrInactiveAccount)
		}
	}

	now := e.opts.Now().UTC()
	transactionID := uuid.New().String()
	entries := make([]*LedgerEntry, 0, len(txn.Lines))
	for _, l := range txn.Lines {
		desc := l.Description
		if desc == "" {
			desc = txn.Description
		}
		sourceID := l.SourceID
		if sourceID == "" {
			sourceID = txn.SourceID
		}
		entries = append(entries, &LedgerEntry{
			ID:            uuid.New().String(),
			TenantID:      txn.TenantID,
			TransactionID: transactionID,
			AccountID:     l.AccountID,
			Debit:         l.Debit,
			Credit:        l.Credit,
			Date:          Day(txn.Date),
			Description:   desc,
			Reference:     txn.Reference,
			SourceType:    txn.SourceType,
			SourceID:      sourceID,
			PostedBy:      txn.PostedBy,
			CreatedAt:     now,
		})
	}
	if err := tx.InsertEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("insert ledger entries: %w", err)
	}
	if err := recomputeBalances(ctx, tx, txn.TenantID, accountIDs); err != nil {
		return nil, err
	}

	debit, credit := txn.Totals()
	return &Posting{
		TransactionID: transactionID,
		TenantID:      txn.TenantID,
		PostedBy:      txn.PostedBy,
		SourceType:    txn.SourceType,
		SourceID:      txn.SourceID,
		Entries:       entries,
		TotalDebit:    debit,
		TotalCredit:   credit,
	}, nil
}

// recomputeBalances sets each account's cached balance from a full sum of
// its ledger rows.
func recomputeBalances(ctx context.Context, tx Tx, tenantID string, accountIDs []string) error {
	for _, id := range accountIDs {
		totals, err := tx.SumAccount(ctx, tenantID, id)
		if err != nil {
			return fmt.Errorf("recompute balance of %s: %w", id, err)
		}
		if err := tx.SetAccountBalance(ctx, tenantID, id, totals.Net()); err != nil {
			return fmt.Errorf("store balance of %s: %w", id, err)
		}
	}
	return nil
}

func distinctAccounts(lines []Line) []string {
	seen := make(map[string]bool, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			ids = append(ids, l.AccountID)
		}
	}
	// A stable lock order keeps concurrent posters from deadlocking.
	sort.Strings(ids)
	return ids
}

// committed logs and audits postings after their transaction committed.
func (e *PostingEngine) committed(ctx context.Context, postings ...*Posting) {
	for _, p := range postings {
		if p == nil {
			continue
		}
		e.opts.Logger.Info("ledger_posted",
			slog.String("tenant_id", p.TenantID),
			slog.String("transaction_id", p.TransactionID),
			slog.String("source_type", string(p.SourceType)),
			slog.String("source_id", p.SourceID),
			slog.Int("lines", len(p.Entries)),
			slog.String("total", p.TotalDebit.StringFixed(2)),
		)
		recordAudit(ctx, e.opts, audit.Event{
			Action:     "ledger.posted",
			TenantID:   p.TenantID,
			Actor:      p.PostedBy,
			EntityType: "transaction",
			EntityID:   p.TransactionID,
			Details: map[string]any{
				"sourceType":  p.SourceType,
				"sourceId":    p.SourceID,
				"lines":       len(p.Entries),
				"totalDebit":  p.TotalDebit.StringFixed(2),
				"totalCredit": p.TotalCredit.StringFixed(2),
			},
		})
	}
}

// ReversalRequest identifies the postings to reverse.
type ReversalRequest struct {
	TenantID   string     `json:"tenantId"`
	PostedBy   string     `json:"postedBy"`
	SourceType SourceType `json:"sourceType"`
	SourceID   string     `json:"sourceId"`
	Date       time.Time  `json:"date"`
}

// Reverse negates every ledger row of (SourceType, SourceID) with swapped
// debit and credit lines of source type MANUAL. Each reversing row points at
// the original entry through its source id.
func (e *PostingEngine) Reverse(ctx context.Context, req ReversalRequest) (*Posting, error) {
	var posting *Posting
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		posting, err = e.reverse(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reverse %s %s: %w", req.SourceType, req.SourceID, err)
	}
	e.committed(ctx, posting)
	return posting, nil
}

func (e *PostingEngine) reverse(ctx context.Context, tx Tx, req ReversalRequest) (*Posting, error) {
	if req.TenantID == "" || req.SourceID == "" {
		return nil, validationf("reversal requires tenant and source id")
	}
	if !req.SourceType.Valid() {
		return nil, validationf("invalid source type %q", req.SourceType)
	}
	originals, err := tx.ListEntries(ctx, EntryFilter{
		TenantID:   req.TenantID,
		SourceType: req.SourceType,
		SourceIDs:  []string{req.SourceID},
	})
	if err != nil {
		return nil, err
	}
	if len(originals) == 0 {
		return nil, fmt.Errorf("no ledger entries for %s %s: %w", req.SourceType, req.SourceID, ErrEntryNotFound)
	}

	ids := make([]string, len(originals))
	for i, o := range originals {
		ids[i] = o.ID
	}
	existing, err := tx.ListEntries(ctx, EntryFilter{
		TenantID:   req.TenantID,
		SourceType: SourceManual,
		SourceIDs:  ids,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyReversed
	}

	date := req.Date
	if date.IsZero() {
		date = e.opts.Now()
	}
	txn := Transaction{
		TenantID:    req.TenantID,
		PostedBy:    req.PostedBy,
		Date:        date,
		Reference:   originals[0].Reference,
		Description: "REVERSAL: " + originals[0].Description,
		SourceType:  SourceManual,
		SourceID:    req.SourceID,
	}
	for _, o := range originals {
		txn.Lines = append(txn.Lines, Line{
			AccountID:   o.AccountID,
			Debit:       o.Credit,
			Credit:      o.Debit,
			Description: "REVERSAL: " + o.Description,
			SourceID:    o.ID,
		})
	}
	return e.apply(ctx, tx, txn)
}
