package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllowedTransitions defines valid journal entry state transitions
func AllowedTransitions() map[JournalStatus][]JournalStatus {
	return map[JournalStatus][]JournalStatus{
		JournalDraft:  {JournalPosted, JournalVoid},
		JournalPosted: {JournalVoid},
		JournalVoid:   {}, // terminal
	}
}

// IsValidTransition checks if a state transition is allowed
func IsValidTransition(from, to JournalStatus) bool {
	for _, allowed := range AllowedTransitions()[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// JournalService manages manual journal entries. Posting and voiding go
// through the PostingEngine so ledger rows and balances stay consistent.
type JournalService struct {
	store  Store
	engine *PostingEngine
	opts   Options
}

// NewJournalService creates a journal service that posts through engine.
func NewJournalService(store Store, engine *PostingEngine, opts Options) *JournalService {
	return &JournalService{store: store, engine: engine, opts: opts.withDefaults()}
}

// NewJournalEntry is the input to Create.
type NewJournalEntry struct {
	TenantID    string        `json:"tenantId"`
	CreatedBy   string        `json:"createdBy"`
	Date        time.Time     `json:"date"`
	Description string        `json:"description"`
	Reference   string        `json:"reference,omitempty"`
	Lines       []JournalLine `json:"lines"`
}

func (n NewJournalEntry) validate() error {
	if err := requireFields(map[string]string{"tenantId": n.TenantID, "createdBy": n.CreatedBy, "description": n.Description}); err != nil {
		return err
	}
	if n.Date.IsZero() {
		return validationf("journal entry date is required")
	}
	if len(n.Lines) < 2 {
		return validationf("journal entry needs at least two lines")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for i, l := range n.Lines {
		if l.AccountID == "" {
			return validationf("line %d: account is required", i+1)
		}
		if !l.Amount.IsPositive() || !hasAtMostTwoDecimals(l.Amount) {
			return validationf("line %d: amount must be positive with at most two decimals", i+1)
		}
		switch l.Side {
		case SideDebit:
			debit = debit.Add(l.Amount)
		case SideCredit:
			credit = credit.Add(l.Amount)
		default:
			return validationf("line %d: side must be DEBIT or CREDIT", i+1)
		}
	}
	if !withinTolerance(debit, credit) {
		return fmt.Errorf("journal entry debits %s, credits %s: %w", debit.StringFixed(2), credit.StringFixed(2), ErrUnbalancedTransaction)
	}
	return nil
}

// Create stores a balanced DRAFT journal entry numbered JE-00001 onward per
// tenant.
func (s *JournalService) Create(ctx context.Context, n NewJournalEntry) (*JournalEntry, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	var je *JournalEntry
	err := s.store.InTx(ctx, func(tx Tx) error {
		for _, l := range n.Lines {
			if _, err := tx.GetAccount(ctx, n.TenantID, l.AccountID); err != nil {
				return err
			}
		}
		seq, err := tx.LastJournalSequence(ctx, n.TenantID)
		if err != nil {
			return err
		}
		je = &JournalEntry{
			ID:          uuid.New().String(),
			TenantID:    n.TenantID,
			EntryNumber: fmt.Sprintf("JE-%05d", seq+1),
			Date:        Day(n.Date),
			Description: n.Description,
			Reference:   n.Reference,
			Status:      JournalDraft,
			CreatedBy:   n.CreatedBy,
			CreatedAt:   s.opts.Now().UTC(),
			Lines:       n.Lines,
		}
		return tx.InsertJournalEntry(ctx, je)
	})
	if err != nil {
		return nil, fmt.Errorf("create journal entry: %w", err)
	}
	s.opts.Logger.Info("journal_entry_created", slog.String("tenant_id", je.TenantID), slog.String("entry_number", je.EntryNumber))
	return je, nil
}

// Get returns one journal entry with its lines.
func (s *JournalService) Get(ctx context.Context, tenantID, id string) (*JournalEntry, error) {
	var je *JournalEntry
	err := s.store.ReadTx(ctx, func(tx Tx) error {
		var err error
		je, err = tx.GetJournalEntry(ctx, tenantID, id)
		return err
	})
	return je, err
}

// List returns the tenant's journal entries, newest first.
func (s *JournalService) List(ctx context.Context, tenantID string) ([]*JournalEntry, error) {
	var entries []*JournalEntry
	err := s.store.ReadTx(ctx, func(tx Tx) error {
		var err error
		entries, err = tx.ListJournalEntries(ctx, tenantID)
		return err
	})
	return entries, err
}

// Post commits a DRAFT entry's lines to the ledger.
func (s *JournalService) Post(ctx context.Context, tenantID, actor, id string) (*JournalEntry, *Posting, error) {
	var (
		je      *JournalEntry
		posting *Posting
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		je, err = s.transition(ctx, tx, tenantID, id, JournalPosted)
		if err != nil {
			return err
		}
		txn := Transaction{
			TenantID:    tenantID,
			PostedBy:    actor,
			Date:        je.Date,
			Reference:   je.Reference,
			Description: je.Description,
			SourceType:  SourceJournalEntry,
			SourceID:    je.ID,
		}
		if txn.Reference == "" {
			txn.Reference = je.EntryNumber
		}
		for _, l := range je.Lines {
			line := Line{AccountID: l.AccountID, Description: l.Description}
			if l.Side == SideDebit {
				line.Debit = l.Amount
			} else {
				line.Credit = l.Amount
			}
			txn.Lines = append(txn.Lines, line)
		}
		if posting, err = s.engine.apply(ctx, tx, txn); err != nil {
			return err
		}
		now := s.opts.Now().UTC()
		je.Status = JournalPosted
		je.PostedAt = &now
		return tx.UpdateJournalStatus(ctx, je)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("post journal entry %s: %w", id, err)
	}
	s.engine.committed(ctx, posting)
	return je, posting, nil
}

// Void marks an entry VOID. A POSTED entry is reversed in the ledger in the
// same transaction; its original rows are kept.
func (s *JournalService) Void(ctx context.Context, tenantID, actor, id string) (*JournalEntry, *Posting, error) {
	var (
		je      *JournalEntry
		posting *Posting
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		je, err = s.transition(ctx, tx, tenantID, id, JournalVoid)
		if err != nil {
			return err
		}
		if je.Status == JournalPosted {
			posting, err = s.engine.reverse(ctx, tx, ReversalRequest{
				TenantID:   tenantID,
				PostedBy:   actor,
				SourceType: SourceJournalEntry,
				SourceID:   je.ID,
				Date:       s.opts.Now(),
			})
			if err != nil {
				return err
			}
		}
		now := s.opts.Now().UTC()
		je.Status = JournalVoid
		je.VoidedAt = &now
		return tx.UpdateJournalStatus(ctx, je)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("void journal entry %s: %w", id, err)
	}
	s.engine.committed(ctx, posting)
	s.opts.Logger.Info("journal_entry_voided", slog.String("tenant_id", tenantID), slog.String("entry_number", je.EntryNumber))
	return je, posting, nil
}

// Delete removes a DRAFT entry. Posted entries can only be voided.
func (s *JournalService) Delete(ctx context.Context, tenantID, id string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		je, err := tx.GetJournalEntry(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if je.Status != JournalDraft {
			return fmt.Errorf("journal entry %s is %s: %w", je.EntryNumber, je.Status, ErrInvalidDocumentState)
		}
		return tx.DeleteJournalEntry(ctx, tenantID, id)
	})
	if err != nil {
		return fmt.Errorf("delete journal entry %s: %w", id, err)
	}
	return nil
}

func (s *JournalService) transition(ctx context.Context, tx Tx, tenantID, id string, to JournalStatus) (*JournalEntry, error) {
	je, err := tx.GetJournalEntry(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !IsValidTransition(je.Status, to) {
		return nil, &InvalidStateTransitionError{From: je.Status, To: to, EntryID: je.ID}
	}
	return je, nil
}
