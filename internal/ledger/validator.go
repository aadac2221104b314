package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Validator checks ledger invariants against what is stored.
type Validator struct {
	store Store
	opts  Options
}

// NewValidator creates a new validator instance
func NewValidator(store Store, opts Options) *Validator {
	return &Validator{store: store, opts: opts.withDefaults()}
}

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	IsValid        bool           `json:"isValid"`
	ValidationType string         `json:"validationType"`
	Message        string         `json:"message"`
	AccountID      string         `json:"accountId,omitempty"`
	TransactionID  string         `json:"transactionId,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Details        map[string]any `json:"details,omitempty"`
}

// ValidateTenant runs every check for one tenant. Only failures and one
// summary result per check type are returned.
func (v *Validator) ValidateTenant(ctx context.Context, tenantID string) ([]*ValidationResult, error) {
	var results []*ValidationResult
	err := v.store.ReadTx(ctx, func(tx Tx) error {
		doubleEntry, err := v.validateDoubleEntry(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		balances, err := v.validateBalanceConsistency(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		accounts, err := accountIndex(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		tb, err := trialBalance(ctx, tx, tenantID, v.opts.Now(), accounts)
		if err != nil {
			return err
		}
		results = append(results, doubleEntry...)
		results = append(results, balances...)
		results = append(results, v.trialBalanceResult(tb))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("validate tenant %s: %w", tenantID, err)
	}
	return results, nil
}

// Valid reports whether every result passed.
func Valid(results []*ValidationResult) bool {
	for _, r := range results {
		if !r.IsValid {
			return false
		}
	}
	return true
}

// validateDoubleEntry checks that every committed transaction balances.
func (v *Validator) validateDoubleEntry(ctx context.Context, tx Tx, tenantID string) ([]*ValidationResult, error) {
	totals, err := tx.TotalsByTransaction(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []*ValidationResult
	for _, id := range ids {
		t := totals[id]
		if withinTolerance(t.Debit, t.Credit) {
			continue
		}
		results = append(results, &ValidationResult{
			IsValid:        false,
			ValidationType: "double_entry_constraint",
			Message:        fmt.Sprintf("double-entry violation: debits (%s) != credits (%s)", t.Debit.StringFixed(2), t.Credit.StringFixed(2)),
			TransactionID:  id,
			Timestamp:      v.opts.Now(),
			Details: map[string]any{
				"totalDebits":  t.Debit.StringFixed(2),
				"totalCredits": t.Credit.StringFixed(2),
				"difference":   t.Net().StringFixed(2),
			},
		})
	}
	if len(results) == 0 {
		results = append(results, &ValidationResult{
			IsValid:        true,
			ValidationType: "double_entry_constraint",
			Message:        fmt.Sprintf("%d transactions balanced", len(ids)),
			Timestamp:      v.opts.Now(),
		})
	}
	return results, nil
}

// validateBalanceConsistency compares each cached balance with a full
// recompute from the ledger.
func (v *Validator) validateBalanceConsistency(ctx context.Context, tx Tx, tenantID string) ([]*ValidationResult, error) {
	accounts, err := tx.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var results []*ValidationResult
	for _, acct := range accounts {
		totals, err := tx.SumAccount(ctx, tenantID, acct.ID)
		if err != nil {
			return nil, err
		}
		expected := totals.Net()
		if acct.Balance.Equal(expected) {
			continue
		}
		results = append(results, &ValidationResult{
			IsValid:        false,
			ValidationType: "balance_consistency",
			Message:        fmt.Sprintf("balance drift on %s: cached %s, ledger %s", acct.Code, acct.Balance.StringFixed(2), expected.StringFixed(2)),
			AccountID:      acct.ID,
			Timestamp:      v.opts.Now(),
			Details: map[string]any{
				"cachedBalance":   acct.Balance.StringFixed(2),
				"expectedBalance": expected.StringFixed(2),
				"driftAmount":     acct.Balance.Sub(expected).StringFixed(2),
			},
		})
	}
	if len(results) == 0 {
		results = append(results, &ValidationResult{
			IsValid:        true,
			ValidationType: "balance_consistency",
			Message:        fmt.Sprintf("%d account balances match the ledger", len(accounts)),
			Timestamp:      v.opts.Now(),
		})
	}
	return results, nil
}

func (v *Validator) trialBalanceResult(tb *TrialBalance) *ValidationResult {
	result := &ValidationResult{
		IsValid:        tb.IsBalanced,
		ValidationType: "trial_balance",
		Timestamp:      v.opts.Now(),
		Details: map[string]any{
			"totalDebit":  tb.TotalDebit.StringFixed(2),
			"totalCredit": tb.TotalCredit.StringFixed(2),
		},
	}
	if tb.IsBalanced {
		result.Message = fmt.Sprintf("trial balance agrees at %s", tb.TotalDebit.StringFixed(2))
	} else {
		result.Message = fmt.Sprintf("trial balance off by %s", tb.TotalDebit.Sub(tb.TotalCredit).StringFixed(2))
	}
	return result
}
