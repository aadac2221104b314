package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every error returned by this package unwraps to exactly one of
// these, so callers can classify with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvariant         = errors.New("invariant violation")
	ErrDependencyMissing = errors.New("dependency missing")
	// ErrContention is returned when a write transaction kept losing
	// serialization races after all retries.
	ErrContention = errors.New("storage contention")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Account directory errors.
var (
	ErrDuplicateCode        = newKind(ErrConflict, "duplicate account code")
	ErrParentNotFound       = newKind(ErrNotFound, "parent account not found")
	ErrParentCycle          = newKind(ErrValidation, "parent would create a cycle")
	ErrAccountNotFound      = newKind(ErrNotFound, "account not found")
	ErrInactiveAccount      = newKind(ErrValidation, "account is not active")
	ErrSystemAccount        = newKind(ErrConflict, "system accounts cannot be deleted")
	ErrHasChildren          = newKind(ErrConflict, "account has child accounts")
	ErrNonZeroBalance       = newKind(ErrConflict, "account has a non-zero balance")
	ErrHasEntries           = newKind(ErrConflict, "account has ledger entries")
	ErrImmutableSystemField = newKind(ErrConflict, "field is immutable on system accounts")
)

// Posting errors.
var (
	ErrUnbalancedTransaction  = newKind(ErrConflict, "debits do not equal credits")
	ErrMissingRequiredAccount = newKind(ErrDependencyMissing, "required account is not provisioned")
	ErrEntryNotFound          = newKind(ErrNotFound, "ledger entry not found")
	ErrAlreadyReversed        = newKind(ErrConflict, "source has already been reversed")
	ErrDocumentNotFound       = newKind(ErrNotFound, "document not found")
	ErrAlreadyPosted          = newKind(ErrConflict, "document has already been posted")
	ErrInvalidDocumentState   = newKind(ErrConflict, "document state does not allow this operation")
	ErrJournalEntryNotFound   = newKind(ErrNotFound, "journal entry not found")
)

// Reconciliation errors.
var (
	ErrBankTransactionNotFound = newKind(ErrNotFound, "bank transaction not found")
	ErrTenantMismatch          = newKind(ErrNotFound, "bank transaction does not belong to tenant")
	ErrAccountMismatch         = newKind(ErrValidation, "ledger entry belongs to a different account")
	ErrAlreadyMatched          = newKind(ErrConflict, "ledger entry is already matched")
	ErrAmountMismatch          = newKind(ErrConflict, "amount mismatch")
)

// validationf builds an ErrValidation with a formatted message.
func validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// ImmutableFieldError names a field that cannot change on a system account.
type ImmutableFieldError struct {
	Field     string
	AccountID string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("cannot change %s of system account %s", e.Field, e.AccountID)
}

func (e *ImmutableFieldError) Unwrap() error { return ErrImmutableSystemField }

// InvalidStateTransitionError represents an invalid journal entry state transition
type InvalidStateTransitionError struct {
	From    JournalStatus
	To      JournalStatus
	EntryID string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s for journal entry %s", e.From, e.To, e.EntryID)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrConflict }

// AmountMismatchError is returned by Match when the bank amount and the
// relevant side of the ledger entry disagree.
type AmountMismatchError struct {
	Bank   decimal.Decimal
	Ledger decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: bank %s vs ledger %s", e.Bank.StringFixed(2), e.Ledger.StringFixed(2))
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// InvariantError reports a statement whose accounting identity does not hold.
type InvariantError struct {
	Report     string
	Difference decimal.Decimal
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s identity violated: difference %s", e.Report, e.Difference.StringFixed(2))
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }
