package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/gl-core/internal/ledger"
)

type idRequest struct {
	ID string `json:"id"`
}

func (r idRequest) require() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("id is required: %w", ledger.ErrValidation)
	}
	return nil
}

func decodeID(req *structpb.Struct) (string, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return "", err
	}
	return in.ID, in.require()
}

type asOfRequest struct {
	AsOf time.Time `json:"asOf"`
}

type periodRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r periodRequest) require() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("start and end are required: %w", ledger.ErrValidation)
	}
	return nil
}

func orToday(t time.Time) time.Time {
	if t.IsZero() {
		return ledger.Day(time.Now())
	}
	return t
}

// Accounts

func (s *Server) seedDefaults(ctx context.Context, c caller, _ *structpb.Struct) (any, error) {
	created, err := s.svc.Accounts.SeedDefaults(ctx, c.tenantID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": created}, nil
}

func (s *Server) createAccount(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in ledger.NewAccount
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	return s.svc.Accounts.Create(ctx, c.tenantID, c.actor, in)
}

func (s *Server) getAccount(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	switch {
	case in.ID != "":
		return s.svc.Accounts.Get(ctx, c.tenantID, in.ID)
	case in.Code != "":
		return s.svc.Accounts.GetByCode(ctx, c.tenantID, in.Code)
	default:
		return nil, fmt.Errorf("either id or code is required: %w", ledger.ErrValidation)
	}
}

func (s *Server) listAccounts(ctx context.Context, c caller, _ *structpb.Struct) (any, error) {
	accounts, err := s.svc.Accounts.List(ctx, c.tenantID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"accounts": accounts}, nil
}

func (s *Server) updateAccount(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in struct {
		ID    string         `json:"id"`
		Patch map[string]any `json:"patch"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := (idRequest{ID: in.ID}).require(); err != nil {
		return nil, err
	}
	patch, err := ledger.ParseAccountPatch(in.Patch)
	if err != nil {
		return nil, err
	}
	return s.svc.Accounts.Update(ctx, c.tenantID, c.actor, in.ID, patch)
}

func (s *Server) deleteAccount(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Accounts.Delete(ctx, c.tenantID, c.actor, id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": id}, nil
}

func (s *Server) accountTree(ctx context.Context, c caller, _ *structpb.Struct) (any, error) {
	roots, err := s.svc.Accounts.Hierarchy(ctx, c.tenantID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"roots": roots}, nil
}

// Posting

type postingResponse struct {
	Document any             `json:"document,omitempty"`
	Posting  *ledger.Posting `json:"posting,omitempty"`
}

func (s *Server) postTransaction(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var txn ledger.Transaction
	if err := decode(req, &txn); err != nil {
		return nil, err
	}
	txn.TenantID, txn.PostedBy = c.tenantID, c.actor
	posting, err := s.svc.Posting.Post(ctx, txn)
	if err != nil {
		return nil, err
	}
	return postingResponse{Posting: posting}, nil
}

func (s *Server) reverseTransaction(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in ledger.ReversalRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	in.TenantID, in.PostedBy = c.tenantID, c.actor
	in.Date = orToday(in.Date)
	posting, err := s.svc.Posting.Reverse(ctx, in)
	if err != nil {
		return nil, err
	}
	return postingResponse{Posting: posting}, nil
}

func (s *Server) issueInvoice(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var ev ledger.InvoiceIssued
	if err := decode(req, &ev); err != nil {
		return nil, err
	}
	ev.TenantID, ev.PostedBy = c.tenantID, c.actor
	inv, posting, err := s.svc.Posting.IssueInvoice(ctx, ev)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: inv, Posting: posting}, nil
}

func (s *Server) registerDraftInvoice(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var inv ledger.Invoice
	if err := decode(req, &inv); err != nil {
		return nil, err
	}
	inv.TenantID = c.tenantID
	draft, err := s.svc.Posting.RegisterDraftInvoice(ctx, inv)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: draft}, nil
}

func (s *Server) recordInvoicePayment(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var ev ledger.InvoicePaymentReceived
	if err := decode(req, &ev); err != nil {
		return nil, err
	}
	ev.TenantID, ev.PostedBy = c.tenantID, c.actor
	inv, posting, err := s.svc.Posting.RecordInvoicePayment(ctx, ev)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: inv, Posting: posting}, nil
}

func (s *Server) cancelInvoice(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in struct {
		InvoiceID string    `json:"invoiceId"`
		Date      time.Time `json:"date"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	inv, posting, err := s.svc.Posting.CancelInvoice(ctx, c.tenantID, c.actor, in.InvoiceID, orToday(in.Date))
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: inv, Posting: posting}, nil
}

func (s *Server) recordExpense(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var ev ledger.ExpenseRecorded
	if err := decode(req, &ev); err != nil {
		return nil, err
	}
	ev.TenantID, ev.PostedBy = c.tenantID, c.actor
	exp, posting, err := s.svc.Posting.RecordExpense(ctx, ev)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: exp, Posting: posting}, nil
}

func (s *Server) postVendorBill(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var ev ledger.VendorBillPosted
	if err := decode(req, &ev); err != nil {
		return nil, err
	}
	ev.TenantID, ev.PostedBy = c.tenantID, c.actor
	bill, posting, err := s.svc.Posting.PostVendorBill(ctx, ev)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: bill, Posting: posting}, nil
}

func (s *Server) payVendorBill(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var ev ledger.VendorBillPaid
	if err := decode(req, &ev); err != nil {
		return nil, err
	}
	ev.TenantID, ev.PostedBy = c.tenantID, c.actor
	bill, posting, err := s.svc.Posting.PayVendorBill(ctx, ev)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: bill, Posting: posting}, nil
}

// Journal entries

func (s *Server) createJournalEntry(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var n ledger.NewJournalEntry
	if err := decode(req, &n); err != nil {
		return nil, err
	}
	n.TenantID, n.CreatedBy = c.tenantID, c.actor
	return s.svc.Journals.Create(ctx, n)
}

func (s *Server) getJournalEntry(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	return s.svc.Journals.Get(ctx, c.tenantID, id)
}

func (s *Server) listJournalEntries(ctx context.Context, c caller, _ *structpb.Struct) (any, error) {
	entries, err := s.svc.Journals.List(ctx, c.tenantID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"journalEntries": entries}, nil
}

func (s *Server) postJournalEntry(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	je, posting, err := s.svc.Journals.Post(ctx, c.tenantID, c.actor, id)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: je, Posting: posting}, nil
}

func (s *Server) voidJournalEntry(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	je, posting, err := s.svc.Journals.Void(ctx, c.tenantID, c.actor, id)
	if err != nil {
		return nil, err
	}
	return postingResponse{Document: je, Posting: posting}, nil
}

func (s *Server) deleteJournalEntry(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Journals.Delete(ctx, c.tenantID, id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": id}, nil
}

// Reconciliation

func (s *Server) importBankTransactions(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in struct {
		AccountID string                     `json:"accountId"`
		Lines     []ledger.BankStatementLine `json:"lines"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	imported, err := s.svc.Reconciler.Import(ctx, c.tenantID, c.actor, in.AccountID, in.Lines)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bankTransactions": imported}, nil
}

func (s *Server) matchBankTransaction(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in struct {
		BankTransactionID string `json:"bankTransactionId"`
		EntryID           string `json:"entryId"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	return s.svc.Reconciler.Match(ctx, c.tenantID, c.actor, in.BankTransactionID, in.EntryID)
}

func (s *Server) unmatchBankTransaction(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	id, err := decodeID(req)
	if err != nil {
		return nil, err
	}
	return s.svc.Reconciler.Unmatch(ctx, c.tenantID, c.actor, id)
}

type reconciliationResponse struct {
	*ledger.ReconciliationView
	Difference *decimal.Decimal `json:"difference,omitempty"`
}

func (s *Server) reconciliationView(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in struct {
		AccountID        string           `json:"accountId"`
		StatementBalance *decimal.Decimal `json:"statementBalance"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	view, err := s.svc.Reconciler.View(ctx, c.tenantID, in.AccountID)
	if err != nil {
		return nil, err
	}
	resp := reconciliationResponse{ReconciliationView: view}
	if in.StatementBalance != nil {
		diff := view.Difference(*in.StatementBalance)
		resp.Difference = &diff
	}
	return resp, nil
}

// Reports

func (s *Server) trialBalance(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in asOfRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	return s.svc.Reports.TrialBalance(ctx, c.tenantID, orToday(in.AsOf))
}

func (s *Server) profitAndLoss(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in periodRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := in.require(); err != nil {
		return nil, err
	}
	return s.svc.Reports.ProfitAndLoss(ctx, c.tenantID, in.Start, in.End)
}

func (s *Server) balanceSheet(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in asOfRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	return s.svc.Reports.BalanceSheet(ctx, c.tenantID, orToday(in.AsOf))
}

func (s *Server) cashFlowStatement(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in periodRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	// A missing start falls back to the fiscal year start.
	return s.svc.Reports.CashFlowStatement(ctx, c.tenantID, in.Start, orToday(in.End))
}

func (s *Server) vatReturn(ctx context.Context, c caller, req *structpb.Struct) (any, error) {
	var in periodRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := in.require(); err != nil {
		return nil, err
	}
	return s.svc.Reports.VATReturn(ctx, c.tenantID, in.Start, in.End)
}

func (s *Server) validateLedger(ctx context.Context, c caller, _ *structpb.Struct) (any, error) {
	results, err := s.svc.Validator.ValidateTenant(ctx, c.tenantID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"valid": ledger.Valid(results), "results": results}, nil
}
