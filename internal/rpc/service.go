package rpc

import (
	"context"
	"log/slog"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/gl-core/internal/ledger"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gl.v1.GeneralLedger"

type method func(s *Server, ctx context.Context, c caller, req *structpb.Struct) (any, error)

var methods = map[string]method{
	"SeedDefaults":  (*Server).seedDefaults,
	"CreateAccount": (*Server).createAccount,
	"GetAccount":    (*Server).getAccount,
	"ListAccounts":  (*Server).listAccounts,
	"UpdateAccount": (*Server).updateAccount,
	"DeleteAccount": (*Server).deleteAccount,
	"AccountTree":   (*Server).accountTree,

	"PostTransaction":      (*Server).postTransaction,
	"ReverseTransaction":   (*Server).reverseTransaction,
	"IssueInvoice":         (*Server).issueInvoice,
	"RegisterDraftInvoice": (*Server).registerDraftInvoice,
	"RecordInvoicePayment": (*Server).recordInvoicePayment,
	"CancelInvoice":        (*Server).cancelInvoice,
	"RecordExpense":        (*Server).recordExpense,
	"PostVendorBill":       (*Server).postVendorBill,
	"PayVendorBill":        (*Server).payVendorBill,

	"CreateJournalEntry": (*Server).createJournalEntry,
	"GetJournalEntry":    (*Server).getJournalEntry,
	"ListJournalEntries": (*Server).listJournalEntries,
	"PostJournalEntry":   (*Server).postJournalEntry,
	"VoidJournalEntry":   (*Server).voidJournalEntry,
	"DeleteJournalEntry": (*Server).deleteJournalEntry,

	"ImportBankTransactions": (*Server).importBankTransactions,
	"MatchBankTransaction":   (*Server).matchBankTransaction,
	"UnmatchBankTransaction": (*Server).unmatchBankTransaction,
	"ReconciliationView":     (*Server).reconciliationView,

	"TrialBalance":      (*Server).trialBalance,
	"ProfitAndLoss":     (*Server).profitAndLoss,
	"BalanceSheet":      (*Server).balanceSheet,
	"CashFlowStatement": (*Server).cashFlowStatement,
	"VATReturn":         (*Server).vatReturn,
	"ValidateLedger":    (*Server).validateLedger,
}

// GeneralLedgerServer is the handler type of the service descriptor.
type GeneralLedgerServer interface {
	invoke(ctx context.Context, name string, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes gl.v1.GeneralLedger. Every method takes and returns
// a google.protobuf.Struct.
var ServiceDesc = newServiceDesc()

func newServiceDesc() grpc.ServiceDesc {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)

	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*GeneralLedgerServer)(nil),
		Streams:     []grpc.StreamDesc{},
	}
	for _, name := range names {
		desc.Methods = append(desc.Methods, unaryMethod(name))
	}
	return desc
}

func unaryMethod(name string) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				return srv.(GeneralLedgerServer).invoke(ctx, name, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, call)
		},
	}
}

// Server serves gl.v1.GeneralLedger on top of the ledger services.
type Server struct {
	svc    *ledger.Service
	logger *slog.Logger
}

// NewServer creates a Server. A nil logger means slog.Default().
func NewServer(svc *ledger.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Register adds the service to a gRPC server.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	desc := ServiceDesc
	r.RegisterService(&desc, s)
}

func (s *Server) invoke(ctx context.Context, name string, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(name, req); err != nil {
		return nil, toStatus(err)
	}
	out, err := methods[name](s, ctx, c, req)
	if err != nil {
		if codeOf(err) == codes.Internal {
			s.logger.Error("grpc_internal_error", "cid", CorrelationIDFromContext(ctx), "tenant", c.tenantID, "error", err)
		}
		return nil, toStatus(err)
	}
	resp, err := encode(out)
	if err != nil {
		s.logger.Error("grpc_encode_failed", "cid", CorrelationIDFromContext(ctx), "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return resp, nil
}
