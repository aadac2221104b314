package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/gl-core/internal/ledger"
)

// toStatus maps ledger error kinds onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), messageOf(err))
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, ledger.ErrContention):
		return codes.Aborted
	case errors.Is(err, ledger.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, ledger.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrDependencyMissing):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func messageOf(err error) string {
	// Storage failures are logged by the server, not returned.
	if codeOf(err) == codes.Internal && !errors.Is(err, ledger.ErrInvariant) {
		return "internal error"
	}
	return err.Error()
}
