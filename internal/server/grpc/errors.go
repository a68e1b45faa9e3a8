package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/groupware/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeFor maps an error kind to its status code.
func codeFor(k common.Kind) codes.Code {
	switch k {
	case common.KindNotFound:
		return codes.NotFound
	case common.KindConflict:
		return codes.FailedPrecondition
	case common.KindConcurrentModification:
		return codes.Aborted
	case common.KindTransient:
		return codes.Unavailable
	case common.KindMalformed:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// toStatus converts a service error into a gRPC status. Internal failures
// are reported without detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	code := codeFor(common.KindOf(err))
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
