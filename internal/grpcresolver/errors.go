package grpcresolver

import (
	"errors"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var statusCodes = map[codes.Code]string{
	codes.Canceled:           "CANCELLED",
	codes.Unknown:            "INTERNAL_SERVER_ERROR",
	codes.InvalidArgument:    "BAD_USER_INPUT",
	codes.DeadlineExceeded:   "DEADLINE_EXCEEDED",
	codes.NotFound:           "NOT_FOUND",
	codes.AlreadyExists:      "ALREADY_EXISTS",
	codes.PermissionDenied:   "FORBIDDEN",
	codes.ResourceExhausted:  "RESOURCE_EXHAUSTED",
	codes.FailedPrecondition: "FAILED_PRECONDITION",
	codes.Aborted:            "ABORTED",
	codes.OutOfRange:         "OUT_OF_RANGE",
	codes.Unimplemented:      "UNIMPLEMENTED",
	codes.Internal:           "INTERNAL_SERVER_ERROR",
	codes.Unavailable:        "UNAVAILABLE",
	codes.DataLoss:           "DATA_LOSS",
	codes.Unauthenticated:    "UNAUTHENTICATED",
}

// Code returns the extensions.code reported for a gRPC status code.
func Code(c codes.Code) string {
	if s, ok := statusCodes[c]; ok {
		return s
	}
	return "INTERNAL_SERVER_ERROR"
}

// Error converts a gRPC status error into a GraphQL error carrying the
// status message and the mapped extensions.code. The original error stays
// reachable through errors.Is and errors.As. Errors without a status and
// GraphQL errors are returned unchanged.
func Error(err error) error {
	if err == nil {
		return nil
	}
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return &gqlerror.Error{
		Err:     err,
		Message: st.Message(),
		Extensions: map[string]any{
			"code":       Code(st.Code()),
			"grpcStatus": st.Code().String(),
		},
	}
}
