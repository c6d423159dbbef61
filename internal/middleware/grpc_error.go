package middleware

import (
	"context"
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

// gRPC status codes that are treated as transient
var transientGRPCCodes = map[codes.Code]bool{
	codes.Unavailable:        true,
	codes.ResourceExhausted:  true,
	codes.FailedPrecondition: true,
	codes.Aborted:            true,
	codes.DeadlineExceeded:   true,
	codes.Internal:           true,
	codes.Unknown:            true,
}

// WithGRPCErrorHandling classifies gRPC status errors returned by a step
// (broker clients, remote stores) so the retry middleware can act on them.
// Engine errors already carry a classification and pass through unchanged.
func WithGRPCErrorHandling() Middleware {
	return func(next Step) Step {
		return func(ctx context.Context, input []byte) ([]byte, error) {
			output, err := next(ctx, input)
			if err == nil {
				return output, nil
			}

			code, ok := GetGRPCStatusCode(err)
			if !ok {
				return nil, err
			}

			st, _ := status.FromError(err)
			if transientGRPCCodes[code] {
				return nil, errors.NewTransientError(
					fmt.Sprintf("GRPC_%s", code.String()),
					fmt.Sprintf("gRPC error (transient): %s", st.Message()),
					err,
				)
			}
			return nil, errors.NewPermanentError(
				fmt.Sprintf("GRPC_%s", code.String()),
				fmt.Sprintf("gRPC error (permanent): %s", st.Message()),
				err,
			)
		}
	}
}

// IsTransientGRPCError checks if an error is a gRPC error with a transient status code
func IsTransientGRPCError(err error) bool {
	code, ok := GetGRPCStatusCode(err)
	return ok && transientGRPCCodes[code]
}

// GetGRPCStatusCode extracts the gRPC status code from a foreign gRPC error.
// Engine errors report ok=false even though they can render a status.
func GetGRPCStatusCode(err error) (codes.Code, bool) {
	if err == nil {
		return codes.OK, false
	}

	var customErr *errors.CustomError
	if stderrors.As(err, &customErr) {
		return codes.Unknown, false
	}

	st, ok := status.FromError(err)
	if !ok {
		return codes.Unknown, false
	}

	return st.Code(), true
}
