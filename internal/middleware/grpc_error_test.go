package middleware

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Youmanvi/bookingengine/internal/pkg/errors"
)

func grpcFailure(code codes.Code, msg string) Step {
	return func(ctx context.Context, input []byte) ([]byte, error) {
		return nil, status.Error(code, msg)
	}
}

func TestWithGRPCErrorHandling_Classification(t *testing.T) {
	tests := []struct {
		name          string
		code          codes.Code
		wantTransient bool
	}{
		{"ResourceExhausted", codes.ResourceExhausted, true},
		{"FailedPrecondition", codes.FailedPrecondition, true},
		{"Aborted", codes.Aborted, true},
		{"DeadlineExceeded", codes.DeadlineExceeded, true},
		{"Unavailable", codes.Unavailable, true},
		{"Internal", codes.Internal, true},
		{"InvalidArgument", codes.InvalidArgument, false},
		{"NotFound", codes.NotFound, false},
		{"AlreadyExists", codes.AlreadyExists, false},
		{"PermissionDenied", codes.PermissionDenied, false},
		{"Unimplemented", codes.Unimplemented, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WithGRPCErrorHandling()(grpcFailure(tt.code, "broker said no"))

			_, err := wrapped(context.Background(), nil)
			require.Error(t, err)

			var customErr *errors.CustomError
			require.True(t, stderrors.As(err, &customErr))
			assert.Equal(t, tt.wantTransient, customErr.IsTransient())
			assert.Equal(t, !tt.wantTransient, customErr.IsPermanent())
			assert.Equal(t, "GRPC_"+tt.code.String(), customErr.Code)
		})
	}
}

func TestWithGRPCErrorHandling_Success(t *testing.T) {
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		return []byte("result"), nil
	}

	output, err := WithGRPCErrorHandling()(step)(context.Background(), nil)

	assert.NoError(t, err)
	assert.Equal(t, []byte("result"), output)
}

func TestWithGRPCErrorHandling_EngineErrorPassesThrough(t *testing.T) {
	step := func(ctx context.Context, input []byte) ([]byte, error) {
		return nil, errors.ErrStaleVersion
	}

	_, err := WithGRPCErrorHandling()(step)(context.Background(), nil)

	assert.ErrorIs(t, err, errors.ErrStaleVersion)
	assert.Equal(t, errors.CodeStaleVersion, errors.CodeOf(err))
}

func TestIsTransientGRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"ResourceExhausted", status.Error(codes.ResourceExhausted, "quota exceeded"), true},
		{"Unavailable", status.Error(codes.Unavailable, "broker down"), true},
		{"InvalidArgument", status.Error(codes.InvalidArgument, "bad input"), false},
		{"Nil error", nil, false},
		{"Engine error", errors.NewTransientError(errors.CodeStorageFailure, "db", nil), false},
		{"Plain error", stderrors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientGRPCError(tt.err))
		})
	}
}

func TestGetGRPCStatusCode(t *testing.T) {
	code, ok := GetGRPCStatusCode(status.Error(codes.ResourceExhausted, "quota exceeded"))
	assert.True(t, ok)
	assert.Equal(t, codes.ResourceExhausted, code)

	code, ok = GetGRPCStatusCode(nil)
	assert.False(t, ok)
	assert.Equal(t, codes.OK, code)

	_, ok = GetGRPCStatusCode(errors.ErrNotFound)
	assert.False(t, ok)
}
