package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(CodeCommandNotFound, "no such command")
	if !stderrors.Is(err, New(CodeCommandNotFound, "different message")) {
		t.Fatal("expected Is to match by code")
	}
	if stderrors.Is(err, New(CodeValidationFailure, "no such command")) {
		t.Fatal("expected Is to reject a different code")
	}
}

func TestCodeOfUnwrapsChains(t *testing.T) {
	t.Parallel()

	inner := New(CodeRateLimited, "too many calls")
	wrapped := fmt.Errorf("dispatch: %w", inner)
	if got := CodeOf(wrapped); got != CodeRateLimited {
		t.Fatalf("CodeOf = %q, want %q", got, CodeRateLimited)
	}
	if got := CodeOf(stderrors.New("boom")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %q, want %q", got, CodeUnknown)
	}
}

func TestDenialCollapsesSecurityErrors(t *testing.T) {
	t.Parallel()

	denial := Denial(New(CodeRankViolation, "rank 2 below minimum 3"))
	if denial == nil {
		t.Fatal("expected denial for rank violation")
	}
	if denial.Code != CodeSecurityViolation {
		t.Fatalf("denial code = %q, want %q", denial.Code, CodeSecurityViolation)
	}
	if denial.Message != "request denied" {
		t.Fatalf("denial message = %q, leaks guard detail", denial.Message)
	}
	if !stderrors.Is(denial, New(CodeRankViolation, "")) {
		t.Fatal("expected denial to preserve the cause chain")
	}
}

func TestDenialIgnoresClientErrors(t *testing.T) {
	t.Parallel()

	if d := Denial(New(CodeValidationFailure, "usage: deposit <amount>")); d != nil {
		t.Fatalf("expected no denial for validation failure, got %v", d)
	}
	if d := Denial(stderrors.New("boom")); d != nil {
		t.Fatalf("expected no denial for plain error, got %v", d)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeCommandNotFound, codes.NotFound},
		{CodeValidationFailure, codes.InvalidArgument},
		{CodeUnauthenticated, codes.Unauthenticated},
		{CodeRankViolation, codes.PermissionDenied},
		{CodeRateLimited, codes.ResourceExhausted},
		{CodeSchemaMismatch, codes.Internal},
		{CodeOwnerUnreachable, codes.Unavailable},
		{Code("BOGUS"), codes.Unknown},
	}
	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("%s GRPCCode = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestToGRPCStatusAttachesDetails(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeValidationFailure, "bad amount", map[string]string{
		"command": "deposit",
	})
	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected a gRPC status")
	}
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.InvalidArgument)
	}
	if st.Message() != "bad amount" {
		t.Fatalf("status message = %q", st.Message())
	}
	if len(st.Details()) == 0 {
		t.Fatal("expected error details attached")
	}
}

func TestSecurityClass(t *testing.T) {
	t.Parallel()

	for _, code := range []Code{CodeRankViolation, CodePermissionDenied, CodeRateLimited, CodeStateBlocked, CodeArgumentCount, CodePrincipalUnresolved} {
		if !code.SecurityClass() {
			t.Fatalf("%s should be security class", code)
		}
	}
	for _, code := range []Code{CodeCommandNotFound, CodeValidationFailure, CodeSchemaMismatch, CodeUnauthenticated} {
		if code.SecurityClass() {
			t.Fatalf("%s should not be security class", code)
		}
	}
}
