// Package errors provides structured error handling for the dispatch core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Client-visible dispatch errors
	CodeCommandNotFound   Code = "COMMAND_NOT_FOUND"
	CodeValidationFailure Code = "VALIDATION_FAILURE"

	// Authentication/authorization errors
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeRankViolation       Code = "RANK_VIOLATION"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeStateBlocked        Code = "STATE_BLOCKED"
	CodeArgumentCount       Code = "ARGUMENT_COUNT_MISMATCH"
	CodeSecurityViolation   Code = "SECURITY_VIOLATION"
	CodePrincipalUnresolved Code = "PRINCIPAL_UNRESOLVED"

	// Configuration errors (fatal for the offending descriptor)
	CodeSchemaMismatch    Code = "SCHEMA_MISMATCH"
	CodeDescriptorInvalid Code = "DESCRIPTOR_INVALID"
	CodeOwnerUnreachable  Code = "OWNER_UNREACHABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeValidationFailure,
		CodeArgumentCount:
		return codes.InvalidArgument

	// NotFound - unknown command
	case CodeCommandNotFound:
		return codes.NotFound

	// Unauthenticated - no account attached to the connection
	case CodeUnauthenticated:
		return codes.Unauthenticated

	// PermissionDenied - guard failures; the caller only learns of a denial
	case CodeRankViolation,
		CodePermissionDenied,
		CodeStateBlocked,
		CodeSecurityViolation,
		CodePrincipalUnresolved:
		return codes.PermissionDenied

	// ResourceExhausted - throttled
	case CodeRateLimited:
		return codes.ResourceExhausted

	// Internal - configuration-class errors
	case CodeSchemaMismatch,
		CodeDescriptorInvalid:
		return codes.Internal

	// Unavailable - remote owner cannot be reached
	case CodeOwnerUnreachable:
		return codes.Unavailable

	default:
		return codes.Unknown
	}
}

// SecurityClass reports whether the code belongs to the security-violation
// family that must always reach the violation sink.
func (c Code) SecurityClass() bool {
	switch c {
	case CodeRankViolation,
		CodePermissionDenied,
		CodeRateLimited,
		CodeStateBlocked,
		CodeArgumentCount,
		CodeSecurityViolation,
		CodePrincipalUnresolved:
		return true
	default:
		return false
	}
}

// ConfigurationClass reports whether the code marks a developer
// configuration error that disables the offending descriptor.
func (c Code) ConfigurationClass() bool {
	switch c {
	case CodeSchemaMismatch, CodeDescriptorInvalid:
		return true
	default:
		return false
	}
}
