// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the acting user, request id and request time; services read
// them without importing net/http:
//
//	actor := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "mppchs/pkg/domain"
)

type (
	userIDKey      struct{}
	userRoleKey    struct{}
	beneficiaryKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyUserRole    = userRoleKey{}
	ContextKeyBeneficiary = beneficiaryKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// UserID retrieves the acting user from the context, zero when unauthenticated.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return 0
}

// WithUserID injects the acting user into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserRole retrieves the role claim set by the auth middleware.
func UserRole(ctx context.Context) string {
	if role, ok := ctx.Value(ContextKeyUserRole).(string); ok {
		return role
	}
	return ""
}

// WithUserRole injects a role claim into the context.
func WithUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyUserRole, role)
}

// BeneficiaryID retrieves the beneficiary a beneficiary-role caller is bound
// to, zero for other roles.
func BeneficiaryID(ctx context.Context) id.BeneficiaryID {
	if b, ok := ctx.Value(ContextKeyBeneficiary).(id.BeneficiaryID); ok {
		return b
	}
	return 0
}

// WithBeneficiaryID binds the caller to a beneficiary record.
func WithBeneficiaryID(ctx context.Context, beneficiaryID id.BeneficiaryID) context.Context {
	return context.WithValue(ctx, ContextKeyBeneficiary, beneficiaryID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside of HTTP requests (CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
