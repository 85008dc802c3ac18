package testutil

import (
	"net/http"

	id "mppchs/pkg/domain"
	"mppchs/pkg/requestcontext"
)

// Caller is an authenticated principal as the auth middleware would
// install it. BeneficiaryID is zero for staff roles.
type Caller struct {
	UserID        id.UserID
	Role          string
	BeneficiaryID id.BeneficiaryID
}

// As attaches c to the request context so handlers can be exercised
// without minting tokens.
func As(req *http.Request, c Caller) *http.Request {
	ctx := req.Context()
	if !c.UserID.IsNil() {
		ctx = requestcontext.WithUserID(ctx, c.UserID)
	}
	if c.Role != "" {
		ctx = requestcontext.WithUserRole(ctx, c.Role)
	}
	if !c.BeneficiaryID.IsNil() {
		ctx = requestcontext.WithBeneficiaryID(ctx, c.BeneficiaryID)
	}
	return req.WithContext(ctx)
}
