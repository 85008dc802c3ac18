package jwttoken

import (
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	authmw "mppchs/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *Claims) (*authmw.JWTClaims, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	var beneficiaryID id.BeneficiaryID
	if claims.BeneficiaryID != "" {
		if beneficiaryID, err = id.ParseBeneficiaryID(claims.BeneficiaryID); err != nil {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
		}
	}
	return &authmw.JWTClaims{
		UserID:        userID,
		Role:          claims.Role,
		BeneficiaryID: beneficiaryID,
		JTI:           claims.ID,
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
