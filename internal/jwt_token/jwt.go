package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
)

// Roles carried in the access token.
const (
	RoleBeneficiary = "beneficiary"
	RoleReviewer    = "reviewer"
)

// Claims represents the JWT claims for our access tokens
type Claims struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role"`
	BeneficiaryID string `json:"beneficiary_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (s *JWTService) GenerateAccessToken(userID id.UserID, role string, expiresIn time.Duration) (string, error) {
	return s.sign(Claims{UserID: userID.String(), Role: role}, expiresIn)
}

// GenerateBeneficiaryToken issues a beneficiary-role token bound to the one
// beneficiary record the user may edit.
func (s *JWTService) GenerateBeneficiaryToken(userID id.UserID, beneficiaryID id.BeneficiaryID, expiresIn time.Duration) (string, error) {
	return s.sign(Claims{UserID: userID.String(), Role: RoleBeneficiary, BeneficiaryID: beneficiaryID.String()}, expiresIn)
}

func (s *JWTService) sign(claims Claims, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:        claims.UserID,
		Role:          claims.Role,
		BeneficiaryID: claims.BeneficiaryID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}
