// Package auth verifies access tokens issued by the external auth service.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	appctx "lotledger/internal/core/context"
)

// JWTConfig holds JWT verification configuration.
type JWTConfig struct {
	Secret string
	Issuer string
}

// Claims represents the JWT claims the engine understands.
// Token issuance lives in the auth service; only verification happens here.
type Claims struct {
	jwt.RegisteredClaims
	ActorID string   `json:"uid"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
}

// JWTValidator verifies tokens and extracts the actor identity.
type JWTValidator struct {
	config JWTConfig
}

// NewJWTValidator creates a new JWT validator.
func NewJWTValidator(config JWTConfig) *JWTValidator {
	return &JWTValidator{config: config}
}

// ValidateToken validates a JWT and returns the actor context.
func (v *JWTValidator) ValidateToken(tokenString string) (*appctx.ActorContext, error) {
	opts := []jwt.ParserOption{}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	}, opts...)

	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	actorID := claims.ActorID
	if actorID == "" {
		actorID = claims.Subject
	}
	if actorID == "" {
		return nil, fmt.Errorf("token carries no actor identity")
	}

	return &appctx.ActorContext{
		ActorID: actorID,
		Email:   claims.Email,
		Roles:   claims.Roles,
	}, nil
}
