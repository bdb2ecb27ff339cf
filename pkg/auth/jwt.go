// Package auth issues and verifies the bearer tokens that carry the caller's
// role and id.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/booking-engine/internal/model"
)

// Claims is the token body. Identity lives in an external system; the token
// only asserts who is calling.
type Claims struct {
	Role    string `json:"role"`
	ActorID int64  `json:"actor_id"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTService(secret, issuer string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// GenerateAccessToken signs a token for actor.
func (s *JWTService) GenerateAccessToken(actor model.Actor) (string, error) {
	now := s.now()
	claims := Claims{
		Role:    string(actor.Role),
		ActorID: actor.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%s:%d", actor.Role, actor.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the actor.
func (s *JWTService) ValidateToken(tokenString string) (model.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return model.Actor{}, fmt.Errorf("invalid token: %w", err)
	}

	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return model.Actor{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.ActorID <= 0 {
		return model.Actor{}, fmt.Errorf("invalid token: actor_id is required")
	}
	return model.Actor{Role: role, ID: claims.ActorID}, nil
}
