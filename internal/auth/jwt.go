package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// OperatorClaims are the claims carried by an operator token. Tokens are
// issued by the surrounding platform's identity service; this package only
// signs them for tests and validates them at the door.
type OperatorClaims struct {
	OperatorID string   `json:"operator_id"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// SignOperatorJWT creates a signed operator token. Used by tests and
// bootstrap tooling.
func SignOperatorJWT(operatorID string, roles []string, secret []byte, ttl time.Duration) (string, error) {
	claims := &OperatorClaims{
		OperatorID: operatorID,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateOperatorJWT verifies the token signature and expiry and returns
// the operator claims.
func ValidateOperatorJWT(tokenString string, secret []byte) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
