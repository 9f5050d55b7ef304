package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role accepted on the grid maintenance routes.
const RoleAdmin = "ADMIN"

// AdminToken is a signed HS256 JWT together with its expiry.
type AdminToken struct {
	Token string
	Exp   time.Time
}

// NewAdminToken signs a token for an operator.  Reservations themselves are
// protected by passkeys only; this token gates the maintenance endpoints.
func NewAdminToken(secret, subject string, ttl time.Duration) (AdminToken, error) {
	if secret == "" {
		return AdminToken{}, errors.New("empty signing secret")
	}
	if ttl <= 0 {
		return AdminToken{}, errors.New("token ttl must be positive")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": RoleAdmin,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AdminToken{}, err
	}
	return AdminToken{Token: signed, Exp: exp}, nil
}
