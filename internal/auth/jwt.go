package auth

import (
	"crypto/hmac"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const TokenExpiry = 12 * time.Hour

var (
	ErrInvalidKey   = errors.New("invalid key")
	ErrInvalidToken = errors.New("invalid token")
)

type Role string

const (
	RoleContributor Role = "contributor"
	RoleEditor      Role = "editor"
	RoleAdmin       Role = "admin"
)

var roleRank = map[Role]int{
	RoleContributor: 1,
	RoleEditor:      2,
	RoleAdmin:       3,
}

// Satisfies reports whether r may act as required. Editors may contribute;
// admins may do everything.
func (r Role) Satisfies(required Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[required]
}

// Keys are the privileged keys from config. An empty key never matches.
type Keys struct {
	Contributor string
	Editor      string
	Admin       string
}

// RoleForKey returns the highest role whose key equals key.
func (k Keys) RoleForKey(key string) (Role, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, candidate := range []struct {
		role Role
		key  string
	}{
		{RoleAdmin, k.Admin},
		{RoleEditor, k.Editor},
		{RoleContributor, k.Contributor},
	} {
		if candidate.key != "" && hmac.Equal([]byte(key), []byte(candidate.key)) {
			return candidate.role, nil
		}
	}
	return "", ErrInvalidKey
}

type Claims struct {
	Role Role   `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func GenerateToken(role Role, name, secret string) (string, error) {
	claims := Claims{
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "hisyeo-kennings",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if _, known := roleRank[claims.Role]; !known {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}
