package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type markers embedded in the "type" claim. Access tokens authorize
// individual requests; refresh tokens only mint new access tokens. The two
// are never interchangeable.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims embeds the registered JWT claims plus the account id and token type.
type Claims struct {
	jwt.RegisteredClaims
	AccountID uint   `json:"account_id"`
	TokenType string `json:"type"`
}

// TokenPair is what login and registration hand back to the client.
// ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// GenerateToken issues an HS256-signed token of the given type for an account.
func GenerateToken(accountID uint, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AccountID: accountID,
		TokenType: tokenType,
	})
	return token.SignedString(secret)
}

// ParseToken verifies a token's signature and expiry and returns its claims.
// Callers must still check the TokenType claim against the expected marker.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
