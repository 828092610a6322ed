package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Service mints and validates HS256 access tokens. Tokens are stateless:
// validity is entirely signature + expiry, there is no server-side record.
type Service struct {
	issuer string
	secret []byte
	ttl    time.Duration
}

type Claims struct {
	Role string `json:"role"`
	jwtlib.RegisteredClaims
}

func New(issuer, secret string, ttl time.Duration) *Service {
	return &Service{
		issuer: issuer,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// GenerateToken issues a signed token with subject = username and the role
// claim. Expiry is issue time plus the configured TTL.
func (s *Service) GenerateToken(username, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}
