package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/senderpro/senderpro/pkg/config"
)

// JWTService is the TokenService implementation backed by HS256-signed JWTs.
// Purely cryptographic: no storage, no I/O.
type JWTService struct {
	secretKey      []byte
	accessTokenTTL time.Duration
	issuer         string
	now            func() time.Time
}

// NewJWTService creates a new JWT codec.
func NewJWTService(secretKey string, accessTokenTTL time.Duration, issuer string) *JWTService {
	if accessTokenTTL == 0 {
		accessTokenTTL = 180 * time.Minute
	}
	if issuer == "" {
		issuer = "senderpro"
	}

	return &JWTService{
		secretKey:      []byte(secretKey),
		accessTokenTTL: accessTokenTTL,
		issuer:         issuer,
		now:            time.Now,
	}
}

// NewJWTServiceFromConfig builds the codec from the loaded configuration.
func NewJWTServiceFromConfig(cfg *config.JWTConfig) *JWTService {
	return NewJWTService(cfg.Secret, cfg.AccessTokenTTL, cfg.Issuer)
}

// IssueAccessToken signs a token for the subject, valid for the configured
// lifetime. Two tokens issued for the same subject at different instants
// carry different iat claims and expire independently.
func (j *JWTService) IssueAccessToken(subject string) (string, int, error) {
	now := j.now()

	claims := jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenTTL)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", 0, ErrTokenGenerationFailed().WithDetail("error", err.Error())
	}

	return tokenString, int(j.accessTokenTTL.Seconds()), nil
}

// VerifyAccessToken validates signature and temporal claims and returns the
// subject. Expiry and structural failures are distinct error codes so the
// middleware can decide whether a silent refresh is worth attempting.
func (j *JWTService) VerifyAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential()
		}
		return nil, ErrInvalidCredential().WithDetail("error", err.Error())
	}

	if !token.Valid {
		return nil, ErrInvalidCredential().WithDetail("error", "token is invalid")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidCredential().WithDetail("error", "missing subject claim")
	}

	out := &AccessTokenClaims{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
