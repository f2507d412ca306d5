package sessions

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
)

// Token is an admitted session. Raw is its signed form handed to clients.
type Token struct {
	SessionID string    `json:"session_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	Raw       string    `json:"token"`
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	TenantID  string `json:"tid"`
	jwt.RegisteredClaims
}

// tokenSigner signs session tokens with HMAC-SHA256.
type tokenSigner struct {
	secret []byte
	issuer string
}

func (s *tokenSigner) sign(t *Token) (string, error) {
	claims := sessionClaims{
		SessionID: t.SessionID,
		TenantID:  t.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  t.UserID,
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(t.IssuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign session token")
	}
	return signed, nil
}

func (s *tokenSigner) verificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func (s *tokenSigner) parse(raw string) (*Token, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, s.verificationKey, opts...)
	if err != nil || !token.Valid {
		return nil, tgerrors.Wrapf(tgerrors.ErrInvalidSessionToken, "%v", err)
	}
	if claims.SessionID == "" || claims.TenantID == "" {
		return nil, tgerrors.Wrapf(tgerrors.ErrInvalidSessionToken, "missing sid or tid claim")
	}
	t := &Token{
		SessionID: claims.SessionID,
		TenantID:  claims.TenantID,
		UserID:    claims.Subject,
		Raw:       raw,
	}
	if claims.IssuedAt != nil {
		t.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return t, nil
}
