package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

const sessionIssuer = "dittobox"

// sessionClaims is the payload of a session token. Subject is the username,
// which is also the owner key of every file record.
type sessionClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Session identifies the authenticated caller of a request.
type Session struct {
	UserID   int64
	Username string
}

type sessionKey struct{}

// SessionFromContext returns the session stored by the auth middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

func withSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// sessions signs and verifies HS256 session tokens.
type sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newSessions(secret string, ttl time.Duration) *sessions {
	return &sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// issue returns a signed token for user and its expiry.
func (s *sessions) issue(user *metadata.User) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)

	claims := &sessionClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   user.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

// verify parses raw and returns the session it carries.
func (s *sessions) verify(raw string) (Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Session{}, err
	}
	if claims.Subject == "" || claims.UserID <= 0 {
		return Session{}, errors.New("session token has no subject")
	}
	return Session{UserID: claims.UserID, Username: claims.Subject}, nil
}
