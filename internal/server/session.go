package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"siashare-go/internal/share"
)

const (
	sessionCookie      = "authToken"
	headerReaderToken  = "X-Reader-Auth-Token"
	headerUploadSecret = "X-Upload-Password"
	sessionIssuer      = "siashare"
)

// sessionClaims binds a reader token to one room. The cookie lets requests
// that cannot set custom headers, such as web-seed fetches, read the room.
type sessionClaims struct {
	ReaderToken string `json:"rdr"`
	jwt.RegisteredClaims
}

// sessions issues and verifies HS256 session cookies.
type sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
	clock  share.Clock
}

// newSessions returns a cookie issuer. An empty secret is replaced by a random
// one, which invalidates outstanding cookies on restart.
func newSessions(secret string, ttl time.Duration, secure bool, clock share.Clock) (*sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessions{secret: key, ttl: ttl, secure: secure, clock: clock}, nil
}

func (s *sessions) issue(roomID, readerToken string, roomExpires time.Time) (*http.Cookie, error) {
	now := s.clock.Now()
	expires := now.Add(s.ttl)
	if roomExpires.Before(expires) {
		expires = roomExpires
	}
	claims := sessionClaims{
		ReaderToken: readerToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   roomID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing session: %w", err)
	}
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/api/room/" + roomID,
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

// verify returns the reader token carried by a cookie issued for roomID.
func (s *sessions) verify(value, roomID string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithSubject(roomID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return "", err
	}
	if claims.ReaderToken == "" {
		return "", errors.New("session carries no reader token")
	}
	return claims.ReaderToken, nil
}

// resolveReaderToken returns the reader token for roomID from the
// x-reader-auth-token header or, failing that, a valid session cookie.
// An empty result means the request carries no usable credential.
func (s *Server) resolveReaderToken(r *http.Request, roomID string) string {
	if token := r.Header.Get(headerReaderToken); token != "" {
		return token
	}
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	token, err := s.sessions.verify(cookie.Value, roomID)
	if err != nil {
		s.logger.Debug("ignoring session cookie", "room", roomID, "error", err)
		return ""
	}
	return token
}
