package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidCookie = errors.New("invalid session cookie")

type cookieClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// CookieSigner wraps session ids into signed cookie values so a client
// cannot forge or tamper with the id it presents.
type CookieSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewCookieSigner(secret string, ttl time.Duration) *CookieSigner {
	return &CookieSigner{secret: []byte(secret), ttl: ttl}
}

func (c *CookieSigner) Sign(sessionID string) (string, error) {
	now := time.Now()
	claims := &cookieClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Parse returns the session id carried by a cookie value.
func (c *CookieSigner) Parse(value string) (string, error) {
	token, err := jwt.ParseWithClaims(value, &cookieClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return "", ErrInvalidCookie
	}

	claims, ok := token.Claims.(*cookieClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return "", ErrInvalidCookie
	}
	return claims.SessionID, nil
}

type CookieOptions struct {
	Name     string
	TTL      time.Duration
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
}

// CookieJar writes and reads the session cookie with fixed attributes.
type CookieJar struct {
	signer *CookieSigner
	opts   CookieOptions
}

func NewCookieJar(secret string, opts CookieOptions) *CookieJar {
	return &CookieJar{
		signer: NewCookieSigner(secret, opts.TTL),
		opts:   opts,
	}
}

func (j *CookieJar) Name() string {
	return j.opts.Name
}

func (j *CookieJar) Issue(sessionID string) (*http.Cookie, error) {
	value, err := j.signer.Sign(sessionID)
	if err != nil {
		return nil, err
	}
	return j.cookie(value, int(j.opts.TTL.Seconds())), nil
}

// Clear returns a cookie that makes the browser drop the session cookie.
func (j *CookieJar) Clear() *http.Cookie {
	return j.cookie("", -1)
}

// SessionID returns the session id carried by the request cookie, or "" when
// the request has no valid session cookie.
func (j *CookieJar) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(j.opts.Name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	sessionID, err := j.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return sessionID
}

// Parse returns the session id of a cookie value forwarded by another service.
func (j *CookieJar) Parse(value string) (string, error) {
	return j.signer.Parse(value)
}

func (j *CookieJar) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     j.opts.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: j.opts.HTTPOnly,
		Secure:   j.opts.Secure,
		SameSite: j.opts.SameSite,
	}
}
