package remote

import (
	"strings"
	"sync/atomic"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TokenSource yields the bearer token for one request. It is read on every
// call, so a swapped or cleared token takes effect on the next request.
type TokenSource interface {
	Token() string
}

type StaticToken string

func (t StaticToken) Token() string {
	return string(t)
}

// Credentials is a replaceable bearer token. Reads are atomic snapshots; no
// further locking is needed.
type Credentials struct {
	token atomic.Pointer[string]
}

func NewCredentials(token string) *Credentials {
	c := &Credentials{}
	c.Set(token)
	return c
}

func (c *Credentials) Token() string {
	if c == nil {
		return ""
	}
	if p := c.token.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Credentials) Set(token string) {
	token = strings.TrimSpace(token)
	c.token.Store(&token)
}

func (c *Credentials) Clear() {
	c.Set("")
}

// TokenExpiry reads the exp claim of a JWT-shaped token without verifying its
// signature; the remote API remains the authority. Opaque tokens report false.
func TokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
