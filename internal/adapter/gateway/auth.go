package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"agenthq/internal/domain"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway requests.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// Token is one accepted bearer token.
type Token struct {
	Token string
	Name  string
}

// NewAuthenticator returns a token authenticator, or an open one when tokens is empty.
func NewAuthenticator(tokens []Token) Authenticator {
	if len(tokens) == 0 {
		return OpenAuth{}
	}
	return NewStaticTokenAuth(tokens)
}

// OpenAuth accepts every request.
type OpenAuth struct{}

// Authenticate always succeeds.
func (OpenAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from a set of tokens.
func NewStaticTokenAuth(tokens []Token) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(tokens))}
	for i, t := range tokens {
		a.entries[i] = authEntry{token: []byte(t.Token), info: &ClientInfo{Name: t.Name}}
	}
	return a
}

// Authenticate returns client info if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// requestToken reads the token from ?token= or an "Authorization: Bearer" header.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}
