package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// StaticTokenUserID is the principal reported for requests carrying the
// shared token.
const StaticTokenUserID = "static-token"

const generatedTokenBytes = 32

// StaticToken accepts exactly one shared bearer token.
type StaticToken struct {
	token []byte
}

// NewStaticToken returns an Authenticator accepting token. An empty token
// matches nothing.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: []byte(token)}
}

func (s *StaticToken) CheckAuthentication(_ context.Context, tok string) (UserInfo, error) {
	if len(s.token) == 0 || subtle.ConstantTimeCompare([]byte(tok), s.token) != 1 {
		return nil, ErrUnauthorized
	}
	return staticUser{}, nil
}

type staticUser struct{}

func (staticUser) UserID() string { return StaticTokenUserID }

// GenerateToken returns 32 random bytes, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, generatedTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var _ Authenticator = (*StaticToken)(nil)
