// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sessions mints and verifies the gateway's player tokens. Keys are generated
// fresh at startup: tokens only need to outlive the process, there is nothing
// durable behind them.
type Sessions struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expiry     time.Duration
}

// Claims is the verified content of a session token.
type Claims struct {
	PlayerID string
	Username string
	Admin    bool
}

// NewSessions generates an ed25519 key pair and returns a token issuer.
// expiry <= 0 issues tokens without an expiration claim.
func NewSessions(expiry time.Duration) (*Sessions, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Sessions{privateKey: priv, publicKey: pub, expiry: expiry}, nil
}

// CreateToken signs a session token for a player. The admin claim gates the
// game-start/game-stop commands at the gateway.
func (s *Sessions) CreateToken(playerID, username string, admin bool) (string, error) {
	claims := jwt.MapClaims{
		"sub":  playerID,
		"name": username,
	}
	if admin {
		claims["adm"] = true
	}
	if s.expiry > 0 {
		claims["exp"] = time.Now().Add(s.expiry).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Verify parses and validates a token string, returning its claims.
func (s *Sessions) Verify(tokenString string) (Claims, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}

	mapClaims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, fmt.Errorf("missing sub in jwt")
	}

	claims := Claims{PlayerID: sub}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Username = name
	}
	if adm, ok := mapClaims["adm"].(bool); ok {
		claims.Admin = adm
	}
	return claims, nil
}
