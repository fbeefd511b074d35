// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LaunchScope is the scope claim a token needs to start or finish games.
const LaunchScope = "launch"

// ErrMissingKey is returned when signing without a private key.
var ErrMissingKey = errors.New("launcher private key not loaded")

// Keys holds the ed25519 pair used for launcher tokens. A verifier only
// needs the public half.
type Keys struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey

	// TTL bounds token lifetime (0 => no exp claim).
	TTL time.Duration
}

// GenerateKeys creates a fresh key pair at runtime.
func GenerateKeys(ttl time.Duration) (*Keys, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Keys{Private: priv, Public: pub, TTL: ttl}, nil
}

// LoadKeys reads raw ed25519 keys from disk. Either path may be empty; a
// public key is required.
func LoadKeys(privatePath, publicPath string, ttl time.Duration) (*Keys, error) {
	k := &Keys{TTL: ttl}
	if privatePath != "" {
		data, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("private key file %s: want %d bytes, got %d", privatePath, ed25519.PrivateKeySize, len(data))
		}
		k.Private = ed25519.PrivateKey(data)
	}
	if publicPath != "" {
		data, err := os.ReadFile(publicPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key file: %w", err)
		}
		if len(data) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("public key file %s: want %d bytes, got %d", publicPath, ed25519.PublicKeySize, len(data))
		}
		k.Public = ed25519.PublicKey(data)
	} else if k.Private != nil {
		k.Public = k.Private.Public().(ed25519.PublicKey)
	}
	if k.Public == nil {
		return nil, errors.New("no launcher public key configured")
	}
	return k, nil
}

// CreateLauncherToken signs a token for the named launcher
// (a scheduler, an operator, a game host).
func (k *Keys) CreateLauncherToken(launcher string) (string, error) {
	if k.Private == nil {
		return "", ErrMissingKey
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   launcher,
		"scope": LaunchScope,
		"iat":   now.Unix(),
	}
	if k.TTL > 0 {
		claims["exp"] = now.Add(k.TTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(k.Private)
}

// VerifyLauncherToken checks the signature and scope and returns the launcher name.
func (k *Keys) VerifyLauncherToken(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.Public, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	if scope, _ := claims["scope"].(string); scope != LaunchScope {
		return "", fmt.Errorf("token lacks %q scope", LaunchScope)
	}
	launcher, ok := claims["sub"].(string)
	if !ok || launcher == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return launcher, nil
}
