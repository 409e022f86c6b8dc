// Package auth verifies bearer tokens guarding the operator endpoints.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Modes accepted by New.
const (
	ModeOff  = "off"
	ModeHMAC = "hmac" // HS256 with a shared secret
	ModeJWKS = "jwks" // RS256 keys fetched from a JWKS URL
)

// Principal is the caller named by a verified token.
type Principal struct {
	Subject string
	Role    string
}

// Verifier checks JWTs in one of the modes above.
type Verifier struct {
	Mode       string
	HMACSecret []byte
	JWKSURL    string
	RoleClaim  string

	http     *http.Client
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	keys      []jwk
	lastFetch time.Time
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// New returns nil when mode is empty or off.
func New(mode, secret, jwksURL, roleClaim string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "", ModeOff:
		return nil, nil
	case ModeHMAC:
		if secret == "" {
			return nil, errors.New("auth: hmac mode needs a secret")
		}
	case ModeJWKS:
		if jwksURL == "" {
			return nil, errors.New("auth: jwks mode needs a URL")
		}
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", mode)
	}
	if roleClaim == "" {
		roleClaim = "role"
	}
	return &Verifier{
		Mode:       mode,
		HMACSecret: []byte(secret),
		JWKSURL:    jwksURL,
		RoleClaim:  roleClaim,
		http:       &http.Client{Timeout: 5 * time.Second},
		cacheTTL:   10 * time.Minute,
		now:        time.Now,
	}, nil
}

// FromRequest verifies the Authorization: Bearer header of r.
func (v *Verifier) FromRequest(r *http.Request) (Principal, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Principal{}, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(token))
}

// Verify checks the signature and expiry of token.
func (v *Verifier) Verify(token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, fmt.Errorf("%w: expected three segments", ErrInvalidToken)
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature encoding", ErrInvalidToken)
	}
	signed := []byte(segs[0] + "." + segs[1])

	switch v.Mode {
	case ModeHMAC:
		if hdr.Alg != "HS256" {
			return Principal{}, fmt.Errorf("%w: alg %q", ErrInvalidToken, hdr.Alg)
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write(signed)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Principal{}, fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
	case ModeJWKS:
		if hdr.Alg != "RS256" {
			return Principal{}, fmt.Errorf("%w: alg %q", ErrInvalidToken, hdr.Alg)
		}
		pub, err := v.publicKey(hdr.Kid)
		if err != nil {
			return Principal{}, err
		}
		sum := sha256.Sum256(signed)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], sig); err != nil {
			return Principal{}, fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
	default:
		return Principal{}, fmt.Errorf("auth: unsupported mode %q", v.Mode)
	}

	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims[v.RoleClaim].(string)
	return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

func decodeSegment(s string, dst any) error {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: segment encoding", ErrInvalidToken)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: segment json", ErrInvalidToken)
	}
	return nil
}

func (v *Verifier) publicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	keys, stale := v.keys, v.now().Sub(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(keys) == 0 || stale {
		var err error
		if keys, err = v.fetchKeys(); err != nil {
			return nil, err
		}
	}
	for _, k := range keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("auth: jwk %s modulus: %w", kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("auth: jwk %s exponent: %w", kid, err)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
	}
	return nil, fmt.Errorf("%w: unknown kid %q", ErrInvalidToken, kid)
}

func (v *Verifier) fetchKeys() ([]jwk, error) {
	resp, err := v.http.Get(v.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: fetch jwks: status %d", resp.StatusCode)
	}
	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("auth: decode jwks: %w", err)
	}
	v.mu.Lock()
	v.keys, v.lastFetch = set.Keys, v.now()
	v.mu.Unlock()
	return set.Keys, nil
}
