// Package auth verifies bearer tokens presented to the fleet API.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ModeOff  = "off"
	ModeDev  = "dev"
	ModeHMAC = "hmac"

	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

var (
	ErrMalformed    = errors.New("auth: malformed token")
	ErrBadSignature = errors.New("auth: bad signature")
	ErrExpired      = errors.New("auth: token expired")
)

// Principal is the caller behind a token.
type Principal struct {
	Subject string
	Role    string
}

// CanOperate reports whether the principal may change fleet state.
func (p Principal) CanOperate() bool { return p.Role == RoleOperator }

// Verifier checks tokens in one of three modes:
//
//	off   every caller is an operator
//	dev   token is "subject:role", unsigned
//	hmac  HS256 JWT with sub, role and optional exp claims
type Verifier struct {
	Mode   string
	Secret []byte
	Now    func() time.Time
}

func NewVerifier(mode, secret string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeDev
	}
	switch mode {
	case ModeOff, ModeDev:
	case ModeHMAC:
		if secret == "" {
			return nil, errors.New("auth: hmac mode needs a secret")
		}
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", mode)
	}
	return &Verifier{Mode: mode, Secret: []byte(secret), Now: time.Now}, nil
}

// Anonymous is the principal used when no token is presented.
func (v *Verifier) Anonymous() Principal {
	if v.Mode == ModeOff {
		return Principal{Subject: "anonymous", Role: RoleOperator}
	}
	return Principal{Subject: "anonymous", Role: RoleViewer}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case ModeOff:
		return v.Anonymous(), nil
	case ModeDev:
		sub, role, ok := strings.Cut(token, ":")
		if !ok || sub == "" || role == "" {
			return Principal{}, fmt.Errorf("%w: expected subject:role", ErrMalformed)
		}
		return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
	}

	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrMalformed
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, fmt.Errorf("%w: alg %q", ErrMalformed, hdr.Alg)
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, ErrMalformed
	}
	if !hmac.Equal(v.sign(segs[0]+"."+segs[1]), sig) {
		return Principal{}, ErrBadSignature
	}
	var claims struct {
		Sub  string `json:"sub"`
		Role string `json:"role"`
		Exp  int64  `json:"exp"`
	}
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	if claims.Exp != 0 && v.Now().Unix() >= claims.Exp {
		return Principal{}, ErrExpired
	}
	role := strings.ToLower(claims.Role)
	if role == "" {
		role = RoleViewer
	}
	return Principal{Subject: claims.Sub, Role: role}, nil
}

// Sign issues an HS256 token for sub and role. A zero ttl never expires.
func (v *Verifier) Sign(sub, role string, ttl time.Duration) (string, error) {
	claims := map[string]any{"sub": sub, "role": role}
	if ttl > 0 {
		claims["exp"] = v.Now().Add(ttl).Unix()
	}
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := base64.RawURLEncoding.EncodeToString(hdr) + "." + base64.RawURLEncoding.EncodeToString(body)
	return input + "." + base64.RawURLEncoding.EncodeToString(v.sign(input)), nil
}

func (v *Verifier) sign(input string) []byte {
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

func decodeSegment(seg string, dst any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return ErrMalformed
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
