package identity

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims carried by an identity-provider access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
	SessionID    string         `json:"session_id"`
}

// MetadataRole returns the role embedded in the token metadata, app metadata
// first.
func (c *AccessClaims) MetadataRole() string {
	if v, ok := c.AppMetadata["role"].(string); ok && v != "" {
		return v
	}
	if v, ok := c.UserMetadata["role"].(string); ok {
		return v
	}
	return ""
}

// Verifier validates access tokens locally without a round trip to the
// identity backend. Projects signing with a shared secret verify via HS256;
// projects on asymmetric keys verify via the published JWKS. Both can be
// configured at once, and the token's own header decides which path runs.
type Verifier struct {
	secret  []byte
	jwksURL string

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

// NewVerifier builds a verifier. secret enables the HS256 path, jwksURL the
// RS256 path; either may be empty.
func NewVerifier(secret, jwksURL string) *Verifier {
	return &Verifier{secret: []byte(secret), jwksURL: jwksURL}
}

// Verify parses and validates an access token, returning its claims.
func (v *Verifier) Verify(tokenString string) (*AccessClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &AccessClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}

	alg, _ := token.Header["alg"].(string)
	if strings.HasPrefix(alg, "RS") {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, ErrInvalidToken
		}
		return v.verifyRSA(tokenString, kid)
	}
	return v.verifyHMAC(tokenString)
}

func (v *Verifier) verifyHMAC(tokenString string) (*AccessClaims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("identity: no verification secret configured")
	}
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) verifyRSA(tokenString, kid string) (*AccessClaims, error) {
	pubKey, err := v.publicKey(kid)
	if err != nil {
		return nil, err
	}
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pubKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// publicKey returns the cached JWKS key for kid, refetching the key set when
// the cache is stale or the kid is unknown (key rotation).
func (v *Verifier) publicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	if time.Now().Before(v.expires) {
		if key, ok := v.keys[kid]; ok {
			v.mu.RUnlock()
			return key, nil
		}
	}
	v.mu.RUnlock()

	if v.jwksURL == "" {
		return nil, fmt.Errorf("identity: no JWKS URL configured")
	}

	keys, err := fetchJWKS(v.jwksURL)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.keys = keys
	v.expires = time.Now().Add(time.Hour)
	v.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("identity: key %s not found in JWKS", kid)
	}
	return key, nil
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func fetchJWKS(url string) (map[string]*rsa.PublicKey, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("identity: fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity: JWKS request failed with status %d", resp.StatusCode)
	}

	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("identity: decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pubKey
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("identity: no valid RSA keys found in JWKS")
	}
	return keys, nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
