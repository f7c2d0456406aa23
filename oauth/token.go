// Package oauth provides mockapi response specs that stand in for an OAuth2
// token endpoint and the JWKS document that verifies its tokens.
package oauth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cody-dot-js/mock-api-server/mockapi"
)

const defaultSubject = "user_123"

type TokenOptions struct {
	Issuer   string
	Audience string
	// TTL of minted tokens; defaults to one hour.
	TTL time.Duration
	// Scope, when set, is echoed in the token response and the "scope" claim.
	Scope string
}

func (o TokenOptions) ttl() time.Duration {
	if o.TTL <= 0 {
		return time.Hour
	}
	return o.TTL
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// HS256Token answers with a fresh HS256 access token for the request's "sub"
// form or query value (default "user_123").
func HS256Token(secret []byte, opts TokenOptions) mockapi.Dynamic {
	return func(r *http.Request) (mockapi.Response, error) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor(r, opts))
		s, err := tok.SignedString(secret)
		if err != nil {
			return mockapi.Response{}, err
		}
		return tokenJSON(s, opts)
	}
}

// Issuer signs RS256 tokens with one key and publishes it as a JWKS document.
type Issuer struct {
	key  *rsa.PrivateKey
	kid  string
	opts TokenOptions
}

func NewIssuer(key *rsa.PrivateKey, kid string, opts TokenOptions) (*Issuer, error) {
	if key == nil {
		return nil, errors.New("oauth: nil signing key")
	}
	if kid == "" {
		return nil, errors.New("oauth: kid required")
	}
	return &Issuer{key: key, kid: kid, opts: opts}, nil
}

// Token answers with a fresh RS256 access token carrying the issuer's kid.
func (i *Issuer) Token() mockapi.Dynamic {
	return func(r *http.Request) (mockapi.Response, error) {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsFor(r, i.opts))
		tok.Header["kid"] = i.kid
		s, err := tok.SignedString(i.key)
		if err != nil {
			return mockapi.Response{}, err
		}
		return tokenJSON(s, i.opts)
	}
}

type jwksDoc struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the static key set document for the issuer's public key.
func (i *Issuer) JWKS() mockapi.Static {
	pub := i.key.PublicKey
	doc := jwksDoc{Keys: []jwkKey{{
		Kty: "RSA",
		Kid: i.kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(intToBytes(pub.E)),
	}}}
	b, _ := json.Marshal(doc)
	return mockapi.Static{
		Headers: []mockapi.Header{{Name: "Content-Type", Value: "application/json"}},
		Body:    b,
	}
}

func claimsFor(r *http.Request, opts TokenOptions) jwt.MapClaims {
	sub := r.FormValue("sub")
	if sub == "" {
		sub = defaultSubject
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
		"exp": now.Add(opts.ttl()).Unix(),
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	if opts.Scope != "" {
		claims["scope"] = opts.Scope
	}
	return claims
}

func tokenJSON(token string, opts TokenOptions) (mockapi.Response, error) {
	b, err := json.Marshal(tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(opts.ttl().Seconds()),
		Scope:       opts.Scope,
	})
	if err != nil {
		return mockapi.Response{}, err
	}
	return mockapi.Response{
		Status: http.StatusOK,
		Headers: []mockapi.Header{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "Cache-Control", Value: "no-store"},
		},
		Body: b,
	}, nil
}

func intToBytes(v int) []byte {
	b := big.NewInt(int64(v)).Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}
