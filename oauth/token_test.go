package oauth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cody-dot-js/mock-api-server/mockapi"
	"github.com/cody-dot-js/mock-api-server/oauth"
)

var hmacSecret = []byte("dev-secret")

func init() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	iss, err := oauth.NewIssuer(key, "kid-1", oauth.TokenOptions{
		Issuer:   "http://issuer.local",
		Audience: "api",
		TTL:      10 * time.Minute,
	})
	if err != nil {
		panic(err)
	}
	mockapi.Register("oauth-rs256", func() []mockapi.Route {
		return []mockapi.Route{
			{Path: "/.well-known/jwks.json", Response: iss.JWKS()},
			{Path: "/token", Response: iss.Token()},
		}
	})

	mockapi.Register("oauth-hs256", func() []mockapi.Route {
		return []mockapi.Route{{
			Path:     "/oauth/token",
			Response: oauth.HS256Token(hmacSecret, oauth.TokenOptions{Issuer: "mock", Scope: "read"}),
		}}
	})
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

func fetchToken(t *testing.T, endpoint string, form url.Values) tokenBody {
	t.Helper()
	resp, err := http.PostForm(endpoint, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var body tokenBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHS256TokenEndpoint(t *testing.T) {
	srv, err := mockapi.New(mockapi.Config{Name: "oauth-hs256"})
	require.NoError(t, err)
	defer srv.Close()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := fetchToken(t, ts.URL+"/oauth/token", url.Values{"sub": {"svc_account"}})
	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, 3600, body.ExpiresIn)
	assert.Equal(t, "read", body.Scope)

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(body.AccessToken, claims, func(*jwt.Token) (any, error) {
		return hmacSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer("mock"))
	require.NoError(t, err)
	require.True(t, tok.Valid)
	assert.Equal(t, "svc_account", claims["sub"])
}

func TestIssuerTokenVerifiesAgainstJWKS(t *testing.T) {
	srv, err := mockapi.New(mockapi.Config{Name: "oauth-rs256"})
	require.NoError(t, err)
	defer srv.Close()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "kid-1", doc.Keys[0].Kid)

	n, err := base64.RawURLEncoding.DecodeString(doc.Keys[0].N)
	require.NoError(t, err)
	e, err := base64.RawURLEncoding.DecodeString(doc.Keys[0].E)
	require.NoError(t, err)
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}

	body := fetchToken(t, ts.URL+"/token", nil)
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(body.AccessToken, claims, func(tk *jwt.Token) (any, error) {
		assert.Equal(t, "kid-1", tk.Header["kid"])
		return pub, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience("api"), jwt.WithIssuer("http://issuer.local"))
	require.NoError(t, err)
	require.True(t, tok.Valid)
	assert.Equal(t, "user_123", claims["sub"])
	assert.Equal(t, 600, body.ExpiresIn)
}

func TestNewIssuerRequiresKeyAndKid(t *testing.T) {
	_, err := oauth.NewIssuer(nil, "kid", oauth.TokenOptions{})
	assert.Error(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	_, err = oauth.NewIssuer(key, "", oauth.TokenOptions{})
	assert.Error(t, err)
}
