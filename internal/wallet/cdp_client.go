//go:build cdp

package wallet

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultCDPBaseURL = "https://api.cdp.coinbase.com/platform"
	cdpJWTLifetime    = 120 * time.Second
)

type cdpError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("custody API %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type cdpAccount struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// cdpClient is a minimal client for the CDP v2 EVM account endpoints.
type cdpClient struct {
	base       *url.URL
	keyID      string
	apiKey     any
	apiMethod  jwt.SigningMethod
	walletKey  *ecdsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

func newCDPClient(creds CustodialCredentials) (*cdpClient, error) {
	raw := creds.BaseURL
	if raw == "" {
		raw = defaultCDPBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("url.Parse failed: %w", err)
	}

	apiKey, method, err := parseAPIKeySecret(creds.APIKeySecret)
	if err != nil {
		return nil, fmt.Errorf("parse CDP_API_KEY_SECRET failed: %w", err)
	}

	walletKey, err := parseWalletSecret(creds.WalletSecret)
	if err != nil {
		return nil, fmt.Errorf("parse CDP_WALLET_SECRET failed: %w", err)
	}

	return &cdpClient{
		base:       base,
		keyID:      creds.APIKeyID,
		apiKey:     apiKey,
		apiMethod:  method,
		walletKey:  walletKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

// parseAPIKeySecret accepts either a base64 Ed25519 key or a PEM EC key.
func parseAPIKeySecret(secret string) (any, jwt.SigningMethod, error) {
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), jwt.SigningMethodEdDSA, nil
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(strings.ReplaceAll(secret, `\n`, "\n")))
	if err != nil {
		return nil, nil, fmt.Errorf("neither Ed25519 nor EC PEM: %w", err)
	}

	return key, jwt.SigningMethodES256, nil
}

func parseWalletSecret(secret string) (*ecdsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("x509.ParsePKCS8PrivateKey failed: %w", err)
	}

	ec, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("wallet secret is %T, want ECDSA", key)
	}

	return ec, nil
}

func (c *cdpClient) accountByName(ctx context.Context, name string) (*cdpAccount, error) {
	var acct cdpAccount
	if err := c.do(ctx, http.MethodGet, "/v2/evm/accounts/by-name/"+url.PathEscape(name), nil, false, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *cdpClient) createAccount(ctx context.Context, name string) (*cdpAccount, error) {
	var acct cdpAccount
	if err := c.do(ctx, http.MethodPost, "/v2/evm/accounts", map[string]string{"name": name}, true, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *cdpClient) do(ctx context.Context, method, path string, body any, walletAuth bool, out any) error {
	target := *c.base
	target.Path = c.base.Path + path

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("json.Marshal failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	uri := method + " " + target.Host + target.Path

	bearer, err := c.bearerToken(uri)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	if walletAuth {
		walletJWT, err := c.walletToken(uri, payload)
		if err != nil {
			return err
		}
		req.Header.Set("X-Wallet-Auth", walletJWT)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpClient.Do failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("io.ReadAll failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &cdpError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	return nil
}

func (c *cdpClient) bearerToken(uri string) (string, error) {
	now := c.now()
	tok := jwt.NewWithClaims(c.apiMethod, jwt.MapClaims{
		"sub":  c.keyID,
		"iss":  "cdp",
		"aud":  []string{"cdp_service"},
		"nbf":  now.Unix(),
		"exp":  now.Add(cdpJWTLifetime).Unix(),
		"uris": []string{uri},
	})
	tok.Header["kid"] = c.keyID
	tok.Header["nonce"] = strings.ReplaceAll(uuid.NewString(), "-", "")

	signed, err := tok.SignedString(c.apiKey)
	if err != nil {
		return "", fmt.Errorf("sign bearer token failed: %w", err)
	}
	return signed, nil
}

func (c *cdpClient) walletToken(uri string, body []byte) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"jti":  uuid.NewString(),
		"uris": []string{uri},
	}

	if len(body) > 0 {
		hash, err := requestHash(body)
		if err != nil {
			return "", err
		}
		claims["reqHash"] = hash
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(c.walletKey)
	if err != nil {
		return "", fmt.Errorf("sign wallet token failed: %w", err)
	}
	return signed, nil
}

// requestHash hashes the body re-encoded with sorted keys.
func requestHash(body []byte) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	sorted, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("json.Marshal failed: %w", err)
	}

	sum := sha256.Sum256(sorted)
	return hex.EncodeToString(sum[:]), nil
}
