// Package config resolves x402mail settings from the process environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"

	"github.com/x402mail/x402mail-go/internal/wallet"
)

// Environment variable names.
const (
	EnvPrivateKey      = "X402MAIL_PRIVATE_KEY"
	EnvServerURL       = "X402MAIL_SERVER_URL"
	EnvCDPAccount      = "X402MAIL_CDP_ACCOUNT"
	EnvCDPAPIKeyID     = "CDP_API_KEY_ID"
	EnvCDPAPIKeySecret = "CDP_API_KEY_SECRET"
	EnvCDPWalletSecret = "CDP_WALLET_SECRET"
)

// ErrMissingCredential indicates that neither a private key nor a complete
// set of custodial secrets is configured.
var ErrMissingCredential = errors.New(EnvPrivateKey + " environment variable is required. Set it to your Ethereum private key (0x...)")

// CredentialKind tells which signer strategy a Config selects.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialPrivateKey
	CredentialCustodial
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialPrivateKey:
		return "private-key"
	case CredentialCustodial:
		return "custodial"
	default:
		return "none"
	}
}

// Config holds the resolved settings for one mail client.
type Config struct {
	PrivateKey string
	Custodial  wallet.CustodialCredentials
	// ServerURL overrides the default API host. Empty means default.
	ServerURL string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("godotenv.Load failed: %w", err)
	}
	return nil
}

// FromEnv reads a Config through getenv, usually os.Getenv.
func FromEnv(getenv func(string) string) Config {
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	return Config{
		PrivateKey: get(EnvPrivateKey),
		Custodial: wallet.CustodialCredentials{
			APIKeyID:     get(EnvCDPAPIKeyID),
			APIKeySecret: get(EnvCDPAPIKeySecret),
			WalletSecret: get(EnvCDPWalletSecret),
			AccountName:  get(EnvCDPAccount),
		},
		ServerURL: get(EnvServerURL),
	}
}

// Kind reports which credential form is present. A private key wins over
// custodial secrets.
func (c Config) Kind() CredentialKind {
	switch {
	case c.PrivateKey != "":
		return CredentialPrivateKey
	case c.Custodial.Complete():
		return CredentialCustodial
	default:
		return CredentialNone
	}
}

// Ambiguous reports whether both credential forms are configured.
func (c Config) Ambiguous() bool {
	return c.PrivateKey != "" && c.Custodial.Complete()
}

// Validate fails with ErrMissingCredential when no usable credential exists.
func (c Config) Validate() error {
	if c.Kind() != CredentialNone {
		return nil
	}

	if missing := c.missingCustodial(); len(missing) > 0 && len(missing) < 3 {
		return fmt.Errorf("%w (custodial wallet is missing %s)", ErrMissingCredential, strings.Join(missing, ", "))
	}

	return ErrMissingCredential
}

// Signer resolves the configured credential. The private-key path never
// touches the network; the custodial path blocks until ctx is done or the
// account is resolved.
func (c Config) Signer(ctx context.Context) (wallet.Signer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.Kind() == CredentialPrivateKey {
		s, err := wallet.FromPrivateKey(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvPrivateKey, err)
		}
		return s, nil
	}

	s, err := wallet.FromCustodialAccount(ctx, c.Custodial)
	if err != nil {
		return nil, fmt.Errorf("wallet.FromCustodialAccount failed: %w", err)
	}
	return s, nil
}

func (c Config) missingCustodial() []string {
	var missing []string
	if c.Custodial.APIKeyID == "" {
		missing = append(missing, EnvCDPAPIKeyID)
	}
	if c.Custodial.APIKeySecret == "" {
		missing = append(missing, EnvCDPAPIKeySecret)
	}
	if c.Custodial.WalletSecret == "" {
		missing = append(missing, EnvCDPWalletSecret)
	}
	return missing
}
