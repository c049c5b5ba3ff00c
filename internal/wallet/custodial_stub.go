//go:build !cdp

package wallet

import "context"

// CustodialSupported reports whether FromCustodialAccount is available.
const CustodialSupported = false

// FromCustodialAccount always fails in builds without the cdp tag.
func FromCustodialAccount(_ context.Context, _ CustodialCredentials) (Signer, error) {
	return nil, ErrCustodialUnavailable
}
