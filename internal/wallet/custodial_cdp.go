//go:build cdp

package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// CustodialSupported reports whether FromCustodialAccount is available.
const CustodialSupported = true

// DefaultAccountName is used when no account name is configured.
const DefaultAccountName = "x402mail"

var errIncompleteCustodial = errors.New("custodial wallet requires CDP_API_KEY_ID, CDP_API_KEY_SECRET and CDP_WALLET_SECRET")

// CustodialSigner signs through the CDP server-wallet API.
type CustodialSigner struct {
	api  *cdpClient
	addr common.Address
}

// FromCustodialAccount looks up (or creates) the named server-wallet account.
// The call blocks until the account is resolved or ctx is done.
func FromCustodialAccount(ctx context.Context, creds CustodialCredentials) (Signer, error) {
	if !creds.Complete() {
		return nil, errIncompleteCustodial
	}

	api, err := newCDPClient(creds)
	if err != nil {
		return nil, fmt.Errorf("newCDPClient failed: %w", err)
	}

	name := creds.AccountName
	if name == "" {
		name = DefaultAccountName
	}

	acct, err := api.accountByName(ctx, name)
	var apiErr *cdpError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		acct, err = api.createAccount(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve account %q failed: %w", name, err)
	}

	if !common.IsHexAddress(acct.Address) {
		return nil, fmt.Errorf("custody API returned bad address %q", acct.Address)
	}

	return &CustodialSigner{api: api, addr: common.HexToAddress(acct.Address)}, nil
}

// Address implements Signer.
func (s *CustodialSigner) Address() common.Address {
	return s.addr
}

// SignTypedData implements Signer.
func (s *CustodialSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	var chainID int64
	if data.Domain.ChainId != nil {
		chainID = (*big.Int)(data.Domain.ChainId).Int64()
	}

	req := signTypedDataRequest{
		Domain: typedDataDomain{
			Name:              data.Domain.Name,
			Version:           data.Domain.Version,
			ChainID:           chainID,
			VerifyingContract: data.Domain.VerifyingContract,
		},
		Types:       data.Types,
		PrimaryType: data.PrimaryType,
		Message:     plainMessage(data.Message),
	}

	var resp signatureResponse
	path := fmt.Sprintf("/v2/evm/accounts/%s/sign/typed-data", s.addr.Hex())
	if err := s.api.do(ctx, http.MethodPost, path, req, true, &resp); err != nil {
		return nil, fmt.Errorf("sign typed data failed: %w", err)
	}

	sig, err := hexutil.Decode(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("hexutil.Decode failed: %w", err)
	}

	return sig, nil
}

type typedDataDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

type signTypedDataRequest struct {
	Domain      typedDataDomain `json:"domain"`
	Types       apitypes.Types  `json:"types"`
	PrimaryType string          `json:"primaryType"`
	Message     map[string]any  `json:"message"`
}

type signatureResponse struct {
	Signature string `json:"signature"`
}

// plainMessage renders uint256 values as decimal strings.
func plainMessage(msg apitypes.TypedDataMessage) map[string]any {
	out := make(map[string]any, len(msg))
	for k, v := range msg {
		if n, ok := v.(*math.HexOrDecimal256); ok && n != nil {
			out[k] = (*big.Int)(n).String()
			continue
		}
		out[k] = v
	}
	return out
}
