package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/mr-tron/base58"

	"github.com/HefaCom/health-florence-sub002/internal/apperr"
	"github.com/HefaCom/health-florence-sub002/internal/metrics"
)

const (
	xrplAlphabet          = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
	accountIDVersion byte = 0x00
	accountIDLen          = 20
	checksumLen           = 4

	methodAccountInfo = "account_info"
)

var xrplBase58 = base58.NewAlphabet(xrplAlphabet)

// ErrInvalidAddress is returned for strings that are not classic ledger addresses
var ErrInvalidAddress = apperr.Validation("Invalid wallet address")

// XRPLClient queries a rippled JSON-RPC node
type XRPLClient struct {
	rpcClient jsonrpc.RPCClient
	rpcURL    string
}

// NewXRPLClient creates a client for the node at rpcURL
func NewXRPLClient(rpcURL string, httpClient *http.Client) *XRPLClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &XRPLClient{
		rpcClient: jsonrpc.NewClientWithOpts(rpcURL, &jsonrpc.RPCClientOpts{
			HTTPClient: statusCheckingClient{httpClient},
		}),
		rpcURL: rpcURL,
	}
}

// statusCheckingClient fails every response outside 2xx. The jsonrpc client only
// reports a status when the body does not decode as a JSON-RPC response.
type statusCheckingClient struct {
	*http.Client
}

func (c statusCheckingClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("ledger node %s returned status %d", req.URL.Redacted(), resp.StatusCode)
	}
	return resp, nil
}

// accountInfoResult is the part of the account_info result we read.
// rippled reports request-level failures inside result with status "error".
type accountInfoResult struct {
	AccountData *struct {
		Account string `json:"Account"`
		Balance string `json:"Balance"`
	} `json:"account_data"`
	Validated    bool   `json:"validated"`
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// AccountBalance returns the account's native balance in drops at the latest validated ledger
func (c *XRPLClient) AccountBalance(ctx context.Context, address string) (string, error) {
	if err := ValidateAddress(address); err != nil {
		return "", err
	}

	params := []interface{}{
		map[string]interface{}{
			"account":      address,
			"ledger_index": "validated",
			"strict":       true,
		},
	}

	var out accountInfoResult
	start := time.Now()
	err := c.rpcClient.CallForInto(ctx, &out, methodAccountInfo, params)
	metrics.RecordLedgerCall(methodAccountInfo, time.Since(start), err == nil && out.Status != "error")
	if err != nil {
		return "", fmt.Errorf("account_info request failed: %w", err)
	}

	if out.Status == "error" {
		return "", fmt.Errorf("account_info failed: %s %s", out.Error, out.ErrorMessage)
	}
	if out.AccountData == nil || out.AccountData.Balance == "" {
		return "", errors.New("account_info response has no balance")
	}

	return out.AccountData.Balance, nil
}

// ValidateAddress checks a classic address: base58 in the ledger alphabet, a zero
// version byte, a 20-byte account id and a double-SHA256 checksum.
func ValidateAddress(address string) error {
	if address == "" || address[0] != 'r' {
		return ErrInvalidAddress
	}

	decoded, err := base58.DecodeAlphabet(address, xrplBase58)
	if err != nil {
		return ErrInvalidAddress
	}
	if len(decoded) != 1+accountIDLen+checksumLen || decoded[0] != accountIDVersion {
		return ErrInvalidAddress
	}

	payload := decoded[:1+accountIDLen]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:checksumLen], decoded[1+accountIDLen:]) {
		return ErrInvalidAddress
	}
	return nil
}
