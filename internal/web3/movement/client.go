package movement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/web3"
	"ForesightX/pkg/logger"
)

// Default transaction parameters.
const (
	DefaultMaxGasAmount = 200000
	DefaultExpiration   = 20 * time.Second
	DefaultWaitTimeout  = 20 * time.Second
	DefaultPollInterval = 500 * time.Millisecond

	defaultGasUnitPrice = 100
)

// AptosCoin is the native coin type used for MOVE balances.
const AptosCoin = "0x1::aptos_coin::AptosCoin"

// Config describes how to construct a Movement fullnode client.
type Config struct {
	Network      web3.Network
	HTTPClient   *http.Client
	MaxGasAmount uint64
	Expiration   time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
	// Now is used for expiration timestamps; defaults to time.Now.
	Now func() time.Time
}

// Client implements web3.Client against the fullnode REST API.
type Client struct {
	network      web3.Network
	baseURL      string
	http         *http.Client
	maxGas       uint64
	expiration   time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

var _ web3.Client = (*Client)(nil)

// NewClient validates the configuration and returns a ready-to-use client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.Network.FullnodeURL), "/")
	if base == "" {
		return nil, errors.New("movement fullnode url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid fullnode url: %w", err)
	}
	c := &Client{
		network:      cfg.Network,
		baseURL:      base,
		http:         cfg.HTTPClient,
		maxGas:       cfg.MaxGasAmount,
		expiration:   cfg.Expiration,
		waitTimeout:  cfg.WaitTimeout,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.maxGas == 0 {
		c.maxGas = DefaultMaxGasAmount
	}
	if c.expiration <= 0 {
		c.expiration = DefaultExpiration
	}
	if c.waitTimeout <= 0 {
		c.waitTimeout = DefaultWaitTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Network returns the network this client talks to.
func (c *Client) Network() web3.Network { return c.network }

// ExplorerURL returns the explorer link for a transaction.
func (c *Client) ExplorerURL(hash string) string { return c.network.ExplorerTxURL(hash) }

// Close is a no-op; the HTTP client holds no dedicated resources.
func (c *Client) Close() {}

// LedgerInfo queries the fullnode index endpoint.
func (c *Client) LedgerInfo(ctx context.Context) (web3.LedgerInfo, error) {
	var info web3.LedgerInfo
	if err := c.do(ctx, http.MethodGet, "", nil, &info); err != nil {
		return web3.LedgerInfo{}, err
	}
	return info, nil
}

// AccountSequence returns the next sequence number of an account.
func (c *Client) AccountSequence(ctx context.Context, address string) (uint64, error) {
	var resp struct {
		SequenceNumber    string `json:"sequence_number"`
		AuthenticationKey string `json:"authentication_key"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+address, nil, &resp); err != nil {
		return 0, err
	}
	seq, err := strconv.ParseUint(resp.SequenceNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sequence number %q: %w", resp.SequenceNumber, err)
	}
	return seq, nil
}

// EstimateGasPrice returns the fullnode's gas unit price estimate.
func (c *Client) EstimateGasPrice(ctx context.Context) (uint64, error) {
	var resp struct {
		GasEstimate uint64 `json:"gas_estimate"`
	}
	if err := c.do(ctx, http.MethodGet, "/estimate_gas_price", nil, &resp); err != nil {
		return 0, err
	}
	if resp.GasEstimate == 0 {
		return defaultGasUnitPrice, nil
	}
	return resp.GasEstimate, nil
}

// View executes a view function and returns its raw return values.
func (c *Client) View(ctx context.Context, fn web3.EntryFunction) ([]any, error) {
	body := viewRequest{
		Function:      fn.Function,
		TypeArguments: nonNilStrings(fn.TypeArguments),
		Arguments:     NormalizeArguments(fn.Arguments),
	}
	var out []any
	if err := c.do(ctx, http.MethodPost, "/view", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the MOVE balance of an account in octas.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	values, err := c.View(ctx, web3.EntryFunction{
		Function:      "0x1::coin::balance",
		TypeArguments: []string{AptosCoin},
		Arguments:     []any{address},
	})
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, errors.New("balance view returned no values")
	}
	raw := fmt.Sprint(values[0])
	balance, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return balance, nil
}

// BuildTransaction resolves the sender's sequence number and gas price and
// assembles an unsigned transaction for the entry function.
func (c *Client) BuildTransaction(ctx context.Context, sender string, fn web3.EntryFunction) (*Transaction, error) {
	if err := fn.Validate(); err != nil {
		return nil, err
	}
	seq, err := c.AccountSequence(ctx, sender)
	if err != nil {
		return nil, err
	}
	gasPrice, err := c.EstimateGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Sender:                  sender,
		SequenceNumber:          strconv.FormatUint(seq, 10),
		MaxGasAmount:            strconv.FormatUint(c.maxGas, 10),
		GasUnitPrice:            strconv.FormatUint(gasPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(c.now().Add(c.expiration).Unix(), 10),
		Payload: Payload{
			Type:          entryFunctionPayload,
			Function:      fn.Function,
			TypeArguments: nonNilStrings(fn.TypeArguments),
			Arguments:     NormalizeArguments(fn.Arguments),
		},
	}, nil
}

// SignTransaction asks the fullnode for the BCS signing message and signs it.
func (c *Client) SignTransaction(ctx context.Context, signer web3.Signer, tx *Transaction) (*SignedTransaction, error) {
	var encoded string
	if err := c.do(ctx, http.MethodPost, "/transactions/encode_submission", tx, &encoded); err != nil {
		return nil, err
	}
	message, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode signing message: %w", err)
	}
	return &SignedTransaction{
		Transaction: *tx,
		Signature: Signature{
			Type:      ed25519SignatureType,
			PublicKey: signer.PublicKeyHex(),
			Signature: hexutil.Encode(signer.Sign(message)),
		},
	}, nil
}

// SubmitTransaction submits a signed transaction and returns its hash.
func (c *Client) SubmitTransaction(ctx context.Context, signed *SignedTransaction) (string, error) {
	var pending struct {
		Hash string `json:"hash"`
	}
	if err := c.do(ctx, http.MethodPost, "/transactions", signed, &pending); err != nil {
		return "", err
	}
	if pending.Hash == "" {
		return "", errors.New("fullnode returned empty transaction hash")
	}
	return pending.Hash, nil
}

// WaitForTransaction polls the transaction until it is committed. A committed
// transaction that failed in the VM is returned together with an error.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) (*web3.TransactionResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var resp transactionResponse
		err := c.do(waitCtx, http.MethodGet, "/transactions/by_hash/"+hash, nil, &resp)
		var apiErr *APIError
		switch {
		case err == nil && resp.Type != pendingTransactionType:
			result := resp.result()
			if !result.Success {
				return &result, fmt.Errorf("transaction %s failed: %s", hash, result.VMStatus)
			}
			return &result, nil
		case err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound):
			if waitCtx.Err() != nil {
				return nil, fmt.Errorf("wait for transaction %s: %w", hash, waitCtx.Err())
			}
			return nil, err
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("wait for transaction %s: %w", hash, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// SubmitEntryFunction builds, signs, submits and waits for an entry function
// transaction. Failures are reported as CHAIN_FAILURE errors.
func (c *Client) SubmitEntryFunction(ctx context.Context, signer web3.Signer, fn web3.EntryFunction) (*web3.TransactionResult, error) {
	log := logger.Named("movement")

	tx, err := c.BuildTransaction(ctx, signer.Address(), fn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "")
	}
	signed, err := c.SignTransaction(ctx, signer, tx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "")
	}
	hash, err := c.SubmitTransaction(ctx, signed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "")
	}
	logger.Audit().Info("transaction submitted",
		"network", c.network.Name,
		"sender", signer.Address(),
		"function", fn.Function,
		"hash", hash,
	)

	result, err := c.WaitForTransaction(ctx, hash)
	if err != nil {
		log.Warn("transaction not confirmed", "hash", hash, "error", err)
		return result, xerrors.Wrap(xerrors.CodeChainFailure, err, "", xerrors.WithMetadata("hash", hash))
	}
	log.Info("transaction committed", "hash", hash, "version", result.Version, "gas_used", result.GasUsed)
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
