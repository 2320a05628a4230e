package movement

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ForesightX/internal/web3"
)

const (
	entryFunctionPayload   = "entry_function_payload"
	ed25519SignatureType   = "ed25519_signature"
	pendingTransactionType = "pending_transaction"
)

// Payload is the JSON form of an entry function payload.
type Payload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// Transaction is an unsigned user transaction in fullnode JSON form.
type Transaction struct {
	Sender                  string  `json:"sender"`
	SequenceNumber          string  `json:"sequence_number"`
	MaxGasAmount            string  `json:"max_gas_amount"`
	GasUnitPrice            string  `json:"gas_unit_price"`
	ExpirationTimestampSecs string  `json:"expiration_timestamp_secs"`
	Payload                 Payload `json:"payload"`
}

// Signature is a single ed25519 transaction authenticator.
type Signature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// SignedTransaction is the body accepted by POST /transactions.
type SignedTransaction struct {
	Transaction
	Signature Signature `json:"signature"`
}

type viewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type transactionResponse struct {
	Type      string `json:"type"`
	Hash      string `json:"hash"`
	Version   string `json:"version"`
	Sender    string `json:"sender"`
	Success   bool   `json:"success"`
	VMStatus  string `json:"vm_status"`
	GasUsed   string `json:"gas_used"`
	Timestamp string `json:"timestamp"`
}

func (r transactionResponse) result() web3.TransactionResult {
	return web3.TransactionResult{
		Hash:      r.Hash,
		Version:   r.Version,
		Sender:    r.Sender,
		Success:   r.Success,
		VMStatus:  r.VMStatus,
		GasUsed:   r.GasUsed,
		Timestamp: r.Timestamp,
	}
}

// APIError is an error body returned by the fullnode.
type APIError struct {
	StatusCode  int    `json:"-"`
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode int    `json:"vm_error_code"`
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("fullnode %d %s: %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("fullnode %d: %s", e.StatusCode, e.Message)
}

// NormalizeArguments converts generated JSON arguments into the form the
// fullnode encoder expects. Integral numbers become decimal strings because
// u64/u128 arguments are string encoded; nested arrays are handled
// recursively. Other values pass through unchanged.
func NormalizeArguments(args []any) []any {
	out := make([]any, 0, len(args))
	for _, arg := range args {
		out = append(out, normalizeArgument(arg))
	}
	return out
}

func normalizeArgument(arg any) any {
	switch v := arg.(type) {
	case json.Number:
		s := v.String()
		if !strings.ContainsAny(s, ".eE") {
			return s
		}
		if f, err := v.Float64(); err == nil {
			return normalizeArgument(f)
		}
		return s
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1<<63 {
			return strconv.FormatInt(int64(v), 10)
		}
		return v
	case float32:
		return normalizeArgument(float64(v))
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case []any:
		return NormalizeArguments(v)
	default:
		return arg
	}
}
