// Package nearrpc is a minimal JSON-RPC 2.0 client for the ledger node:
// read-only contract calls and transaction status lookups.
package nearrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"io"
	"net/http"
	"time"
)

// ErrTransport marks failures to reach the node at all, as opposed to the
// node answering with an error.
var ErrTransport = errors.New("rpc transport")

// ErrUnknownTransaction is returned by TxStatus while the node has not seen
// the transaction yet.
var ErrUnknownTransaction = errors.New("unknown transaction")

// Error is an error object returned by the node.
type Error struct {
	Name    string          `json:"name"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Cause   struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info,omitempty"`
	} `json:"cause"`
}

func (e *Error) Error() string {
	reason := e.Cause.Name
	if reason == "" {
		reason = e.Message
	}
	if len(e.Data) > 0 {
		var s string
		if json.Unmarshal(e.Data, &s) == nil && s != "" {
			reason += ": " + s
		}
	}
	return fmt.Sprintf("rpc %s: %s", e.Name, reason)
}

type Client struct {
	URL  string
	HTTP *http.Client
	Log  *zap.Logger
}

func New(url string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{URL: url, HTTP: &http.Client{Timeout: timeout}, Log: log}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: "dontcare", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if res.StatusCode >= 500 && len(raw) == 0 {
		return fmt.Errorf("%w: http %d", ErrTransport, res.StatusCode)
	}

	var rr response
	if err := json.Unmarshal(raw, &rr); err != nil {
		if res.StatusCode >= 500 {
			return fmt.Errorf("%w: http %d", ErrTransport, res.StatusCode)
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rr.Error != nil {
		c.Log.Debug("rpc error", zap.String("method", method), zap.String("name", rr.Error.Cause.Name))
		if rr.Error.Cause.Name == "UNKNOWN_TRANSACTION" {
			return ErrUnknownTransaction
		}
		return rr.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rr.Result, out)
}

type callFunctionParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

type callFunctionResult struct {
	Raw   []int    `json:"result"`
	Logs  []string `json:"logs"`
	Error string   `json:"error,omitempty"`
}

// CallFunction runs a read-only contract method against final state and
// returns the raw bytes it produced (JSON for the contracts we talk to).
func (c *Client) CallFunction(ctx context.Context, contractID, method string, args any) ([]byte, error) {
	if args == nil {
		args = struct{}{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	var out callFunctionResult
	err = c.call(ctx, "query", callFunctionParams{
		RequestType: "call_function",
		Finality:    "final",
		AccountID:   contractID,
		MethodName:  method,
		ArgsBase64:  base64.StdEncoding.EncodeToString(b),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, &Error{Name: "HANDLER_ERROR", Message: out.Error}
	}
	res := make([]byte, len(out.Raw))
	for i, v := range out.Raw {
		res[i] = byte(v)
	}
	return res, nil
}

// TxOutcome is the execution status of a submitted transaction.
type TxOutcome struct {
	Hash         string
	Final        bool
	SuccessValue []byte
	Failure      string
}

type txStatusResult struct {
	Status json.RawMessage `json:"status"`
}

// TxStatus looks up a transaction by hash and signer.
func (c *Client) TxStatus(ctx context.Context, hash, sender string) (TxOutcome, error) {
	var out txStatusResult
	if err := c.call(ctx, "tx", []string{hash, sender}, &out); err != nil {
		return TxOutcome{Hash: hash}, err
	}
	return decodeStatus(hash, out.Status)
}

func decodeStatus(hash string, raw json.RawMessage) (TxOutcome, error) {
	o := TxOutcome{Hash: hash}
	var pending string
	if json.Unmarshal(raw, &pending) == nil {
		// NotStarted, Started
		return o, nil
	}
	var st struct {
		SuccessValue *string        `json:"SuccessValue"`
		Failure      map[string]any `json:"Failure"`
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return o, fmt.Errorf("decode tx status: %w", err)
	}
	switch {
	case st.SuccessValue != nil:
		v, err := base64.StdEncoding.DecodeString(*st.SuccessValue)
		if err != nil {
			return o, fmt.Errorf("decode success value: %w", err)
		}
		o.Final, o.SuccessValue = true, v
	case st.Failure != nil:
		o.Final, o.Failure = true, failureReason(st.Failure)
	}
	return o, nil
}

// failureReason digs the contract's panic message out of a nested failure
// object, falling back to its JSON form.
func failureReason(f map[string]any) string {
	if s := findString(f, "ExecutionError"); s != "" {
		return s
	}
	b, _ := json.Marshal(f)
	return string(b)
}

func findString(v any, key string) string {
	switch t := v.(type) {
	case map[string]any:
		if s, ok := t[key].(string); ok {
			return s
		}
		for _, child := range t {
			if s := findString(child, key); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range t {
			if s := findString(child, key); s != "" {
				return s
			}
		}
	}
	return ""
}

// AccessKey is the state needed to sign the next transaction with a key:
// its current nonce and a recent block hash.
type AccessKey struct {
	Nonce     uint64 `json:"nonce"`
	BlockHash string `json:"block_hash"`
	Error     string `json:"error,omitempty"`
}

type viewAccessKeyParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	PublicKey   string `json:"public_key"`
}

// ViewAccessKey reads the access key publicKey of accountID.
func (c *Client) ViewAccessKey(ctx context.Context, accountID, publicKey string) (AccessKey, error) {
	var out AccessKey
	err := c.call(ctx, "query", viewAccessKeyParams{
		RequestType: "view_access_key",
		Finality:    "final",
		AccountID:   accountID,
		PublicKey:   publicKey,
	}, &out)
	if err != nil {
		return AccessKey{}, err
	}
	if out.Error != "" {
		return AccessKey{}, &Error{Name: "HANDLER_ERROR", Message: out.Error}
	}
	return out, nil
}

// SendTx broadcasts a borsh-encoded signed transaction without waiting for
// it to execute and returns its hash. TxStatus follows it from there.
func (c *Client) SendTx(ctx context.Context, signed []byte) (string, error) {
	var hash string
	if err := c.call(ctx, "broadcast_tx_async", []string{base64.StdEncoding.EncodeToString(signed)}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}
