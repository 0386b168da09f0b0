package signing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// BridgeRequest is the request half of the out-of-process DEX signer
// contract: the canonical action JSON, a nonce, and an optional vault
// address.
type BridgeRequest struct {
	Action       json.RawMessage `json:"action"`
	NonceMs      int64           `json:"nonce"`
	VaultAddress string          `json:"vault_address,omitempty"`
}

// BridgeResponse is the out-of-process signer's reply: the (r,s,v) triple,
// or an error string on failure.
type BridgeResponse struct {
	Signature DEXSignature `json:"signature"`
	Error     string       `json:"error,omitempty"`
}

// Bridge is the request/response channel to an out-of-process EIP-712
// signer, as permitted (but not required) by the signing contract. A
// caller enforces its own per-call timeout; the bridge does not retry.
type Bridge struct {
	call func(ctx context.Context, req BridgeRequest) (BridgeResponse, error)
}

// NewBridge wraps a transport-specific call function (pipe, unix socket,
// subprocess stdio) behind the signer bridge contract.
func NewBridge(call func(ctx context.Context, req BridgeRequest) (BridgeResponse, error)) *Bridge {
	return &Bridge{call: call}
}

// NewInProcessBridge wraps a DEXSigner so it satisfies the same Bridge
// contract as an out-of-process helper, letting callers treat both
// uniformly.
func NewInProcessBridge(signer *DEXSigner) *Bridge {
	return NewBridge(func(ctx context.Context, req BridgeRequest) (BridgeResponse, error) {
		var action map[string]interface{}
		if err := json.Unmarshal(req.Action, &action); err != nil {
			return BridgeResponse{}, fmt.Errorf("unmarshal action: %w", err)
		}
		msg := make(map[string]interface{}, len(action))
		for k, v := range action {
			msg[k] = v
		}
		sig, err := signer.SignAction(msg, req.NonceMs, req.VaultAddress)
		if err != nil {
			return BridgeResponse{Error: err.Error()}, nil
		}
		return BridgeResponse{Signature: sig}, nil
	})
}

// Sign invokes the bridge with a per-call timeout, matching the design
// notes' requirement that an out-of-process signer never stalls the
// adapter indefinitely.
func (b *Bridge) Sign(ctx context.Context, req BridgeRequest, timeout time.Duration) (DEXSignature, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := b.call(ctx, req)
	if err != nil {
		return DEXSignature{}, fmt.Errorf("sign_failed: %w", err)
	}
	if resp.Error != "" {
		return DEXSignature{}, fmt.Errorf("sign_failed: %s", resp.Error)
	}
	return resp.Signature, nil
}
