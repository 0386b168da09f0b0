package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CEXCredentials is the (api_public, api_secret) pair a CEX signer is
// parameterized by.
type CEXCredentials struct {
	APIKey    string
	APISecret string
}

// CEXRequest carries the exact wire tail the signature is computed over:
// the GET query string (without leading '?') or the raw POST body, never
// both.
type CEXRequest struct {
	TimestampMs  int64
	RecvWindowMs int64
	QueryString  string // GET only
	RawBody      string // POST only
}

// SignREST produces the hex HMAC-SHA256 signature for a REST call:
// sign_payload = timestamp || api_key || recv_window || (query|body).
// An empty body/query POST signs over timestamp||api_key||recv_window only.
func SignREST(creds CEXCredentials, req CEXRequest) string {
	tail := req.QueryString
	if tail == "" {
		tail = req.RawBody
	}
	payload := fmt.Sprintf("%d%s%d%s", req.TimestampMs, creds.APIKey, req.RecvWindowMs, tail)
	return hexHMAC(creds.APISecret, payload)
}

// SignWSAuth produces the WS auth signature over "GET/realtime" + expiresMs,
// the short-lived (1s) replay-resistant variant used by the private WS
// auth frame.
func SignWSAuth(creds CEXCredentials, expiresMs int64) string {
	payload := fmt.Sprintf("GET/realtime%d", expiresMs)
	return hexHMAC(creds.APISecret, payload)
}

func hexHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
