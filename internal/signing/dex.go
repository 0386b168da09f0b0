package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DEXSignature is the (r,s,v) triple the wire action envelope carries.
type DEXSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// DEXSigner produces EIP-712 signatures over canonical DEX actions. It is a
// pure function of its inputs; the only state it closes over is the agent
// key itself, matching the spec's "no I/O" requirement.
type DEXSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewDEXSigner parses a hex-encoded (optionally 0x-prefixed) private key.
func NewDEXSigner(privateKeyHex string, chainID int64) (*DEXSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse dex private key: %w", err)
	}
	return &DEXSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    big.NewInt(chainID),
	}, nil
}

// Address returns the signer's wallet address.
func (s *DEXSigner) Address() common.Address {
	return s.address
}

// SignAction signs the canonical action payload under the exchange's typed
// data domain, returning the (r,s,v) triple the wire envelope carries
// alongside {"action":..., "nonce":...}.
func (s *DEXSigner) SignAction(action apitypes.TypedDataMessage, nonce int64, vaultAddress string) (DEXSignature, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "Exchange",
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(s.chainID)),
	}
	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
		"Agent": {
			{Name: "source", Type: "string"},
			{Name: "connectionId", Type: "bytes32"},
		},
	}

	message := apitypes.TypedDataMessage{
		"source":       "a",
		"connectionId": actionHash(action, nonce, vaultAddress),
	}

	typedData := apitypes.TypedData{
		Types:       types,
		PrimaryType: "Agent",
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return DEXSignature{}, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return DEXSignature{}, fmt.Errorf("sign typed data: %w", err)
	}

	v := sig[64]
	if v < 27 {
		v += 27
	}

	return DEXSignature{
		R: "0x" + common.Bytes2Hex(sig[:32]),
		S: "0x" + common.Bytes2Hex(sig[32:64]),
		V: v,
	}, nil
}

// actionHash folds the action payload, nonce and vault address into the
// bytes32 connection id the Agent message signs over. Top-level keys are
// sorted before hashing so the same action always hashes to the same
// connectionId regardless of Go's randomized map iteration order.
func actionHash(action apitypes.TypedDataMessage, nonce int64, vaultAddress string) [32]byte {
	keys := make([]string, 0, len(action))
	for k := range action {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := strings.Builder{}
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%v;", k, action[k])
	}
	fmt.Fprintf(&buf, "nonce=%d;vault=%s", nonce, vaultAddress)
	return crypto.Keccak256Hash([]byte(buf.String()))
}

// CanonicalizeDecimal trims trailing zeros from a decimal string exactly as
// the DEX number formatter requires: "65000.0" -> "65000", "0.0100" -> "0.01".
func CanonicalizeDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
