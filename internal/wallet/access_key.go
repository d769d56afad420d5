package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/nearrpc"
	"github.com/mr-tron/base58"
	"math/big"
	"strings"
)

const keyPrefix = "ed25519:"

// Broadcaster is the node access local signing needs.
type Broadcaster interface {
	ViewAccessKey(ctx context.Context, accountID, publicKey string) (nearrpc.AccessKey, error)
	SendTx(ctx context.Context, signed []byte) (string, error)
}

// KeyPair is the function-call access key the wallet adds for this client at
// sign-in. It can only sign calls to the contract that attach no deposit.
type KeyPair struct {
	priv ed25519.PrivateKey
}

func GenerateKey() (KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate access key: %w", err)
	}
	return KeyPair{priv: priv}, nil
}

// ParseKey reads a secret key in "ed25519:<base58>" form.
func ParseKey(s string) (KeyPair, error) {
	raw, err := base58.Decode(strings.TrimPrefix(s, keyPrefix))
	if err != nil || !strings.HasPrefix(s, keyPrefix) || len(raw) != ed25519.PrivateKeySize {
		return KeyPair{}, errors.New("wallet: malformed access key")
	}
	return KeyPair{priv: ed25519.PrivateKey(raw)}, nil
}

func (k KeyPair) IsZero() bool { return len(k.priv) == 0 }

func (k KeyPair) public() ed25519.PublicKey { return k.priv.Public().(ed25519.PublicKey) }

// PublicKey is the key as the node and the wallet name it.
func (k KeyPair) PublicKey() string { return keyPrefix + base58.Encode(k.public()) }

// Secret is the persisted form accepted by ParseKey.
func (k KeyPair) Secret() string { return keyPrefix + base58.Encode(k.priv) }

// signLocally builds, signs and broadcasts call as signer using key.
func signLocally(ctx context.Context, rpc Broadcaster, signer string, key KeyPair, call FunctionCall) (TxHandle, error) {
	ak, err := rpc.ViewAccessKey(ctx, signer, key.PublicKey())
	if err != nil {
		return TxHandle{}, err
	}
	block, err := base58.Decode(ak.BlockHash)
	if err != nil || len(block) != sha256.Size {
		return TxHandle{}, fmt.Errorf("wallet: bad block hash %q", ak.BlockHash)
	}
	tx, err := encodeTransaction(signer, key.public(), ak.Nonce+1, block, call)
	if err != nil {
		return TxHandle{}, err
	}
	digest := sha256.Sum256(tx)
	signed := append(tx, 0)
	signed = append(signed, ed25519.Sign(key.priv, digest[:])...)

	hash, err := rpc.SendTx(ctx, signed)
	if err != nil {
		return TxHandle{}, err
	}
	if hash == "" {
		hash = base58.Encode(digest[:])
	}
	return TxHandle{Hash: hash, Signer: signer}, nil
}

// encodeTransaction lays out a single FunctionCall transaction in borsh.
func encodeTransaction(signer string, pub ed25519.PublicKey, nonce uint64, block []byte, call FunctionCall) ([]byte, error) {
	args := call.Args
	if args == nil {
		args = struct{}{}
	}
	argBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", call.Method, err)
	}
	deposit, ok := new(big.Int).SetString(orZero(call.Deposit), 10)
	if !ok || deposit.Sign() < 0 || deposit.BitLen() > 128 {
		return nil, fmt.Errorf("wallet: bad deposit %q", call.Deposit)
	}

	var b borsh
	b.str(signer)
	b.u8(0) // ed25519
	b.raw(pub)
	b.u64(nonce)
	b.str(call.ContractID)
	b.raw(block)
	b.u32(1) // one action
	b.u8(2)  // FunctionCall
	b.str(call.Method)
	b.u32(uint32(len(argBytes)))
	b.raw(argBytes)
	b.u64(call.Gas)
	b.u128(deposit)
	return b.Bytes(), nil
}

type borsh struct{ bytes.Buffer }

func (b *borsh) u8(v byte)    { b.WriteByte(v) }
func (b *borsh) raw(p []byte) { b.Write(p) }

func (b *borsh) u32(v uint32) {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	b.Write(p[:])
}

func (b *borsh) u64(v uint64) {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], v)
	b.Write(p[:])
}

func (b *borsh) u128(v *big.Int) {
	var p [16]byte
	be := v.Bytes()
	for i := range be {
		p[i] = be[len(be)-1-i]
	}
	b.Write(p[:])
}

func (b *borsh) str(s string) {
	b.u32(uint32(len(s)))
	b.WriteString(s)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func zeroDeposit(call FunctionCall) bool {
	d, ok := new(big.Int).SetString(orZero(call.Deposit), 10)
	return ok && d.Sign() == 0
}
