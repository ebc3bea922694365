// Package transaction implements the EIP-2718 transaction envelope codec for
// the rollup: the standard signed variants plus the L1-derived deposit
// variant. All codecs are pure transforms; malformed input yields a typed
// error, never a partial value.
package transaction

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrUnsupportedTxType = errors.New("unsupported transaction type")
	ErrEmptyInput        = errors.New("transaction envelope is empty")
)

// TxType is the leading EIP-2718 envelope discriminator.
type TxType byte

const (
	LegacyTxType     TxType = 0x00
	AccessListTxType TxType = 0x01
	DynamicFeeTxType TxType = 0x02

	// DepositTxType tags the rollup deposit transaction (0x7E). Deposits are
	// derived from L1 and carry no signature.
	DepositTxType TxType = 0x7E
)

// String returns the canonical name of the transaction type.
func (t TxType) String() string {
	switch t {
	case LegacyTxType:
		return "legacy"
	case AccessListTxType:
		return "eip2930"
	case DynamicFeeTxType:
		return "eip1559"
	case DepositTxType:
		return "deposit"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(t))
	}
}

// AccessList re-exports the go-ethereum access list types so callers of this
// package do not need a second import for envelope construction.
type AccessList = types.AccessList

// AccessTuple is a single access-list entry.
type AccessTuple = types.AccessTuple

// Transaction is one decoded envelope variant. The set of implementations is
// closed: decoding dispatches on the leading type byte and unknown tags fail
// with ErrUnsupportedTxType.
type Transaction interface {
	// Type returns the envelope discriminator of this variant.
	Type() TxType

	// sealed keeps the variant set closed to this package.
	sealed()
}

// Encode serializes tx into its canonical envelope bytes: the bare RLP list
// for legacy transactions, or the type byte followed by the RLP payload for
// typed transactions. Deposit transactions have no signature fields and none
// are emitted.
func Encode(tx Transaction) ([]byte, error) {
	if tx == nil {
		return nil, ErrEmptyInput
	}
	if tx.Type() == LegacyTxType {
		return rlp.EncodeToBytes(tx)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(tx.Type()))
	if err := rlp.Encode(&buf, tx); err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", tx.Type(), err)
	}
	return buf.Bytes(), nil
}

// Decode parses one transaction envelope. The input must contain exactly one
// envelope; trailing bytes are rejected.
func Decode(data []byte) (Transaction, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if data[0] >= 0xC0 {
		// Bare RLP list: legacy transaction.
		tx := new(LegacyTx)
		if err := rlp.DecodeBytes(data, tx); err != nil {
			return nil, fmt.Errorf("failed to decode legacy transaction: %w", err)
		}
		return tx, nil
	}

	payload := data[1:]
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: typed envelope %#x has no payload", ErrEmptyInput, data[0])
	}

	var tx Transaction
	switch TxType(data[0]) {
	case AccessListTxType:
		tx = new(AccessListTx)
	case DynamicFeeTxType:
		tx = new(DynamicFeeTx)
	case DepositTxType:
		tx = new(DepositTx)
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnsupportedTxType, data[0])
	}
	if err := rlp.DecodeBytes(payload, tx); err != nil {
		return nil, fmt.Errorf("failed to decode %s transaction: %w", TxType(data[0]), err)
	}
	return tx, nil
}

// Hash returns the canonical transaction hash: keccak256 of the envelope
// bytes.
func Hash(tx Transaction) (common.Hash, error) {
	enc, err := Encode(tx)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// LegacyV computes the legacy signature V value from a y-parity bit. A
// protected (EIP-155) signature folds the chain id into V; an unprotected one
// uses the pre-fork 27/28 encoding.
func LegacyV(protected bool, yParity uint64, chainID uint64) *big.Int {
	if protected {
		v := new(big.Int).SetUint64(chainID)
		v.Mul(v, big.NewInt(2))
		return v.Add(v, new(big.Int).SetUint64(35+yParity))
	}
	return new(big.Int).SetUint64(27 + yParity)
}

// YParity extracts the y-parity bit and protection flag from a legacy V
// value.
func YParity(v *big.Int, chainID uint64) (yParity uint64, protected bool, err error) {
	if v == nil {
		return 0, false, errors.New("signature V is nil")
	}
	// Compare as big integers so oversized V values cannot alias the
	// unprotected 27/28 encoding through truncation.
	if v.Cmp(big.NewInt(27)) == 0 {
		return 0, false, nil
	}
	if v.Cmp(big.NewInt(28)) == 0 {
		return 1, false, nil
	}
	base := chainID*2 + 35
	y := new(big.Int).Sub(v, new(big.Int).SetUint64(base))
	if y.Sign() < 0 || y.Cmp(big.NewInt(1)) > 0 {
		return 0, false, fmt.Errorf("signature V %v does not match chain id %d", v, chainID)
	}
	return y.Uint64(), true, nil
}
