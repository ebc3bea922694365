package transaction

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LegacyTx is the pre-EIP-2718 transaction: a bare RLP list with the
// signature V carrying the (optional) EIP-155 chain id.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"` // nil means contract creation
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

func (tx *LegacyTx) Type() TxType { return LegacyTxType }
func (tx *LegacyTx) sealed()      {}

// Protected reports whether the signature V value folds in a chain id
// (EIP-155). V is compared as a big integer: values wider than 64 bits must
// not alias the unprotected 27/28 encoding.
func (tx *LegacyTx) Protected() bool {
	if tx.V == nil {
		return false
	}
	return tx.V.Cmp(big.NewInt(27)) != 0 && tx.V.Cmp(big.NewInt(28)) != 0
}

// ChainID derives the chain id from a protected signature, or nil for an
// unprotected one.
func (tx *LegacyTx) ChainID() *big.Int {
	if !tx.Protected() {
		return nil
	}
	// chainID = (V - 35) / 2
	id := new(big.Int).Sub(tx.V, big.NewInt(35))
	return id.Rsh(id, 1)
}

// AccessListTx is the EIP-2930 transaction (envelope type 0x01).
type AccessListTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int // V is the y-parity bit
}

func (tx *AccessListTx) Type() TxType { return AccessListTxType }
func (tx *AccessListTx) sealed()      {}

// DynamicFeeTx is the EIP-1559 transaction (envelope type 0x02).
type DynamicFeeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int // V is the y-parity bit
}

func (tx *DynamicFeeTx) Type() TxType { return DynamicFeeTxType }
func (tx *DynamicFeeTx) sealed()      {}

// DepositTx is the rollup deposit transaction (envelope type 0x7E). It is
// derived entirely from L1 and never signed: the layout has no signature
// fields at all, rather than zero-filled placeholders.
type DepositTx struct {
	// SourceHash uniquely identifies the L1 origin of this deposit.
	SourceHash common.Hash
	From       common.Address
	To         *common.Address `rlp:"nil"` // nil means contract creation
	// Mint is the ETH value minted on L2; nil when nothing is minted.
	Mint  *big.Int `rlp:"nil"`
	Value *big.Int
	Gas   uint64
	// IsSystemTransaction excludes the transaction from block gas accounting
	// (pre-Regolith system transactions only).
	IsSystemTransaction bool
	Data                []byte
}

func (tx *DepositTx) Type() TxType { return DepositTxType }
func (tx *DepositTx) sealed()      {}
