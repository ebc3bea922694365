package spanbatch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/derivation/x/transaction"
)

// signature is one 64-byte r‖s pair; the recovery bit travels separately in
// the y-parity bit list.
type signature struct {
	R [32]byte
	S [32]byte
}

// txSet holds the columnar transaction fields of a span batch. Columns are
// decoded once into owned slices and then joined by index; rows exist only in
// fullTxs output.
type txSet struct {
	total uint64

	contractCreationBits *big.Int // bit i set: tx i creates a contract (no "to")
	yParityBits          *big.Int
	sigs                 []signature
	tos                  []common.Address // one per non-creation tx, in tx order
	datas                [][]byte         // opaque per-type payloads, self-delimiting
	types                []transaction.TxType
	nonces               []uint64
	gases                []uint64
	protectedBits        *big.Int // one bit per legacy tx, in legacy-tx order
	legacyCount          uint64
}

// Per-type opaque payload layouts. Legacy payloads are a bare RLP list;
// typed payloads are the type byte followed by the RLP list.
type legacyTxData struct {
	Value    *big.Int
	GasPrice *big.Int
	Data     []byte
}

type accessListTxData struct {
	Value      *big.Int
	GasPrice   *big.Int
	Data       []byte
	AccessList transaction.AccessList
}

type dynamicFeeTxData struct {
	Value      *big.Int
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Data       []byte
	AccessList transaction.AccessList
}

// decodeTxSet reads the columnar transaction fields for exactly total
// transactions, in wire order.
func decodeTxSet(r *bytes.Reader, total uint64) (*txSet, error) {
	// Every transaction occupies at least its 64-byte signature on the wire.
	// The claimed count is attacker-controlled; reject counts the remaining
	// input cannot possibly hold before sizing any column.
	if total*64 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d claimed txs with %d bytes remaining", ErrTruncatedInput, total, r.Len())
	}

	s := &txSet{total: total}

	var err error
	if s.contractCreationBits, err = readBitlist(r, total); err != nil {
		return nil, fmt.Errorf("contract creation bits: %w", err)
	}
	if s.yParityBits, err = readBitlist(r, total); err != nil {
		return nil, fmt.Errorf("y-parity bits: %w", err)
	}

	s.sigs = make([]signature, total)
	for i := range s.sigs {
		if _, err := io.ReadFull(r, s.sigs[i].R[:]); err != nil {
			return nil, fmt.Errorf("%w: signature %d r", ErrTruncatedInput, i)
		}
		if _, err := io.ReadFull(r, s.sigs[i].S[:]); err != nil {
			return nil, fmt.Errorf("%w: signature %d s", ErrTruncatedInput, i)
		}
	}

	creations := countBits(s.contractCreationBits, total)
	s.tos = make([]common.Address, total-creations)
	for i := range s.tos {
		if _, err := io.ReadFull(r, s.tos[i][:]); err != nil {
			return nil, fmt.Errorf("%w: to address %d", ErrTruncatedInput, i)
		}
	}

	s.datas = make([][]byte, total)
	s.types = make([]transaction.TxType, total)
	for i := range s.datas {
		data, txType, err := readTxData(r)
		if err != nil {
			return nil, fmt.Errorf("tx data %d: %w", i, err)
		}
		s.datas[i] = data
		s.types[i] = txType
		if txType == transaction.LegacyTxType {
			s.legacyCount++
		}
	}

	s.nonces = make([]uint64, total)
	for i := range s.nonces {
		if s.nonces[i], err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("%w: nonce %d", ErrTruncatedInput, i)
		}
	}
	s.gases = make([]uint64, total)
	for i := range s.gases {
		if s.gases[i], err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("%w: gas limit %d", ErrTruncatedInput, i)
		}
	}

	if s.protectedBits, err = readBitlist(r, s.legacyCount); err != nil {
		return nil, fmt.Errorf("protected bits: %w", err)
	}
	return s, nil
}

// encode writes the columns in wire order.
func (s *txSet) encode(w *bytes.Buffer) error {
	if err := writeBitlist(w, s.contractCreationBits, s.total); err != nil {
		return fmt.Errorf("contract creation bits: %w", err)
	}
	if err := writeBitlist(w, s.yParityBits, s.total); err != nil {
		return fmt.Errorf("y-parity bits: %w", err)
	}
	for i := range s.sigs {
		w.Write(s.sigs[i].R[:])
		w.Write(s.sigs[i].S[:])
	}
	for i := range s.tos {
		w.Write(s.tos[i][:])
	}
	for i := range s.datas {
		w.Write(s.datas[i])
	}
	var varint [binary.MaxVarintLen64]byte
	for _, n := range s.nonces {
		w.Write(varint[:binary.PutUvarint(varint[:], n)])
	}
	for _, g := range s.gases {
		w.Write(varint[:binary.PutUvarint(varint[:], g)])
	}
	if err := writeBitlist(w, s.protectedBits, s.legacyCount); err != nil {
		return fmt.Errorf("protected bits: %w", err)
	}
	return nil
}

// readTxData consumes one opaque payload: either a bare RLP list (legacy) or
// a type byte followed by an RLP list. Both are self-delimiting, so the
// column needs no explicit lengths.
func readTxData(r *bytes.Reader) ([]byte, transaction.TxType, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, 0, ErrTruncatedInput
	}

	txType := transaction.LegacyTxType
	if first < 0xC0 {
		switch transaction.TxType(first) {
		case transaction.AccessListTxType, transaction.DynamicFeeTxType:
			txType = transaction.TxType(first)
		default:
			return nil, 0, fmt.Errorf("%w: %#x in span batch", transaction.ErrUnsupportedTxType, first)
		}
	} else if err := r.UnreadByte(); err != nil {
		return nil, 0, err
	}

	payload, err := rlp.NewStream(r, 0).Raw()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}
	if txType == transaction.LegacyTxType {
		return payload, txType, nil
	}
	return append([]byte{first}, payload...), txType, nil
}

// fullTxs joins the columns back into full transaction envelopes, one per
// index, restoring the signature V from the y-parity bit (and for legacy
// transactions the protected bit plus the chain id).
func (s *txSet) fullTxs(chainID uint64) ([][]byte, error) {
	out := make([][]byte, 0, s.total)
	toIdx, legacyIdx := 0, uint64(0)
	bigChainID := new(big.Int).SetUint64(chainID)

	for i := uint64(0); i < s.total; i++ {
		var to *common.Address
		if s.contractCreationBits.Bit(int(i)) == 0 {
			addr := s.tos[toIdx]
			to = &addr
			toIdx++
		}
		yParity := uint64(s.yParityBits.Bit(int(i)))
		sigR := new(big.Int).SetBytes(s.sigs[i].R[:])
		sigS := new(big.Int).SetBytes(s.sigs[i].S[:])

		var tx transaction.Transaction
		switch s.types[i] {
		case transaction.LegacyTxType:
			var data legacyTxData
			if err := rlp.DecodeBytes(s.datas[i], &data); err != nil {
				return nil, fmt.Errorf("tx %d legacy payload: %w", i, err)
			}
			protected := s.protectedBits.Bit(int(legacyIdx)) == 1
			legacyIdx++
			tx = &transaction.LegacyTx{
				Nonce:    s.nonces[i],
				GasPrice: data.GasPrice,
				Gas:      s.gases[i],
				To:       to,
				Value:    data.Value,
				Data:     data.Data,
				V:        transaction.LegacyV(protected, yParity, chainID),
				R:        sigR,
				S:        sigS,
			}
		case transaction.AccessListTxType:
			var data accessListTxData
			if err := rlp.DecodeBytes(s.datas[i][1:], &data); err != nil {
				return nil, fmt.Errorf("tx %d access-list payload: %w", i, err)
			}
			tx = &transaction.AccessListTx{
				ChainID:    bigChainID,
				Nonce:      s.nonces[i],
				GasPrice:   data.GasPrice,
				Gas:        s.gases[i],
				To:         to,
				Value:      data.Value,
				Data:       data.Data,
				AccessList: data.AccessList,
				V:          new(big.Int).SetUint64(yParity),
				R:          sigR,
				S:          sigS,
			}
		case transaction.DynamicFeeTxType:
			var data dynamicFeeTxData
			if err := rlp.DecodeBytes(s.datas[i][1:], &data); err != nil {
				return nil, fmt.Errorf("tx %d dynamic-fee payload: %w", i, err)
			}
			tx = &transaction.DynamicFeeTx{
				ChainID:    bigChainID,
				Nonce:      s.nonces[i],
				GasTipCap:  data.GasTipCap,
				GasFeeCap:  data.GasFeeCap,
				Gas:        s.gases[i],
				To:         to,
				Value:      data.Value,
				Data:       data.Data,
				AccessList: data.AccessList,
				V:          new(big.Int).SetUint64(yParity),
				R:          sigR,
				S:          sigS,
			}
		default:
			return nil, fmt.Errorf("%w: %s in span batch", transaction.ErrUnsupportedTxType, s.types[i])
		}

		env, err := transaction.Encode(tx)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		out = append(out, env)
	}
	return out, nil
}

// appendTx splits one envelope into the columns. Deposit transactions are
// derived from L1 and never travel in span batches.
func (s *txSet) appendTx(envelope []byte, chainID uint64) error {
	tx, err := transaction.Decode(envelope)
	if err != nil {
		return err
	}

	i := s.total
	var (
		to      *common.Address
		yParity uint64
		r, sv   *big.Int
		data    []byte
		txType  transaction.TxType
	)
	switch t := tx.(type) {
	case *transaction.LegacyTx:
		var protected bool
		yParity, protected, err = transaction.YParity(t.V, chainID)
		if err != nil {
			return err
		}
		if protected {
			s.protectedBits.SetBit(s.protectedBits, int(s.legacyCount), 1)
		}
		s.legacyCount++
		to, r, sv = t.To, t.R, t.S
		txType = transaction.LegacyTxType
		if data, err = rlp.EncodeToBytes(&legacyTxData{Value: t.Value, GasPrice: t.GasPrice, Data: t.Data}); err != nil {
			return err
		}
		s.nonces = append(s.nonces, t.Nonce)
		s.gases = append(s.gases, t.Gas)
	case *transaction.AccessListTx:
		if t.ChainID.Uint64() != chainID {
			return fmt.Errorf("%w: tx chain id %v", ErrChainIDMismatch, t.ChainID)
		}
		yParity = t.V.Uint64()
		to, r, sv = t.To, t.R, t.S
		txType = transaction.AccessListTxType
		payload, err := rlp.EncodeToBytes(&accessListTxData{Value: t.Value, GasPrice: t.GasPrice, Data: t.Data, AccessList: t.AccessList})
		if err != nil {
			return err
		}
		data = append([]byte{byte(txType)}, payload...)
		s.nonces = append(s.nonces, t.Nonce)
		s.gases = append(s.gases, t.Gas)
	case *transaction.DynamicFeeTx:
		if t.ChainID.Uint64() != chainID {
			return fmt.Errorf("%w: tx chain id %v", ErrChainIDMismatch, t.ChainID)
		}
		yParity = t.V.Uint64()
		to, r, sv = t.To, t.R, t.S
		txType = transaction.DynamicFeeTxType
		payload, err := rlp.EncodeToBytes(&dynamicFeeTxData{Value: t.Value, GasTipCap: t.GasTipCap, GasFeeCap: t.GasFeeCap, Data: t.Data, AccessList: t.AccessList})
		if err != nil {
			return err
		}
		data = append([]byte{byte(txType)}, payload...)
		s.nonces = append(s.nonces, t.Nonce)
		s.gases = append(s.gases, t.Gas)
	default:
		return fmt.Errorf("%w: %s in span batch", transaction.ErrUnsupportedTxType, tx.Type())
	}

	if to == nil {
		s.contractCreationBits.SetBit(s.contractCreationBits, int(i), 1)
	} else {
		s.tos = append(s.tos, *to)
	}
	if yParity > 1 {
		return fmt.Errorf("y-parity %d out of range", yParity)
	}
	s.yParityBits.SetBit(s.yParityBits, int(i), uint(yParity))

	var sig signature
	r.FillBytes(sig.R[:])
	sv.FillBytes(sig.S[:])
	s.sigs = append(s.sigs, sig)
	s.datas = append(s.datas, data)
	s.types = append(s.types, txType)
	s.total++
	return nil
}

func newTxSet() *txSet {
	return &txSet{
		contractCreationBits: new(big.Int),
		yParityBits:          new(big.Int),
		protectedBits:        new(big.Int),
	}
}

// countBits counts set bits among the first n bit positions.
func countBits(bits *big.Int, n uint64) uint64 {
	var c uint64
	for i := uint64(0); i < n; i++ {
		if bits.Bit(int(i)) == 1 {
			c++
		}
	}
	return c
}
