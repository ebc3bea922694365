// Package attributes decodes and encodes the call-data payload of the L1
// attributes system transaction: the first transaction of every L2 block,
// carrying the L1 context the block was derived from. Two fixed byte layouts
// exist, keyed by protocol upgrade: the original Bedrock ABI layout and the
// packed Ecotone layout with fee-scalar fields.
package attributes

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidLength   = errors.New("invalid L1 attributes length")
	ErrUnknownSelector = errors.New("unknown L1 attributes selector")
)

// Function selectors of the L1 attributes setter per layout.
var (
	// BedrockSelector is the 4-byte selector of setL1BlockValues(uint64,uint64,uint256,bytes32,uint64,bytes32,uint256,uint256).
	BedrockSelector = [4]byte{0x01, 0x5d, 0x8e, 0xb9}

	// EcotoneSelector is the 4-byte selector of setL1BlockValuesEcotone().
	EcotoneSelector = [4]byte{0x44, 0x0a, 0x5e, 0x20}
)

const (
	// BedrockLen is the exact call-data length of the Bedrock layout:
	// selector plus eight 32-byte words.
	BedrockLen = 4 + 32*8

	// EcotoneLen is the exact call-data length of the packed Ecotone layout.
	EcotoneLen = 4 + 32*5
)

// L1BlockInfo is the decoded L1 context. The Bedrock fee fields and the
// Ecotone scalar fields are mutually exclusive: only the fields of the layout
// that was decoded are populated.
type L1BlockInfo struct {
	Number         uint64
	Time           uint64
	BaseFee        *uint256.Int
	BlockHash      common.Hash
	SequenceNumber uint64 // position of the L2 block within its epoch
	BatcherAddr    common.Address

	// Bedrock fee fields
	L1FeeOverhead [32]byte
	L1FeeScalar   [32]byte

	// Ecotone fee fields
	BaseFeeScalar     uint32
	BlobBaseFeeScalar uint32
	BlobBaseFee       *uint256.Int
}

// Decode dispatches on the leading selector and decodes the matching layout.
func Decode(data []byte) (*L1BlockInfo, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a selector", ErrInvalidLength, len(data))
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	switch sel {
	case BedrockSelector:
		return DecodeBedrock(data)
	case EcotoneSelector:
		return DecodeEcotone(data)
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownSelector, sel)
	}
}

// DecodeBedrock decodes the Bedrock ABI layout. The input length must match
// exactly; both short and long inputs are rejected.
func DecodeBedrock(data []byte) (*L1BlockInfo, error) {
	if len(data) != BedrockLen {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidLength, len(data), BedrockLen)
	}
	if [4]byte(data[:4]) != BedrockSelector {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownSelector, data[:4])
	}
	w := wordReader(data[4:])

	info := &L1BlockInfo{}
	var err error
	if info.Number, err = w.u64(); err != nil {
		return nil, err
	}
	if info.Time, err = w.u64(); err != nil {
		return nil, err
	}
	info.BaseFee = w.u256()
	info.BlockHash = common.Hash(w.word())
	if info.SequenceNumber, err = w.u64(); err != nil {
		return nil, err
	}
	if info.BatcherAddr, err = w.address(); err != nil {
		return nil, err
	}
	info.L1FeeOverhead = w.word()
	info.L1FeeScalar = w.word()
	return info, nil
}

// EncodeBedrock is the structural inverse of DecodeBedrock.
func EncodeBedrock(info *L1BlockInfo) []byte {
	out := make([]byte, 0, BedrockLen)
	out = append(out, BedrockSelector[:]...)
	out = appendU64Word(out, info.Number)
	out = appendU64Word(out, info.Time)
	out = appendU256(out, info.BaseFee)
	out = append(out, info.BlockHash[:]...)
	out = appendU64Word(out, info.SequenceNumber)
	out = appendAddressWord(out, info.BatcherAddr)
	out = append(out, info.L1FeeOverhead[:]...)
	out = append(out, info.L1FeeScalar[:]...)
	return out
}

// DecodeEcotone decodes the packed Ecotone layout:
//
//	baseFeeScalar u32 ++ blobBaseFeeScalar u32 ++ sequenceNumber u64 ++
//	timestamp u64 ++ number u64 ++ baseFee u256 ++ blobBaseFee u256 ++
//	blockHash ++ batcherHash
func DecodeEcotone(data []byte) (*L1BlockInfo, error) {
	if len(data) != EcotoneLen {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidLength, len(data), EcotoneLen)
	}
	if [4]byte(data[:4]) != EcotoneSelector {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownSelector, data[:4])
	}
	b := data[4:]

	info := &L1BlockInfo{
		BaseFeeScalar:     binary.BigEndian.Uint32(b[0:4]),
		BlobBaseFeeScalar: binary.BigEndian.Uint32(b[4:8]),
		SequenceNumber:    binary.BigEndian.Uint64(b[8:16]),
		Time:              binary.BigEndian.Uint64(b[16:24]),
		Number:            binary.BigEndian.Uint64(b[24:32]),
		BaseFee:           new(uint256.Int).SetBytes(b[32:64]),
		BlobBaseFee:       new(uint256.Int).SetBytes(b[64:96]),
		BlockHash:         common.BytesToHash(b[96:128]),
	}
	for _, pad := range b[128:140] {
		if pad != 0 {
			return nil, fmt.Errorf("%w: batcher hash has non-zero padding", ErrInvalidLength)
		}
	}
	info.BatcherAddr = common.BytesToAddress(b[140:160])
	return info, nil
}

// EncodeEcotone is the structural inverse of DecodeEcotone.
func EncodeEcotone(info *L1BlockInfo) []byte {
	out := make([]byte, 0, EcotoneLen)
	out = append(out, EcotoneSelector[:]...)
	out = binary.BigEndian.AppendUint32(out, info.BaseFeeScalar)
	out = binary.BigEndian.AppendUint32(out, info.BlobBaseFeeScalar)
	out = binary.BigEndian.AppendUint64(out, info.SequenceNumber)
	out = binary.BigEndian.AppendUint64(out, info.Time)
	out = binary.BigEndian.AppendUint64(out, info.Number)
	out = appendU256(out, info.BaseFee)
	out = appendU256(out, info.BlobBaseFee)
	out = append(out, info.BlockHash[:]...)
	out = appendAddressWord(out, info.BatcherAddr)
	return out
}

// wordReader walks a sequence of 32-byte ABI words.
type wordReader []byte

func (r *wordReader) word() [32]byte {
	var w [32]byte
	copy(w[:], (*r)[:32])
	*r = (*r)[32:]
	return w
}

func (r *wordReader) u64() (uint64, error) {
	w := r.word()
	for _, pad := range w[:24] {
		if pad != 0 {
			return 0, fmt.Errorf("%w: uint64 word has non-zero padding", ErrInvalidLength)
		}
	}
	return binary.BigEndian.Uint64(w[24:]), nil
}

func (r *wordReader) u256() *uint256.Int {
	w := r.word()
	return new(uint256.Int).SetBytes(w[:])
}

func (r *wordReader) address() (common.Address, error) {
	w := r.word()
	for _, pad := range w[:12] {
		if pad != 0 {
			return common.Address{}, fmt.Errorf("%w: address word has non-zero padding", ErrInvalidLength)
		}
	}
	return common.BytesToAddress(w[12:]), nil
}

func appendU64Word(out []byte, v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return append(out, w[:]...)
}

func appendU256(out []byte, v *uint256.Int) []byte {
	var w [32]byte
	if v != nil {
		w = v.Bytes32()
	}
	return append(out, w[:]...)
}

func appendAddressWord(out []byte, addr common.Address) []byte {
	var w [32]byte
	copy(w[12:], addr[:])
	return append(out, w[:]...)
}
