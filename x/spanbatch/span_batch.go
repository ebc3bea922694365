// Package spanbatch implements the span batch codec: a single compact
// structure describing a contiguous run of L2 blocks, with delta-encoded
// timestamps, per-block epoch-advance flags, and columnar transaction fields.
// Decode and encode are pure transforms; expansion back into per-block
// transaction lists is an explicit index-based join over the columns.
package spanbatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/compose-network/derivation/x/rollup"
)

const checkLen = 20

var (
	ErrTruncatedInput  = errors.New("truncated span batch input")
	ErrChainIDMismatch = errors.New("span batch chain id does not match rollup configuration")
	ErrEmptySpan       = errors.New("span batch must describe at least one block")
	ErrTooManyBlocks   = errors.New("span batch block count exceeds maximum")
	ErrTrailingBytes   = errors.New("trailing bytes after span batch payload")
)

// SpanBatch is one decoded span batch: the prefix anchoring the span to its
// L2 parent and L1 origin, plus the per-block and per-transaction columns.
type SpanBatch struct {
	// RelTimestamp is the first block's timestamp relative to the L2 genesis
	// timestamp.
	RelTimestamp uint64
	// L1OriginNum is the L1 origin block number of the last block in the span.
	L1OriginNum uint64
	// ChainID binds the batch to one rollup instance.
	ChainID uint64
	// ParentCheck is the first 20 bytes of the span's L2 parent block hash.
	ParentCheck [checkLen]byte
	// L1OriginCheck is the first 20 bytes of the last block's L1 origin hash.
	L1OriginCheck [checkLen]byte

	blockCount    uint64
	originBits    *big.Int // bit i set: block i starts a new epoch
	blockTxCounts []uint64
	txs           *txSet
}

// Block is one expanded L2 block: its timestamp, the number of its L1 origin
// block (the epoch), and its transactions as canonical envelope bytes.
type Block struct {
	Timestamp    uint64
	EpochNum     uint64
	Transactions [][]byte
}

// New starts an empty span batch for the encode side. ChainID is fixed up
// front; blocks are added with AppendBlock.
func New(chainID, relTimestamp, l1OriginNum uint64, parentCheck, l1OriginCheck [checkLen]byte) *SpanBatch {
	return &SpanBatch{
		RelTimestamp:  relTimestamp,
		L1OriginNum:   l1OriginNum,
		ChainID:       chainID,
		ParentCheck:   parentCheck,
		L1OriginCheck: l1OriginCheck,
		originBits:    new(big.Int),
		txs:           newTxSet(),
	}
}

// BlockCount returns the number of L2 blocks the span describes.
func (b *SpanBatch) BlockCount() uint64 { return b.blockCount }

// TotalTxs returns the number of transactions across all blocks.
func (b *SpanBatch) TotalTxs() uint64 {
	if b.txs == nil {
		return 0
	}
	return b.txs.total
}

// AppendBlock adds one block to the span. originAdvance marks the block as
// starting a new epoch relative to its predecessor. Envelopes must be signed
// non-deposit transactions on the span's chain id.
func (b *SpanBatch) AppendBlock(originAdvance bool, envelopes [][]byte) error {
	if originAdvance {
		b.originBits.SetBit(b.originBits, int(b.blockCount), 1)
	}
	for _, env := range envelopes {
		if err := b.txs.appendTx(env, b.ChainID); err != nil {
			return fmt.Errorf("block %d: %w", b.blockCount, err)
		}
	}
	b.blockTxCounts = append(b.blockTxCounts, uint64(len(envelopes)))
	b.blockCount++
	return nil
}

// Decode parses a span batch payload. Field order is strict: prefix
// (rel_timestamp, l1_origin_num, chain_id, parent_check, l1_origin_check),
// then block_count, origin_bits, block_tx_counts, then the transaction
// columns. The input must contain exactly one span batch. The chain id is
// validated against cfg before any allocation proportional to block count.
func Decode(data []byte, cfg *rollup.Config) (*SpanBatch, error) {
	r := bytes.NewReader(data)
	b := new(SpanBatch)

	var err error
	if b.RelTimestamp, err = binary.ReadUvarint(r); err != nil {
		return nil, fmt.Errorf("%w: rel timestamp", ErrTruncatedInput)
	}
	if b.L1OriginNum, err = binary.ReadUvarint(r); err != nil {
		return nil, fmt.Errorf("%w: l1 origin number", ErrTruncatedInput)
	}
	if b.ChainID, err = binary.ReadUvarint(r); err != nil {
		return nil, fmt.Errorf("%w: chain id", ErrTruncatedInput)
	}
	if b.ChainID != cfg.L2ChainID {
		return nil, fmt.Errorf("%w: batch %d, expected %d", ErrChainIDMismatch, b.ChainID, cfg.L2ChainID)
	}
	if _, err = io.ReadFull(r, b.ParentCheck[:]); err != nil {
		return nil, fmt.Errorf("%w: parent check", ErrTruncatedInput)
	}
	if _, err = io.ReadFull(r, b.L1OriginCheck[:]); err != nil {
		return nil, fmt.Errorf("%w: l1 origin check", ErrTruncatedInput)
	}

	if b.blockCount, err = binary.ReadUvarint(r); err != nil {
		return nil, fmt.Errorf("%w: block count", ErrTruncatedInput)
	}
	if b.blockCount == 0 {
		return nil, ErrEmptySpan
	}
	if b.blockCount > cfg.MaxSpanBatchBlocks {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyBlocks, b.blockCount, cfg.MaxSpanBatchBlocks)
	}
	// Every block occupies at least one tx-count byte; reject counts the
	// remaining input cannot hold before sizing the per-block slices.
	if b.blockCount > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d claimed blocks with %d bytes remaining", ErrTruncatedInput, b.blockCount, r.Len())
	}

	if b.originBits, err = readBitlist(r, b.blockCount); err != nil {
		return nil, fmt.Errorf("origin bits: %w", err)
	}

	b.blockTxCounts = make([]uint64, b.blockCount)
	var totalTxs uint64
	for i := range b.blockTxCounts {
		if b.blockTxCounts[i], err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("%w: tx count of block %d", ErrTruncatedInput, i)
		}
		if b.blockTxCounts[i] > cfg.MaxSpanBatchBlocks {
			return nil, fmt.Errorf("%w: block %d claims %d txs", ErrTooManyBlocks, i, b.blockTxCounts[i])
		}
		totalTxs += b.blockTxCounts[i]
	}
	if totalTxs > cfg.MaxSpanBatchBlocks {
		return nil, fmt.Errorf("%w: %d total txs", ErrTooManyBlocks, totalTxs)
	}

	if b.txs, err = decodeTxSet(r, totalTxs); err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, r.Len())
	}
	return b, nil
}

// Encode is the structural inverse of Decode.
func (b *SpanBatch) Encode() ([]byte, error) {
	if b.blockCount == 0 {
		return nil, ErrEmptySpan
	}

	var buf bytes.Buffer
	var varint [binary.MaxVarintLen64]byte
	buf.Write(varint[:binary.PutUvarint(varint[:], b.RelTimestamp)])
	buf.Write(varint[:binary.PutUvarint(varint[:], b.L1OriginNum)])
	buf.Write(varint[:binary.PutUvarint(varint[:], b.ChainID)])
	buf.Write(b.ParentCheck[:])
	buf.Write(b.L1OriginCheck[:])

	buf.Write(varint[:binary.PutUvarint(varint[:], b.blockCount)])
	if err := writeBitlist(&buf, b.originBits, b.blockCount); err != nil {
		return nil, fmt.Errorf("origin bits: %w", err)
	}
	for _, c := range b.blockTxCounts {
		buf.Write(varint[:binary.PutUvarint(varint[:], c)])
	}
	if err := b.txs.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Blocks expands the span into per-block transaction lists. Block i's
// timestamp is genesisTime + RelTimestamp + i*blockTime; its epoch is
// L1OriginNum minus the number of epoch advances recorded after block i.
// Empty blocks yield empty (non-nil) transaction lists.
func (b *SpanBatch) Blocks(genesisTime, blockTime uint64) ([]Block, error) {
	envelopes, err := b.txs.fullTxs(b.ChainID)
	if err != nil {
		return nil, err
	}

	// Walk epochs backwards from the last block, whose origin is L1OriginNum.
	epochs := make([]uint64, b.blockCount)
	epoch := b.L1OriginNum
	for i := int(b.blockCount) - 1; i >= 0; i-- {
		epochs[i] = epoch
		if b.originBits.Bit(i) == 1 && epoch > 0 {
			epoch--
		}
	}

	blocks := make([]Block, b.blockCount)
	next := 0
	for i := range blocks {
		txs := make([][]byte, 0, b.blockTxCounts[i])
		for j := uint64(0); j < b.blockTxCounts[i]; j++ {
			txs = append(txs, envelopes[next])
			next++
		}
		blocks[i] = Block{
			Timestamp:    genesisTime + b.RelTimestamp + uint64(i)*blockTime,
			EpochNum:     epochs[i],
			Transactions: txs,
		}
	}
	return blocks, nil
}
