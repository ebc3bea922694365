// Package derive ties the derivation codecs together: the version-tagged
// batch envelope carried inside channels, the channel-to-batches reader, and
// the pipeline that feeds batcher call-data through frame assembly,
// decompression, and batch decoding.
package derive

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/derivation/x/rollup"
	"github.com/compose-network/derivation/x/spanbatch"
)

// Batch envelope discriminators.
const (
	SingularBatchType = 0x00
	SpanBatchType     = 0x01
)

var (
	ErrUnknownBatchType = errors.New("unknown batch type")
	ErrEmptyBatch       = errors.New("batch envelope is empty")
)

// SingularBatch describes one L2 block: its position in the chain, its L1
// epoch, and its transactions as opaque envelope bytes.
type SingularBatch struct {
	ParentHash   common.Hash
	EpochNum     uint64
	EpochHash    common.Hash
	Timestamp    uint64
	Transactions []hexutil.Bytes
}

// BatchData is one decoded batch envelope: exactly one of Singular or Span is
// set, matching BatchType.
type BatchData struct {
	BatchType byte
	Singular  *SingularBatch
	Span      *spanbatch.SpanBatch
}

// DecodeBatchData parses one version-tagged batch envelope.
func DecodeBatchData(data []byte, cfg *rollup.Config) (*BatchData, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBatch
	}
	switch data[0] {
	case SingularBatchType:
		var sb SingularBatch
		if err := rlp.DecodeBytes(data[1:], &sb); err != nil {
			return nil, fmt.Errorf("failed to decode singular batch: %w", err)
		}
		return &BatchData{BatchType: SingularBatchType, Singular: &sb}, nil
	case SpanBatchType:
		span, err := spanbatch.Decode(data[1:], cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode span batch: %w", err)
		}
		return &BatchData{BatchType: SpanBatchType, Span: span}, nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownBatchType, data[0])
	}
}

// Encode serializes the envelope: the type byte followed by the payload.
func (b *BatchData) Encode() ([]byte, error) {
	switch b.BatchType {
	case SingularBatchType:
		if b.Singular == nil {
			return nil, ErrEmptyBatch
		}
		payload, err := rlp.EncodeToBytes(b.Singular)
		if err != nil {
			return nil, fmt.Errorf("failed to encode singular batch: %w", err)
		}
		return append([]byte{SingularBatchType}, payload...), nil
	case SpanBatchType:
		if b.Span == nil {
			return nil, ErrEmptyBatch
		}
		payload, err := b.Span.Encode()
		if err != nil {
			return nil, err
		}
		return append([]byte{SpanBatchType}, payload...), nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownBatchType, b.BatchType)
	}
}

// TypeName returns the envelope type name for logs and metric labels.
func (b *BatchData) TypeName() string {
	switch b.BatchType {
	case SingularBatchType:
		return "singular"
	case SpanBatchType:
		return "span"
	default:
		return "unknown"
	}
}
