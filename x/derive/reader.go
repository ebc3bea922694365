package derive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/derivation/x/compression"
	"github.com/compose-network/derivation/x/rollup"
)

// ReadBatches turns one completed channel into its batches: the channel bytes
// are decompressed (bounded by the configured RLP ceiling), then read as a
// sequence of RLP byte-strings, each wrapping one batch envelope. Any
// malformed element rejects the whole channel.
func ReadBatches(channelBytes []byte, cfg *rollup.Config) ([]*BatchData, error) {
	payload, err := compression.Decompress(channelBytes, cfg.MaxRLPBytesPerChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress channel: %w", err)
	}

	var batches []*BatchData
	stream := rlp.NewStream(bytes.NewReader(payload), uint64(len(payload)))
	for {
		var envelope []byte
		if err := stream.Decode(&envelope); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("batch %d: failed to read envelope: %w", len(batches), err)
		}
		batch, err := DecodeBatchData(envelope, cfg)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", len(batches), err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// WriteBatches is the encode-side inverse of ReadBatches: batches are
// enveloped, RLP-wrapped, concatenated, and compressed with the given
// algorithm.
func WriteBatches(batches []*BatchData, algo compression.Algo) ([]byte, error) {
	var payload bytes.Buffer
	for i, batch := range batches {
		envelope, err := batch.Encode()
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		if err := rlp.Encode(&payload, envelope); err != nil {
			return nil, fmt.Errorf("batch %d: failed to wrap envelope: %w", i, err)
		}
	}
	switch algo {
	case compression.AlgoZlib:
		return compression.CompressZlib(payload.Bytes())
	case compression.AlgoBrotli:
		return compression.CompressBrotli(payload.Bytes())
	default:
		return nil, fmt.Errorf("%w: %d", compression.ErrUnknownCompression, algo)
	}
}
