// Package compression decompresses completed channel streams. The algorithm
// is detected from the first byte of the stream: a zlib header, or the
// versioned-channel byte 0x01 followed by a brotli stream.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

// ChannelVersionBrotli is the leading byte of a versioned channel carrying a
// brotli stream.
const ChannelVersionBrotli = 0x01

// zlibCM8 and zlibCM15 are the low nibble values of a zlib CMF header byte.
const (
	zlibCM8  = 8
	zlibCM15 = 15
)

var (
	ErrEmptyChannel         = errors.New("channel stream is empty")
	ErrUnknownCompression   = errors.New("unknown compression algorithm")
	ErrDecompressedTooLarge = errors.New("decompressed channel exceeds size limit")
	ErrTruncatedCompressed  = errors.New("truncated compressed stream")
)

// Algo identifies a channel compression algorithm.
type Algo int

const (
	AlgoZlib Algo = iota
	AlgoBrotli
)

// String returns the algorithm name.
func (a Algo) String() string {
	switch a {
	case AlgoZlib:
		return "zlib"
	case AlgoBrotli:
		return "brotli"
	default:
		return "unknown"
	}
}

// Detect inspects the first byte of a channel stream and reports the
// compression algorithm in use.
func Detect(data []byte) (Algo, error) {
	if len(data) == 0 {
		return 0, ErrEmptyChannel
	}
	switch {
	case data[0]&0x0F == zlibCM8 || data[0]&0x0F == zlibCM15:
		return AlgoZlib, nil
	case data[0] == ChannelVersionBrotli:
		return AlgoBrotli, nil
	default:
		return 0, fmt.Errorf("%w: first byte %#x", ErrUnknownCompression, data[0])
	}
}

// Decompress inflates a channel stream, detecting the algorithm from its
// first byte. Output is capped at maxOut bytes; a stream inflating past the
// cap fails with ErrDecompressedTooLarge without buffering the excess.
func Decompress(data []byte, maxOut uint64) ([]byte, error) {
	algo, err := Detect(data)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	switch algo {
	case AlgoZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncatedCompressed, err)
		}
		defer zr.Close()
		r = zr
	case AlgoBrotli:
		r = brotli.NewReader(bytes.NewReader(data[1:]))
	}

	// Read one byte past the cap so overflow is distinguishable from an
	// exactly-full output.
	out, err := io.ReadAll(io.LimitReader(r, int64(maxOut)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedCompressed, err)
	}
	if uint64(len(out)) > maxOut {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrDecompressedTooLarge, maxOut)
	}
	return out, nil
}

// CompressZlib deflates data as a plain zlib stream, the encode-side inverse
// of Decompress for the zlib algorithm.
func CompressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

// CompressBrotli deflates data as a versioned brotli channel.
func CompressBrotli(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(ChannelVersionBrotli)
	bw := brotli.NewWriterLevel(&buf, 10)
	if _, err := bw.Write(data); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}
