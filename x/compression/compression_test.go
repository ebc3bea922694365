package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		first   byte
		want    Algo
		wantErr error
	}{
		{name: "zlib cmf 0x78", first: 0x78, want: AlgoZlib},
		{name: "zlib cmf 0x08", first: 0x08, want: AlgoZlib},
		{name: "zlib cm 15", first: 0x7F, want: AlgoZlib},
		{name: "brotli version", first: 0x01, want: AlgoBrotli},
		{name: "unknown", first: 0x42, wantErr: ErrUnknownCompression},
		{name: "gzip magic", first: 0x1F, wantErr: ErrUnknownCompression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			algo, err := Detect([]byte{tt.first, 0x00})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, algo)
		})
	}

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := Detect(nil)
		require.ErrorIs(t, err, ErrEmptyChannel)
	})
}

func TestDecompressRoundTrip(t *testing.T) {
	t.Parallel()

	payloads := map[string][]byte{
		"empty":      {},
		"short":      []byte("hello channel"),
		"repetitive": bytes.Repeat([]byte("batch"), 10_000),
	}
	for name, payload := range payloads {
		t.Run("zlib "+name, func(t *testing.T) {
			t.Parallel()

			enc, err := CompressZlib(payload)
			require.NoError(t, err)
			dec, err := Decompress(enc, 1_000_000)
			require.NoError(t, err)
			assert.Equal(t, payload, dec)
		})
		t.Run("brotli "+name, func(t *testing.T) {
			t.Parallel()

			enc, err := CompressBrotli(payload)
			require.NoError(t, err)
			require.Equal(t, byte(ChannelVersionBrotli), enc[0])
			dec, err := Decompress(enc, 1_000_000)
			require.NoError(t, err)
			assert.Equal(t, payload, dec)
		})
	}
}

func TestDecompressEnforcesLimit(t *testing.T) {
	t.Parallel()

	// Highly compressible bomb: 1 MiB of zeros inflating from a tiny stream.
	bomb := make([]byte, 1<<20)
	enc, err := CompressZlib(bomb)
	require.NoError(t, err)
	require.Less(t, len(enc), 8192, "bomb must compress well for this test")

	_, err = Decompress(enc, 1024)
	require.ErrorIs(t, err, ErrDecompressedTooLarge)

	// Exactly at the limit succeeds.
	dec, err := Decompress(enc, uint64(len(bomb)))
	require.NoError(t, err)
	assert.Len(t, dec, len(bomb))

	benc, err := CompressBrotli(bomb)
	require.NoError(t, err)
	_, err = Decompress(benc, 1024)
	require.ErrorIs(t, err, ErrDecompressedTooLarge)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	t.Parallel()

	// Valid zlib header byte pair, garbage body.
	_, err := Decompress([]byte{0x78, 0x9C, 0xDE, 0xAD, 0xBE, 0xEF}, 1024)
	require.Error(t, err)

	_, err = Decompress([]byte{0x42, 0x00}, 1024)
	require.ErrorIs(t, err, ErrUnknownCompression)
}
