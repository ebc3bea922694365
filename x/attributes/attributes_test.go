package attributes

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bedrockInfo() *L1BlockInfo {
	return &L1BlockInfo{
		Number:         12345,
		Time:           1700000000,
		BaseFee:        uint256.NewInt(7_000_000_000),
		BlockHash:      common.HexToHash("0x8badf00d"),
		SequenceNumber: 3,
		BatcherAddr:    common.HexToAddress("0x1234567890123456789012345678901234567890"),
		L1FeeOverhead:  [32]byte{31: 0xBC},
		L1FeeScalar:    [32]byte{30: 0x0A, 31: 0x6F},
	}
}

func ecotoneInfo() *L1BlockInfo {
	return &L1BlockInfo{
		Number:            67890,
		Time:              1710000000,
		BaseFee:           uint256.NewInt(12),
		BlockHash:         common.HexToHash("0xfeedbeef"),
		SequenceNumber:    0,
		BatcherAddr:       common.HexToAddress("0xaabbccddeeff00112233445566778899aabbccdd"),
		BaseFeeScalar:     1368,
		BlobBaseFeeScalar: 810949,
		BlobBaseFee:       uint256.NewInt(1),
	}
}

func TestBedrockRoundTrip(t *testing.T) {
	t.Parallel()

	info := bedrockInfo()
	data := EncodeBedrock(info)
	require.Len(t, data, BedrockLen)

	dec, err := DecodeBedrock(data)
	require.NoError(t, err)
	assert.Equal(t, info, dec)

	// Dispatch decoding must pick the same layout.
	dec2, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, info, dec2)
}

func TestEcotoneRoundTrip(t *testing.T) {
	t.Parallel()

	info := ecotoneInfo()
	data := EncodeEcotone(info)
	require.Len(t, data, EcotoneLen)

	dec, err := DecodeEcotone(data)
	require.NoError(t, err)
	assert.Equal(t, info, dec)

	dec2, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, info, dec2)
}

func TestDecodeLengthValidation(t *testing.T) {
	t.Parallel()

	bedrock := EncodeBedrock(bedrockInfo())
	ecotone := EncodeEcotone(ecotoneInfo())

	tests := []struct {
		name string
		data []byte
	}{
		{name: "bedrock truncated", data: bedrock[:len(bedrock)-1]},
		{name: "bedrock trailing byte", data: append(append([]byte{}, bedrock...), 0x00)},
		{name: "ecotone truncated", data: ecotone[:len(ecotone)-32]},
		{name: "ecotone trailing byte", data: append(append([]byte{}, ecotone...), 0x00)},
		{name: "selector only", data: BedrockSelector[:3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrInvalidLength)
			assert.Nil(t, info)
		})
	}
}

// An unrecognized selector fails outright: no partially populated structure.
func TestDecodeUnknownSelector(t *testing.T) {
	t.Parallel()

	data := EncodeBedrock(bedrockInfo())
	copy(data[:4], []byte{0xde, 0xad, 0xbe, 0xef})

	info, err := Decode(data)
	require.ErrorIs(t, err, ErrUnknownSelector)
	assert.Nil(t, info)

	// A plausible selector handed to the wrong layout decoder also fails.
	info, err = DecodeEcotone(EncodeBedrock(bedrockInfo())[:EcotoneLen])
	require.ErrorIs(t, err, ErrUnknownSelector)
	assert.Nil(t, info)
}

func TestDecodeRejectsDirtyPadding(t *testing.T) {
	t.Parallel()

	t.Run("bedrock u64 word", func(t *testing.T) {
		t.Parallel()
		data := EncodeBedrock(bedrockInfo())
		data[4] = 0x01 // high byte of the number word
		_, err := DecodeBedrock(data)
		require.ErrorIs(t, err, ErrInvalidLength)
	})

	t.Run("bedrock address word", func(t *testing.T) {
		t.Parallel()
		data := EncodeBedrock(bedrockInfo())
		data[4+32*5] = 0x01 // high byte of the batcher word
		_, err := DecodeBedrock(data)
		require.ErrorIs(t, err, ErrInvalidLength)
	})

	t.Run("ecotone batcher word", func(t *testing.T) {
		t.Parallel()
		data := EncodeEcotone(ecotoneInfo())
		data[4+128] = 0x01
		_, err := DecodeEcotone(data)
		require.ErrorIs(t, err, ErrInvalidLength)
	})
}

func TestSourceHashDomains(t *testing.T) {
	t.Parallel()

	blockHash := common.HexToHash("0x0102030405")

	user := UserDepositSourceHash(blockHash, 5)
	info := L1InfoDepositSourceHash(blockHash, 5)
	assert.NotEqual(t, user, info, "domains must separate user and info deposits")

	// Deterministic
	assert.Equal(t, user, UserDepositSourceHash(blockHash, 5))
	assert.NotEqual(t, user, UserDepositSourceHash(blockHash, 6))
}

func TestL1InfoDeposit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ecotone   bool
		regolith  bool
		wantLen   int
		wantGas   uint64
		wantSysTx bool
	}{
		{name: "bedrock pre-regolith", ecotone: false, regolith: false, wantLen: BedrockLen, wantGas: PreRegolithSystemTxGas, wantSysTx: true},
		{name: "bedrock regolith", ecotone: false, regolith: true, wantLen: BedrockLen, wantGas: RegolithSystemTxGas, wantSysTx: false},
		{name: "ecotone", ecotone: true, regolith: true, wantLen: EcotoneLen, wantGas: RegolithSystemTxGas, wantSysTx: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := bedrockInfo()
			if tt.ecotone {
				info = ecotoneInfo()
			}
			dep, err := L1InfoDeposit(info, 3, tt.ecotone, tt.regolith)
			require.NoError(t, err)

			assert.Equal(t, L1InfoDepositerAddress, dep.From)
			require.NotNil(t, dep.To)
			assert.Equal(t, L1BlockAddress, *dep.To)
			assert.Nil(t, dep.Mint)
			assert.Equal(t, tt.wantGas, dep.Gas)
			assert.Equal(t, tt.wantSysTx, dep.IsSystemTransaction)
			assert.Len(t, dep.Data, tt.wantLen)
			assert.Equal(t, L1InfoDepositSourceHash(info.BlockHash, 3), dep.SourceHash)

			// The payload must decode back to the same L1 context.
			dec, err := Decode(dep.Data)
			require.NoError(t, err)
			assert.Equal(t, info.Number, dec.Number)
			assert.Equal(t, info.BlockHash, dec.BlockHash)
			assert.Equal(t, uint64(3), dec.SequenceNumber)
		})
	}
}
