package attributes

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// depositLog builds a well-formed TransactionDeposited log.
func depositLog(from, to common.Address, mint, value *big.Int, gas uint64, isCreation bool, data []byte) *types.Log {
	opaque := make([]byte, 0, 73+len(data))
	var word [32]byte
	if mint != nil {
		mint.FillBytes(word[:])
	} else {
		word = [32]byte{}
	}
	opaque = append(opaque, word[:]...)
	value.FillBytes(word[:])
	opaque = append(opaque, word[:]...)
	opaque = binary.BigEndian.AppendUint64(opaque, gas)
	if isCreation {
		opaque = append(opaque, 1)
	} else {
		opaque = append(opaque, 0)
	}
	opaque = append(opaque, data...)

	evData := make([]byte, 0, 64+len(opaque))
	var offset [32]byte
	offset[31] = 32
	evData = append(evData, offset[:]...)
	var length [32]byte
	big.NewInt(int64(len(opaque))).FillBytes(length[:])
	evData = append(evData, length[:]...)
	evData = append(evData, opaque...)

	return &types.Log{
		Address: common.HexToAddress("0xbEb5Fc579115071764c7423A4f12eDde41f106Ed"),
		Topics: []common.Hash{
			DepositEventABIHash,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			DepositEventVersion0,
		},
		Data:      evData,
		BlockHash: common.HexToHash("0x77"),
		Index:     4,
	}
}

func TestUnmarshalDepositLogEvent(t *testing.T) {
	t.Parallel()

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	t.Run("call deposit with mint", func(t *testing.T) {
		t.Parallel()

		ev := depositLog(from, to, big.NewInt(1000), big.NewInt(900), 50000, false, []byte{0xca, 0xfe})
		dep, err := UnmarshalDepositLogEvent(ev)
		require.NoError(t, err)

		assert.Equal(t, from, dep.From)
		require.NotNil(t, dep.To)
		assert.Equal(t, to, *dep.To)
		require.NotNil(t, dep.Mint)
		assert.Equal(t, int64(1000), dep.Mint.Int64())
		assert.Equal(t, int64(900), dep.Value.Int64())
		assert.Equal(t, uint64(50000), dep.Gas)
		assert.False(t, dep.IsSystemTransaction)
		assert.Equal(t, []byte{0xca, 0xfe}, dep.Data)
		assert.Equal(t, UserDepositSourceHash(ev.BlockHash, uint64(ev.Index)), dep.SourceHash)
	})

	t.Run("creation deposit without mint", func(t *testing.T) {
		t.Parallel()

		ev := depositLog(from, to, nil, big.NewInt(0), 21000, true, nil)
		dep, err := UnmarshalDepositLogEvent(ev)
		require.NoError(t, err)

		assert.Nil(t, dep.To)
		assert.Nil(t, dep.Mint)
		assert.Equal(t, int64(0), dep.Value.Int64())
	})

	t.Run("wrong topic count", func(t *testing.T) {
		t.Parallel()

		ev := depositLog(from, to, nil, big.NewInt(0), 1, false, nil)
		ev.Topics = ev.Topics[:3]
		_, err := UnmarshalDepositLogEvent(ev)
		require.Error(t, err)
	})

	t.Run("unknown event version", func(t *testing.T) {
		t.Parallel()

		ev := depositLog(from, to, nil, big.NewInt(0), 1, false, nil)
		ev.Topics[3] = common.HexToHash("0x01")
		_, err := UnmarshalDepositLogEvent(ev)
		require.Error(t, err)
	})

	t.Run("truncated opaque data", func(t *testing.T) {
		t.Parallel()

		ev := depositLog(from, to, nil, big.NewInt(0), 1, false, nil)
		ev.Data = ev.Data[:80]
		_, err := UnmarshalDepositLogEvent(ev)
		require.Error(t, err)
	})
}

func TestUserDeposits(t *testing.T) {
	t.Parallel()

	depositContract := common.HexToAddress("0xbEb5Fc579115071764c7423A4f12eDde41f106Ed")
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	good := depositLog(from, to, big.NewInt(5), big.NewInt(5), 100, false, nil)
	unrelated := &types.Log{Address: common.HexToAddress("0x99"), Topics: []common.Hash{{}}}

	t.Run("collects matching logs from successful receipts", func(t *testing.T) {
		t.Parallel()

		receipts := []*types.Receipt{
			{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{unrelated, good}},
			{Status: types.ReceiptStatusFailed, Logs: []*types.Log{good}},
		}
		deps, err := UserDeposits(receipts, depositContract)
		require.NoError(t, err)
		require.Len(t, deps, 1, "failed receipts and unrelated logs are skipped")
		assert.Equal(t, from, deps[0].From)
	})

	t.Run("malformed log reported alongside decoded deposits", func(t *testing.T) {
		t.Parallel()

		bad := depositLog(from, to, nil, big.NewInt(0), 1, false, nil)
		bad.Data = bad.Data[:16]
		receipts := []*types.Receipt{
			{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{bad, good}},
		}
		deps, err := UserDeposits(receipts, depositContract)
		require.Error(t, err)
		assert.Len(t, deps, 1)
	})
}
