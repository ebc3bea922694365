package channel

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/derivation/x/rollup"
)

func testConfig() *rollup.Config {
	cfg := rollup.Default()
	cfg.L2ChainID = 10
	return cfg
}

func newTestBank(t *testing.T, cfg *rollup.Config) *Bank {
	t.Helper()
	require.NoError(t, cfg.Validate())
	return NewBank(cfg, zerolog.Nop())
}

func TestBankOutOfOrderAssembly(t *testing.T) {
	t.Parallel()

	id := testID(0x01)
	f0 := Frame{ID: id, FrameNumber: 0, Data: []byte("frame0|")}
	f1 := Frame{ID: id, FrameNumber: 1, Data: []byte("frame1|")}
	f2 := Frame{ID: id, FrameNumber: 2, Data: []byte("frame2"), IsLast: true}
	want := []byte("frame0|frame1|frame2")

	// Order-independence: every permutation yields the same bytes.
	perms := [][]Frame{
		{f0, f1, f2},
		{f1, f0, f2},
		{f2, f1, f0},
		{f2, f0, f1},
		{f1, f2, f0},
		{f0, f2, f1},
	}
	for _, perm := range perms {
		bank := newTestBank(t, testConfig())
		var ready *Update
		for _, f := range perm {
			u := bank.Ingest(f, 100)
			if u.Kind == UpdateReady {
				require.Nil(t, ready, "channel must become ready exactly once")
				cp := u
				ready = &cp
			} else {
				require.Equal(t, UpdatePending, u.Kind)
			}
		}
		require.NotNil(t, ready)
		assert.Equal(t, want, ready.Bytes)
		assert.Equal(t, id, ready.ID)
		assert.Zero(t, bank.Len(), "ready channel is evicted")
	}
}

func TestBankDuplicateFrameIdempotent(t *testing.T) {
	t.Parallel()

	bank := newTestBank(t, testConfig())
	id := testID(0x02)
	f0 := Frame{ID: id, FrameNumber: 0, Data: []byte("abc")}

	require.Equal(t, UpdatePending, bank.Ingest(f0, 1).Kind)
	require.Equal(t, UpdatePending, bank.Ingest(f0, 1).Kind)

	// A conflicting duplicate (same number, different data) is also ignored:
	// first write wins.
	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: []byte("XYZ")}, 1).Kind)

	u := bank.Ingest(Frame{ID: id, FrameNumber: 1, Data: []byte("def"), IsLast: true}, 1)
	require.Equal(t, UpdateReady, u.Kind)
	assert.Equal(t, []byte("abcdef"), u.Bytes, "duplicate did not double-count or overwrite")
}

func TestBankDuplicateNearSizeBoundIsNoOp(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxFrameSize = 100
	cfg.MaxChannelSize = 350 // one 100-byte frame (cost 300) fits, two would not
	bank := newTestBank(t, cfg)
	id := testID(0x06)
	f0 := Frame{ID: id, FrameNumber: 0, Data: make([]byte, 100)}

	require.Equal(t, UpdatePending, bank.Ingest(f0, 1).Kind)

	// Re-ingesting the same frame stores nothing, so it must not be charged
	// against the size bound and must not drop the channel.
	require.Equal(t, UpdatePending, bank.Ingest(f0, 1).Kind)
	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: make([]byte, 100), IsLast: true}, 1).Kind)
	assert.Equal(t, 1, bank.Len(), "channel survives duplicates at the size limit")
}

func TestBankFrameBeyondCloseNearSizeBoundIsNoOp(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxFrameSize = 100
	cfg.MaxChannelSize = 550
	bank := newTestBank(t, cfg)
	id := testID(0x07)

	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 1, Data: make([]byte, 100), IsLast: true}, 1).Kind)

	// Frame 5 is past the closed channel's end: a no-op, so its cost must not
	// trip the size bound either.
	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 5, Data: make([]byte, 100)}, 1).Kind)

	u := bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: make([]byte, 40)}, 1)
	require.Equal(t, UpdateReady, u.Kind)
	assert.Len(t, u.Bytes, 140)
}

func TestBankSizeBoundDropsWholeChannel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxFrameSize = 100
	cfg.MaxChannelSize = 600 // fits two frames incl. overhead, not three
	bank := newTestBank(t, cfg)
	id := testID(0x03)

	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: make([]byte, 90)}, 1).Kind)
	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 1, Data: make([]byte, 90)}, 1).Kind)

	u := bank.Ingest(Frame{ID: id, FrameNumber: 2, Data: make([]byte, 90), IsLast: true}, 1)
	require.Equal(t, UpdateDropped, u.Kind)
	assert.Equal(t, DropSizeExceeded, u.Reason)
	assert.Zero(t, bank.Len())

	// No partial bytes may ever surface: completing the channel afterwards
	// must not work either.
	u = bank.Ingest(Frame{ID: id, FrameNumber: 2, Data: []byte{1}, IsLast: true}, 1)
	require.Equal(t, UpdateDropped, u.Kind)
	assert.Equal(t, DropSizeExceeded, u.Reason)
	assert.Nil(t, u.Bytes)
}

func TestBankTimeout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ChannelTimeout = 10
	bank := newTestBank(t, cfg)
	id := testID(0x04)

	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: []byte("a")}, 100).Kind)

	// Closing frame arrives after the timeout window: the channel is pruned
	// and stays unavailable.
	u := bank.Ingest(Frame{ID: id, FrameNumber: 1, Data: []byte("b"), IsLast: true}, 111)
	require.Equal(t, UpdateDropped, u.Kind)
	assert.Equal(t, DropTimedOut, u.Reason)

	// Still dead within the tombstone window.
	u = bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: []byte("a")}, 115)
	require.Equal(t, UpdateDropped, u.Kind)
	assert.Equal(t, DropTimedOut, u.Reason)
}

func TestBankTimeoutBoundary(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ChannelTimeout = 10
	bank := newTestBank(t, cfg)
	id := testID(0x05)

	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: []byte("a")}, 100).Kind)

	// Exactly at the timeout bound the channel is still alive.
	u := bank.Ingest(Frame{ID: id, FrameNumber: 1, Data: []byte("b"), IsLast: true}, 110)
	require.Equal(t, UpdateReady, u.Kind)
	assert.Equal(t, []byte("ab"), u.Bytes)
}

func TestBankTracksChannelsIndependently(t *testing.T) {
	t.Parallel()

	bank := newTestBank(t, testConfig())
	a, b := testID(0x0A), testID(0x0B)

	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: a, FrameNumber: 0, Data: []byte("a0")}, 1).Kind)
	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: b, FrameNumber: 0, Data: []byte("b0")}, 1).Kind)
	assert.Equal(t, 2, bank.Len())

	u := bank.Ingest(Frame{ID: b, FrameNumber: 1, Data: []byte("b1"), IsLast: true}, 2)
	require.Equal(t, UpdateReady, u.Kind)
	assert.Equal(t, []byte("b0b1"), u.Bytes)

	// Channel a is untouched.
	assert.Equal(t, 1, bank.Len())
	u = bank.Ingest(Frame{ID: a, FrameNumber: 1, Data: []byte("a1"), IsLast: true}, 2)
	require.Equal(t, UpdateReady, u.Kind)
	assert.Equal(t, []byte("a0a1"), u.Bytes)
}

func TestBankIgnoresFramesBeyondClose(t *testing.T) {
	t.Parallel()

	bank := newTestBank(t, testConfig())
	id := testID(0x0C)

	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 3, Data: []byte("junk")}, 1).Kind)
	require.Equal(t, UpdatePending, bank.Ingest(Frame{ID: id, FrameNumber: 1, Data: []byte("end"), IsLast: true}, 1).Kind)

	// Frame 3 was discarded when frame 1 closed the channel; only 0..1 count.
	u := bank.Ingest(Frame{ID: id, FrameNumber: 0, Data: []byte("start|")}, 1)
	require.Equal(t, UpdateReady, u.Kind)
	assert.Equal(t, []byte("start|end"), u.Bytes)
}
