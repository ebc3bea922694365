package channel

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/compose-network/derivation/x/rollup"
)

// UpdateKind classifies the outcome of one frame ingestion.
type UpdateKind int

const (
	// UpdatePending means the frame was recorded but its channel is not yet
	// complete.
	UpdatePending UpdateKind = iota

	// UpdateReady means the channel just became complete; Update.Bytes holds
	// the concatenated stream and the channel has been evicted.
	UpdateReady

	// UpdateDropped means the channel was discarded; Update.Reason says why.
	// Dropping is an expected outcome of adversarial or lossy input, not an
	// error.
	UpdateDropped
)

// String returns the update kind name.
func (k UpdateKind) String() string {
	switch k {
	case UpdatePending:
		return "pending"
	case UpdateReady:
		return "ready"
	case UpdateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// DropReason says why a channel was discarded.
type DropReason int

const (
	DropSizeExceeded DropReason = iota + 1
	DropTimedOut
)

// String returns the drop reason name.
func (r DropReason) String() string {
	switch r {
	case DropSizeExceeded:
		return "size_exceeded"
	case DropTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Update is the result of ingesting one frame.
type Update struct {
	Kind   UpdateKind
	ID     ID
	Bytes  []byte     // set when Kind == UpdateReady
	Reason DropReason // set when Kind == UpdateDropped
}

// Bank tracks the in-flight channels of one derivation pipeline. Ingest is
// serialized behind a mutex so completion detection is atomic per channel id;
// the bank never spawns goroutines and prunes expired channels lazily on each
// ingest.
type Bank struct {
	mu  sync.Mutex
	cfg *rollup.Config
	log zerolog.Logger

	channels map[ID]*Channel

	// dead remembers dropped channel ids and the reason, keyed until the
	// timeout window has passed, so late frames cannot resurrect a dropped
	// or timed-out channel.
	dead map[ID]deadChannel
}

type deadChannel struct {
	reason  DropReason
	dropped uint64 // L1 height at drop time
}

// NewBank creates a channel bank.
func NewBank(cfg *rollup.Config, log zerolog.Logger) *Bank {
	return &Bank{
		cfg:      cfg,
		log:      log.With().Str("component", "channel-bank").Logger(),
		channels: make(map[ID]*Channel),
		dead:     make(map[ID]deadChannel),
	}
}

// Len returns the number of in-flight channels.
func (b *Bank) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// Ingest records one frame observed at the given L1 block height and reports
// what happened to its channel. Duplicate frames are no-ops (Pending).
func (b *Bank) Ingest(frame Frame, l1Height uint64) Update {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(l1Height)

	if dc, ok := b.dead[frame.ID]; ok {
		// The channel was already dropped within the timeout window.
		return Update{Kind: UpdateDropped, ID: frame.ID, Reason: dc.reason}
	}

	ch, ok := b.channels[frame.ID]
	if !ok {
		ch = newChannel(frame.ID, l1Height)
		b.channels[frame.ID] = ch
		b.log.Debug().
			Str("channel", frame.ID.String()).
			Uint64("l1_height", l1Height).
			Msg("Opened channel")
	}

	// No-op frames (duplicates, frames past a closed channel's end) must not
	// change channel state, so they are answered before the size bound: only
	// a frame that will actually be stored is charged against it.
	if !ch.wouldStore(&frame) {
		return Update{Kind: UpdatePending, ID: frame.ID}
	}

	// Size bound: one oversized frame discards the whole channel, never just
	// the offending frame.
	if ch.Size()+frameCost(&frame) > b.cfg.MaxChannelSize {
		delete(b.channels, frame.ID)
		b.dead[frame.ID] = deadChannel{reason: DropSizeExceeded, dropped: l1Height}
		b.log.Warn().
			Str("channel", frame.ID.String()).
			Uint64("size", ch.Size()).
			Uint64("max", b.cfg.MaxChannelSize).
			Msg("Dropped channel: size exceeded")
		return Update{Kind: UpdateDropped, ID: frame.ID, Reason: DropSizeExceeded}
	}

	ch.addFrame(&frame)

	if !ch.isComplete() {
		return Update{Kind: UpdatePending, ID: frame.ID}
	}

	data := ch.bytes()
	delete(b.channels, frame.ID)
	b.log.Debug().
		Str("channel", frame.ID.String()).
		Int("bytes", len(data)).
		Msg("Channel complete")
	return Update{Kind: UpdateReady, ID: frame.ID, Bytes: data}
}

// prune discards channels whose inter-frame timeout has expired, and forgets
// tombstones older than the timeout window.
func (b *Bank) prune(l1Height uint64) {
	timeout := b.cfg.ChannelTimeout
	for id, ch := range b.channels {
		if l1Height > ch.OpenHeight() && l1Height-ch.OpenHeight() > timeout {
			delete(b.channels, id)
			b.dead[id] = deadChannel{reason: DropTimedOut, dropped: l1Height}
			b.log.Debug().
				Str("channel", id.String()).
				Uint64("open_height", ch.OpenHeight()).
				Uint64("l1_height", l1Height).
				Msg("Dropped channel: timed out")
		}
	}
	for id, dc := range b.dead {
		if l1Height > dc.dropped && l1Height-dc.dropped > timeout {
			delete(b.dead, id)
		}
	}
}
