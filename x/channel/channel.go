package channel

import (
	"sort"
)

// Channel accumulates the frames of one channel id until the stream is
// complete. It owns its frames; duplicates are ignored rather than rejected,
// since duplicated L1 call-data is an expected condition.
type Channel struct {
	id         ID
	openHeight uint64 // L1 block height of the first frame seen

	// inputs maps frame number to frame data. Frame numbers are unique;
	// a second frame with a seen number is a no-op.
	inputs map[uint16][]byte

	closed    bool
	lastFrame uint16 // frame number carrying is_last, valid once closed

	size uint64 // running byte total incl. per-frame overhead
}

// newChannel opens a channel at the given L1 height.
func newChannel(id ID, openHeight uint64) *Channel {
	return &Channel{
		id:         id,
		openHeight: openHeight,
		inputs:     make(map[uint16][]byte),
	}
}

// OpenHeight returns the L1 height the channel was created at.
func (c *Channel) OpenHeight() uint64 { return c.openHeight }

// Size returns the running byte total, including per-frame overhead.
func (c *Channel) Size() uint64 { return c.size }

// frameCost is the size charged for ingesting one frame.
func frameCost(f *Frame) uint64 {
	return uint64(len(f.Data)) + FrameOverhead
}

// wouldStore reports whether ingesting f would change channel state.
// Duplicate frame numbers, frames past the end of a closed channel, and a
// second closing frame are all no-ops.
func (c *Channel) wouldStore(f *Frame) bool {
	if _, ok := c.inputs[f.FrameNumber]; ok {
		return false
	}
	if c.closed && (f.FrameNumber > c.lastFrame || f.IsLast) {
		return false
	}
	return true
}

// addFrame records a frame. It reports whether the frame changed channel
// state; duplicates and frames beyond the closing frame do not.
func (c *Channel) addFrame(f *Frame) bool {
	if _, ok := c.inputs[f.FrameNumber]; ok {
		return false // duplicate frame number, idempotent
	}
	if c.closed && f.FrameNumber > c.lastFrame {
		return false // past the end of a closed channel
	}
	if f.IsLast {
		if c.closed {
			return false // second closing frame
		}
		c.closed = true
		c.lastFrame = f.FrameNumber
		// Drop any buffered frames past the now-known end.
		for n := range c.inputs {
			if n > c.lastFrame {
				c.size -= uint64(len(c.inputs[n])) + FrameOverhead
				delete(c.inputs, n)
			}
		}
	}
	c.inputs[f.FrameNumber] = f.Data
	c.size += frameCost(f)
	return true
}

// isComplete reports whether every frame number from 0 through the closing
// frame is present.
func (c *Channel) isComplete() bool {
	if !c.closed {
		return false
	}
	for n := uint16(0); ; n++ {
		if _, ok := c.inputs[n]; !ok {
			return false
		}
		if n == c.lastFrame {
			return true
		}
	}
}

// bytes concatenates the frame data in ascending frame-number order.
func (c *Channel) bytes() []byte {
	numbers := make([]int, 0, len(c.inputs))
	for n := range c.inputs {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)

	var out []byte
	for _, n := range numbers {
		out = append(out, c.inputs[uint16(n)]...)
	}
	return out
}
