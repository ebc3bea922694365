// Package channel reassembles logical byte streams ("channels") from the
// bounded frames published to the L1 batch inbox. Frames may arrive out of
// order, duplicated, or never; the bank tracks in-flight channels and
// surfaces each one exactly once, either complete or dropped.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// DerivationVersion0 is the version byte leading every batcher call-data
// payload.
const DerivationVersion0 = 0x00

// FrameOverhead approximates the fixed wire cost of one frame; it is counted
// against the channel size bound so an attacker cannot ride for free on many
// tiny frames.
const FrameOverhead = 200

// frameHeaderLen is id(16) + frame_number(2) + data_length(4).
const frameHeaderLen = 16 + 2 + 4

var (
	ErrEmptyCalldata   = errors.New("call-data is empty")
	ErrUnknownVersion  = errors.New("unknown derivation version")
	ErrTruncatedFrame  = errors.New("truncated frame")
	ErrFrameTooLarge   = errors.New("frame data exceeds maximum frame size")
	ErrInvalidLastFlag = errors.New("is_last flag is neither 0 nor 1")
	ErrNoFrames        = errors.New("call-data contains no frames")
)

// ID is the 16-byte channel identifier.
type ID [16]byte

// NewID returns a random channel id for the encode side. A uuid is exactly
// the id width and its randomness is all that is required: ids only need to
// be unlikely to collide within the channel timeout window.
func NewID() ID {
	return ID(uuid.New())
}

// String returns the hex representation of the id.
func (id ID) String() string {
	return hexutil.Encode(id[:])
}

// Frame is one bounded fragment of a channel:
//
//	channel_id(16) ++ frame_number(u16) ++ frame_data_length(u32) ++
//	frame_data ++ is_last(u8)
//
// All integers are big-endian. Frames are immutable once parsed.
type Frame struct {
	ID          ID
	FrameNumber uint16
	Data        []byte
	IsLast      bool
}

// MarshalBinary serializes the frame in wire order.
func (f *Frame) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, frameHeaderLen+len(f.Data)+1)
	out = append(out, f.ID[:]...)
	out = binary.BigEndian.AppendUint16(out, f.FrameNumber)
	out = binary.BigEndian.AppendUint32(out, uint32(len(f.Data)))
	out = append(out, f.Data...)
	if f.IsLast {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out, nil
}

// unmarshalFrame parses one frame from the front of buf, returning the rest.
func unmarshalFrame(buf []byte, maxFrameSize uint64) (Frame, []byte, error) {
	var f Frame
	if len(buf) < frameHeaderLen {
		return f, nil, fmt.Errorf("%w: %d header bytes", ErrTruncatedFrame, len(buf))
	}
	copy(f.ID[:], buf[:16])
	f.FrameNumber = binary.BigEndian.Uint16(buf[16:18])
	dataLen := binary.BigEndian.Uint32(buf[18:22])
	if uint64(dataLen) > maxFrameSize {
		return f, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, dataLen, maxFrameSize)
	}
	rest := buf[frameHeaderLen:]
	if uint64(len(rest)) < uint64(dataLen)+1 {
		return f, nil, fmt.Errorf("%w: need %d data bytes plus flag, have %d", ErrTruncatedFrame, dataLen, len(rest))
	}
	f.Data = append([]byte{}, rest[:dataLen]...)
	switch rest[dataLen] {
	case 0:
		f.IsLast = false
	case 1:
		f.IsLast = true
	default:
		return f, nil, fmt.Errorf("%w: %d", ErrInvalidLastFlag, rest[dataLen])
	}
	return f, rest[dataLen+1:], nil
}

// ParseFrames parses batcher call-data: the derivation version byte followed
// by one or more frames. All-or-nothing: any malformed frame rejects the
// whole call-data.
func ParseFrames(calldata []byte, maxFrameSize uint64) ([]Frame, error) {
	if len(calldata) == 0 {
		return nil, ErrEmptyCalldata
	}
	if calldata[0] != DerivationVersion0 {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownVersion, calldata[0])
	}
	buf := calldata[1:]
	if len(buf) == 0 {
		return nil, ErrNoFrames
	}

	var frames []Frame
	for len(buf) > 0 {
		f, rest, err := unmarshalFrame(buf, maxFrameSize)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
		buf = rest
	}
	return frames, nil
}

// MarshalFrames is the encode-side inverse of ParseFrames.
func MarshalFrames(frames []Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	out := []byte{DerivationVersion0}
	for i := range frames {
		enc, err := frames[i].MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out = append(out, enc...)
	}
	return out, nil
}
