package spanbatch

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
)

// readBitlist reads a big-endian bit list of count bits, occupying
// ceil(count/8) bytes. Bit i of element order is bit i of the integer
// (LSB-first), so the padding bits live at the high end and must be zero.
func readBitlist(r *bytes.Reader, count uint64) (*big.Int, error) {
	byteLen := (count + 7) / 8
	buf := make([]byte, byteLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: bit list needs %d bytes", ErrTruncatedInput, byteLen)
	}
	bits := new(big.Int).SetBytes(buf)
	if bits.BitLen() > int(count) {
		return nil, fmt.Errorf("bit list of %d bits has non-zero padding", count)
	}
	return bits, nil
}

// writeBitlist is the inverse of readBitlist.
func writeBitlist(w *bytes.Buffer, bits *big.Int, count uint64) error {
	if bits.BitLen() > int(count) {
		return fmt.Errorf("bit list value needs %d bits, capacity is %d", bits.BitLen(), count)
	}
	buf := make([]byte, (count+7)/8)
	bits.FillBytes(buf)
	_, err := w.Write(buf)
	return err
}
