package ber

import (
	"bytes"
	"io"
)

// Decode decodes the first ber packet in buf without blocking, returning the
// packet and the number of bytes it occupied.
//
// ErrIncomplete is returned when buf holds fewer bytes than the packet's
// header or declared length require; the caller should retry once more bytes
// are available. Any other error means buf does not start with a valid
// packet.
func Decode(buf []byte, max int) (*Packet, int, error) {
	hn, _, _, _, count, err := ParseHeader(bytes.NewReader(buf))
	switch {
	case err == ErrUnexpectedEOF:
		return nil, 0, ErrIncomplete
	case err != nil:
		return nil, 0, err
	case max > 0 && count > max:
		return nil, 0, ErrLengthGreaterThanMax
	case len(buf) < hn+count:
		return nil, 0, ErrIncomplete
	}
	p, err := ParseBytesLimit(buf[:hn+count], max)
	if err != nil {
		return nil, 0, err
	}
	return p, hn + count, nil
}

// Decoder reads successive ber packets from a stream, buffering partial
// packets across reads.
type Decoder struct {
	r     io.Reader
	max   int
	buf   []byte
	chunk [4096]byte
	err   error
}

// NewDecoder creates a decoder reading from r, rejecting packets whose
// content is longer than max bytes.
func NewDecoder(r io.Reader, max int) *Decoder {
	return &Decoder{
		r:   r,
		max: max,
	}
}

// Decode returns the next packet from the stream.
//
// A read error is returned as-is once no complete packet remains buffered,
// with bytes read so far retained, so that a read that timed out may be
// retried. io.EOF is returned only on a packet boundary; a stream ending
// mid-packet yields ErrUnexpectedEOF.
func (d *Decoder) Decode() (*Packet, error) {
	for {
		if len(d.buf) != 0 {
			p, n, err := Decode(d.buf, d.max)
			switch {
			case err == nil:
				d.buf = append(d.buf[:0], d.buf[n:]...)
				return p, nil
			case err != ErrIncomplete:
				return nil, err
			}
		}
		if err := d.err; err != nil {
			d.err = nil
			if err == io.EOF && len(d.buf) != 0 {
				return nil, ErrUnexpectedEOF
			}
			return nil, err
		}
		n, err := d.r.Read(d.chunk[:])
		d.buf = append(d.buf, d.chunk[:n]...)
		d.err = err
	}
}

// Buffered returns the number of bytes read but not yet decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
