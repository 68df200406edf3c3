package ber

import (
	"bytes"
	"io"
	"math"
)

const (
	// longFormBitmaskLen is the mask to apply to the length byte to see if
	// a long-form byte sequence is used.
	longFormBitmaskLen = 0x80

	// valueBitmaskLen is the mask to apply to the length byte to get the
	// number of bytes in the long-form byte sequence.
	valueBitmaskLen = 0x7f

	// maxDepth is the deepest nesting of constructed packets accepted.
	maxDepth = 64
)

// ReadByte reads a byte from r.
func ReadByte(r io.Reader) (int, byte, error) {
	var buf [1]byte
	n, err := r.Read(buf[:])
	switch {
	case n == 1:
		return n, buf[0], nil
	case err == io.EOF:
		return n, 0, ErrUnexpectedEOF
	case err != nil:
		return n, 0, err
	}
	return n, 0, io.ErrNoProgress
}

// ParseHeader parses a ber packet header from the reader, returning the
// number of bytes read, the class, type, tag and content length.
func ParseHeader(r io.Reader) (int, Class, Type, Tag, int, error) {
	n, class, typ, tag, err := ParseIdentifier(r)
	if err != nil {
		return n, 0, 0, 0, 0, err
	}
	nn, count, err := ParseCount(r)
	if err != nil {
		return n + nn, class, typ, tag, count, err
	}
	return n + nn, class, typ, tag, count, nil
}

// ParseIdentifier parses the ber packet class, tag type, and tag from the
// reader.
func ParseIdentifier(r io.Reader) (int, Class, Type, Tag, error) {
	// identifier byte
	n, b, err := ReadByte(r)
	if err != nil {
		return n, 0, 0, 0, err
	}
	class, typ, tag := Class(b)&ClassPrivate, Type(b)&TypeConstructed, Tag(0)
	if tag := Tag(b) & TagBitmask; tag != tagHigh {
		// short-form tag
		return n, class, typ, tag, nil
	}
	// high-tag-number tag
	count := 0
	for {
		nn, b, err := ReadByte(r)
		if err != nil {
			return n, 0, 0, 0, err
		}
		count += nn
		n += nn
		// Lowest 7 bits get appended to the tag value (x.690, 8.1.2.4.2.b)
		tag <<= 7
		tag |= Tag(b) & tagHighValueBitmask
		// First byte may not be all zeros (x.690, 8.1.2.4.2.c)
		if count == 1 && tag == 0 {
			return n, 0, 0, 0, ErrInvalidHighByte
		}
		if count > 9 {
			return n, 0, 0, 0, ErrTagValueOverflow
		}
		// Top bit of 0 means this is the last byte in the high-tag-number tag (x.690, 8.1.2.4.2.a)
		if Tag(b)&tagHighContinueBitmask == 0 {
			break
		}
	}
	return n, class, typ, tag, nil
}

// ParseCount parses a definite length from the reader. Ldap only permits
// the definite form (RFC 4511, section 5.1).
func ParseCount(r io.Reader) (int, int, error) {
	n, b, err := ReadByte(r)
	if err != nil {
		return n, 0, err
	}
	switch {
	case b == 0xff:
		// Invalid 0xff (x.690, 8.1.3.5.c)
		return n, 0, ErrInvalidLength
	case b == longFormBitmaskLen:
		return n, 0, ErrIndefiniteLengthNotAllowed
	case b&longFormBitmaskLen == 0:
		// Short definite form, extract the length from the bottom 7 bits (x.690, 8.1.3.4)
		return n, int(b) & valueBitmaskLen, nil
	}
	// Long definite form, extract the number of length bytes to follow from
	// the bottom 7 bits (x.690, 8.1.3.5.b)
	count := int(b) & valueBitmaskLen
	if count > 8 {
		return n, 0, ErrLengthValueOverflow
	}
	var l uint64
	for i := 0; i < count; i++ {
		nn, b, err := ReadByte(r)
		if err != nil {
			return n, 0, err
		}
		n += nn
		l = l<<8 | uint64(b)
	}
	if l > math.MaxInt32 {
		return n, 0, ErrLengthValueOverflow
	}
	return n, int(l), nil
}

// Parse reads a ber packet from r, rejecting any element whose content is
// longer than max bytes. A max of 0 or less disables the check.
func Parse(r io.Reader, max int) (int, *Packet, error) {
	return parse(r, max, 0)
}

func parse(r io.Reader, max, depth int) (int, *Packet, error) {
	if depth > maxDepth {
		return 0, nil, ErrMaxDepthExceeded
	}
	n, class, typ, tag, count, err := ParseHeader(r)
	if err != nil {
		return n, nil, err
	}
	if max > 0 && count > max {
		return n, nil, ErrLengthGreaterThanMax
	}
	p := NewPacket(class, typ, tag, "")
	buf := make([]byte, count)
	if count > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return n, nil, ErrUnexpectedEOF
			}
			return n, nil, err
		}
		n += count
	}
	p.Data.Write(buf)
	if typ == TypePrimitive {
		p.ByteValue = p.Data.Bytes()
		if err := p.decodeValue(p.ByteValue); err != nil {
			return n, nil, err
		}
		return n, p, nil
	}
	// children must exactly fill the content octets
	cr := bytes.NewReader(buf)
	for cr.Len() > 0 {
		_, child, err := parse(cr, max, depth+1)
		switch {
		case err == ErrUnexpectedEOF:
			return n, nil, ErrPastPacketBoundary
		case err != nil:
			return n, nil, err
		}
		p.Children = append(p.Children, child)
	}
	return n, p, nil
}

// ParseBytesLimit parses exactly one ber packet from buf, rejecting elements
// longer than max.
func ParseBytesLimit(buf []byte, max int) (*Packet, error) {
	r := bytes.NewReader(buf)
	_, p, err := Parse(r, max)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, ErrTrailingData
	}
	return p, nil
}

// ParseBytes parses exactly one ber packet from buf.
func ParseBytes(buf []byte) (*Packet, error) {
	return ParseBytesLimit(buf, 0)
}

// ParseInt64 parses a two's complement big-endian integer.
func ParseInt64(buf []byte) (int64, error) {
	var i int64
	if len(buf) > 8 {
		// We'll overflow an int64 in this case.
		return 0, ErrIntegerTooLarge
	}
	for n := 0; n < len(buf); n++ {
		i <<= 8
		i |= int64(buf[n])
	}
	// Shift up and down in order to sign extend the result.
	i <<= 64 - uint8(len(buf))*8
	i >>= 64 - uint8(len(buf))*8
	return i, nil
}

// EncodeIdentifier encodes the identifier octets.
func EncodeIdentifier(class Class, typ Type, tag Tag) []byte {
	buf := []byte{uint8(class) | uint8(typ)}
	if tag < tagHigh {
		// Short-form
		buf[0] |= uint8(tag)
	} else {
		// high-tag-number
		buf[0] |= byte(tagHigh)
		buf = append(buf, EncodeTag(tag)...)
	}
	return buf
}

// EncodeTag encodes a high-tag-number tag.
func EncodeTag(tag Tag) []byte {
	// set cap=4 to hopefully avoid additional allocations
	buf := make([]byte, 0, 4)
	for tag != 0 {
		// t := last 7 bits of tag (tagHighValueBitmask = 0x7F)
		t := tag & tagHighValueBitmask
		// right shift tag 7 to remove what was just pulled off
		tag >>= 7
		// if b already has entries this entry needs a continuation bit (0x80)
		if len(buf) != 0 {
			t |= tagHighContinueBitmask
		}
		buf = append(buf, byte(t))
	}
	// since bits were pulled off 'tag' small to high the byte slice is in
	// reverse order
	for i, j := 0, len(buf)-1; i < len(buf)/2; i++ {
		buf[i], buf[j-i] = buf[j-i], buf[i]
	}
	return buf
}

// EncodeCount encodes a definite length in its minimal form.
func EncodeCount(n int) []byte {
	if n <= 127 {
		return []byte{byte(n)}
	}
	buf := EncodeUint64(uint64(n))
	return append([]byte{longFormBitmaskLen | byte(len(buf))}, buf...)
}

// EncodeInt64 encodes i as a minimal two's complement big-endian integer.
func EncodeInt64(i int64) []byte {
	n := int64Len(i)
	buf := make([]byte, n)
	var j int
	for ; n > 0; n-- {
		buf[j] = byte(i >> uint((n-1)*8))
		j++
	}
	return buf
}

// EncodeUint64 encodes i as a minimal unsigned big-endian integer.
func EncodeUint64(i uint64) []byte {
	n := uint64Len(i)
	buf := make([]byte, n)
	var j int
	for ; n > 0; n-- {
		buf[j] = byte(i >> uint((n-1)*8))
		j++
	}
	return buf
}

func int64Len(i int64) int {
	n := 1
	for i > 127 {
		n++
		i >>= 8
	}
	for i < -128 {
		n++
		i >>= 8
	}
	return n
}

func uint64Len(i uint64) int {
	n := 1
	for i > 255 {
		n++
		i >>= 8
	}
	return n
}
