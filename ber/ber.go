// Package ber provides encoding and decoding for the subset of asn1 ber
// used by ldap messages.
package ber

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Class is the ber packet class.
type Class uint8

const (
	ClassUniversal   Class = 0   // 00xxxxxxb
	ClassApplication Class = 64  // 01xxxxxxb
	ClassContext     Class = 128 // 10xxxxxxb
	ClassPrivate     Class = 192 // 11xxxxxxb
)

// String satisfies the fmt.Stringer interface.
func (class Class) String() string {
	switch class {
	case ClassUniversal:
		return "Universal"
	case ClassApplication:
		return "Application"
	case ClassContext:
		return "Context"
	case ClassPrivate:
		return "Private"
	}
	return fmt.Sprintf("Class(%d)", uint8(class))
}

// Type is the ber packet type.
type Type uint8

const (
	TypePrimitive   Type = 0  // xx0xxxxxb
	TypeConstructed Type = 32 // xx1xxxxxb
)

// String satisfies the fmt.Stringer interface.
func (typ Type) String() string {
	if typ == TypeConstructed {
		return "Constructed"
	}
	return "Primitive"
}

// Tag is the ber packet tag.
type Tag uint64

const (
	TagEOC         Tag = 0x00
	TagBoolean     Tag = 0x01
	TagInteger     Tag = 0x02
	TagOctetString Tag = 0x04
	TagNULL        Tag = 0x05
	TagEnumerated  Tag = 0x0a
	TagUTF8String  Tag = 0x0c
	TagSequence    Tag = 0x10
	TagSet         Tag = 0x11
	TagBitmask     Tag = 0x1f // xxx11111b

	// tagHigh indicates the start of a high-tag byte sequence.
	tagHigh Tag = 0x1f // xxx11111b

	// tagHighContinueBitmask indicates the high-tag byte sequence should
	// continue.
	tagHighContinueBitmask Tag = 0x80 // 10000000b

	// tagHighValueBitmask obtains the tag value from a high-tag byte sequence
	// byte.
	tagHighValueBitmask Tag = 0x7f // 01111111b
)

var tagNames = map[Tag]string{
	TagEOC:         "EOC",
	TagBoolean:     "Boolean",
	TagInteger:     "Integer",
	TagOctetString: "OctetString",
	TagNULL:        "NULL",
	TagEnumerated:  "Enumerated",
	TagUTF8String:  "UTF8String",
	TagSequence:    "Sequence",
	TagSet:         "Set",
}

// String satisfies the fmt.Stringer interface.
func (tag Tag) String() string {
	if s, ok := tagNames[tag]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%d)", uint64(tag))
}

// Packet is a ber packet.
//
// Data always holds the encoded content octets, so that Bytes can re-encode
// a parsed packet exactly. For primitive packets ByteValue aliases the
// content octets and Value holds the decoded universal value, if any.
type Packet struct {
	Class     Class
	Type      Type
	Tag       Tag
	Value     interface{}
	ByteValue []byte
	Data      *bytes.Buffer
	Children  []*Packet
	Desc      string
}

// NewPacket creates a new ber packet.
func NewPacket(class Class, typ Type, tag Tag, desc string) *Packet {
	return &Packet{
		Class:    class,
		Type:     typ,
		Tag:      tag,
		Data:     new(bytes.Buffer),
		Children: make([]*Packet, 0, 2),
		Desc:     desc,
	}
}

// NewSequence returns a new sequence packet.
func NewSequence(desc string) *Packet {
	return NewPacket(ClassUniversal, TypeConstructed, TagSequence, desc)
}

// NewBoolean returns a new RFC 4511-compliant (ldap) boolean packet, where
// true is encoded as 0xff.
func NewBoolean(class Class, typ Type, tag Tag, value bool, desc string) *Packet {
	p := NewPacket(class, typ, tag, desc)
	p.Value = value
	if value {
		p.setPrimitive([]byte{0xff})
	} else {
		p.setPrimitive([]byte{0x00})
	}
	return p
}

// NewInteger returns a new integer (or enumerated) packet.
func NewInteger(class Class, typ Type, tag Tag, value int64, desc string) *Packet {
	p := NewPacket(class, typ, tag, desc)
	p.Value = value
	p.setPrimitive(EncodeInt64(value))
	return p
}

// NewString returns a new string packet.
func NewString(class Class, typ Type, tag Tag, value, desc string) *Packet {
	p := NewPacket(class, typ, tag, desc)
	p.Value = value
	p.setPrimitive([]byte(value))
	return p
}

// NewBytes returns a new primitive packet holding the raw octets buf. The
// octets are copied.
func NewBytes(class Class, tag Tag, buf []byte, desc string) *Packet {
	p := NewPacket(class, TypePrimitive, tag, desc)
	p.setPrimitive(append([]byte{}, buf...))
	if class == ClassUniversal && tag == TagOctetString {
		p.Value = string(buf)
	}
	return p
}

// NewNull returns a new zero-length primitive packet.
func NewNull(class Class, tag Tag, desc string) *Packet {
	p := NewPacket(class, TypePrimitive, tag, desc)
	p.ByteValue = []byte{}
	return p
}

func (p *Packet) setPrimitive(buf []byte) {
	p.Data.Write(buf)
	p.ByteValue = p.Data.Bytes()
}

// Bytes returns the definite-length encoding of the packet.
func (p *Packet) Bytes() []byte {
	buf := new(bytes.Buffer)
	buf.Write(EncodeIdentifier(p.Class, p.Type, p.Tag))
	buf.Write(EncodeCount(p.Data.Len()))
	buf.Write(p.Data.Bytes())
	return buf.Bytes()
}

// AppendChild appends a child to the packet.
func (p *Packet) AppendChild(child *Packet) {
	p.Data.Write(child.Bytes())
	p.Children = append(p.Children, child)
}

// Is determines if the packet has the class, type and tag.
func (p *Packet) Is(class Class, typ Type, tag Tag) bool {
	return p != nil && p.Class == class && p.Type == typ && p.Tag == tag
}

// String satisfies the fmt.Stringer interface.
func (p *Packet) String() string {
	buf := new(bytes.Buffer)
	p.PrettyPrint(buf, 0)
	return buf.String()
}

// PrettyPrint pretty-prints the packet to the writer using the specified
// indent. Primitive values are not printed, as packets may carry
// credentials.
func (p *Packet) PrettyPrint(w io.Writer, indent int) {
	tagStr := fmt.Sprintf("0x%02X", uint64(p.Tag))
	if p.Class == ClassUniversal {
		tagStr = p.Tag.String()
	}
	desc := ""
	if p.Desc != "" {
		desc = p.Desc + ": "
	}
	_, _ = fmt.Fprintf(
		w,
		"%s%s(%s, %s, %s) Len=%d\n",
		strings.Repeat(" ", indent),
		desc,
		p.Class,
		p.Type,
		tagStr,
		p.Data.Len(),
	)
	for _, child := range p.Children {
		child.PrettyPrint(w, indent+1)
	}
}

// decodeValue sets the packet's Value from its content octets for the
// universal types ldap uses.
func (p *Packet) decodeValue(buf []byte) error {
	if p.Class != ClassUniversal {
		return nil
	}
	switch p.Tag {
	case TagBoolean:
		if len(buf) != 1 {
			return ErrInvalidBoolean
		}
		p.Value = buf[0] != 0
	case TagInteger, TagEnumerated:
		if len(buf) == 0 {
			return ErrInvalidInteger
		}
		i, err := ParseInt64(buf)
		if err != nil {
			return err
		}
		p.Value = i
	case TagOctetString:
		// the actual string encoding is not known here (e.g. for ldap content
		// is already an utf-8 encoded string), so return the data without
		// further processing
		p.Value = string(buf)
	case TagNULL:
		if len(buf) != 0 {
			return ErrInvalidNull
		}
	case TagUTF8String:
		if !utf8.Valid(buf) {
			return ErrInvalidUTF8String
		}
		p.Value = string(buf)
	}
	return nil
}
