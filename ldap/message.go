package ldap

import (
	"math"

	"github.com/userhive/ldapoidc/ber"
)

// Op is an ldap protocol operation. The set of operations is closed: it is
// implemented only by the request and response types of this package.
type Op interface {
	// Application returns the operation's application tag.
	Application() Application
	// packet encodes the operation body.
	packet() *ber.Packet
}

// Message is an ldap message, the envelope of every operation.
type Message struct {
	ID int64
	Op Op
}

// Packet returns the ber packet for the message.
func (msg *Message) Packet() *ber.Packet {
	return BuildMessagePacket(msg.ID, msg.Op.packet())
}

// Bytes returns the encoded message.
func (msg *Message) Bytes() []byte {
	return msg.Packet().Bytes()
}

// BuildMessagePacket builds a ldap message packet with the id and op.
func BuildMessagePacket(id int64, op *ber.Packet) *ber.Packet {
	p := ber.NewSequence("LDAP Message")
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, id, "Message ID"))
	p.AppendChild(op)
	return p
}

// BuildResultPacket builds a LDAPResult packet for the application.
func BuildResultPacket(app Application, result Result, matched, message string) *ber.Packet {
	p := ber.NewPacket(ber.ClassApplication, ber.TypeConstructed, app.Tag(), app.String())
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(result), "Result Code"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, matched, "Matched DN"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, message, "Diagnostic Message"))
	return p
}

// ParseMessage parses a ldap message from the packet.
//
// A well-framed message carrying an operation other than the ones this
// package decodes yields an *UnsupportedOpError, which retains the message
// id and application. Any other error means the message is malformed.
func ParseMessage(p *ber.Packet) (*Message, error) {
	if !p.Is(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence) {
		return nil, ErrPacketNotSequence
	}
	if n := len(p.Children); n != 2 && n != 3 {
		return nil, ErrPacketHasInvalidNumberOfChildren
	}
	idp := p.Children[0]
	if !idp.Is(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger) {
		return nil, ErrPacketHasInvalidMessageID
	}
	id := idp.Value.(int64)
	if id < 0 || id > math.MaxInt32 {
		return nil, ErrPacketHasInvalidMessageID
	}
	if len(p.Children) == 3 && !p.Children[2].Is(ber.ClassContext, ber.TypeConstructed, 0) {
		return nil, ErrPacketHasInvalidControls
	}
	opp := p.Children[1]
	if opp.Class != ber.ClassApplication {
		return nil, ErrPacketHasInvalidClass
	}
	app := Application(opp.Tag)
	var op Op
	var err error
	switch app {
	case ApplicationBindRequest:
		op, err = parseBindRequest(opp)
	case ApplicationBindResponse:
		op, err = parseBindResponse(opp)
	case ApplicationUnbindRequest:
		op, err = parseUnbindRequest(opp)
	case ApplicationSearchRequest:
		op, err = parseSearchRequest(opp)
	case ApplicationSearchResultDone:
		op, err = parseSearchResultDone(opp)
	case ApplicationExtendedRequest:
		op, err = parseExtendedRequest(opp)
	case ApplicationExtendedResponse:
		op, err = parseExtendedResponse(opp)
	default:
		return nil, &UnsupportedOpError{ID: id, App: app}
	}
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Op: op}, nil
}

// resultBody is the LDAPResult shared by response operations.
type resultBody struct {
	Result  Result
	Matched string
	Message string
}

// parseResultBody parses the leading LDAPResult fields of a response.
func parseResultBody(app Application, p *ber.Packet) (resultBody, error) {
	if p.Type != ber.TypeConstructed {
		return resultBody{}, ErrPacketHasInvalidType
	}
	if len(p.Children) < 3 {
		return resultBody{}, ErrPacketHasInvalidNumberOfChildren
	}
	code, ok := readEnumerated(p.Children[0])
	if !ok || code < 0 || code > math.MaxUint16 {
		return resultBody{}, fieldError(app, "result code")
	}
	matched, ok := readOctetString(p.Children[1])
	if !ok {
		return resultBody{}, fieldError(app, "matched dn")
	}
	message, ok := readOctetString(p.Children[2])
	if !ok {
		return resultBody{}, fieldError(app, "diagnostic message")
	}
	return resultBody{Result: Result(code), Matched: matched, Message: message}, nil
}

func readInteger(p *ber.Packet) (int64, bool) {
	if !p.Is(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger) {
		return 0, false
	}
	return p.Value.(int64), true
}

func readEnumerated(p *ber.Packet) (int64, bool) {
	if !p.Is(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated) {
		return 0, false
	}
	return p.Value.(int64), true
}

func readBoolean(p *ber.Packet) (bool, bool) {
	if !p.Is(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean) {
		return false, false
	}
	return p.Value.(bool), true
}

func readOctetString(p *ber.Packet) (string, bool) {
	if !p.Is(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString) {
		return "", false
	}
	return p.Value.(string), true
}

// readContextString reads a primitive context-class string with the tag.
func readContextString(p *ber.Packet, tag ber.Tag) (string, bool) {
	if !p.Is(ber.ClassContext, ber.TypePrimitive, tag) {
		return "", false
	}
	return string(p.ByteValue), true
}

// readContextBytes reads and copies primitive context-class octets with the
// tag.
func readContextBytes(p *ber.Packet, tag ber.Tag) ([]byte, bool) {
	if !p.Is(ber.ClassContext, ber.TypePrimitive, tag) {
		return nil, false
	}
	return append([]byte{}, p.ByteValue...), true
}
