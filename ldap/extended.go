package ldap

import (
	"context"

	"github.com/userhive/ldapoidc/ber"
)

// ExtendedOp is an extended operation identifier.
type ExtendedOp string

// String satisfies the fmt.Stringer interface.
func (op ExtendedOp) String() string {
	return string(op)
}

// ExtendedOp values.
const (
	ExtendedOpPasswordModify ExtendedOp = "1.3.6.1.4.1.4203.1.11.1"
	ExtendedOpCancel         ExtendedOp = "1.3.6.1.4.1.4203.1.11.2"
	ExtendedOpWhoAmI         ExtendedOp = "1.3.6.1.4.1.4203.1.11.3"
	ExtendedOpStartTLS       ExtendedOp = "1.3.6.1.4.1.1466.20037"
)

type ExtendedHandler interface {
	Extended(context.Context, *ExtendedRequest) (*ExtendedResponse, error)
}

type ExtendedHandlerFunc func(context.Context, *ExtendedRequest) (*ExtendedResponse, error)

func (f ExtendedHandlerFunc) Extended(ctx context.Context, req *ExtendedRequest) (*ExtendedResponse, error) {
	return f(ctx, req)
}

// ExtendedRequest is an extended request. Value holds the raw requestValue
// octets, nil when absent.
type ExtendedRequest struct {
	Name  ExtendedOp
	Value []byte
}

// Application satisfies the Op interface.
func (*ExtendedRequest) Application() Application {
	return ApplicationExtendedRequest
}

func (req *ExtendedRequest) packet() *ber.Packet {
	p := ber.NewPacket(ber.ClassApplication, ber.TypeConstructed, ApplicationExtendedRequest.Tag(), "Extended Request")
	p.AppendChild(ber.NewBytes(ber.ClassContext, 0, []byte(req.Name), "Request Name"))
	if req.Value != nil {
		p.AppendChild(ber.NewBytes(ber.ClassContext, 1, req.Value, "Request Value"))
	}
	return p
}

func parseExtendedRequest(p *ber.Packet) (*ExtendedRequest, error) {
	const app = ApplicationExtendedRequest
	if p.Type != ber.TypeConstructed {
		return nil, ErrPacketHasInvalidType
	}
	if n := len(p.Children); n != 1 && n != 2 {
		return nil, ErrPacketHasInvalidNumberOfChildren
	}
	name, ok := readContextString(p.Children[0], 0)
	if !ok {
		return nil, fieldError(app, "request name")
	}
	req := &ExtendedRequest{
		Name: ExtendedOp(name),
	}
	if len(p.Children) == 2 {
		if req.Value, ok = readContextBytes(p.Children[1], 1); !ok {
			return nil, fieldError(app, "request value")
		}
	}
	return req, nil
}

// ExtendedResponse is an extended response. Name and Value are optional.
type ExtendedResponse struct {
	Result    Result
	MatchedDN string
	Message   string
	Name      ExtendedOp
	Value     []byte
}

// Application satisfies the Op interface.
func (*ExtendedResponse) Application() Application {
	return ApplicationExtendedResponse
}

// Encode satisfies the Encoder interface.
func (res *ExtendedResponse) Encode(ctx context.Context, w ResponseWriter) error {
	return w.WriteMessage(res)
}

func (res *ExtendedResponse) packet() *ber.Packet {
	p := BuildResultPacket(ApplicationExtendedResponse, res.Result, res.MatchedDN, res.Message)
	if res.Name != "" {
		p.AppendChild(ber.NewBytes(ber.ClassContext, 10, []byte(res.Name), "Response Name"))
	}
	if res.Value != nil {
		p.AppendChild(ber.NewBytes(ber.ClassContext, 11, res.Value, "Response Value"))
	}
	return p
}

func parseExtendedResponse(p *ber.Packet) (*ExtendedResponse, error) {
	const app = ApplicationExtendedResponse
	body, err := parseResultBody(app, p)
	if err != nil {
		return nil, err
	}
	res := &ExtendedResponse{
		Result:    body.Result,
		MatchedDN: body.Matched,
		Message:   body.Message,
	}
	for _, child := range p.Children[3:] {
		switch {
		case child.Is(ber.ClassContext, ber.TypeConstructed, 3):
			// referral
		case child.Is(ber.ClassContext, ber.TypePrimitive, 10):
			res.Name = ExtendedOp(child.ByteValue)
		case child.Is(ber.ClassContext, ber.TypePrimitive, 11):
			res.Value = append([]byte{}, child.ByteValue...)
		default:
			return nil, fieldError(app, "response")
		}
	}
	return res, nil
}
