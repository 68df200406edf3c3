package ldap

import (
	"context"
	"fmt"

	"github.com/userhive/ldapoidc/ber"
)

type BindHandler interface {
	Bind(context.Context, *BindRequest) (*BindResponse, error)
}

type BindHandlerFunc func(context.Context, *BindRequest) (*BindResponse, error)

func (f BindHandlerFunc) Bind(ctx context.Context, req *BindRequest) (*BindResponse, error) {
	return f(ctx, req)
}

// AuthMethod is the authentication choice of a bind request.
type AuthMethod ber.Tag

// AuthMethod values.
const (
	AuthSimple AuthMethod = 0
	AuthSASL   AuthMethod = 3
)

// String satisfies the fmt.Stringer interface.
func (m AuthMethod) String() string {
	switch m {
	case AuthSimple:
		return "simple"
	case AuthSASL:
		return "sasl"
	}
	return fmt.Sprintf("AuthMethod(%d)", uint64(m))
}

// BindRequest is a bind request.
//
// Password holds the simple password, or the SASL credentials when Method is
// AuthSASL (nil when the client sent none).
type BindRequest struct {
	Version   int64
	Name      string
	Method    AuthMethod
	Password  []byte
	Mechanism string
}

// Application satisfies the Op interface.
func (*BindRequest) Application() Application {
	return ApplicationBindRequest
}

// String satisfies the fmt.Stringer interface. The password is never
// included.
func (req *BindRequest) String() string {
	return fmt.Sprintf("BindRequest{Version:%d Name:%q Method:%s Mechanism:%q}", req.Version, req.Name, req.Method, req.Mechanism)
}

func (req *BindRequest) packet() *ber.Packet {
	p := ber.NewPacket(ber.ClassApplication, ber.TypeConstructed, ApplicationBindRequest.Tag(), "Bind Request")
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, req.Version, "Version"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.Name, "Name"))
	switch req.Method {
	case AuthSASL:
		auth := ber.NewPacket(ber.ClassContext, ber.TypeConstructed, ber.Tag(AuthSASL), "SASL")
		auth.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.Mechanism, "Mechanism"))
		if req.Password != nil {
			auth.AppendChild(ber.NewBytes(ber.ClassUniversal, ber.TagOctetString, req.Password, "Credentials"))
		}
		p.AppendChild(auth)
	default:
		p.AppendChild(ber.NewBytes(ber.ClassContext, ber.Tag(AuthSimple), req.Password, "Password"))
	}
	return p
}

func parseBindRequest(p *ber.Packet) (*BindRequest, error) {
	const app = ApplicationBindRequest
	if p.Type != ber.TypeConstructed {
		return nil, ErrPacketHasInvalidType
	}
	if len(p.Children) != 3 {
		return nil, ErrPacketHasInvalidNumberOfChildren
	}
	ver, ok := readInteger(p.Children[0])
	if !ok {
		return nil, fieldError(app, "version")
	}
	if ver < 1 || ver > 127 {
		return nil, ErrInvalidVersion
	}
	name, ok := readOctetString(p.Children[1])
	if !ok {
		return nil, fieldError(app, "name")
	}
	req := &BindRequest{
		Version: ver,
		Name:    name,
	}
	auth := p.Children[2]
	switch {
	case auth.Is(ber.ClassContext, ber.TypePrimitive, ber.Tag(AuthSimple)):
		req.Method, req.Password = AuthSimple, append([]byte{}, auth.ByteValue...)
	case auth.Is(ber.ClassContext, ber.TypeConstructed, ber.Tag(AuthSASL)):
		if n := len(auth.Children); n != 1 && n != 2 {
			return nil, fieldError(app, "sasl credentials")
		}
		mech, ok := readOctetString(auth.Children[0])
		if !ok {
			return nil, fieldError(app, "sasl mechanism")
		}
		req.Method, req.Mechanism = AuthSASL, mech
		if len(auth.Children) == 2 {
			if !auth.Children[1].Is(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString) {
				return nil, fieldError(app, "sasl credentials")
			}
			req.Password = append([]byte{}, auth.Children[1].ByteValue...)
		}
	default:
		return nil, ErrUnknownAuthChoice
	}
	return req, nil
}

// BindResponse is a bind response.
type BindResponse struct {
	Result    Result
	MatchedDN string
	Message   string
}

// Application satisfies the Op interface.
func (*BindResponse) Application() Application {
	return ApplicationBindResponse
}

// Encode satisfies the Encoder interface.
func (res *BindResponse) Encode(ctx context.Context, w ResponseWriter) error {
	return w.WriteMessage(res)
}

func (res *BindResponse) packet() *ber.Packet {
	return BuildResultPacket(ApplicationBindResponse, res.Result, res.MatchedDN, res.Message)
}

func parseBindResponse(p *ber.Packet) (*BindResponse, error) {
	body, err := parseResultBody(ApplicationBindResponse, p)
	if err != nil {
		return nil, err
	}
	return &BindResponse{
		Result:    body.Result,
		MatchedDN: body.Matched,
		Message:   body.Message,
	}, nil
}
