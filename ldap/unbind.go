package ldap

import (
	"context"

	"github.com/userhive/ldapoidc/ber"
)

// UnbindHandler handles unbind requests. A nil Encoder means no response is
// written; the server disconnects after the handler returns either way.
type UnbindHandler interface {
	Unbind(context.Context, *UnbindRequest) (Encoder, error)
}

type UnbindHandlerFunc func(context.Context, *UnbindRequest) (Encoder, error)

func (f UnbindHandlerFunc) Unbind(ctx context.Context, req *UnbindRequest) (Encoder, error) {
	return f(ctx, req)
}

type UnbindRequest struct{}

// Application satisfies the Op interface.
func (*UnbindRequest) Application() Application {
	return ApplicationUnbindRequest
}

func (*UnbindRequest) packet() *ber.Packet {
	return ber.NewNull(ber.ClassApplication, ApplicationUnbindRequest.Tag(), "Unbind Request")
}

func parseUnbindRequest(p *ber.Packet) (*UnbindRequest, error) {
	if p.Type != ber.TypePrimitive {
		return nil, ErrPacketHasInvalidType
	}
	if len(p.ByteValue) != 0 {
		return nil, fieldError(ApplicationUnbindRequest, "value")
	}
	return &UnbindRequest{}, nil
}
