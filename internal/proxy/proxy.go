// Package proxy answers ldap requests by verifying simple binds with an OIDC
// password grant. It holds no directory data: searches and extended
// operations always succeed with empty results.
package proxy

import (
	"context"

	"github.com/userhive/ldapoidc/internal/tokenclient"
	"github.com/userhive/ldapoidc/ldap"
	"github.com/userhive/ldapoidc/ldap/filter"
)

// Authenticator verifies a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, password []byte) tokenclient.Result
}

// Options configures a Handler.
type Options struct {
	// UsernameAttribute is the attribute of the first bind name component
	// holding the username. Defaults to cn.
	UsernameAttribute string
	// LegacyUnbindResponse answers unbind with a successful bind response.
	LegacyUnbindResponse bool
}

// Handler is the proxy's ldap operation handler.
type Handler struct {
	auth         Authenticator
	attr         string
	legacyUnbind bool
}

// NewHandler creates a handler verifying binds with auth.
func NewHandler(auth Authenticator, opts Options) *Handler {
	attr := opts.UsernameAttribute
	if attr == "" {
		attr = "cn"
	}
	return &Handler{
		auth:         auth,
		attr:         attr,
		legacyUnbind: opts.LegacyUnbindResponse,
	}
}

// OpHandler returns the ldap.OpHandler dispatching to h.
func (h *Handler) OpHandler() ldap.OpHandler {
	return ldap.OpHandler{
		Bind:     h,
		Search:   h,
		Extended: h,
		Unbind:   h,
	}
}

// Bind satisfies the ldap.BindHandler interface. Each bind is evaluated on
// its own; no state is kept on the connection.
func (h *Handler) Bind(ctx context.Context, req *ldap.BindRequest) (*ldap.BindResponse, error) {
	log := ldap.Logger(ctx).WithValues("dn", req.Name)
	if req.Method != ldap.AuthSimple {
		log.Info("bind rejected", "reason", "unsupported authentication method", "method", req.Method.String(), "mechanism", req.Mechanism)
		return &ldap.BindResponse{Result: ldap.ResultAuthMethodNotSupported}, nil
	}
	identity, err := ExtractIdentity(req.Name, h.attr)
	if err != nil {
		log.Info("bind rejected", "reason", err.Error())
		return BindResult(tokenclient.Rejected), nil
	}
	log = log.WithValues("identity", identity)
	if len(req.Password) == 0 {
		log.Info("bind rejected", "reason", "empty password")
		return BindResult(tokenclient.Rejected), nil
	}
	res := h.auth.Authenticate(ctx, identity, req.Password)
	if res.Outcome == tokenclient.TransportFailure {
		log.Error(res.Err, "bind failed", "outcome", res.Outcome.String())
	} else {
		log.Info("bind", "outcome", res.Outcome.String(), "status", res.StatusCode)
	}
	return BindResult(res.Outcome), nil
}

// Search satisfies the ldap.SearchHandler interface.
func (h *Handler) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResultDone, error) {
	log := ldap.Logger(ctx)
	if log.V(1).Enabled() {
		f, err := filter.String(req.Filter)
		if err != nil {
			f = "invalid: " + err.Error()
		}
		log.V(1).Info("search", "base", req.BaseObject, "scope", req.Scope.String(), "filter", f)
	}
	return SearchDone(), nil
}

// Extended satisfies the ldap.ExtendedHandler interface.
func (h *Handler) Extended(ctx context.Context, req *ldap.ExtendedRequest) (*ldap.ExtendedResponse, error) {
	ldap.Logger(ctx).V(1).Info("extended", "name", req.Name.String())
	return ExtendedResult(req), nil
}

// Unbind satisfies the ldap.UnbindHandler interface.
func (h *Handler) Unbind(ctx context.Context, req *ldap.UnbindRequest) (ldap.Encoder, error) {
	if res := UnbindResult(h.legacyUnbind); res != nil {
		return res, nil
	}
	return nil, nil
}
