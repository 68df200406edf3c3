package ldap

import (
	"context"
	"strconv"
	"strings"

	"github.com/userhive/ldapoidc/ber"
)

// Application is the ldap application enum.
type Application ber.Tag

// Application values.
const (
	ApplicationBindRequest           Application = 0
	ApplicationBindResponse          Application = 1
	ApplicationUnbindRequest         Application = 2
	ApplicationSearchRequest         Application = 3
	ApplicationSearchResultEntry     Application = 4
	ApplicationSearchResultDone      Application = 5
	ApplicationModifyRequest         Application = 6
	ApplicationModifyResponse        Application = 7
	ApplicationAddRequest            Application = 8
	ApplicationAddResponse           Application = 9
	ApplicationDeleteRequest         Application = 10
	ApplicationDeleteResponse        Application = 11
	ApplicationModifyDNRequest       Application = 12
	ApplicationModifyDNResponse      Application = 13
	ApplicationCompareRequest        Application = 14
	ApplicationCompareResponse       Application = 15
	ApplicationAbandonRequest        Application = 16
	ApplicationSearchResultReference Application = 19
	ApplicationExtendedRequest       Application = 23
	ApplicationExtendedResponse      Application = 24
)

var applicationNames = map[Application]string{
	ApplicationBindRequest:           "BindRequest",
	ApplicationBindResponse:          "BindResponse",
	ApplicationUnbindRequest:         "UnbindRequest",
	ApplicationSearchRequest:         "SearchRequest",
	ApplicationSearchResultEntry:     "SearchResultEntry",
	ApplicationSearchResultDone:      "SearchResultDone",
	ApplicationModifyRequest:         "ModifyRequest",
	ApplicationModifyResponse:        "ModifyResponse",
	ApplicationAddRequest:            "AddRequest",
	ApplicationAddResponse:           "AddResponse",
	ApplicationDeleteRequest:         "DeleteRequest",
	ApplicationDeleteResponse:        "DeleteResponse",
	ApplicationModifyDNRequest:       "ModifyDNRequest",
	ApplicationModifyDNResponse:      "ModifyDNResponse",
	ApplicationCompareRequest:        "CompareRequest",
	ApplicationCompareResponse:       "CompareResponse",
	ApplicationAbandonRequest:        "AbandonRequest",
	ApplicationSearchResultReference: "SearchResultReference",
	ApplicationExtendedRequest:       "ExtendedRequest",
	ApplicationExtendedResponse:      "ExtendedResponse",
}

// String satisfies the fmt.Stringer interface.
func (app Application) String() string {
	if s, ok := applicationNames[app]; ok {
		return s
	}
	return "Application(" + strconv.FormatUint(uint64(app), 10) + ")"
}

// Tag returns the application as a ber.Tag.
func (app Application) Tag() ber.Tag {
	return ber.Tag(app)
}

// Response returns the corresponding response for the app.
func (app Application) Response() Application {
	if app == ApplicationSearchRequest {
		return ApplicationSearchResultDone
	}
	return app + 1
}

// IsRequest determines if the app is an operation a client may send.
func (app Application) IsRequest() bool {
	switch app {
	case ApplicationBindRequest,
		ApplicationUnbindRequest,
		ApplicationSearchRequest,
		ApplicationModifyRequest,
		ApplicationAddRequest,
		ApplicationDeleteRequest,
		ApplicationModifyDNRequest,
		ApplicationCompareRequest,
		ApplicationAbandonRequest,
		ApplicationExtendedRequest:
		return true
	}
	return false
}

// name returns the lower case operation name of the app, as used in
// diagnostic messages.
func (app Application) name() string {
	s := app.String()
	s = strings.TrimSuffix(s, "Request")
	s = strings.TrimSuffix(s, "Response")
	return strings.ToLower(s[:1]) + s[1:]
}

// Encoder is the interface for types that can be directly encoded to a
// response writer.
type Encoder interface {
	Encode(context.Context, ResponseWriter) error
}

// OpHandler is a ldap operation handler, dispatching each supported
// operation to its handler.
//
// Requests for operations outside the supported set are answered with
// ResultUnwillingToPerform, except for abandon requests, which never receive
// a response.
type OpHandler struct {
	Bind     BindHandler
	Search   SearchHandler
	Extended ExtendedHandler
	Unbind   UnbindHandler
}

// ServeLDAP satisfies the Handler interface.
func (h OpHandler) ServeLDAP(ctx context.Context, res ResponseWriter, req *Request) {
	var v Encoder
	var err error
	switch op := req.Op.(type) {
	case *BindRequest:
		v, err = h.doBind(ctx, op)
	case *SearchRequest:
		v, err = h.doSearch(ctx, op)
	case *ExtendedRequest:
		v, err = h.doExtended(ctx, op)
	case *UnbindRequest:
		v, err = h.doUnbind(ctx, op)
	default:
		if req.App == ApplicationAbandonRequest {
			return
		}
		_ = res.WriteError(req.App.Response(), NewErrorf(ResultUnwillingToPerform, "%s operation not supported", req.App.name()))
		return
	}
	if err != nil {
		_ = res.WriteError(req.App.Response(), err)
		return
	}
	if v != nil {
		_ = v.Encode(ctx, res)
	}
}

// doBind passes the bind request to the Bind handler.
func (h OpHandler) doBind(ctx context.Context, req *BindRequest) (Encoder, error) {
	if h.Bind == nil {
		return nil, NewError(ResultOperationsError, "bind operation not supported")
	}
	res, err := h.Bind.Bind(ctx, req)
	switch {
	case err != nil:
		return nil, err
	case res == nil:
		return nil, NewError(ResultOperationsError, "empty bind response")
	}
	return res, nil
}

// doSearch passes the search request to the Search handler.
func (h OpHandler) doSearch(ctx context.Context, req *SearchRequest) (Encoder, error) {
	if h.Search == nil {
		return nil, NewError(ResultOperationsError, "search operation not supported")
	}
	res, err := h.Search.Search(ctx, req)
	switch {
	case err != nil:
		return nil, err
	case res == nil:
		return nil, NewError(ResultOperationsError, "empty search response")
	}
	return res, nil
}

// doExtended passes the extended request to the Extended handler.
func (h OpHandler) doExtended(ctx context.Context, req *ExtendedRequest) (Encoder, error) {
	if h.Extended == nil {
		return nil, NewError(ResultOperationsError, "extended operation not supported")
	}
	res, err := h.Extended.Extended(ctx, req)
	switch {
	case err != nil:
		return nil, err
	case res == nil:
		return nil, NewError(ResultOperationsError, "empty extended response")
	}
	return res, nil
}

// doUnbind passes the unbind request to the Unbind handler, if any. Unbind
// has no response unless the handler provides one.
func (h OpHandler) doUnbind(ctx context.Context, req *UnbindRequest) (Encoder, error) {
	if h.Unbind == nil {
		return nil, nil
	}
	return h.Unbind.Unbind(ctx, req)
}
