package ldap

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/userhive/ldapoidc/ber"
	ldapfilter "github.com/userhive/ldapoidc/ldap/filter"
)

type SearchHandler interface {
	Search(context.Context, *SearchRequest) (*SearchResultDone, error)
}

type SearchHandlerFunc func(context.Context, *SearchRequest) (*SearchResultDone, error)

func (f SearchHandlerFunc) Search(ctx context.Context, req *SearchRequest) (*SearchResultDone, error) {
	return f(ctx, req)
}

// SearchRequest is a search request. The filter is kept as its encoded
// packet.
type SearchRequest struct {
	BaseObject   string
	Scope        Scope
	DerefAliases DerefAliases
	SizeLimit    int64
	TimeLimit    time.Duration
	TypesOnly    bool
	Filter       *ber.Packet
	Attributes   []string
}

// Application satisfies the Op interface.
func (*SearchRequest) Application() Application {
	return ApplicationSearchRequest
}

func (req *SearchRequest) packet() *ber.Packet {
	p := ber.NewPacket(ber.ClassApplication, ber.TypeConstructed, ApplicationSearchRequest.Tag(), "Search Request")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.BaseObject, "Base Object"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(req.Scope), "Scope"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(req.DerefAliases), "Deref Aliases"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, req.SizeLimit, "Size Limit"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(req.TimeLimit/time.Second), "Time Limit"))
	p.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, req.TypesOnly, "Types Only"))
	filter := req.Filter
	if filter == nil {
		filter = ldapfilter.NewPresent("objectClass")
	}
	p.AppendChild(filter)
	attrs := ber.NewSequence("Attributes")
	for _, attr := range req.Attributes {
		attrs.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attr, "Attribute"))
	}
	p.AppendChild(attrs)
	return p
}

func parseSearchRequest(p *ber.Packet) (*SearchRequest, error) {
	const app = ApplicationSearchRequest
	if p.Type != ber.TypeConstructed {
		return nil, ErrPacketHasInvalidType
	}
	if len(p.Children) != 8 {
		return nil, ErrPacketHasInvalidNumberOfChildren
	}
	base, ok := readOctetString(p.Children[0])
	if !ok {
		return nil, fieldError(app, "base object")
	}
	scope, ok := readEnumerated(p.Children[1])
	if !ok {
		return nil, fieldError(app, "scope")
	}
	deref, ok := readEnumerated(p.Children[2])
	if !ok {
		return nil, fieldError(app, "deref aliases")
	}
	sizeLimit, ok := readInteger(p.Children[3])
	if !ok || sizeLimit < 0 || sizeLimit > math.MaxInt32 {
		return nil, fieldError(app, "size limit")
	}
	timeLimit, ok := readInteger(p.Children[4])
	if !ok || timeLimit < 0 || timeLimit > math.MaxInt32 {
		return nil, fieldError(app, "time limit")
	}
	typesOnly, ok := readBoolean(p.Children[5])
	if !ok {
		return nil, fieldError(app, "types only")
	}
	filter := p.Children[6]
	if filter.Class != ber.ClassContext {
		return nil, fieldError(app, "filter")
	}
	attrs := p.Children[7]
	if !attrs.Is(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence) {
		return nil, fieldError(app, "attributes")
	}
	var attributes []string
	for _, child := range attrs.Children {
		attr, ok := readOctetString(child)
		if !ok {
			return nil, fieldError(app, "attribute")
		}
		attributes = append(attributes, attr)
	}
	return &SearchRequest{
		BaseObject:   base,
		Scope:        Scope(scope),
		DerefAliases: DerefAliases(deref),
		SizeLimit:    sizeLimit,
		TimeLimit:    time.Duration(timeLimit) * time.Second,
		TypesOnly:    typesOnly,
		Filter:       filter,
		Attributes:   attributes,
	}, nil
}

// SearchResultDone is the final response to a search request.
type SearchResultDone struct {
	Result    Result
	MatchedDN string
	Message   string
}

// Application satisfies the Op interface.
func (*SearchResultDone) Application() Application {
	return ApplicationSearchResultDone
}

// Encode satisfies the Encoder interface.
func (res *SearchResultDone) Encode(ctx context.Context, w ResponseWriter) error {
	return w.WriteMessage(res)
}

func (res *SearchResultDone) packet() *ber.Packet {
	return BuildResultPacket(ApplicationSearchResultDone, res.Result, res.MatchedDN, res.Message)
}

func parseSearchResultDone(p *ber.Packet) (*SearchResultDone, error) {
	body, err := parseResultBody(ApplicationSearchResultDone, p)
	if err != nil {
		return nil, err
	}
	return &SearchResultDone{
		Result:    body.Result,
		MatchedDN: body.Matched,
		Message:   body.Message,
	}, nil
}

// Scope is the scope enum.
type Scope int

// Scope values.
const (
	ScopeBaseObject Scope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// String satisfies the fmt.Stringer interface.
func (scope Scope) String() string {
	switch scope {
	case ScopeBaseObject:
		return "BaseObject"
	case ScopeSingleLevel:
		return "SingleLevel"
	case ScopeWholeSubtree:
		return "WholeSubtree"
	}
	return fmt.Sprintf("Scope(%d)", int(scope))
}

// DerefAliases is the deref aliases enum.
type DerefAliases int

// DerefAliases values.
const (
	DerefAliasesNever DerefAliases = iota
	DerefAliasesInSearching
	DerefAliasesFindingBaseObject
	DerefAliasesAlways
)

// String satisfies the fmt.Stringer interface.
func (deref DerefAliases) String() string {
	switch deref {
	case DerefAliasesNever:
		return "Never"
	case DerefAliasesInSearching:
		return "InSearching"
	case DerefAliasesFindingBaseObject:
		return "FindingBaseObject"
	case DerefAliasesAlways:
		return "Always"
	}
	return fmt.Sprintf("DerefAliases(%d)", int(deref))
}
