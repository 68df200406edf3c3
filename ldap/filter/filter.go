// Package filter renders ldap search filter packets (RFC 4511 section 4.5.1)
// in their RFC 4515 string form.
package filter

import (
	"fmt"
	"strings"

	"github.com/userhive/ldapoidc/ber"
)

// Filter choice tags.
const (
	And             ber.Tag = 0
	Or              ber.Tag = 1
	Not             ber.Tag = 2
	EqualityMatch   ber.Tag = 3
	Substrings      ber.Tag = 4
	GreaterOrEqual  ber.Tag = 5
	LessOrEqual     ber.Tag = 6
	Present         ber.Tag = 7
	ApproxMatch     ber.Tag = 8
	ExtensibleMatch ber.Tag = 9
)

// Substring choice tags.
const (
	SubstringsInitial ber.Tag = 0
	SubstringsAny     ber.Tag = 1
	SubstringsFinal   ber.Tag = 2
)

// Matching rule assertion tags.
const (
	RuleMatchingRule ber.Tag = 1
	RuleType         ber.Tag = 2
	RuleMatchValue   ber.Tag = 3
	RuleDNAttributes ber.Tag = 4
)

// maxDepth bounds nesting of and, or and not.
const maxDepth = 64

// Error is a filter error.
type Error struct {
	Msg string
}

// Error satisfies the error interface.
func (err Error) Error() string {
	return err.Msg
}

func errorf(s string, v ...interface{}) error {
	return Error{fmt.Sprintf(s, v...)}
}

// NewPresent returns a present filter for the attribute, as in
// (objectClass=*).
func NewPresent(attr string) *ber.Packet {
	return ber.NewBytes(ber.ClassContext, Present, []byte(attr), "Present")
}

// String returns the string form of the filter packet p.
func String(p *ber.Packet) (string, error) {
	var sb strings.Builder
	if err := write(&sb, p, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func write(sb *strings.Builder, p *ber.Packet, depth int) error {
	if p == nil {
		return Error{"missing filter"}
	}
	if p.Class != ber.ClassContext {
		return errorf("invalid filter class %s", p.Class)
	}
	if depth > maxDepth {
		return Error{"filter nested too deeply"}
	}
	sb.WriteByte('(')
	switch p.Tag {
	case And, Or:
		if p.Type != ber.TypeConstructed {
			return errorf("invalid filter %d: not constructed", p.Tag)
		}
		if p.Tag == And {
			sb.WriteByte('&')
		} else {
			sb.WriteByte('|')
		}
		for _, child := range p.Children {
			if err := write(sb, child, depth+1); err != nil {
				return err
			}
		}
	case Not:
		if p.Type != ber.TypeConstructed || len(p.Children) != 1 {
			return Error{"invalid not filter"}
		}
		sb.WriteByte('!')
		if err := write(sb, p.Children[0], depth+1); err != nil {
			return err
		}
	case EqualityMatch, GreaterOrEqual, LessOrEqual, ApproxMatch:
		if len(p.Children) != 2 {
			return errorf("invalid filter %d: expected attribute value assertion", p.Tag)
		}
		sb.Write(p.Children[0].ByteValue)
		sb.WriteString(operators[p.Tag])
		sb.WriteString(Escape(string(p.Children[1].ByteValue)))
	case Substrings:
		if len(p.Children) != 2 || len(p.Children[1].Children) == 0 {
			return Error{"invalid substrings filter"}
		}
		sb.Write(p.Children[0].ByteValue)
		sb.WriteByte('=')
		subs := p.Children[1].Children
		for i, sub := range subs {
			if i == 0 && sub.Tag != SubstringsInitial {
				sb.WriteByte('*')
			}
			sb.WriteString(Escape(string(sub.ByteValue)))
			if sub.Tag != SubstringsFinal {
				sb.WriteByte('*')
			}
		}
	case Present:
		if p.Type != ber.TypePrimitive {
			return Error{"invalid present filter"}
		}
		sb.Write(p.ByteValue)
		sb.WriteString("=*")
	case ExtensibleMatch:
		var attr, rule, value string
		var dn bool
		for _, child := range p.Children {
			switch child.Tag {
			case RuleMatchingRule:
				rule = string(child.ByteValue)
			case RuleType:
				attr = string(child.ByteValue)
			case RuleMatchValue:
				value = string(child.ByteValue)
			case RuleDNAttributes:
				dn = len(child.ByteValue) == 1 && child.ByteValue[0] != 0
			}
		}
		sb.WriteString(attr)
		if dn {
			sb.WriteString(":dn")
		}
		if rule != "" {
			sb.WriteByte(':')
			sb.WriteString(rule)
		}
		sb.WriteString(":=")
		sb.WriteString(Escape(value))
	default:
		return errorf("unknown filter choice %d", p.Tag)
	}
	sb.WriteByte(')')
	return nil
}

var operators = map[ber.Tag]string{
	EqualityMatch:  "=",
	GreaterOrEqual: ">=",
	LessOrEqual:    "<=",
	ApproxMatch:    "~=",
}

// Escape escapes `()*\`, NUL and any byte outside of 7-bit ascii in value.
func Escape(value string) string {
	n := 0
	for i := 0; i < len(value); i++ {
		if mustEscape(value[i]) {
			n++
		}
	}
	if n == 0 {
		return value
	}
	buf := make([]byte, 0, len(value)+2*n)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if mustEscape(c) {
			buf = append(buf, '\\', hexchars[c>>4], hexchars[c&0xf])
			continue
		}
		buf = append(buf, c)
	}
	return string(buf)
}

const hexchars = "0123456789abcdef"

func mustEscape(c byte) bool {
	return c > 0x7f || c == '(' || c == ')' || c == '\\' || c == '*' || c == 0
}
