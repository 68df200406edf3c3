package proxy

import (
	"strings"
)

// ErrIdentityExtraction is returned when a bind name does not carry a usable
// identity.
const ErrIdentityExtraction Error = "unable to extract identity from bind name"

// Error is a proxy error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// ExtractIdentity returns the value of the first component of dn, which must
// be of the form attr=value (attr compared case-insensitively) with a
// non-empty value. For example "cn=alice,ou=people,dc=example,dc=org" with
// attr "cn" yields "alice".
//
// The dn is not otherwise interpreted: escapes and multi-valued components
// are passed through as-is.
func ExtractIdentity(dn, attr string) (string, error) {
	first := dn
	if i := strings.IndexByte(dn, ','); i != -1 {
		first = dn[:i]
	}
	prefix := attr + "="
	if attr == "" || len(first) <= len(prefix) || !strings.EqualFold(first[:len(prefix)], prefix) {
		return "", ErrIdentityExtraction
	}
	return first[len(prefix):], nil
}
