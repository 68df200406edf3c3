package proxy

import (
	"github.com/userhive/ldapoidc/internal/tokenclient"
	"github.com/userhive/ldapoidc/ldap"
)

// BindResult maps a token request outcome to the bind response. Only an
// authenticated outcome is a success; nothing from the provider is passed on.
func BindResult(outcome tokenclient.Outcome) *ldap.BindResponse {
	if outcome == tokenclient.Authenticated {
		return &ldap.BindResponse{Result: ldap.ResultSuccess}
	}
	return &ldap.BindResponse{Result: ldap.ResultInvalidCredentials}
}

// SearchDone is the answer to every search: no entries, success.
func SearchDone() *ldap.SearchResultDone {
	return &ldap.SearchResultDone{Result: ldap.ResultSuccess}
}

// ExtendedResult is the answer to every extended request.
func ExtendedResult(*ldap.ExtendedRequest) *ldap.ExtendedResponse {
	return &ldap.ExtendedResponse{Result: ldap.ResultSuccess}
}

// UnbindResult returns the response written before an unbind closes the
// connection: nothing, unless legacy is set, in which case it is a successful
// bind response for clients that wait for one.
func UnbindResult(legacy bool) *ldap.BindResponse {
	if !legacy {
		return nil
	}
	return &ldap.BindResponse{Result: ldap.ResultSuccess}
}
