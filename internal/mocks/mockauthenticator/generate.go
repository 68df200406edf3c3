package mockauthenticator

//go:generate go run -v go.uber.org/mock/mockgen -destination=mockauthenticator.go -package=mockauthenticator github.com/userhive/ldapoidc/internal/proxy Authenticator
