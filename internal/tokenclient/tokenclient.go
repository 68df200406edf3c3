// Package tokenclient performs OAuth 2.0 resource owner password grants
// against an OIDC token endpoint.
package tokenclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"
)

// Outcome classifies a token request.
type Outcome int

// Outcome values.
const (
	// Authenticated means the endpoint answered 200.
	Authenticated Outcome = iota
	// Rejected means the endpoint answered with any other status.
	Rejected
	// TransportFailure means no response was received.
	TransportFailure
)

// String satisfies the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	case TransportFailure:
		return "transport failure"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the result of one token request. StatusCode is zero for
// TransportFailure, in which case Err holds the cause.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Err        error
}

// drainLimit bounds how much of a response body is read before the
// connection is returned to the pool.
const drainLimit = 64 << 10

// Options configures a Client.
type Options struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Scope is sent as the scope parameter when not empty.
	Scope   string
	Timeout time.Duration
	// Transport overrides the default HTTP transport.
	Transport http.RoundTripper
	Logger    logr.Logger
}

// Client is a password grant client. It is safe for concurrent use.
type Client struct {
	cl           *resty.Client
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	timeout      time.Duration
}

// New creates a password grant client.
func New(opts Options) *Client {
	cl := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			// a redirect is an answer like any other status
			return http.ErrUseLastResponse
		})).
		SetLogger(restyLogger{log: opts.Logger.WithName("resty")})
	if opts.Transport != nil {
		cl.SetTransport(opts.Transport)
	}
	return &Client{
		cl:           cl,
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		scope:        opts.Scope,
		timeout:      opts.Timeout,
	}
}

// Authenticate performs one password grant for the username and password.
// Only the response status is inspected; the body is discarded. There are no
// retries.
func (c *Client) Authenticate(ctx context.Context, username string, password []byte) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", string(password))
	if c.scope != "" {
		form.Set("scope", c.scope)
	}
	res, err := c.cl.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Accept", "application/json").
		SetFormDataFromValues(form).
		SetDoNotParseResponse(true).
		Post(c.tokenURL)
	if res != nil && res.RawBody() != nil {
		defer res.RawBody().Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(res.RawBody(), drainLimit))
	}
	switch {
	case err != nil:
		return Result{Outcome: TransportFailure, Err: fmt.Errorf("token request failed: %w", err)}
	case res.StatusCode() == http.StatusOK:
		return Result{Outcome: Authenticated, StatusCode: res.StatusCode()}
	}
	return Result{Outcome: Rejected, StatusCode: res.StatusCode()}
}

// restyLogger routes resty's logs to logr.
type restyLogger struct {
	log logr.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(nil, "http client error", "detail", fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Info("http client warning", "detail", fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.V(2).Info("http client debug", "detail", fmt.Sprintf(format, v...))
}
