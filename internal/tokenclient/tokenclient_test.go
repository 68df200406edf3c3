package tokenclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenRequest struct {
	method      string
	contentType string
	form        url.Values
}

// newTokenServer starts an OIDC token endpoint stub that answers status and
// records each request.
func newTokenServer(t *testing.T, status int, body string) (*httptest.Server, <-chan tokenRequest) {
	t.Helper()
	reqs := make(chan tokenRequest, 64)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("unable to parse form: %v", err)
		}
		reqs <- tokenRequest{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			form:        r.PostForm,
		}
		if status == http.StatusFound {
			w.Header().Set("Location", "/elsewhere")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s, reqs
}

func newTestClient(tokenURL string, timeout time.Duration) *Client {
	return New(Options{
		TokenURL:     tokenURL,
		ClientID:     "ldap-proxy",
		ClientSecret: "s3cr3t",
		Timeout:      timeout,
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	s, reqs := newTokenServer(t, http.StatusOK, `{"access_token":"x","token_type":"Bearer"}`)
	res := newTestClient(s.URL, 5*time.Second).Authenticate(context.Background(), "alice", []byte("secret1"))
	require.NoError(t, res.Err)
	assert.Equal(t, Authenticated, res.Outcome)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	req := <-reqs
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "application/x-www-form-urlencoded", req.contentType)
	assert.Equal(t, url.Values{
		"client_id":     {"ldap-proxy"},
		"client_secret": {"s3cr3t"},
		"grant_type":    {"password"},
		"username":      {"alice"},
		"password":      {"secret1"},
	}, req.form)
}

func TestAuthenticateStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		outcome Outcome
	}{
		{"ok with empty body", http.StatusOK, "", Authenticated},
		{"ok with garbage body", http.StatusOK, "not json", Authenticated},
		{"created", http.StatusCreated, `{"access_token":"x"}`, Rejected},
		{"bad request", http.StatusBadRequest, `{"error":"invalid_grant"}`, Rejected},
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_client"}`, Rejected},
		{"redirect", http.StatusFound, "", Rejected},
		{"server error", http.StatusInternalServerError, "", Rejected},
		{"unavailable", http.StatusServiceUnavailable, "", Rejected},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			s, reqs := newTokenServer(t, test.status, test.body)
			res := newTestClient(s.URL, 5*time.Second).Authenticate(context.Background(), "alice", []byte("secret1"))
			assert.Equal(t, test.outcome, res.Outcome)
			assert.Equal(t, test.status, res.StatusCode)
			assert.NoError(t, res.Err)
			assert.Len(t, reqs, 1, "expected exactly one request")
		})
	}
}

func TestAuthenticateScope(t *testing.T) {
	t.Parallel()
	s, reqs := newTokenServer(t, http.StatusOK, "")
	cl := New(Options{
		TokenURL:     s.URL,
		ClientID:     "ldap-proxy",
		ClientSecret: "s3cr3t",
		Scope:        "openid",
		Timeout:      5 * time.Second,
	})
	res := cl.Authenticate(context.Background(), "alice", []byte("secret1"))
	assert.Equal(t, Authenticated, res.Outcome)
	assert.Equal(t, "openid", (<-reqs).form.Get("scope"))
	// omitted when empty
	res = newTestClient(s.URL, 5*time.Second).Authenticate(context.Background(), "alice", []byte("secret1"))
	assert.Equal(t, Authenticated, res.Outcome)
	_, ok := (<-reqs).form["scope"]
	assert.False(t, ok)
}

func TestAuthenticateEncoding(t *testing.T) {
	t.Parallel()
	s, reqs := newTokenServer(t, http.StatusOK, "")
	password := []byte("p&ss=w%rd +ü")
	res := newTestClient(s.URL, 5*time.Second).Authenticate(context.Background(), "al ice+1", password)
	assert.Equal(t, Authenticated, res.Outcome)
	req := <-reqs
	assert.Equal(t, "al ice+1", req.form.Get("username"))
	assert.Equal(t, string(password), req.form.Get("password"))
}

func TestAuthenticateTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(s.Close)
	t.Cleanup(func() { close(release) })
	start := time.Now()
	res := newTestClient(s.URL, 100*time.Millisecond).Authenticate(context.Background(), "alice", []byte("secret1"))
	assert.Equal(t, TransportFailure, res.Outcome)
	assert.Zero(t, res.StatusCode)
	assert.Error(t, res.Err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAuthenticateCanceled(t *testing.T) {
	t.Parallel()
	s, _ := newTokenServer(t, http.StatusOK, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestClient(s.URL, 5*time.Second).Authenticate(ctx, "alice", []byte("secret1"))
	assert.Equal(t, TransportFailure, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestAuthenticateUnreachable(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.NotFoundHandler())
	addr := s.URL
	s.Close()
	res := newTestClient(addr, 5*time.Second).Authenticate(context.Background(), "alice", []byte("secret1"))
	assert.Equal(t, TransportFailure, res.Outcome)
	assert.Error(t, res.Err)
	assert.NotContains(t, res.Err.Error(), "s3cr3t")
	assert.NotContains(t, res.Err.Error(), "secret1")
}

func TestAuthenticateConcurrent(t *testing.T) {
	t.Parallel()
	var count int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		if r.FormValue("password") != "secret-"+r.FormValue("username") {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(s.Close)
	cl := newTestClient(s.URL, 5*time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := string(rune('a' + i))
			password := "secret-" + user
			exp := Authenticated
			if i%2 == 1 {
				password, exp = "wrong", Rejected
			}
			res := cl.Authenticate(context.Background(), user, []byte(password))
			assert.Equal(t, exp, res.Outcome, "user %s", user)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(20), atomic.LoadInt32(&count))
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "transport failure", TransportFailure.String())
	assert.Equal(t, "Outcome(7)", Outcome(7).String())
}
