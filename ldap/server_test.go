package ldap

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	client "github.com/go-ldap/ldap/v3"
	"github.com/go-logr/logr/testr"

	"github.com/userhive/ldapoidc/ber"
)

func TestBindNotSupported(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{})
	conn := dialTest(t, addr)
	err := conn.Bind("cn=username,dc=example,dc=com", "password")
	if !client.IsErrorWithCode(err, uint16(ResultOperationsError)) || !strings.Contains(err.Error(), "bind operation not supported") {
		t.Errorf("expected bind operation not supported error, got: %v", err)
	}
}

func TestBind(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Bind: newTestBindHandler("cn=username,dc=example,dc=com", "password"),
	})
	conn := dialTest(t, addr)
	if err := conn.Bind("cn=username,dc=example,dc=com", "password"); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	// every bind is evaluated on its own
	err := conn.Bind("cn=username,dc=example,dc=com", "badpassword")
	if !client.IsErrorWithCode(err, uint16(ResultInvalidCredentials)) {
		t.Errorf("expected invalid credentials error, got: %v", err)
	}
	if err := conn.Bind("cn=username,dc=example,dc=com", "password"); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestBindHandlerError(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Bind: BindHandlerFunc(func(context.Context, *BindRequest) (*BindResponse, error) {
			return nil, errors.New("backend exploded at 10.0.0.1")
		}),
	})
	conn := dialTest(t, addr)
	err := conn.Bind("cn=username,dc=example,dc=com", "password")
	if !client.IsErrorWithCode(err, uint16(ResultOperationsError)) {
		t.Fatalf("expected operations error, got: %v", err)
	}
	if strings.Contains(err.Error(), "10.0.0.1") {
		t.Errorf("expected internal detail to be withheld, got: %v", err)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	var got atomic.Value
	_, addr := newTestServer(t, OpHandler{
		Search: SearchHandlerFunc(func(ctx context.Context, req *SearchRequest) (*SearchResultDone, error) {
			got.Store(req)
			return &SearchResultDone{}, nil
		}),
	})
	conn := dialTest(t, addr)
	res, err := conn.Search(client.NewSearchRequest(
		"dc=example,dc=com", client.ScopeWholeSubtree, client.NeverDerefAliases, 0, 0, false,
		"(&(objectClass=organizationalPerson))",
		[]string{"dn", "cn"},
		nil,
	))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("expected no entries, got: %d", len(res.Entries))
	}
	req, ok := got.Load().(*SearchRequest)
	if !ok {
		t.Fatal("expected search request to reach handler")
	}
	if req.BaseObject != "dc=example,dc=com" || req.Scope != ScopeWholeSubtree {
		t.Errorf("unexpected search request: %+v", req)
	}
	if len(req.Attributes) != 2 || req.Attributes[0] != "dn" || req.Attributes[1] != "cn" {
		t.Errorf("expected attributes [dn cn], got: %v", req.Attributes)
	}
}

func TestExtendedWhoAmI(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Extended: ExtendedHandlerFunc(func(ctx context.Context, req *ExtendedRequest) (*ExtendedResponse, error) {
			if req.Name != ExtendedOpWhoAmI {
				return nil, NewErrorf(ResultProtocolError, "unexpected extended operation %s", req.Name)
			}
			return &ExtendedResponse{Value: []byte("u:username")}, nil
		}),
	})
	conn := dialTest(t, addr)
	res, err := conn.WhoAmI(nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.AuthzID != "u:username" {
		t.Errorf("expected u:username, got: %q", res.AuthzID)
	}
}

func TestUnsupportedOperation(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{})
	conn := dialRaw(t, addr)
	modify := ber.NewPacket(ber.ClassApplication, ber.TypeConstructed, ApplicationModifyRequest.Tag(), "")
	modify.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "cn=alice", ""))
	modify.AppendChild(ber.NewSequence(""))
	writePacket(t, conn, BuildMessagePacket(4, modify))
	p := readPacket(t, conn)
	if id := p.Children[0].Value.(int64); id != 4 {
		t.Errorf("expected message id 4, got: %d", id)
	}
	res := p.Children[1]
	if Application(res.Tag) != ApplicationModifyResponse {
		t.Fatalf("expected %s, got: %s", ApplicationModifyResponse, Application(res.Tag))
	}
	if code := res.Children[0].Value.(int64); Result(code) != ResultUnwillingToPerform {
		t.Errorf("expected %s, got: %s", ResultUnwillingToPerform, Result(code))
	}
	if msg := res.Children[2].Value.(string); msg != "modify operation not supported" {
		t.Errorf("expected not supported message, got: %q", msg)
	}
}

func TestAbandonNoResponse(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Search: SearchHandlerFunc(func(context.Context, *SearchRequest) (*SearchResultDone, error) {
			return &SearchResultDone{}, nil
		}),
	})
	conn := dialRaw(t, addr)
	writePacket(t, conn, BuildMessagePacket(2, ber.NewInteger(ber.ClassApplication, ber.TypePrimitive, ApplicationAbandonRequest.Tag(), 1, "")))
	writePacket(t, conn, (&Message{ID: 3, Op: &SearchRequest{BaseObject: "dc=example,dc=com"}}).Packet())
	msg := readMessage(t, conn)
	if msg.ID != 3 {
		t.Errorf("expected first response to message 3, got: %d", msg.ID)
	}
	if _, ok := msg.Op.(*SearchResultDone); !ok {
		t.Errorf("expected *SearchResultDone, got: %T", msg.Op)
	}
}

func TestUnbindClosesConnection(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{})
	conn := dialRaw(t, addr)
	writePacket(t, conn, (&Message{ID: 2, Op: &UnbindRequest{}}).Packet())
	expectClosed(t, conn)
}

func TestUnbindResponse(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Unbind: UnbindHandlerFunc(func(context.Context, *UnbindRequest) (Encoder, error) {
			return &BindResponse{}, nil
		}),
	})
	conn := dialRaw(t, addr)
	writePacket(t, conn, (&Message{ID: 2, Op: &UnbindRequest{}}).Packet())
	msg := readMessage(t, conn)
	if res, ok := msg.Op.(*BindResponse); !ok || res.Result != ResultSuccess || msg.ID != 2 {
		t.Errorf("expected success bind response to message 2, got: %d %+v", msg.ID, msg.Op)
	}
	expectClosed(t, conn)
}

func TestMalformedClosesConnection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		buf  []byte
	}{
		{"indefinite length", []byte{0x30, 0x80, 0x02, 0x01, 0x01, 0x42, 0x00, 0x00, 0x00}},
		{"not a sequence", []byte{0x04, 0x01, 'x'}},
		{"child past parent", []byte{0x30, 0x03, 0x02, 0x05, 0x01}},
		{"response from client", (&Message{ID: 1, Op: &BindResponse{}}).Bytes()},
		{"unknown application", BuildMessagePacket(1, ber.NewNull(ber.ClassApplication, 30, "")).Bytes()},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, addr := newTestServer(t, OpHandler{})
			conn := dialRaw(t, addr)
			if _, err := conn.Write(test.buf); err != nil {
				t.Fatal(err)
			}
			expectClosed(t, conn)
		})
	}
}

func TestMessageTooLarge(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{}, func(s *Server) {
		s.MaxMessageSize = 64
	})
	conn := dialRaw(t, addr)
	if _, err := conn.Write([]byte{0x30, 0x82, 0x03, 0xe8}); err != nil {
		t.Fatal(err)
	}
	expectClosed(t, conn)
}

func TestSplitWrites(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Bind: newTestBindHandler("cn=username,dc=example,dc=com", "password"),
	})
	conn := dialRaw(t, addr)
	buf := (&Message{ID: 9, Op: &BindRequest{Version: 3, Name: "cn=username,dc=example,dc=com", Password: []byte("password")}}).Bytes()
	for _, b := range buf {
		if _, err := conn.Write([]byte{b}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	msg := readMessage(t, conn)
	if res, ok := msg.Op.(*BindResponse); !ok || res.Result != ResultSuccess || msg.ID != 9 {
		t.Errorf("expected success bind response to message 9, got: %d %+v", msg.ID, msg.Op)
	}
}

func TestSequentialRequests(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Bind: BindHandlerFunc(func(ctx context.Context, req *BindRequest) (*BindResponse, error) {
			if req.Name == "cn=slow" {
				time.Sleep(200 * time.Millisecond)
			}
			return &BindResponse{}, nil
		}),
	})
	conn := dialRaw(t, addr)
	var buf bytes.Buffer
	buf.Write((&Message{ID: 1, Op: &BindRequest{Version: 3, Name: "cn=slow", Password: []byte("x")}}).Bytes())
	buf.Write((&Message{ID: 2, Op: &BindRequest{Version: 3, Name: "cn=fast", Password: []byte("x")}}).Bytes())
	if _, err := conn.Write(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	dec := ber.NewDecoder(conn, 0)
	for _, id := range []int64{1, 2} {
		p, err := dec.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if got := p.Children[0].Value.(int64); got != id {
			t.Errorf("expected response to message %d, got: %d", id, got)
		}
	}
}

func TestConcurrentConnections(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	_, addr := newTestServer(t, OpHandler{
		Bind: BindHandlerFunc(func(ctx context.Context, req *BindRequest) (*BindResponse, error) {
			if req.Name == "cn=slow" {
				select {
				case <-release:
				case <-ctx.Done():
				}
			}
			return &BindResponse{}, nil
		}),
	})
	slow := dialRaw(t, addr)
	writePacket(t, slow, (&Message{ID: 1, Op: &BindRequest{Version: 3, Name: "cn=slow", Password: []byte("x")}}).Packet())
	fast := dialTest(t, addr)
	start := time.Now()
	if err := fast.Bind("cn=fast", "x"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("expected fast bind to complete promptly, took: %v", d)
	}
	close(release)
	if msg := readMessage(t, slow); msg.ID != 1 {
		t.Errorf("expected response to message 1, got: %d", msg.ID)
	}
}

func TestHandlerPanic(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{
		Bind: BindHandlerFunc(func(ctx context.Context, req *BindRequest) (*BindResponse, error) {
			if req.Name == "cn=panic" {
				panic("boom")
			}
			return &BindResponse{}, nil
		}),
	})
	conn := dialRaw(t, addr)
	writePacket(t, conn, (&Message{ID: 1, Op: &BindRequest{Version: 3, Name: "cn=panic", Password: []byte("x")}}).Packet())
	expectClosed(t, conn)
	if err := dialTest(t, addr).Bind("cn=fine", "x"); err != nil {
		t.Errorf("expected server to keep serving, got: %v", err)
	}
}

func TestIdleTimeout(t *testing.T) {
	t.Parallel()
	_, addr := newTestServer(t, OpHandler{}, func(s *Server) {
		s.IdleTimeout = 50 * time.Millisecond
	})
	conn := dialRaw(t, addr)
	expectClosed(t, conn)
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	started, canceled := make(chan struct{}), make(chan error, 1)
	s, addr := newTestServer(t, OpHandler{
		Bind: BindHandlerFunc(func(ctx context.Context, req *BindRequest) (*BindResponse, error) {
			close(started)
			<-ctx.Done()
			canceled <- ctx.Err()
			return &BindResponse{}, nil
		}),
	})
	conn := dialRaw(t, addr)
	writePacket(t, conn, (&Message{ID: 1, Op: &BindRequest{Version: 3, Name: "cn=alice", Password: []byte("x")}}).Packet())
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if err := <-canceled; !errors.Is(err, context.Canceled) {
		t.Errorf("expected request context to be canceled, got: %v", err)
	}
	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Errorf("expected listener to be closed")
	}
	if err := s.Serve(ctx, newClosedListener(t)); !errors.Is(err, ErrServerShutdown) {
		t.Errorf("expected %v, got: %v", ErrServerShutdown, err)
	}
}

func TestServeNilHandler(t *testing.T) {
	t.Parallel()
	s := &Server{}
	if err := s.Serve(context.Background(), newClosedListener(t)); !errors.Is(err, ErrNilHandler) {
		t.Errorf("expected %v, got: %v", ErrNilHandler, err)
	}
}

func newTestBindHandler(username, password string) BindHandler {
	return BindHandlerFunc(func(ctx context.Context, req *BindRequest) (*BindResponse, error) {
		if req.Name != username || string(req.Password) != password {
			return &BindResponse{Result: ResultInvalidCredentials}, nil
		}
		return &BindResponse{}, nil
	})
}

func newTestServer(t *testing.T, h Handler, opts ...func(*Server)) (*Server, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &Server{
		Handler: h,
		Logger:  testr.NewWithOptions(t, testr.Options{Verbosity: 2}),
	}
	for _, o := range opts {
		o(s)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, l)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		<-done
	})
	t.Cleanup(cancel)
	return s, l.Addr().String()
}

func newClosedListener(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Close()
	return l
}

func dialTest(t *testing.T, addr string) *client.Conn {
	t.Helper()
	conn, err := client.DialURL("ldap://" + addr)
	if err != nil {
		t.Fatal(err)
	}
	conn.SetTimeout(5 * time.Second)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialRaw(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writePacket(t *testing.T, conn net.Conn, p *ber.Packet) {
	t.Helper()
	if _, err := conn.Write(p.Bytes()); err != nil {
		t.Fatal(err)
	}
}

func readPacket(t *testing.T, conn net.Conn) *ber.Packet {
	t.Helper()
	p, err := ber.NewDecoder(conn, 0).Decode()
	if err != nil {
		t.Fatalf("expected a response, got: %v", err)
	}
	return p
}

func readMessage(t *testing.T, conn net.Conn) *Message {
	t.Helper()
	msg, err := ParseMessage(readPacket(t, conn))
	if err != nil {
		t.Fatalf("expected a valid response, got: %v", err)
	}
	return msg
}

// expectClosed reads from conn, expecting the server to close it without
// writing anything.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	var ne net.Error
	switch {
	case n != 0:
		t.Errorf("expected no response, got: % X", buf[:n])
	case errors.As(err, &ne) && ne.Timeout():
		t.Errorf("expected connection to be closed, got: %v", err)
	case err == nil:
		t.Errorf("expected connection to be closed")
	}
}
