package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/userhive/ldapoidc/ber"
)

const (
	// DefaultMaxMessageSize is the default largest accepted message.
	DefaultMaxMessageSize = 1 << 20

	defaultWriteTimeout = 3 * time.Second
)

// Handler is the ldap handler interface.
type Handler interface {
	ServeLDAP(context.Context, ResponseWriter, *Request)
}

// HandlerFunc is the ldap handler func type.
type HandlerFunc func(context.Context, ResponseWriter, *Request)

// ServeLDAP satisfies the Handler interface.
func (f HandlerFunc) ServeLDAP(ctx context.Context, res ResponseWriter, req *Request) {
	f(ctx, res, req)
}

// ListenAndServe creates a new server for the passed handler, listening and
// serving on the specified address until the context is closed.
func ListenAndServe(ctx context.Context, addr string, h Handler, opts ...func(*net.ListenConfig)) error {
	s := &Server{Addr: addr, Handler: h}
	return s.ListenAndServe(ctx, opts...)
}

// session is the state of one client connection.
type session struct {
	id     string
	conn   net.Conn
	cancel context.CancelFunc
}

// Server is a ldap server.
//
// Each accepted connection is served by its own goroutine, which reads and
// handles one request at a time: a request is fully answered before the next
// one is read.
type Server struct {
	Addr      string
	Handler   Handler
	TLSConfig *tls.Config
	Logger    logr.Logger

	// MaxMessageSize is the largest accepted message in bytes. Larger
	// messages close the connection. Zero means DefaultMaxMessageSize.
	MaxMessageSize int
	// IdleTimeout closes connections that send nothing for this long. Zero
	// means no timeout.
	IdleTimeout time.Duration
	// WriteTimeout bounds each response write. Zero means 3 seconds.
	WriteTimeout time.Duration

	shutdownRequested int32
	mu                sync.Mutex
	ctx               context.Context
	cancel            context.CancelFunc
	sessions          map[*session]struct{}
	listeners         map[net.Listener]struct{}
	lastActive        chan struct{}
	activeCount       int32
}

func (s *Server) initLocked() {
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.lastActive = make(chan struct{})
		s.sessions = make(map[*session]struct{})
		s.listeners = make(map[net.Listener]struct{})
	}
}

func (s *Server) activeAdd() {
	atomic.AddInt32(&s.activeCount, 1)
}

func (s *Server) activeDone() {
	if atomic.AddInt32(&s.activeCount, -1) == -1 {
		close(s.lastActive)
	}
}

func (s *Server) shuttingDown() bool {
	return atomic.LoadInt32(&s.shutdownRequested) == 1
}

func (s *Server) logger() logr.Logger {
	if s.Logger.GetSink() == nil {
		return logr.Discard()
	}
	return s.Logger
}

func (s *Server) maxMessageSize() int {
	if s.MaxMessageSize > 0 {
		return s.MaxMessageSize
	}
	return DefaultMaxMessageSize
}

func (s *Server) writeTimeout() time.Duration {
	if s.WriteTimeout > 0 {
		return s.WriteTimeout
	}
	return defaultWriteTimeout
}

// Serve accepts incoming connections on the listener until the context is
// closed or the server is shut down. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	if s.Handler == nil {
		return ErrNilHandler
	}
	s.mu.Lock()
	s.initLocked()
	if s.shuttingDown() {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerShutdown
	}
	srvCtx := s.ctx
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
	}()
	// close the listener to unblock Accept
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-srvCtx.Done():
		case <-stop:
		}
		_ = l.Close()
	}()
	s.logger().Info("listening", "addr", l.Addr().String())
	var delay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			switch {
			case s.shuttingDown():
				return ErrServerShutdown
			case ctx.Err() != nil:
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				s.logger().Error(err, "accept failed", "retry", delay)
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0
		sess, sessCtx := s.newSession(ctx, conn)
		if sess == nil {
			_ = conn.Close()
			continue
		}
		go s.serve(sessCtx, sess)
	}
}

// ServeTLS accepts incoming TLS connections on the listener. The certificate
// and key files are loaded unless the TLSConfig already provides a
// certificate.
func (s *Server) ServeTLS(ctx context.Context, l net.Listener, certFile, keyFile string) error {
	config := s.TLSConfig.Clone()
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	hasCert := len(config.Certificates) > 0 || config.GetCertificate != nil
	if !hasCert || certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("unable to load key pair: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}
	return s.Serve(ctx, tls.NewListener(l, config))
}

// newSession tracks a new session for the connection, returning nil when the
// server is shutting down.
func (s *Server) newSession(ctx context.Context, conn net.Conn) (*session, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown() {
		return nil, nil
	}
	sess := &session{
		id:   uuid.NewString(),
		conn: conn,
	}
	ctx, sess.cancel = context.WithCancel(ctx)
	s.sessions[sess] = struct{}{}
	s.activeAdd()
	return sess, ctx
}

func (s *Server) closeSession(sess *session) {
	sess.cancel()
	_ = sess.conn.Close()
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.activeDone()
}

func (s *Server) serve(ctx context.Context, sess *session) {
	defer s.closeSession(sess)
	// a closed context unblocks the pending read
	stop := context.AfterFunc(ctx, func() {
		_ = sess.conn.Close()
	})
	defer stop()
	logger := s.logger().WithValues("conn", sess.id, "remote", sess.conn.RemoteAddr().String())
	ctx = logr.NewContext(context.WithValue(ctx, sessionKey, sess), logger)
	logger.V(1).Info("connection opened")
	dec := ber.NewDecoder(sess.conn, s.maxMessageSize())
	for {
		if s.IdleTimeout > 0 {
			if err := sess.conn.SetReadDeadline(time.Now().Add(s.IdleTimeout)); err != nil {
				logger.V(1).Info("connection closed", "reason", err.Error())
				return
			}
		}
		req, err := ReadRequest(dec)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), ctx.Err() != nil:
			logger.V(1).Info("connection closed")
			return
		case isTimeout(err):
			logger.V(1).Info("connection closed", "reason", "idle timeout")
			return
		default:
			logger.V(1).Info("connection closed", "reason", "malformed message", "error", err.Error())
			return
		}
		if s.IdleTimeout > 0 {
			_ = sess.conn.SetReadDeadline(time.Time{})
		}
		req.ConnID = sess.id
		req.LocalAddr, req.RemoteAddr = sess.conn.LocalAddr(), sess.conn.RemoteAddr()
		res := newResponseWriter(sess.conn, req.ID, s.writeTimeout())
		if !s.handle(ctx, res, req) {
			return
		}
		if res.err != nil {
			logger.V(1).Info("connection closed", "reason", "write failed", "error", res.err.Error())
			return
		}
		// immediate disconnect
		if req.App == ApplicationUnbindRequest {
			logger.V(1).Info("connection closed", "reason", "unbind")
			return
		}
	}
}

// handle runs the handler for the request, returning false if it panicked.
func (s *Server) handle(ctx context.Context, res ResponseWriter, req *Request) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			Logger(ctx).Error(fmt.Errorf("%v", r), "handler panic", "id", req.ID, "op", req.App.String())
			ok = false
		}
	}()
	Logger(ctx).V(2).Info("request", "id", req.ID, "op", req.App.String())
	s.Handler.ServeLDAP(ctx, res, req)
	return true
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ListenAndServe listens and serves ldap connections on the Server's address
// until the context is closed.
func (s *Server) ListenAndServe(ctx context.Context, opts ...func(*net.ListenConfig)) error {
	l, err := s.listen(ctx, ":ldap", opts...)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// ListenAndServeTLS listens and serves TLS encrypted ldap connections on the
// Server's address until the context is closed.
func (s *Server) ListenAndServeTLS(ctx context.Context, certFile, keyFile string, opts ...func(*net.ListenConfig)) error {
	l, err := s.listen(ctx, ":ldaps", opts...)
	if err != nil {
		return err
	}
	return s.ServeTLS(ctx, l, certFile, keyFile)
}

func (s *Server) listen(ctx context.Context, addr string, opts ...func(*net.ListenConfig)) (net.Listener, error) {
	if s.Handler == nil {
		return nil, ErrNilHandler
	}
	if s.Addr != "" {
		addr = s.Addr
	}
	lc := &net.ListenConfig{}
	for _, o := range opts {
		o(lc)
	}
	return lc.Listen(ctx, "tcp", addr)
}

// Shutdown gracefully stops the server. It closes all listeners and
// connections, cancels the contexts of in-flight requests and then waits for
// the connection handlers to return.
//
// Shutdown returns nil after all handlers have completed. ctx.Err() is
// returned if ctx is canceled first.
//
// Any Serve methods return ErrServerShutdown after Shutdown is called.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.initLocked()
	if atomic.CompareAndSwapInt32(&s.shutdownRequested, 0, 1) {
		for l := range s.listeners {
			_ = l.Close()
		}
		for sess := range s.sessions {
			sess.cancel()
			_ = sess.conn.Close()
		}
		s.cancel()
		s.activeDone()
	}
	s.mu.Unlock()
	select {
	case <-s.lastActive:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
