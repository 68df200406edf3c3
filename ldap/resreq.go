package ldap

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/userhive/ldapoidc/ber"
)

// Request is a ldap request.
//
// Op is nil when App is a request the package recognizes but does not
// decode (modify, add, delete, modify dn, compare, abandon).
type Request struct {
	ConnID     string
	LocalAddr  net.Addr
	RemoteAddr net.Addr
	ID         int64
	App        Application
	Op         Op
}

// ReadRequest reads the next request from the decoder. Any error other than
// one from the underlying reader means the stream is malformed.
func ReadRequest(dec *ber.Decoder) (*Request, error) {
	p, err := dec.Decode()
	if err != nil {
		return nil, err
	}
	msg, err := ParseMessage(p)
	var uerr *UnsupportedOpError
	switch {
	case errors.As(err, &uerr):
		if !uerr.App.IsRequest() {
			return nil, ErrPacketNotRequest
		}
		return &Request{ID: uerr.ID, App: uerr.App}, nil
	case err != nil:
		return nil, err
	}
	app := msg.Op.Application()
	if !app.IsRequest() {
		return nil, ErrPacketNotRequest
	}
	return &Request{
		ID:  msg.ID,
		App: app,
		Op:  msg.Op,
	}, nil
}

// ResponseWriter is the ldap response writer interface.
type ResponseWriter interface {
	WriteRaw([]byte) error
	WritePacket(*ber.Packet) error
	WriteMessage(Op) error
	WriteResult(Application, Result, string, string) error
	WriteError(Application, error) error
}

// responseWriter wraps writing ldap messages. The first write error is
// retained so that the connection can be closed after the handler returns.
type responseWriter struct {
	w       io.Writer
	id      int64
	timeout time.Duration
	err     error
}

// NewResponseWriter creates a new response writer for the writer and message
// id.
func NewResponseWriter(w io.Writer, id int64) ResponseWriter {
	return newResponseWriter(w, id, defaultWriteTimeout)
}

func newResponseWriter(w io.Writer, id int64, timeout time.Duration) *responseWriter {
	return &responseWriter{
		w:       w,
		id:      id,
		timeout: timeout,
	}
}

// WriteRaw writes raw bytes.
func (w *responseWriter) WriteRaw(buf []byte) error {
	if w.err != nil {
		return w.err
	}
	if conn, ok := w.w.(interface {
		SetWriteDeadline(time.Time) error
	}); ok && w.timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			w.err = err
			return err
		}
	}
	if _, err := w.w.Write(buf); err != nil {
		w.err = err
		return err
	}
	return nil
}

// WritePacket writes a packet.
func (w *responseWriter) WritePacket(p *ber.Packet) error {
	return w.WriteRaw(p.Bytes())
}

// WriteMessage writes the op as a ldap message with the request's id.
func (w *responseWriter) WriteMessage(op Op) error {
	return w.WritePacket(BuildMessagePacket(w.id, op.packet()))
}

// WriteResult writes a ldap result message.
func (w *responseWriter) WriteResult(app Application, result Result, matched, msg string) error {
	return w.WritePacket(BuildMessagePacket(w.id, BuildResultPacket(app, result, matched, msg)))
}

// WriteError writes a ldap result error message. Errors other than *Error
// are written as ResultOperationsError without their detail.
func (w *responseWriter) WriteError(app Application, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return w.WriteResult(app, e.Result, e.Matched, e.Message)
	}
	return w.WriteResult(app, ResultOperationsError, "", "internal error")
}
