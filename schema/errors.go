package schema

import "errors"

var (
	// ErrUnknownKind indicates a message kind outside the fixed catalog.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrOversized indicates a length field above the decoder's sanity bound.
	ErrOversized = errors.New("length field exceeds limit")
	// ErrVersionMismatch indicates the peer speaks a different protocol version.
	ErrVersionMismatch = errors.New("protocol version mismatch")
	// ErrPeerClosed indicates the peer closed the connection.
	ErrPeerClosed = errors.New("connection closed by peer")
	// ErrTransport indicates an unexpected socket error.
	ErrTransport = errors.New("transport error")
	// ErrTruncated indicates the stream ended in the middle of a message.
	ErrTruncated = errors.New("stream ended mid-message")
	// ErrOverflow indicates the receive ring filled up without the parser making progress.
	ErrOverflow = errors.New("receive buffer overflow")
	// ErrConnect indicates all connection attempts were exhausted.
	ErrConnect = errors.New("connect attempts exhausted")
	// ErrStringTooLong indicates a string too large for a u16 length prefix.
	ErrStringTooLong = errors.New("string too long for wire encoding")
	// ErrClosed indicates use of a session or host after shutdown.
	ErrClosed = errors.New("closed")
)

// ErrorClass names the failure taxonomy bucket an error belongs to.
type ErrorClass string

const (
	ClassNone      ErrorClass = ""
	ClassProtocol  ErrorClass = "protocol"
	ClassTransport ErrorClass = "transport"
	ClassInvariant ErrorClass = "invariant"
	ClassConnect   ErrorClass = "connect"
	ClassEncode    ErrorClass = "encode"
	ClassOther     ErrorClass = "other"
)

// Classify maps err onto its failure class for logging.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrOversized), errors.Is(err, ErrVersionMismatch):
		return ClassProtocol
	case errors.Is(err, ErrPeerClosed), errors.Is(err, ErrTransport), errors.Is(err, ErrTruncated):
		return ClassTransport
	case errors.Is(err, ErrOverflow):
		return ClassInvariant
	case errors.Is(err, ErrConnect):
		return ClassConnect
	case errors.Is(err, ErrStringTooLong):
		return ClassEncode
	default:
		return ClassOther
	}
}
