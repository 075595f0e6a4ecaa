// Package serp implements the rendezvous protocol spoken with the relay.
//
// A client opens a TCP connection and sends one line, either "host <id>" or
// "conn <id>". The relay answers "ok", "invalid" or "fail". After "ok" both
// peers eventually receive "connected", and from then on the relay forwards
// bytes between them untouched.
package serp

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Method is the verb of a rendezvous request.
type Method string

const (
	// MethodHost opens a room and waits for someone to join it
	MethodHost Method = "host"
	// MethodConn joins an existing room
	MethodConn Method = "conn"
)

// Protocol responses, newline included.
const (
	RespOK        = "ok\n"
	RespInvalid   = "invalid\n"
	RespFail      = "fail\n"
	RespConnected = "connected\n"
)

// StreamBufferSize bounds the length of a protocol line.
const StreamBufferSize = 4096

var (
	// ErrConnection is returned when the connection to the relay fails
	ErrConnection = errors.New("serp: connection error")
	// ErrNoAck is returned when the relay doesn't acknowledge a request in time
	ErrNoAck = errors.New("serp: no ok from server")
	// ErrInvalidRequest is returned when the relay rejects the request line
	ErrInvalidRequest = errors.New("serp: invalid request")
	// ErrRoomExists is returned when hosting a room that's already open
	ErrRoomExists = errors.New("serp: room already exists")
	// ErrRoomDoesntExist is returned when joining a room nobody is hosting
	ErrRoomDoesntExist = errors.New("serp: room doesn't exist")
	// ErrConnectionBroke is returned when the relay acknowledged the request
	// but never paired the connection
	ErrConnectionBroke = errors.New("serp: connection broke after ok")
	// ErrLineTooLong is returned when a protocol line doesn't fit the buffer
	ErrLineTooLong = errors.New("serp: line too long")
)

// ParseRequest splits a request line into its method and room id. The line
// must be exactly "host <id>" or "conn <id>", optionally newline terminated.
func ParseRequest(line string) (Method, string, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	fields := strings.Split(line, " ")
	if len(fields) != 2 || fields[1] == "" {
		return "", "", ErrInvalidRequest
	}

	switch m := Method(fields[0]); m {
	case MethodHost, MethodConn:
		return m, fields[1], nil
	default:
		return "", "", ErrInvalidRequest
	}
}

// FormatRequest builds the request line for method and id.
func FormatRequest(m Method, id string) string {
	return fmt.Sprintf("%s %s\n", m, id)
}

// Stream is a connection whose reads go through the buffer that was used for
// the protocol lines, so nothing the peer sent early is dropped.
type Stream struct {
	net.Conn
	r *bufio.Reader
}

// NewStream wraps conn for line reading.
func NewStream(conn net.Conn) *Stream {
	return &Stream{
		Conn: conn,
		r:    bufio.NewReaderSize(conn, StreamBufferSize),
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// ReadLine reads up to and including the next newline.
func (s *Stream) ReadLine() (string, error) {
	line, err := s.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return "", ErrLineTooLong
	}
	return string(line), err
}

// Buffered returns the number of bytes read from the connection but not yet
// consumed.
func (s *Stream) Buffered() int {
	return s.r.Buffered()
}

// Peek returns the next n bytes without consuming them.
func (s *Stream) Peek(n int) ([]byte, error) {
	return s.r.Peek(n)
}

// WriteString writes a protocol line.
func (s *Stream) WriteString(line string) error {
	_, err := s.Conn.Write([]byte(line))
	return err
}
