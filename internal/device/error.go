package device

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/desertthunder/umx/internal/shared"
	"github.com/go-routeros/routeros/v3"
)

// Error is a classified session failure.
//
// It unwraps to both Kind and the root cause, so callers can use [errors.Is] against the kind sentinel
// and [errors.As] against library errors such as [*routeros.DeviceError].
type Error struct {
	Kind    error
	Op      string
	Address string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteByte(' ')
		b.WriteString(e.Path)
	}
	if e.Address != "" {
		fmt.Fprintf(&b, " on %s", e.Address)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the device's own message for a !trap reply, or "" for other errors.
func Message(err error) string {
	var de *routeros.DeviceError
	if errors.As(err, &de) && de.Sentence != nil {
		return de.Sentence.Map["message"]
	}
	return ""
}

// IsTerminal reports whether err leaves the session unusable for further calls.
func IsTerminal(err error) bool {
	return errors.Is(err, shared.ErrConnection) ||
		errors.Is(err, shared.ErrCommunication) ||
		errors.Is(err, shared.ErrSessionClosed)
}

func isTransport(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// classifyLogin maps a login failure; a rejected login is a connection failure.
func classifyLogin(err error) error {
	var de *routeros.DeviceError
	if errors.As(err, &de) || isTransport(err) {
		return shared.ErrConnection
	}
	return shared.ErrCommunication
}

// classifyCall maps a call failure and reports whether the connection must be dropped.
func classifyCall(err error) (kind error, broken bool) {
	var de *routeros.DeviceError
	if errors.As(err, &de) {
		if de.Sentence != nil && de.Sentence.Word == "!fatal" {
			return shared.ErrConnection, true
		}
		return shared.ErrDevice, false
	}
	if isTransport(err) {
		return shared.ErrConnection, true
	}
	return shared.ErrCommunication, true
}
