// internal/browser/session/errors.go
package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnectionLost means the protocol connection or the browser process is gone.
	// Callers recover with Reconnect, or by launching a new Session.
	ErrConnectionLost = errors.New("browser connection lost")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
)

// LaunchError reports a browser that could not be found, started or attached to.
type LaunchError struct {
	Executable string
	Stage      string
	Err        error
}

func (e *LaunchError) Error() string {
	if e.Executable == "" {
		return fmt.Sprintf("browser launch failed during %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("browser launch failed during %s (%s): %v", e.Stage, e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// EvaluationError carries a JavaScript exception thrown inside the page.
type EvaluationError struct {
	// Expression is a short label for the evaluated source.
	Expression string
	Message    string
	Line       int64
	Column     int64
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("javascript exception at %d:%d in %q: %s", e.Line, e.Column, e.Expression, e.Message)
}

// expressionLabel shortens source for error messages and logs.
func expressionLabel(expression string) string {
	label := strings.TrimSpace(expression)
	if i := strings.IndexByte(label, '\n'); i >= 0 {
		label = label[:i]
	}
	const max = 64
	if len(label) > max {
		label = label[:max] + "..."
	}
	return label
}

// connectionErrorMarkers are substrings chromedp and the websocket layer use
// when the transport has failed underneath a command.
var connectionErrorMarkers = []string{
	"websocket",
	"use of closed network connection",
	"connection reset",
	"broken pipe",
	"EOF",
	"invalid context",
	"target closed",
	"Target closed",
	"No target with given id",
	"Session with given id not found",
}

func looksLikeConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range connectionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
