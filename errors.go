package serialplot

import (
	"errors"
	"fmt"
)

var (
	ErrClosed         = errors.New("serialplot: closed")
	ErrAlreadyRunning = errors.New("serialplot: acquisition already running")
	ErrNoPortSelected = errors.New("serialplot: no valid serial port selected")
	ErrReadTimeout    = errors.New("serialplot: read timeout")
	ErrLineTooLong    = errors.New("serialplot: line exceeds maximum length")
)

// ConfigError reports a connection configuration that cannot start a session.
// It is returned synchronously from Start and never retried.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConnectionError is an open or read failure on the device. The acquisition
// loop retries these until the retry budget is spent.
type ConnectionError struct {
	Op   string // "open" or "read"
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError marks a line that is not valid UTF-8. The line is discarded.
type DecodeError struct {
	Line []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: invalid UTF-8 in %d byte line", len(e.Line))
}

// ParseError marks a line that matched no numeric pattern and was kept as
// free text. It is informational only.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: non-numeric data %q", e.Line)
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsConnectionError reports whether err is, or wraps, a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
