package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding marks inputs that cannot be framed. Nothing is sent when it is returned.
	ErrEncoding = errors.New("auscout: encoding error")
	// ErrDecode marks a reply (or request, on the server side) with an unexpected shape.
	ErrDecode = errors.New("auscout: decode error")
)

// DecodeError reports a payload whose length does not match what the command expects.
type DecodeError struct {
	Command  Command
	Length   int
	Expected int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("auscout: decode error: %s reply is %d bytes, want %d", e.Command, e.Length, e.Expected)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

func encodingErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}

func decodeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
