package protocol

import (
	"bytes"
	"fmt"
)

// Reply is a decoded server answer.
type Reply struct {
	Command Command
	// Raw is the payload as received.
	Raw []byte
	// ID is the identifier assigned to a submission. Zero for queries.
	ID int32
}

// DecodeReply interprets payload according to the command that produced it.
// Query payloads are opaque text; submit payloads must be exactly 4 bytes.
func DecodeReply(cmd Command, payload []byte) (*Reply, error) {
	switch cmd {
	case Query:
		return &Reply{Command: cmd, Raw: payload}, nil
	case Submit:
		id, err := DecodeIdentifier(payload)
		if err != nil {
			return nil, err
		}
		return &Reply{Command: cmd, Raw: payload, ID: id}, nil
	default:
		return nil, decodeErrorf("unknown command %d", uint8(cmd))
	}
}

// Text is the display form of a query result. Servers written in C terminate
// the string with NUL; that terminator is dropped here.
func (r *Reply) Text() string {
	return string(bytes.TrimRight(r.Raw, "\x00"))
}

func (r *Reply) String() string {
	if r.Command == Submit {
		return fmt.Sprintf("id = %d", r.ID)
	}
	return r.Text()
}
