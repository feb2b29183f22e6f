package auscout

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

// State is the position of a Session in its single exchange.
type State int

const (
	StateIdle State = iota
	StateAwaitingReply
	StateComplete
	// StateFailed is terminal: the exchange was abandoned after a transport
	// or decode error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting-reply"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrSessionUsed is returned when Exchange is called on a session that has
// already sent its request.
var ErrSessionUsed = errors.New("auscout: session already used")

// Session performs exactly one request/reply exchange over a Transport it
// does not own. Create one per file.
type Session struct {
	tr    Transport
	state State
}

func NewSession(tr Transport) *Session {
	return &Session{tr: tr}
}

func (s *Session) State() State {
	return s.state
}

// Exchange frames req, sends it, waits for the reply and decodes it. Encoding
// errors leave the session idle since nothing was sent; any later error fails
// it for good.
func (s *Session) Exchange(ctx context.Context, req *protocol.Request) (*protocol.Reply, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("%w (state %s)", ErrSessionUsed, s.state)
	}

	parts, err := req.Parts()
	if err != nil {
		return nil, err
	}

	if err := s.tr.Send(ctx, parts); err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.state = StateAwaitingReply

	payload, err := s.tr.Receive(ctx)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	reply, err := protocol.DecodeReply(req.Command, payload)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.state = StateComplete
	return reply, nil
}

// Query looks up hashes, widened by toggles, and returns the server's text verdict.
func (s *Session) Query(ctx context.Context, hashes protocol.HashSequence, toggles protocol.ToggleSet) (string, error) {
	reply, err := s.Exchange(ctx, protocol.NewQuery(hashes, toggles))
	if err != nil {
		return "", err
	}
	return reply.Text(), nil
}

// Submit registers hashes with their metadata and returns the assigned identifier.
func (s *Session) Submit(ctx context.Context, hashes protocol.HashSequence, md *protocol.TrackMetadata) (int32, error) {
	reply, err := s.Exchange(ctx, protocol.NewSubmit(hashes, md))
	if err != nil {
		return 0, err
	}
	return reply.ID, nil
}
