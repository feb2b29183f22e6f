package stubserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/himanishpuri/AudioScout/pkg/logger"
)

// Server answers REQ clients from a ZeroMQ ROUTER socket. The routing
// envelope is handled here rather than by a REP socket so that empty request
// parts, such as the hash part of a zero-frame sequence, reach the index.
type Server struct {
	sock   zmq4.Socket
	index  *Index
	log    *logger.Logger
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Listen binds the socket on endpoint, e.g. "tcp://127.0.0.1:4005".
func Listen(endpoint string, index *Index, log *logger.Logger) (*Server, error) {
	if index == nil {
		index = NewIndex()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewRouter(ctx)
	if err := sock.Listen(endpoint); err != nil {
		cancel()
		sock.Close()
		return nil, fmt.Errorf("listening on %s: %w", endpoint, err)
	}
	return &Server{sock: sock, index: index, log: log, cancel: cancel}, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.sock.Addr()
}

// Endpoint is Addr in ZeroMQ endpoint form.
func (s *Server) Endpoint() string {
	return "tcp://" + s.Addr().String()
}

func (s *Server) Index() *Index {
	return s.index
}

// Serve handles requests until ctx is done or the socket fails.
func (s *Server) Serve(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("receiving request: %w", err)
		}

		envelope, parts, ok := splitEnvelope(msg.Frames)
		if !ok {
			s.log.Warnf("dropping message with %d frames and no envelope delimiter", len(msg.Frames))
			continue
		}

		reply := s.index.Handle(parts)
		s.log.Debugf("request with %d parts, reply %d bytes", len(parts), len(reply))

		frames := append(envelope, reply)
		if err := s.sock.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sending reply: %w", err)
		}
	}
}

// splitEnvelope separates the routing envelope (peer identity frames up to
// and including the first empty delimiter) from the request parts. Empty
// frames after the delimiter belong to the request.
func splitEnvelope(frames [][]byte) (envelope, parts [][]byte, ok bool) {
	for i := 1; i < len(frames); i++ {
		if len(frames[i]) == 0 {
			envelope = make([][]byte, i+1, i+2)
			copy(envelope, frames[:i+1])
			return envelope, frames[i+1:], true
		}
	}
	return nil, nil, false
}

func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.sock.Close()
	})
	return s.closeErr
}
