// Package transport carries request parts to an auscoutd server over a
// ZeroMQ REQ socket and hands back the single-part reply.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

var (
	// ErrTransport wraps every connection, send and receive failure.
	ErrTransport = errors.New("auscout: transport error")
	// ErrClosed is returned once a transport has been closed or abandoned.
	ErrClosed = fmt.Errorf("%w: transport closed", ErrTransport)
)

const (
	defaultDialRetry      = 250 * time.Millisecond
	defaultDialMaxRetries = 8
)

type options struct {
	timeout    time.Duration
	dialRetry  time.Duration
	maxRetries int
}

// Option configures Dial.
type Option func(*options)

// WithTimeout bounds the wait for a reply. Zero waits forever.
// An expired wait abandons the socket: a REQ socket cannot send again
// until it has received, so the caller must dial a new transport.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithDialRetry sets the reconnect interval and attempt budget used while dialing.
func WithDialRetry(interval time.Duration, attempts int) Option {
	return func(o *options) {
		o.dialRetry = interval
		o.maxRetries = attempts
	}
}

// ZMQ is one REQ connection. It is not safe for concurrent exchanges.
type ZMQ struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	sock   zmq4.Socket
	cancel context.CancelFunc
	closed bool
}

// Dial connects a REQ socket to addr, e.g. "tcp://localhost:4005".
func Dial(ctx context.Context, addr string, opts ...Option) (*ZMQ, error) {
	o := options{dialRetry: defaultDialRetry, maxRetries: defaultDialMaxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}

	// The socket outlives the dial context; Close releases it.
	sctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewReq(sctx,
		zmq4.WithDialerRetry(o.dialRetry),
		zmq4.WithDialerMaxRetries(o.maxRetries),
	)
	if err := sock.Dial(addr); err != nil {
		cancel()
		sock.Close()
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}

	return &ZMQ{
		addr:    addr,
		timeout: o.timeout,
		sock:    sock,
		cancel:  cancel,
	}, nil
}

// Addr returns the endpoint the socket was dialed to.
func (z *ZMQ) Addr() string {
	return z.addr
}

// Send transmits parts as one multi-part message, preserving boundaries and order.
func (z *ZMQ) Send(ctx context.Context, parts [][]byte) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty message", ErrTransport)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: send: %v", ErrTransport, err)
	}
	sock, err := z.socket()
	if err != nil {
		return err
	}
	if err := sock.SendMulti(zmq4.NewMsgFrom(parts...)); err != nil {
		z.abandon()
		return fmt.Errorf("%w: send to %s: %v", ErrTransport, z.addr, err)
	}
	return nil
}

// Receive blocks for the single-part reply.
func (z *ZMQ) Receive(ctx context.Context) ([]byte, error) {
	sock, err := z.socket()
	if err != nil {
		return nil, err
	}

	if z.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, z.timeout)
		defer cancel()
	}

	type result struct {
		msg zmq4.Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := sock.Recv()
		done <- result{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		z.abandon()
		return nil, fmt.Errorf("%w: waiting for reply from %s: %v", ErrTransport, z.addr, ctx.Err())
	case r := <-done:
		if r.err != nil {
			z.abandon()
			return nil, fmt.Errorf("%w: receive from %s: %v", ErrTransport, z.addr, r.err)
		}
		if len(r.msg.Frames) != 1 {
			return nil, fmt.Errorf("%w: reply from %s has %d parts, want 1", ErrTransport, z.addr, len(r.msg.Frames))
		}
		return r.msg.Frames[0], nil
	}
}

// Close releases the socket. It is safe to call more than once.
func (z *ZMQ) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil
	}
	z.closed = true
	err := z.sock.Close()
	z.cancel()
	return err
}

func (z *ZMQ) socket() (zmq4.Socket, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil, ErrClosed
	}
	return z.sock, nil
}

func (z *ZMQ) abandon() {
	_ = z.Close()
}
