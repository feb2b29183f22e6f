package auscout

import (
	"context"

	"github.com/himanishpuri/AudioScout/pkg/auscout/audio"
	"github.com/himanishpuri/AudioScout/pkg/auscout/journal"
	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

// Transport moves one request and its reply. Send delivers all parts as a
// single message with boundaries and order intact; Receive blocks for the
// single-part reply.
type Transport interface {
	Send(ctx context.Context, parts [][]byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Transport to the configured server.
type Dialer func(ctx context.Context, addr string) (Transport, error)

// Fingerprinter computes the hash sequence of decoded samples and up to
// toggles alternate sequences with one bit flipped per frame.
type Fingerprinter interface {
	Hash(samples []float64, toggles int) (protocol.HashSequence, []protocol.HashSequence, error)
}

// AudioLoader decodes a file into mono samples and reads its tags.
type AudioLoader interface {
	Load(ctx context.Context, path string) (*audio.Track, error)
}

// Journal records exchanges. Submitted reports the identifier last assigned
// to a hash sequence digest, letting a rerun recognize files it has sent.
type Journal interface {
	Record(entry *journal.Entry) error
	Submitted(digest string) (int32, bool, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
