package auscout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/himanishpuri/AudioScout/pkg/auscout/audio"
	"github.com/himanishpuri/AudioScout/pkg/auscout/fingerprint"
	"github.com/himanishpuri/AudioScout/pkg/auscout/journal"
	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
	"github.com/himanishpuri/AudioScout/pkg/auscout/transport"
	"github.com/himanishpuri/AudioScout/pkg/logger"
	"github.com/himanishpuri/AudioScout/pkg/utils"
)

var (
	// ErrInput marks a file that could not be decoded or hashed. The batch
	// skips it and moves on.
	ErrInput = errors.New("auscout: unusable input")
	// ErrServerUnavailable is returned without contacting the server once
	// consecutive transport failures have opened the breaker.
	ErrServerUnavailable = errors.New("auscout: server unavailable")
)

// Result is the outcome of one file.
type Result struct {
	Path     string
	Command  protocol.Command
	Frames   int
	Toggles  int
	Digest   string
	Metadata *protocol.TrackMetadata // submit only
	Reply    *protocol.Reply
	Err      error

	// PriorID is the identifier the journal holds for an earlier submit of
	// the same hashes. Resumed is set when that made the exchange unnecessary.
	PriorID *int32
	Resumed bool
}

func (r *Result) Skipped() bool {
	return errors.Is(r.Err, ErrInput)
}

func (r *Result) Aborted() bool {
	return errors.Is(r.Err, ErrServerUnavailable)
}

// Summary collects the results of one Run.
type Summary struct {
	RunID     string
	Results   []*Result
	Completed int
	Skipped   int
	Failed    int
	Aborted   int
}

func (s *Summary) add(r *Result) {
	s.Results = append(s.Results, r)
	switch {
	case r.Err == nil:
		s.Completed++
	case r.Skipped():
		s.Skipped++
	case r.Aborted():
		s.Aborted++
	default:
		s.Failed++
	}
}

// Client drives one Session per audio file against a single server. It owns
// the connection, dialing lazily and again after a transport failure. A
// Client is not safe for concurrent use.
type Client struct {
	addr        string
	cfg         *Config
	log         Logger
	runID       string
	journal     Journal
	ownsJournal bool
	breaker     *gobreaker.CircuitBreaker[*protocol.Reply]

	tr Transport
}

func New(addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if addr == "" {
		return nil, errors.New("auscout: server address is required")
	}
	if cfg.Toggles < 0 || cfg.Toggles > 255 {
		return nil, fmt.Errorf("auscout: toggle count %d outside 0..255", cfg.Toggles)
	}
	if cfg.Seconds < 0 {
		return nil, fmt.Errorf("auscout: negative seconds per file %g", cfg.Seconds)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	if cfg.Fingerprinter == nil {
		if cfg.Toggles > fingerprint.MaxToggles {
			return nil, fmt.Errorf("auscout: toggle count %d outside 0..%d", cfg.Toggles, fingerprint.MaxToggles)
		}
		h, err := fingerprint.NewHasher(cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		cfg.Fingerprinter = h
	}

	if cfg.Loader == nil {
		cfg.Loader = audio.NewLoader(cfg.SampleRate,
			audio.WithSeconds(cfg.Seconds),
			audio.WithTempDir(cfg.TempDir),
		)
	}

	if cfg.Dialer == nil {
		timeout := cfg.Timeout
		cfg.Dialer = func(ctx context.Context, addr string) (Transport, error) {
			z, err := transport.Dial(ctx, addr, transport.WithTimeout(timeout))
			if err != nil {
				return nil, err
			}
			return z, nil
		}
	}

	c := &Client{
		addr:    addr,
		cfg:     cfg,
		log:     cfg.Logger,
		runID:   journal.NewRunID(),
		journal: cfg.Journal,
	}

	if c.journal == nil && cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		c.journal = j
		c.ownsJournal = true
	}

	threshold := cfg.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[*protocol.Reply](gobreaker.Settings{
		Name:        addr,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		// encoding and decode errors are the file's fault, not the server's
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, transport.ErrTransport)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warnf("server %s: circuit %s -> %s", name, from, to)
		},
	})

	return c, nil
}

// RunID identifies this client's batch in the journal.
func (c *Client) RunID() string {
	return c.runID
}

// Run processes every audio file under dir in lexical order. Per-file
// failures are reported in the Summary; the returned error is only set when
// the directory cannot be listed or ctx ends.
func (c *Client) Run(ctx context.Context, cmd protocol.Command, dir string) (*Summary, error) {
	files, err := utils.ListAudioFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	sum := &Summary{RunID: c.runID}
	if len(files) == 0 {
		c.log.Warnf("no audio files in %s", dir)
		return sum, nil
	}
	c.log.Infof("%s: %d files from %s to %s (run %s)", cmd, len(files), dir, c.addr, c.runID)

	for i, path := range files {
		if i > 0 && c.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			case <-time.After(c.cfg.Pause):
			}
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, _ := c.ProcessFile(ctx, cmd, path)
		sum.add(res)
		c.report(i+1, len(files), res)
	}

	return sum, nil
}

// ProcessFile loads, hashes and exchanges one file. The Result is always
// returned and carries the same error.
func (c *Client) ProcessFile(ctx context.Context, cmd protocol.Command, path string) (*Result, error) {
	res := &Result{Path: path, Command: cmd}
	res.Err = c.process(ctx, res)
	c.record(res)
	return res, res.Err
}

func (c *Client) process(ctx context.Context, res *Result) error {
	if !res.Command.Valid() {
		return fmt.Errorf("%w: unknown command %d", protocol.ErrEncoding, uint8(res.Command))
	}
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: %s", ErrServerUnavailable, c.addr)
	}

	track, err := c.cfg.Loader.Load(ctx, res.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInput, err)
	}

	toggles := 0
	if res.Command == protocol.Query {
		toggles = c.cfg.Toggles
	}
	hashes, variants, err := c.cfg.Fingerprinter.Hash(track.Samples, toggles)
	if err != nil {
		return fmt.Errorf("%w: hashing %s: %w", ErrInput, res.Path, err)
	}
	res.Frames = len(hashes)
	res.Toggles = len(variants)
	res.Digest = journal.Digest(hashes)

	var req *protocol.Request
	switch res.Command {
	case protocol.Query:
		req = protocol.NewQuery(hashes, protocol.NewToggleSet(variants...))
	case protocol.Submit:
		if c.resume(res) {
			return nil
		}
		md := track.Metadata
		res.Metadata = &md
		req = protocol.NewSubmit(hashes, &md)
	}

	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}
	res.Reply = reply
	return nil
}

// resume looks up an earlier submit of res.Digest and reports whether the
// file can be skipped.
func (c *Client) resume(res *Result) bool {
	if c.journal == nil {
		return false
	}
	id, ok, err := c.journal.Submitted(res.Digest)
	if err != nil {
		c.log.Warnf("journal: %v", err)
		return false
	}
	if !ok {
		return false
	}
	res.PriorID = &id
	if !c.cfg.SkipSubmitted {
		c.log.Infof("%s was already submitted as id %d", res.Path, id)
		return false
	}
	res.Reply = &protocol.Reply{Command: protocol.Submit, ID: id}
	res.Resumed = true
	return true
}

func (c *Client) exchange(ctx context.Context, req *protocol.Request) (*protocol.Reply, error) {
	reply, err := c.breaker.Execute(func() (*protocol.Reply, error) {
		tr, err := c.transport(ctx)
		if err != nil {
			return nil, err
		}
		reply, err := NewSession(tr).Exchange(ctx, req)
		if errors.Is(err, transport.ErrTransport) {
			// a REQ socket that missed its reply cannot send again
			c.drop()
		}
		return reply, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrServerUnavailable, c.addr, err)
	}
	return reply, err
}

func (c *Client) transport(ctx context.Context) (Transport, error) {
	if c.tr != nil {
		return c.tr, nil
	}
	tr, err := c.cfg.Dialer(ctx, c.addr)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("connected to %s", c.addr)
	c.tr = tr
	return tr, nil
}

func (c *Client) drop() {
	if c.tr == nil {
		return
	}
	if err := c.tr.Close(); err != nil {
		c.log.Debugf("closing transport: %v", err)
	}
	c.tr = nil
}

func (c *Client) record(res *Result) {
	// a resumed file is already on record under an earlier run
	if c.journal == nil || res.Resumed {
		return
	}
	entry := &journal.Entry{
		RunID:   c.runID,
		Path:    res.Path,
		Command: res.Command.String(),
		Frames:  res.Frames,
		Toggles: res.Toggles,
		Digest:  res.Digest,
	}
	if res.Reply != nil {
		if res.Command == protocol.Submit {
			id := res.Reply.ID
			entry.AssignedID = &id
		} else {
			entry.Reply = res.Reply.Text()
		}
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := c.journal.Record(entry); err != nil {
		c.log.Warnf("journal: %v", err)
	}
}

func (c *Client) report(n, total int, res *Result) {
	switch {
	case res.Resumed:
		c.log.Infof("(%d/%d) %s: already submitted, %s", n, total, res.Path, res.Reply)
	case res.Err == nil:
		c.log.Infof("(%d/%d) %s: %d frames, %d toggles", n, total, res.Path, res.Frames, res.Toggles)
		if res.Metadata != nil {
			c.log.Debugf("sent metadata %q", protocol.EncodeMetadata(res.Metadata))
		}
		c.log.Infof("(%d/%d) reply: %s", n, total, res.Reply)
	case res.Skipped():
		c.log.Warnf("(%d/%d) skipping %s: %v", n, total, res.Path, res.Err)
	default:
		c.log.Errorf("(%d/%d) %s: %v", n, total, res.Path, res.Err)
	}
}

// Close releases the connection and, when the client opened it, the journal.
func (c *Client) Close() error {
	c.drop()
	if c.ownsJournal {
		return c.journal.Close()
	}
	return nil
}
