package auscout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/AudioScout/pkg/auscout/audio"
	"github.com/himanishpuri/AudioScout/pkg/auscout/journal"
	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
	"github.com/himanishpuri/AudioScout/pkg/auscout/transport"
	"github.com/himanishpuri/AudioScout/pkg/logger"
)

var errUnreadable = errors.New("unreadable")

// fakeLoader returns one sample per byte of the file name and fails for
// names listed in bad.
type fakeLoader struct {
	bad   map[string]bool
	md    protocol.TrackMetadata
	loads int
}

func (l *fakeLoader) Load(_ context.Context, path string) (*audio.Track, error) {
	l.loads++
	if l.bad[filepath.Base(path)] {
		return nil, errUnreadable
	}
	return &audio.Track{
		Path:       path,
		Samples:    make([]float64, len(filepath.Base(path))),
		SampleRate: 6000,
		Metadata:   l.md,
	}, nil
}

// fakeFingerprinter hashes sample i to i+1 and flips bit k for variant k.
// Inputs of fewer than minSamples samples are rejected.
type fakeFingerprinter struct {
	minSamples int
}

func (f fakeFingerprinter) Hash(samples []float64, toggles int) (protocol.HashSequence, []protocol.HashSequence, error) {
	if len(samples) < f.minSamples {
		return nil, nil, errors.New("too short")
	}
	hashes := make(protocol.HashSequence, len(samples))
	for i := range hashes {
		hashes[i] = uint32(i + 1)
	}
	var variants []protocol.HashSequence
	for k := 0; k < toggles; k++ {
		v := make(protocol.HashSequence, len(hashes))
		for i, h := range hashes {
			v[i] = h ^ (1 << k)
		}
		variants = append(variants, v)
	}
	return hashes, variants, nil
}

type memJournal struct {
	entries []*journal.Entry
}

func (j *memJournal) Record(e *journal.Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) Submitted(digest string) (int32, bool, error) {
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.Digest == digest && e.Command == protocol.Submit.String() && e.AssignedID != nil {
			return *e.AssignedID, true, nil
		}
	}
	return 0, false, nil
}

func (j *memJournal) Close() error { return nil }

// scriptedDialer hands out the queued transports in order, then fails.
type scriptedDialer struct {
	transports []*fakeTransport
	dials      int
	err        error
}

func (d *scriptedDialer) dial(_ context.Context, addr string) (Transport, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.transports) == 0 {
		return nil, fmt.Errorf("%w: dial %s: no transport queued", transport.ErrTransport, addr)
	}
	tr := d.transports[0]
	d.transports = d.transports[1:]
	return tr, nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func audioDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	return dir
}

func newTestClient(t *testing.T, d *scriptedDialer, opts ...Option) (*Client, *fakeLoader, *memJournal) {
	t.Helper()
	loader := &fakeLoader{bad: map[string]bool{}}
	j := &memJournal{}
	base := []Option{
		WithLogger(quietLogger()),
		WithDialer(d.dial),
		WithLoader(loader),
		WithFingerprinter(fakeFingerprinter{minSamples: 3}),
		WithJournal(j),
	}
	c, err := New("tcp://auscout.test:4005", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, loader, j
}

func TestRunSubmitsEveryFile(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{
		protocol.EncodeIdentifier(1),
		protocol.EncodeIdentifier(2),
	}}
	d := &scriptedDialer{transports: []*fakeTransport{tr}}
	c, loader, j := newTestClient(t, d)
	loader.md = protocol.TrackMetadata{Composer: protocol.Text("Bach"), Year: protocol.Number(1750)}

	dir := audioDir(t, "b.mp3", "a.mp3", "notes.txt")
	sum, err := c.Run(context.Background(), protocol.Submit, dir)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, c.RunID(), sum.RunID)
	require.Len(t, sum.Results, 2)
	assert.Equal(t, filepath.Join(dir, "a.mp3"), sum.Results[0].Path)
	assert.Equal(t, int32(1), sum.Results[0].Reply.ID)
	assert.Equal(t, int32(2), sum.Results[1].Reply.ID)
	assert.Equal(t, 1, d.dials)

	require.Len(t, tr.sent, 2)
	parts := tr.sent[0]
	require.Len(t, parts, 4)
	assert.Equal(t, []byte{2}, parts[0])
	assert.Equal(t, protocol.EncodeFrameCount(5), parts[1])
	assert.Equal(t, protocol.EncodeMetadata(&loader.md), parts[3])

	require.Len(t, j.entries, 2)
	assert.Equal(t, "submit", j.entries[0].Command)
	require.NotNil(t, j.entries[1].AssignedID)
	assert.Equal(t, int32(2), *j.entries[1].AssignedID)
	assert.Equal(t, journal.Digest(protocol.HashSequence{1, 2, 3, 4, 5}), j.entries[0].Digest)
}

func TestQuerySendsToggles(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{[]byte("match id=3\x00")}}
	d := &scriptedDialer{transports: []*fakeTransport{tr}}
	c, _, j := newTestClient(t, d, WithToggles(2))

	res, err := c.ProcessFile(context.Background(), protocol.Query, "song.mp3")
	require.NoError(t, err)
	assert.Equal(t, "match id=3", res.Reply.Text())
	assert.Equal(t, 8, res.Frames)
	assert.Equal(t, 2, res.Toggles)
	assert.Nil(t, res.Metadata)

	require.Len(t, tr.sent, 1)
	parts := tr.sent[0]
	require.Len(t, parts, 6)
	assert.Equal(t, []byte{2}, parts[3])
	assert.Equal(t, protocol.EncodeHashes(protocol.HashSequence{0, 3, 2, 5, 4, 7, 6, 9}), parts[4])

	require.Len(t, j.entries, 1)
	assert.Equal(t, "match id=3", j.entries[0].Reply)
	assert.Nil(t, j.entries[0].AssignedID)
}

func TestSubmitIgnoresToggles(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{protocol.EncodeIdentifier(9)}}
	c, _, _ := newTestClient(t, &scriptedDialer{transports: []*fakeTransport{tr}}, WithToggles(4))

	res, err := c.ProcessFile(context.Background(), protocol.Submit, "song.mp3")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Toggles)
	require.Len(t, tr.sent[0], 4)
}

func TestInputErrorsAreSkipped(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{protocol.EncodeIdentifier(5)}}
	d := &scriptedDialer{transports: []*fakeTransport{tr}}
	c, loader, j := newTestClient(t, d)
	loader.bad["broken.mp3"] = true

	// "x.mp3" is five samples long; a minimum of 6 rejects it
	c.cfg.Fingerprinter = fakeFingerprinter{minSamples: 6}

	dir := audioDir(t, "broken.mp3", "x.mp3", "good.mp3")
	sum, err := c.Run(context.Background(), protocol.Submit, dir)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 2, sum.Skipped)
	assert.ErrorIs(t, sum.Results[0].Err, ErrInput)
	assert.ErrorIs(t, sum.Results[0].Err, errUnreadable)
	assert.True(t, sum.Results[2].Skipped())
	require.Len(t, tr.sent, 1)
	assert.Len(t, j.entries, 3)
	assert.NotEmpty(t, j.entries[0].Error)
}

func TestTransportFailureRedials(t *testing.T) {
	lost := &fakeTransport{recvErr: fmt.Errorf("%w: reply timeout", transport.ErrTransport)}
	fresh := &fakeTransport{replies: [][]byte{protocol.EncodeIdentifier(8)}}
	d := &scriptedDialer{transports: []*fakeTransport{lost, fresh}}
	c, _, _ := newTestClient(t, d)

	_, err := c.ProcessFile(context.Background(), protocol.Submit, "one.mp3")
	require.ErrorIs(t, err, transport.ErrTransport)
	assert.True(t, lost.closed)

	res, err := c.ProcessFile(context.Background(), protocol.Submit, "two.mp3")
	require.NoError(t, err)
	assert.Equal(t, int32(8), res.Reply.ID)
	assert.Equal(t, 2, d.dials)
}

func TestBreakerAbortsBatch(t *testing.T) {
	d := &scriptedDialer{err: fmt.Errorf("%w: connection refused", transport.ErrTransport)}
	c, loader, _ := newTestClient(t, d, WithFailureThreshold(2))

	dir := audioDir(t, "a.mp3", "b.mp3", "c.mp3", "d.mp3")
	sum, err := c.Run(context.Background(), protocol.Query, dir)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 2, sum.Aborted)
	assert.Equal(t, 2, d.dials)
	assert.Equal(t, 2, loader.loads)
	assert.ErrorIs(t, sum.Results[3].Err, ErrServerUnavailable)
}

func TestDecodeErrorDoesNotTripBreaker(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{
		{1, 2, 3},
		protocol.EncodeIdentifier(4),
	}}
	d := &scriptedDialer{transports: []*fakeTransport{tr}}
	c, _, _ := newTestClient(t, d, WithFailureThreshold(1))

	_, err := c.ProcessFile(context.Background(), protocol.Submit, "one.mp3")
	var decErr *protocol.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, 3, decErr.Length)

	res, err := c.ProcessFile(context.Background(), protocol.Submit, "two.mp3")
	require.NoError(t, err)
	assert.Equal(t, int32(4), res.Reply.ID)
	assert.Equal(t, 1, d.dials)
}

func TestProcessFileRejectsUnknownCommand(t *testing.T) {
	d := &scriptedDialer{}
	c, loader, _ := newTestClient(t, d)

	_, err := c.ProcessFile(context.Background(), protocol.Command(7), "song.mp3")
	assert.ErrorIs(t, err, protocol.ErrEncoding)
	assert.Zero(t, loader.loads)
	assert.Zero(t, d.dials)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("tcp://x:1", WithToggles(256))
	assert.Error(t, err)

	_, err = New("tcp://x:1", WithSeconds(-1))
	assert.Error(t, err)

	_, err = New("tcp://x:1", WithSampleRate(4000))
	assert.Error(t, err)
}

func TestNewRejectsTogglesBeyondHashWidth(t *testing.T) {
	_, err := New("tcp://x:1", WithToggles(40), WithLoader(&fakeLoader{}), WithLogger(quietLogger()))
	assert.Error(t, err)

	c, err := New("tcp://x:1", WithToggles(32), WithLoader(&fakeLoader{}), WithLogger(quietLogger()))
	require.NoError(t, err)
	c.Close()

	// a custom fingerprinter sets its own limit
	c, err = New("tcp://x:1",
		WithToggles(40),
		WithLoader(&fakeLoader{}),
		WithFingerprinter(fakeFingerprinter{}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	c.Close()
}

func TestRunSkipsSubmittedFiles(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{protocol.EncodeIdentifier(2)}}
	d := &scriptedDialer{transports: []*fakeTransport{tr}}
	c, _, j := newTestClient(t, d, WithSkipSubmitted(true))

	prior := int32(41)
	j.entries = append(j.entries, &journal.Entry{
		RunID:      "earlier",
		Command:    protocol.Submit.String(),
		Digest:     journal.Digest(protocol.HashSequence{1, 2, 3, 4, 5}),
		AssignedID: &prior,
	})

	sum, err := c.Run(context.Background(), protocol.Submit, audioDir(t, "a.mp3", "bb.mp3"))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Completed)

	first := sum.Results[0]
	assert.True(t, first.Resumed)
	require.NotNil(t, first.PriorID)
	assert.Equal(t, int32(41), *first.PriorID)
	assert.Equal(t, int32(41), first.Reply.ID)

	second := sum.Results[1]
	assert.False(t, second.Resumed)
	assert.Nil(t, second.PriorID)
	assert.Equal(t, int32(2), second.Reply.ID)

	require.Len(t, tr.sent, 1)
	assert.Equal(t, protocol.EncodeFrameCount(6), tr.sent[0][1])

	require.Len(t, j.entries, 2)
	assert.Equal(t, c.RunID(), j.entries[1].RunID)
}

func TestSubmitNotesPriorID(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{protocol.EncodeIdentifier(1), protocol.EncodeIdentifier(2)}}
	c, _, j := newTestClient(t, &scriptedDialer{transports: []*fakeTransport{tr}})

	first, err := c.ProcessFile(context.Background(), protocol.Submit, "song.mp3")
	require.NoError(t, err)
	assert.Nil(t, first.PriorID)

	again, err := c.ProcessFile(context.Background(), protocol.Submit, "song.mp3")
	require.NoError(t, err)
	require.NotNil(t, again.PriorID)
	assert.Equal(t, int32(1), *again.PriorID)
	assert.False(t, again.Resumed)
	assert.Equal(t, int32(2), again.Reply.ID)
	assert.Len(t, tr.sent, 2)
	assert.Len(t, j.entries, 2)
}

func TestQueryDoesNotConsultJournal(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{[]byte("no match\x00")}}
	c, _, j := newTestClient(t, &scriptedDialer{transports: []*fakeTransport{tr}}, WithSkipSubmitted(true))

	id := int32(5)
	j.entries = append(j.entries, &journal.Entry{
		Command:    protocol.Submit.String(),
		Digest:     journal.Digest(protocol.HashSequence{1, 2, 3, 4, 5, 6, 7, 8}),
		AssignedID: &id,
	})

	res, err := c.ProcessFile(context.Background(), protocol.Query, "song.mp3")
	require.NoError(t, err)
	assert.Nil(t, res.PriorID)
	assert.Equal(t, "no match", res.Reply.Text())
	assert.Len(t, tr.sent, 1)
}

func TestRunStopsOnContextDuringPause(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{protocol.EncodeIdentifier(1)}}
	c, _, _ := newTestClient(t, &scriptedDialer{transports: []*fakeTransport{tr}}, WithPause(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sum, err := c.Run(ctx, protocol.Submit, audioDir(t, "a.mp3", "b.mp3"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, sum)
	assert.Len(t, sum.Results, 1)
}

func TestRunWritesJournalFile(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{protocol.EncodeIdentifier(11)}}
	d := &scriptedDialer{transports: []*fakeTransport{tr}}
	path := filepath.Join(t.TempDir(), "journal.sqlite3")

	c, err := New("tcp://auscout.test:4005",
		WithLogger(quietLogger()),
		WithDialer(d.dial),
		WithLoader(&fakeLoader{}),
		WithFingerprinter(fakeFingerprinter{}),
		WithJournalPath(path),
	)
	require.NoError(t, err)

	_, err = c.Run(context.Background(), protocol.Submit, audioDir(t, "a.mp3"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.ListRun(c.RunID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].AssignedID)
	assert.Equal(t, int32(11), *entries[0].AssignedID)
}

func TestRunMissingDirectory(t *testing.T) {
	c, _, _ := newTestClient(t, &scriptedDialer{})
	_, err := c.Run(context.Background(), protocol.Query, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
