package auscout

import (
	"os"
	"time"
)

type Config struct {
	SampleRate       int
	Toggles          int
	Seconds          float64
	Timeout          time.Duration
	TempDir          string
	JournalPath      string
	FailureThreshold uint32
	Pause            time.Duration
	SkipSubmitted    bool

	Logger        Logger
	Dialer        Dialer
	Fingerprinter Fingerprinter
	Loader        AudioLoader
	Journal       Journal
}

type Option func(*Config)

// WithSampleRate sets the rate audio is resampled to before hashing.
// The hash is undefined below 6000 Hz.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithToggles sets how many bit-toggled variants accompany a query.
func WithToggles(n int) Option {
	return func(c *Config) {
		c.Toggles = n
	}
}

// WithSeconds limits each file to its leading n seconds. Zero reads the whole file.
func WithSeconds(n float64) Option {
	return func(c *Config) {
		c.Seconds = n
	}
}

// WithTimeout bounds the wait for each reply. Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithJournalPath records every exchange in a SQLite file at path.
func WithJournalPath(path string) Option {
	return func(c *Config) {
		c.JournalPath = path
	}
}

// WithJournal records exchanges in j. The client does not close it.
func WithJournal(j Journal) Option {
	return func(c *Config) {
		c.Journal = j
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithDialer(d Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}

func WithFingerprinter(fp Fingerprinter) Option {
	return func(c *Config) {
		c.Fingerprinter = fp
	}
}

func WithLoader(l AudioLoader) Option {
	return func(c *Config) {
		c.Loader = l
	}
}

// WithFailureThreshold sets how many consecutive transport failures abort
// the rest of a batch. Zero never aborts.
func WithFailureThreshold(n uint32) Option {
	return func(c *Config) {
		c.FailureThreshold = n
	}
}

// WithPause waits d between files.
func WithPause(d time.Duration) Option {
	return func(c *Config) {
		c.Pause = d
	}
}

// WithSkipSubmitted resumes an interrupted submit batch: files whose hashes
// the journal shows were already accepted are not sent again.
func WithSkipSubmitted(skip bool) Option {
	return func(c *Config) {
		c.SkipSubmitted = skip
	}
}

func defaultConfig() *Config {
	return &Config{
		SampleRate:       6000,
		TempDir:          os.TempDir(),
		FailureThreshold: 3,
	}
}
