package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/himanishpuri/AudioScout/pkg/auscout"
	"github.com/himanishpuri/AudioScout/pkg/auscout/fingerprint"
	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
	"github.com/himanishpuri/AudioScout/pkg/logger"
)

// Global flags
var (
	tempDir     string
	journalPath string
	sampleRate  int
	timeout     time.Duration
	pause       time.Duration
	maxFailures uint
	resume      bool
	verbose     bool
	noColor     bool
)

func init() {
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("AUSCOUT_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.StringVar(&journalPath, "journal", getEnvOrDefault("AUSCOUT_JOURNAL", ""), "Record every exchange in this SQLite file")
	flag.IntVar(&sampleRate, "rate", 6000, "Sample rate audio is resampled to before hashing (min 6000)")
	flag.DurationVar(&timeout, "timeout", getEnvDuration("AUSCOUT_TIMEOUT", 0), "Reply timeout per file, 0 waits forever")
	flag.DurationVar(&pause, "pause", 0, "Wait between files")
	flag.UintVar(&maxFailures, "max-failures", 3, "Abort after this many consecutive transport failures, 0 never aborts")
	flag.BoolVar(&resume, "resume", false, "Skip files the journal shows were already submitted")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	flag.BoolVar(&noColor, "no-color", false, "Disable coloured output")
	flag.Usage = func() { printUsage(flag.CommandLine.Output()) }
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// invocation holds the positional arguments.
type invocation struct {
	command protocol.Command
	dir     string
	addr    string
	toggles int
	seconds float64
}

var errUsage = errors.New("usage")

func parseArgs(args []string) (*invocation, error) {
	if len(args) < 5 {
		return nil, fmt.Errorf("%w: expected 5 arguments, got %d", errUsage, len(args))
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: command %q is not a number", errUsage, args[0])
	}
	cmd, err := protocol.ParseCommand(n)
	if err != nil {
		return nil, fmt.Errorf("%w: command must be 1 (query) or 2 (submit)", errUsage)
	}

	// Submit carries no toggles; its count is read but ignored.
	toggles, err := strconv.Atoi(args[3])
	if err != nil {
		return nil, fmt.Errorf("%w: toggle count %q is not a number", errUsage, args[3])
	}
	if cmd != protocol.Query {
		toggles = 0
	} else if toggles < 0 || toggles > fingerprint.MaxToggles {
		return nil, fmt.Errorf("%w: toggle count must be 0..%d", errUsage, fingerprint.MaxToggles)
	}

	seconds, err := strconv.ParseFloat(args[4], 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil, fmt.Errorf("%w: seconds per file %q is not a number", errUsage, args[4])
	}
	if seconds < 0 {
		return nil, fmt.Errorf("%w: seconds per file cannot be negative", errUsage)
	}

	return &invocation{
		command: cmd,
		dir:     args[1],
		addr:    args[2],
		toggles: toggles,
		seconds: seconds,
	}, nil
}

func main() {
	flag.Parse()

	if noColor {
		color.NoColor = true
		logger.SetColorize(false)
	}
	if verbose {
		logger.SetLevel(logger.DEBUG)
	}

	inv, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, inv))
}

func run(ctx context.Context, inv *invocation) int {
	log := logger.GetLogger()
	if resume && journalPath == "" {
		log.Warnf("-resume has no effect without -journal")
	}

	client, err := auscout.New(inv.addr,
		auscout.WithSampleRate(sampleRate),
		auscout.WithToggles(inv.toggles),
		auscout.WithSeconds(inv.seconds),
		auscout.WithTimeout(timeout),
		auscout.WithTempDir(tempDir),
		auscout.WithJournalPath(journalPath),
		auscout.WithFailureThreshold(uint32(maxFailures)),
		auscout.WithPause(pause),
		auscout.WithSkipSubmitted(resume),
		auscout.WithLogger(log),
	)
	if err != nil {
		log.Errorf("Client initialization failed: %v", err)
		return 1
	}
	defer client.Close()

	sum, err := client.Run(ctx, inv.command, inv.dir)
	if sum != nil {
		printSummary(os.Stdout, inv.command, sum)
	}
	if err != nil {
		log.Errorf("%s run stopped: %v", inv.command, err)
		return 1
	}
	if sum.Failed > 0 || sum.Aborted > 0 {
		return 1
	}
	return 0
}

func printSummary(w io.Writer, cmd protocol.Command, sum *auscout.Summary) {
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	for _, res := range sum.Results {
		switch {
		case res.Resumed:
			fmt.Fprintf(w, "%s %s: %s (already submitted)\n", ok("✔"), res.Path, res.Reply)
		case res.Err == nil:
			fmt.Fprintf(w, "%s %s: %s\n", ok("✔"), res.Path, res.Reply)
		case res.Skipped():
			fmt.Fprintf(w, "%s %s: skipped (%v)\n", warn("-"), res.Path, res.Err)
		default:
			fmt.Fprintf(w, "%s %s: %v\n", bad("✘"), res.Path, res.Err)
		}
	}

	fmt.Fprintf(w, "\n%s: %s completed, %s skipped, %s failed, %s aborted (run %s)\n",
		cmd,
		ok(sum.Completed),
		warn(sum.Skipped),
		bad(sum.Failed),
		bad(sum.Aborted),
		sum.RunID,
	)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "AudioScout - audio fingerprint client")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  auscout [options] <command> <directory> <address> <toggleCount> <secondsPerFile>")
	fmt.Fprintln(w, "\nArguments:")
	fmt.Fprintln(w, "  command          1 = query, 2 = submit")
	fmt.Fprintln(w, "  directory        directory of audio files, searched recursively")
	fmt.Fprintln(w, "  address          server endpoint, e.g. tcp://localhost:4005")
	fmt.Fprintf(w, "  toggleCount      bit-toggled variants per query, 0..%d (ignored for submit)\n", fingerprint.MaxToggles)
	fmt.Fprintln(w, "  secondsPerFile   seconds of audio hashed per file, fractions allowed, 0 for all")
	fmt.Fprintln(w, "\nOptions:")
	fmt.Fprintln(w, "  --temp <dir>          Temporary directory for conversion (env: AUSCOUT_TEMP_DIR)")
	fmt.Fprintln(w, "  --journal <path>      SQLite journal of every exchange (env: AUSCOUT_JOURNAL)")
	fmt.Fprintln(w, "  --timeout <duration>  Reply timeout per file (env: AUSCOUT_TIMEOUT, default: none)")
	fmt.Fprintln(w, "  --rate <hz>           Resample rate (default: 6000)")
	fmt.Fprintln(w, "  --pause <duration>    Wait between files")
	fmt.Fprintln(w, "  --max-failures <n>    Consecutive transport failures before aborting (default: 3)")
	fmt.Fprintln(w, "  --resume              Skip files the journal shows were already submitted")
	fmt.Fprintln(w, "  -v                    Debug logging (or AUSCOUT_LOG_LEVEL=DEBUG)")
	fmt.Fprintln(w, "  --no-color            Plain output")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  # Submit the first 30 seconds of every file")
	fmt.Fprintln(w, "  auscout 2 ~/music tcp://localhost:4005 0 30")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Query with 4 toggled variants, journaling results")
	fmt.Fprintln(w, "  auscout --journal runs.sqlite3 1 ./clips tcp://scout.example:4005 4 10")
}
