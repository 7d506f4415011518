// Package cmd implements the aconv CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/cli"
	"github.com/theirongolddev/aconv/internal/codec"
	"github.com/theirongolddev/aconv/internal/config"
	"github.com/theirongolddev/aconv/internal/decisions"
	"github.com/theirongolddev/aconv/internal/engine"
	"github.com/theirongolddev/aconv/internal/logging"
	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pipeline"
	"github.com/theirongolddev/aconv/internal/pool"
	"github.com/theirongolddev/aconv/internal/store"
	"github.com/theirongolddev/aconv/internal/tui/theme"
)

var (
	flagConfig    string
	flagVerbose   bool
	flagQuiet     bool
	flagLogFormat string

	flagCodec      string
	flagSet        []string
	flagThreads    int
	flagNoJournal  bool
	flagFFmpeg     string
	flagJobTimeout time.Duration
	flagNoSniff    bool
	flagNoHistory  bool

	flagInteractive bool
	flagDryRun      bool
	flagTUI         bool
)

var rootCmd = &cobra.Command{
	Use:   "aconv SRC [DEST]",
	Short: "Incremental, parallel audio library transcoder",
	Long: "Mirror a music library into a destination tree, encoding audio files with the\n" +
		"selected codec and hard-linking everything else. Finished files are journaled\n" +
		"so later runs only process what changed.",
	Args:          cobra.RangeArgs(1, 2),
	RunE:          runConvert,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert SRC [DEST]",
	Short: "Convert a library (the default command)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runConvert,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.RenderError(err))
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging and encoder output")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress and summary output")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")

	pf.StringVarP(&flagCodec, "codec", "c", "", "Codec: "+strings.Join(codec.Names(), ", "))
	pf.StringArrayVarP(&flagSet, "set", "s", nil, "Codec parameter name=value (repeatable)")
	pf.IntVarP(&flagThreads, "threads", "j", 0, "Parallel encoders (0 = one per CPU)")
	pf.BoolVar(&flagNoJournal, "no-journal", false, "Ignore and do not write the destination journal")
	pf.StringVar(&flagFFmpeg, "ffmpeg", "", "ffmpeg binary")
	pf.DurationVar(&flagJobTimeout, "job-timeout", 0, "Abort when a single file takes longer (0 = never)")
	pf.BoolVar(&flagNoSniff, "no-sniff", false, "Classify by extension only")
	pf.BoolVar(&flagNoHistory, "no-history", false, "Do not record this run in the history database")

	for _, c := range []*cobra.Command{rootCmd, convertCmd} {
		c.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "Choose which top-level folders to convert")
		c.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "Show what would be done without writing")
		c.Flags().BoolVar(&flagTUI, "tui", false, "Full-screen progress view")
	}
	rootCmd.AddCommand(convertCmd)
}

func loadConfig() (config.Config, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Load()
}

func newLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := cfg.Log.Level
	if flagVerbose {
		level = "debug"
	}
	format := cfg.Log.Format
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	return logging.New(logging.Options{Level: level, Format: format})
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// defaultDestination names the destination after the source and codec:
// music -> music.opus.
func defaultDestination(src, codecName string) string {
	clean := filepath.Clean(src)
	return strings.TrimRight(clean, string(filepath.Separator)) + "." + codecName
}

// session holds everything resolved from config and flags for a conversion.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error

	codec   codec.Codec
	params  model.Params
	src     string
	dest    string
	threads int
	timeout time.Duration
	sniff   bool
	journal bool

	engine  *engine.Engine
	history *store.History
}

func newSession(ctx context.Context, cmd *cobra.Command, args []string, needEngine bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	theme.SetActive(cfg.Appearance.Theme)

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, closeLog: closeLog}

	name := cfg.General.Codec
	if cmd.Flags().Changed("codec") {
		name = flagCodec
	}
	s.codec, s.params, err = codec.Resolve(name, cfg.CodecDefaults(name), flagSet)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.src = args[0]
	s.dest = defaultDestination(s.src, s.codec.Name())
	if len(args) > 1 {
		s.dest = args[1]
	}

	s.threads = cfg.General.Threads
	if cmd.Flags().Changed("threads") {
		s.threads = flagThreads
	}
	s.timeout, err = cfg.General.Timeout()
	if err != nil {
		s.Close()
		return nil, err
	}
	if cmd.Flags().Changed("job-timeout") {
		s.timeout = flagJobTimeout
	}
	s.sniff = cfg.General.SniffContent && !flagNoSniff
	s.journal = cfg.General.Journal && !flagNoJournal

	if needEngine {
		bin := cfg.General.FFmpeg
		if flagFFmpeg != "" {
			bin = flagFFmpeg
		}
		s.engine, err = engine.Open(ctx, engine.Options{Binary: bin, Verbose: flagVerbose, Logger: logger})
		if err != nil {
			s.Close()
			return nil, err
		}
		logger.Debug("using encoder", "path", s.engine.Path(), "version", s.engine.Version())
	}

	if cfg.General.History && !flagNoHistory {
		h, err := store.Open(store.DefaultPath())
		if err != nil {
			logger.Warn("run history unavailable", "error", err)
		} else {
			s.history = h
		}
	}
	return s, nil
}

func (s *session) options() pipeline.Options {
	return pipeline.Options{
		Source:      s.src,
		Destination: s.dest,
		Codec:       s.codec,
		Params:      s.params,
		Threads:     s.threads,
		JobTimeout:  s.timeout,
		NoJournal:   !s.journal,
		Sniff:       s.sniff,
		Engine:      s.engine,
		History:     s.history,
		Logger:      s.logger,
	}
}

func (s *session) Close() {
	if s.engine != nil {
		_ = s.engine.Close()
	}
	if s.history != nil {
		_ = s.history.Close()
	}
	if s.closeLog != nil {
		_ = s.closeLog()
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, cmd, args, !flagDryRun)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := s.options()
	opts.DryRun = flagDryRun
	if flagInteractive {
		if !isTerminal(os.Stdin) {
			return errors.New("--interactive needs a terminal")
		}
		opts.Interactive = true
		opts.Prompter = decisions.HuhPrompter{Theme: theme.Huh(theme.Active)}
	}
	if flagDryRun && !flagQuiet {
		opts.OnPlan = func(p pipeline.Plan) { printPlan(s.src, p) }
	}

	var stats model.RunStats
	switch {
	case flagTUI && !flagDryRun && !flagInteractive && isTerminal(os.Stdout):
		stats, err = runTUIView(ctx, s, opts)
	case !flagQuiet && !flagDryRun && isTerminal(os.Stderr):
		progress := cli.NewProgress(os.Stderr, 30)
		opts.Observer = progress
		stats, err = pipeline.Run(ctx, opts)
		progress.Finish()
	default:
		stats, err = pipeline.Run(ctx, opts)
	}

	if !flagQuiet && (err == nil || stats.Aborted) {
		fmt.Println()
		fmt.Print(cli.RenderSummary(stats))
	}
	return describeError(err)
}

func printPlan(src string, p pipeline.Plan) {
	rel := func(path string) string {
		if r, err := filepath.Rel(src, path); err == nil {
			return r
		}
		return path
	}
	for _, pair := range p.Transcode {
		fmt.Printf("  encode  %s\n", rel(pair.Source))
	}
	for _, pair := range p.Opaque {
		fmt.Printf("  clone   %s\n", rel(pair.Source))
	}
}

// describeError adds the failing file and encoder component to errors that
// carry them.
func describeError(err error) error {
	if err == nil {
		return nil
	}
	var jerr *pool.JobError
	var eerr *engine.Error
	switch {
	case errors.As(err, &jerr) && errors.As(err, &eerr) && eerr.Component != "":
		return fmt.Errorf("%s: %s: %s", jerr.Pair.Source, eerr.Component, eerr.Message)
	case errors.Is(err, context.Canceled):
		return errors.New("interrupted")
	}
	return err
}
