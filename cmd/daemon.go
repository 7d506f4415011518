package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/cli"
	"github.com/theirongolddev/aconv/internal/daemon"
	"github.com/theirongolddev/aconv/internal/fsx"
	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pipeline"
	"github.com/theirongolddev/aconv/internal/pool"
	"github.com/theirongolddev/aconv/internal/store"
)

type daemonRuntimeState struct {
	PID         int       `json:"pid"`
	Addr        string    `json:"addr"`
	StartedAt   time.Time `json:"started_at"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
}

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon SRC [DEST]",
	Short: "Keep a destination in sync, with HTTP/SSE endpoints",
	Long: "Convert SRC on a fixed interval and whenever POST /v1/run is called.\n" +
		"Progress and results are served at /v1/status, /v1/events and /v1/stream.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

func init() {
	dir := filepath.Dir(store.DefaultPath())
	defaultPID := filepath.Join(dir, "aconvd.pid")
	defaultLog := filepath.Join(dir, "aconvd.log")

	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default from config)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", defaultPID, "PID file path")

	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", 0, "Time between runs (default from config)")
	daemonCmd.Flags().StringVar(&flagDaemonLogFile, "log-file", defaultLog, "Log file path for detached mode")
	daemonCmd.Flags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")
	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	if flagDaemonDetach {
		return startDaemonDetached()
	}

	return runDaemonForeground(cmd, args)
}

func startDaemonDetached() error {
	if err := pidFile(flagDaemonPIDFile).checkFree(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := filterDetachArg(os.Args[1:])
	args = append(args, "--child")

	if err := os.MkdirAll(filepath.Dir(flagDaemonPIDFile), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}

	//nolint:gosec // daemon log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	cmd := exec.Command(exe, args...) //nolint:gosec // exe/args come from current process invocation
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.Stdin = nil
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", flagDaemonPIDFile)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	fmt.Println("  Check it with: aconv daemon status")
	return nil
}

func runDaemonForeground(cmd *cobra.Command, args []string) error {
	pf := pidFile(flagDaemonPIDFile)
	if err := pf.checkFree(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, cmd, args, true)
	if err != nil {
		return err
	}
	defer s.Close()

	interval, err := s.cfg.Daemon.Every()
	if err != nil {
		return err
	}
	if flagDaemonInterval > 0 {
		interval = flagDaemonInterval
	}
	addr := s.cfg.Daemon.Listen
	if flagDaemonAddr != "" {
		addr = flagDaemonAddr
	}
	buffer := s.cfg.Daemon.EventsBuffer
	if flagDaemonEventsBuffer > 0 {
		buffer = flagDaemonEventsBuffer
	}

	err = pf.claim(daemonRuntimeState{
		PID:         os.Getpid(),
		Addr:        addr,
		StartedAt:   time.Now(),
		Source:      s.src,
		Destination: s.dest,
	})
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer pf.remove()

	svc := daemon.New(daemon.Config{
		Source:       s.src,
		Destination:  s.dest,
		Codec:        s.codec.Name(),
		Interval:     interval,
		Addr:         addr,
		EventsBuffer: buffer,
		Logger:       s.logger,
		Convert: func(ctx context.Context, obs pool.Observer) (model.RunStats, error) {
			opts := s.options()
			opts.Observer = obs
			return pipeline.Run(ctx, opts)
		},
	})

	fmt.Printf("  aconv daemon listening on http://%s\n", addr)
	fmt.Printf("  Converting %s -> %s every %s\n", s.src, s.dest, interval)
	fmt.Printf("  Stop with: aconv daemon stop --pid-file %s\n", flagDaemonPIDFile)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	pf := pidFile(flagDaemonPIDFile)
	pid, err := pf.pid()
	if err != nil {
		fmt.Printf("  Daemon: not running (pid file not found)\n")
		return nil
	}

	alive := processAlive(pid)
	if !alive {
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := flagDaemonAddr
	if st, err := pf.state(); err == nil && st.Addr != "" && addr == "" {
		addr = st.Addr
	}
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Daemon.Listen
	}

	fmt.Printf("  Daemon PID: %d\n", pid)
	fmt.Printf("  Address: http://%s\n", addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // short status probe
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  API status: HTTP %d\n", resp.StatusCode)
		return nil
	}

	var st daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Printf("  API status: malformed response (%v)\n", err)
		return nil
	}

	fmt.Printf("  Converting: %s -> %s (%s)\n", st.Source, st.Destination, st.Codec)
	switch {
	case st.Running:
		fmt.Printf("  Last run: in progress\n")
	case st.LastRunAt.IsZero():
		fmt.Printf("  Last run: pending\n")
	default:
		fmt.Printf("  Last run: %s, %s encoded, %s cloned in %s\n",
			cli.FormatTime(st.LastRunAt),
			cli.FormatNumber(int64(st.LastRun.Encoded)),
			cli.FormatNumber(int64(st.LastRun.Linked+st.LastRun.Copied)),
			cli.FormatDuration(time.Duration(st.LastRun.DurationSec*float64(time.Second))))
	}
	fmt.Printf("  Runs: %d (%d failed)\n", st.Totals.Runs, st.Totals.Failed)
	fmt.Printf("  Encoded since start: %s\n", cli.FormatNumber(st.Totals.Encoded))
	fmt.Printf("  Cloned since start: %s\n", cli.FormatNumber(st.Totals.Cloned))
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pf := pidFile(flagDaemonPIDFile)
	pid, err := pf.pid()
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			pf.remove()
			fmt.Printf("  Stopped daemon (pid %d)\n", pid)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}

	return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
}

func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// pidFile is the path of the daemon pid file. Runtime details live next to
// it in a JSON sidecar.
type pidFile string

func (p pidFile) statePath() string { return string(p) + ".json" }

// claim records the current process, failing when another live daemon owns
// the file. Stale files are replaced.
func (p pidFile) claim(st daemonRuntimeState) error {
	if pid, err := p.pid(); err == nil && processAlive(pid) {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := fsx.WriteFileAtomic(string(p), []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(p.statePath(), append(data, '\n'), 0o600)
}

// checkFree fails when a live daemon owns the file.
func (p pidFile) checkFree() error {
	pid, err := p.pid()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	case processAlive(pid):
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	p.remove()
	return nil
}

func (p pidFile) remove() {
	_ = os.Remove(string(p))
	_ = os.Remove(p.statePath())
}

func (p pidFile) pid() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", p)
	}
	return pid, nil
}

func (p pidFile) state() (daemonRuntimeState, error) {
	var st daemonRuntimeState
	data, err := os.ReadFile(p.statePath())
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
