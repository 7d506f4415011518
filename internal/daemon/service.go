// Package daemon keeps a destination tree in sync with its source by running
// conversions on an interval, and exposes progress over HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
)

// ConvertFunc performs one conversion run, reporting encode progress to obs.
type ConvertFunc func(ctx context.Context, obs pool.Observer) (model.RunStats, error)

// Config controls the daemon runtime behavior.
type Config struct {
	Source       string
	Destination  string
	Codec        string
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	Convert      ConvertFunc
	Logger       *slog.Logger
}

// Snapshot summarizes one finished run.
type Snapshot struct {
	At          time.Time `json:"at"`
	DurationSec float64   `json:"duration_sec"`
	Discovered  int       `json:"discovered"`
	Skipped     int       `json:"skipped"`
	Encoded     int       `json:"encoded"`
	Linked      int       `json:"linked"`
	Copied      int       `json:"copied"`
	Abandoned   int       `json:"abandoned"`
	Stale       int       `json:"stale_entries"`
	Error       string    `json:"error,omitempty"`
}

func snapshotFromStats(s model.RunStats) Snapshot {
	return Snapshot{
		At:          s.FinishedAt,
		DurationSec: s.Duration().Seconds(),
		Discovered:  s.Discovered,
		Skipped:     s.Skipped(),
		Encoded:     s.Encoded,
		Linked:      s.Linked,
		Copied:      s.Copied,
		Abandoned:   s.Abandoned,
		Stale:       s.StaleEntries,
		Error:       s.Err,
	}
}

// changed reports whether the run wrote anything to the destination.
func (s Snapshot) changed() bool {
	return s.Encoded+s.Linked+s.Copied > 0
}

// Totals accumulate over the daemon's lifetime.
type Totals struct {
	Runs    int64 `json:"runs"`
	Failed  int64 `json:"failed_runs"`
	Encoded int64 `json:"encoded"`
	Cloned  int64 `json:"cloned"`
}

func (t *Totals) add(s Snapshot) {
	t.Runs++
	if s.Error != "" {
		t.Failed++
	}
	t.Encoded += int64(s.Encoded)
	t.Cloned += int64(s.Linked + s.Copied)
}

// Event types.
const (
	EventSnapshot  = "snapshot"
	EventConverted = "converted"
	EventRunFailed = "run_failed"
	EventEncoded   = "encoded"
	EventJobFailed = "job_failed"
)

// Event is emitted when a run finishes with changes or an error, and for
// every encode job.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Path      string    `json:"path,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastRunAt       time.Time `json:"last_run_at"`
	IntervalSec     int       `json:"interval_sec"`
	Source          string    `json:"source"`
	Destination     string    `json:"destination"`
	Codec           string    `json:"codec,omitempty"`
	Running         bool      `json:"running"`
	LastRun         Snapshot  `json:"last_run"`
	Totals          Totals    `json:"totals"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	trigger chan struct{}

	mu          sync.RWMutex
	startedAt   time.Time
	lastRunAt   time.Time
	running     bool
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	totals      Totals
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service with the provided config.
func New(cfg Config) *Service {
	if cfg.Interval < time.Second {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8765"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("POST /v1/run", s.handleTrigger)
	return mux
}

// Run serves the HTTP API and converts on every interval until ctx is
// canceled. A tick that arrives while a run is in progress is dropped.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Convert == nil {
		return errors.New("daemon: no convert function")
	}

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	runCh := make(chan struct{})
	go func() {
		defer close(runCh)
		s.loop(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		<-runCh
		return fmt.Errorf("daemon http server: %w", err)
	}

	<-runCh
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Service) loop(ctx context.Context) {
	// Convert immediately so the destination is current from the start.
	s.runOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
		s.runOnce(ctx)
	}
}

// Trigger requests a run as soon as the current one, if any, finishes.
// It reports false when a request is already pending.
func (s *Service) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Service) runOnce(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info("conversion started", "source", s.cfg.Source, "destination", s.cfg.Destination)
	stats, err := s.cfg.Convert(ctx, jobObserver{s})
	if stats.FinishedAt.IsZero() {
		stats.FinishedAt = time.Now()
	}
	if err != nil && stats.Err == "" {
		stats.Err = err.Error()
	}
	snap := snapshotFromStats(stats)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	first := !s.hasSnapshot
	s.running = false
	s.hasSnapshot = true
	s.snapshot = snap
	s.lastRunAt = snap.At
	s.totals.add(snap)
	s.lastError = snap.Error

	switch {
	case snap.Error != "":
		ev, publish = Event{Type: EventRunFailed, Error: snap.Error}, true
	case first:
		ev, publish = Event{Type: EventSnapshot}, true
	case snap.changed():
		ev, publish = Event{Type: EventConverted}, true
	}
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			s.logger.Info("conversion interrupted")
		} else {
			s.logger.Error("conversion failed", "error", err)
		}
	} else {
		s.logger.Info("conversion finished",
			"encoded", snap.Encoded, "linked", snap.Linked, "copied", snap.Copied, "skipped", snap.Skipped)
	}

	if publish {
		ev.Timestamp = snap.At
		ev.Snapshot = &snap
		s.publishEvent(ev)
	}
}

// jobObserver publishes per-job events while a run is in progress.
type jobObserver struct{ s *Service }

func (jobObserver) OnStart(int, int)                                    {}
func (jobObserver) OnWorkerState(int, pool.WorkerState, model.FilePair) {}

func (o jobObserver) OnJobDone(_ int, pair model.FilePair) {
	o.s.publishEvent(Event{Type: EventEncoded, Timestamp: time.Now(), Path: pair.Destination})
}

func (o jobObserver) OnJobFailed(_ int, pair model.FilePair, err error) {
	o.s.publishEvent(Event{Type: EventJobFailed, Timestamp: time.Now(), Path: pair.Source, Error: err.Error()})
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastRunAt:       s.lastRunAt,
		IntervalSec:     int(s.cfg.Interval.Seconds()),
		Source:          s.cfg.Source,
		Destination:     s.cfg.Destination,
		Codec:           s.cfg.Codec,
		Running:         s.running,
		LastRun:         s.snapshot,
		Totals:          s.totals,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]bool{"queued": s.Trigger()})
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send the last run immediately.
	last := s.snapshotStatus().LastRun
	writeSSE(w, Event{Type: EventSnapshot, Timestamp: time.Now(), Snapshot: &last})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if ev.ID > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
