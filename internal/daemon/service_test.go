package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
)

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{
		Interval:     10 * time.Second,
		EventsBuffer: 2,
	})

	s.publishEvent(Event{Type: EventEncoded})
	s.publishEvent(Event{Type: EventEncoded})
	s.publishEvent(Event{Type: EventEncoded})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func fixedConvert(runs ...model.RunStats) (ConvertFunc, *atomic.Int32) {
	var n atomic.Int32
	return func(_ context.Context, obs pool.Observer) (model.RunStats, error) {
		i := int(n.Add(1)) - 1
		st := runs[min(i, len(runs)-1)]
		for range st.Encoded {
			obs.OnJobDone(0, model.FilePair{Destination: "/out/a.ogg"})
		}
		st.FinishedAt = time.Now()
		if st.Err != "" {
			return st, errors.New(st.Err)
		}
		return st, nil
	}, &n
}

func eventTypes(s *Service) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func TestRunOncePublishesOnlyChanges(t *testing.T) {
	convert, _ := fixedConvert(
		model.RunStats{Discovered: 3, Encoded: 2, Linked: 1},
		model.RunStats{Discovered: 3, SkippedTranscode: 2, SkippedOpaque: 1},
		model.RunStats{Discovered: 4, Encoded: 1},
		model.RunStats{Err: "journal locked"},
	)
	s := New(Config{Convert: convert, EventsBuffer: 50})
	ctx := context.Background()
	for range 4 {
		s.runOnce(ctx)
	}

	got := strings.Join(eventTypes(s), ",")
	want := "encoded,encoded,snapshot,encoded,converted,run_failed"
	if got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}

	st := s.snapshotStatus()
	if st.Totals.Runs != 4 || st.Totals.Failed != 1 || st.Totals.Encoded != 3 || st.Totals.Cloned != 1 {
		t.Fatalf("totals = %+v", st.Totals)
	}
	if st.LastError != "journal locked" || st.Running {
		t.Fatalf("status = %+v", st)
	}
}

func TestHandlers(t *testing.T) {
	convert, _ := fixedConvert(model.RunStats{Discovered: 1, Encoded: 1})
	s := New(Config{Source: "/music", Destination: "/music.opus", Convert: convert})
	s.runOnce(context.Background())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	_ = resp.Body.Close()
	if st.Source != "/music" || st.LastRun.Encoded != 1 || st.Totals.Runs != 1 {
		t.Fatalf("status = %+v", st)
	}

	resp, err = http.Get(srv.URL + "/v1/events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	_ = resp.Body.Close()
	if len(events) != 2 || events[1].Snapshot == nil {
		t.Fatalf("events = %+v", events)
	}

	resp, err = http.Post(srv.URL+"/v1/run", "application/json", nil)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("trigger: %v %v", resp, err)
	}
	_ = resp.Body.Close()
	if s.Trigger() {
		t.Fatal("second trigger should coalesce with the pending one")
	}
}

func TestStreamSendsCurrentSnapshotThenEvents(t *testing.T) {
	s := New(Config{Convert: func(context.Context, pool.Observer) (model.RunStats, error) {
		return model.RunStats{}, nil
	}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	r := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	if got := readEvent(); got != EventSnapshot {
		t.Fatalf("first event = %q", got)
	}
	// The subscriber is registered before the initial snapshot is flushed.
	s.publishEvent(Event{Type: EventEncoded, Path: "/out/x.ogg"})
	if got := readEvent(); got != EventEncoded {
		t.Fatalf("second event = %q", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	convert, runs := fixedConvert(model.RunStats{})
	s := New(Config{Addr: "127.0.0.1:0", Interval: time.Hour, Convert: convert})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", runs.Load())
	}
}
