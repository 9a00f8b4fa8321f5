//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package debug provides an HTTP server for launching and inspecting task
// runs during development.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"trpc.group/trpc-go/trpc-taskforce-go/event"
	itelemetry "trpc.group/trpc-go/trpc-taskforce-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-taskforce-go/log"
	"trpc.group/trpc-go/trpc-taskforce-go/runner"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
	"trpc.group/trpc-go/trpc-taskforce-go/taskstore"
	atrace "trpc.group/trpc-go/trpc-taskforce-go/telemetry/trace"
)

const (
	defaultLaunchTimeout = 5 * time.Second
	defaultSpanLimit     = 256
)

// Server exposes HTTP endpoints for submitting tasks, polling their events,
// and reading persisted snapshots. All runs go through one shared Runner.
type Server struct {
	runner *runner.Runner
	router *mux.Router

	mu   sync.RWMutex
	runs map[string]*runState

	exporter      *spanExporter
	launchTimeout time.Duration
}

// Option configures the Server instance.
type Option func(*Server)

// WithLaunchTimeout sets how long task creation waits for the run's first
// event before reporting an error.
func WithLaunchTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.launchTimeout = d
		}
	}
}

// WithSpanLimit caps how many finished chat and tool spans are retained for
// the /debug/spans endpoint.
func WithSpanLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.exporter.limit = n
		}
	}
}

// New creates the debug HTTP server around the given runner. It installs an
// in-process span exporter so model and tool calls made during runs show up
// under /debug/spans.
func New(r *runner.Runner, opts ...Option) *Server {
	s := &Server{
		runner:        r,
		router:        mux.NewRouter(),
		runs:          make(map[string]*runState),
		exporter:      newSpanExporter(defaultSpanLimit),
		launchTimeout: defaultLaunchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	s.installSpanExporter()
	return s
}

// installSpanExporter attaches the in-process exporter to the global tracer
// provider, creating an SDK provider when only the noop default is installed.
func (s *Server) installSpanExporter() {
	var tp *sdktrace.TracerProvider
	if _, ok := atrace.TracerProvider.(noop.TracerProvider); ok {
		tp = sdktrace.NewTracerProvider()
	} else if tp, ok = atrace.TracerProvider.(*sdktrace.TracerProvider); !ok {
		log.Errorf("debug server: %T provider is not the type of sdktrace.TracerProvider", atrace.TracerProvider)
		return
	}
	tp.RegisterSpanProcessor(sdktrace.NewSimpleSpanProcessor(s.exporter))
	atrace.TracerProvider = tp
	atrace.Tracer = atrace.TracerProvider.Tracer(itelemetry.InstrumentName)
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	s.router.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	s.router.HandleFunc("/tasks/{taskId}", s.handleGetTask).Methods(http.MethodGet)
	s.router.HandleFunc("/tasks/{taskId}/events", s.handleTaskEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/spans", s.handleSpans).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// OPTIONS handlers to allow CORS pre-flight.
	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.router.HandleFunc("/tasks", preflight).Methods(http.MethodOptions)
	s.router.HandleFunc("/tasks/{taskId}", preflight).Methods(http.MethodOptions)
}

type createTaskRequest struct {
	Description string `json:"description"`
}

type createTaskResponse struct {
	ID     string      `json:"id"`
	Status task.Status `json:"status"`
}

type taskEventsResponse struct {
	Events []*event.Event `json:"events"`
	Done   bool           `json:"done"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleCreateTask called: path=%s", r.URL.Path)
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// The run outlives the HTTP request, it must not inherit its context.
	ch, err := s.runner.Run(context.Background(), req.Description)
	if err != nil {
		if errors.Is(err, task.ErrEmptyDescription) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	first, err := s.firstEvent(ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	state := &runState{events: []*event.Event{first}}
	s.mu.Lock()
	s.runs[first.TaskID] = state
	s.mu.Unlock()
	go s.drain(state, ch)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(createTaskResponse{ID: first.TaskID, Status: task.StatusActive})
}

// firstEvent waits for the run's opening event, which carries the task ID.
func (s *Server) firstEvent(ch <-chan *event.Event) (*event.Event, error) {
	timer := time.NewTimer(s.launchTimeout)
	defer timer.Stop()
	select {
	case ev, ok := <-ch:
		if !ok {
			return nil, errors.New("event stream closed before the first event")
		}
		return ev, nil
	case <-timer.C:
		return nil, fmt.Errorf("no event within %s", s.launchTimeout)
	}
}

func (s *Server) drain(state *runState, ch <-chan *event.Event) {
	for ev := range ch {
		state.append(ev)
	}
	state.finish()
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleListTasks called: path=%s", r.URL.Path)
	snapshots, err := s.runner.Store().List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})
	s.writeJSON(w, snapshots)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleGetTask called: path=%s", r.URL.Path)
	vars := mux.Vars(r)
	taskID := vars["taskId"]

	snapshot, err := s.runner.Store().Get(r.Context(), taskID)
	if err == nil {
		s.writeJSON(w, snapshot)
		return
	}
	if !errors.Is(err, taskstore.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// A freshly launched run has no persisted snapshot until its first
	// iteration completes.
	s.mu.RLock()
	_, running := s.runs[taskID]
	s.mu.RUnlock()
	if running {
		s.writeJSON(w, createTaskResponse{ID: taskID, Status: task.StatusActive})
		return
	}
	http.Error(w, "task not found", http.StatusNotFound)
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleTaskEvents called: path=%s", r.URL.Path)
	vars := mux.Vars(r)
	taskID := vars["taskId"]

	s.mu.RLock()
	state, ok := s.runs[taskID]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "no run for task", http.StatusNotFound)
		return
	}
	events, done := state.snapshot()
	s.writeJSON(w, taskEventsResponse{Events: events, Done: done})
}

func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleSpans called: path=%s", r.URL.Path)
	s.writeJSON(w, s.exporter.records())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// runState accumulates the events of one launched run.
type runState struct {
	mu     sync.Mutex
	events []*event.Event
	done   bool
}

func (rs *runState) append(ev *event.Event) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.events = append(rs.events, ev)
}

func (rs *runState) finish() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.done = true
}

func (rs *runState) snapshot() ([]*event.Event, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*event.Event, len(rs.events))
	copy(out, rs.events)
	return out, rs.done
}

// spanRecord is the JSON shape of one captured span.
type spanRecord struct {
	Name         string         `json:"name"`
	TraceID      string         `json:"traceId"`
	SpanID       string         `json:"spanId"`
	ParentSpanID string         `json:"parentSpanId"`
	StartTime    int64          `json:"startTime"`
	EndTime      int64          `json:"endTime"`
	Attributes   map[string]any `json:"attributes"`
}

// spanExporter retains the most recent finished chat and tool spans.
type spanExporter struct {
	mu    sync.Mutex
	spans []spanRecord
	limit int
}

func newSpanExporter(limit int) *spanExporter {
	return &spanExporter{limit: limit}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *spanExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, span := range spans {
		name := span.Name()
		if !strings.HasPrefix(name, itelemetry.OperationChat) &&
			!strings.HasPrefix(name, itelemetry.OperationExecuteTool) {
			continue
		}
		attributes := make(map[string]any, len(span.Attributes()))
		for _, attr := range span.Attributes() {
			attributes[string(attr.Key)] = attr.Value.AsString()
		}
		e.spans = append(e.spans, spanRecord{
			Name:         name,
			TraceID:      span.SpanContext().TraceID().String(),
			SpanID:       span.SpanContext().SpanID().String(),
			ParentSpanID: span.Parent().SpanID().String(),
			StartTime:    span.StartTime().UnixNano(),
			EndTime:      span.EndTime().UnixNano(),
			Attributes:   attributes,
		})
	}
	if over := len(e.spans) - e.limit; over > 0 {
		e.spans = append(e.spans[:0:0], e.spans[over:]...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *spanExporter) Shutdown(_ context.Context) error { return nil }

func (e *spanExporter) records() []spanRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]spanRecord, len(e.spans))
	copy(out, e.spans)
	return out
}
