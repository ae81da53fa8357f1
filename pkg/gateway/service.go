package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pearlbot/pkg/bus"
	"pearlbot/pkg/channel"
	"pearlbot/pkg/config"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
)

// Task is a long-running dependency started alongside the channels, such as
// the game link. Ready, when set, must also report true for the service to be
// ready.
type Task struct {
	Name  string
	Run   func(ctx context.Context) error
	Ready func() bool
}

type Service struct {
	cfg        config.GatewayConfig
	log        *slog.Logger
	bus        *bus.MessageBus
	dispatcher *Dispatcher
	router     *Router
	channels   []channel.Adapter
	tasks      []Task

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
	taskStates    map[string]channelState
	counters      counters
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type counters struct {
	Requests       int64 `json:"requests"`
	Rejected       int64 `json:"rejected"`
	RepliesSent    int64 `json:"replies_sent"`
	RepliesDropped int64 `json:"replies_dropped"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
	Tasks         map[string]channelState `json:"tasks,omitempty"`
	Counters      counters                `json:"counters"`
}

func NewService(cfg config.GatewayConfig, mb *bus.MessageBus, dispatcher *Dispatcher, adapters []channel.Adapter, tasks []Task, log *slog.Logger) (*Service, error) {
	if mb == nil || dispatcher == nil {
		return nil, errors.New("bus and dispatcher are required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}
	taskStates := make(map[string]channelState, len(tasks))
	for _, task := range tasks {
		taskStates[task.Name] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           mb,
		dispatcher:    dispatcher,
		router:        NewRouter(mb, adapters, log),
		channels:      adapters,
		tasks:         tasks,
		channelStates: channelStates,
		taskStates:    taskStates,
	}, nil
}

// Run starts the tasks, channels, dispatcher, router and status server, and
// blocks until ctx ends or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.bus.Close()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, 256)
	defer unsubscribe()
	go s.countEvents(events)

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels)+len(s.tasks))
	for _, task := range s.tasks {
		task := task
		s.setTaskState(task.Name, channelState{Running: true})

		go func() {
			err := task.Run(ctx)
			s.setTaskState(task.Name, channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s: %w", task.Name, err)
			}
		}()
	}

	for _, adapter := range s.channels {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.sink)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = s.router.Run(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErrors:
	case err = <-errCh:
	}

	cancel()
	wg.Wait()
	return err
}

// sink queues one request for the dispatcher.
func (s *Service) sink(ctx context.Context, req bus.CommandRequest) bool {
	return s.bus.PublishInbound(ctx, req)
}

func (s *Service) countEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		switch event.Type {
		case bus.EventRequestReceived:
			s.counters.Requests++
		case bus.EventRequestRejected:
			s.counters.Rejected++
		case bus.EventReplySent:
			s.counters.RepliesSent++
		case bus.EventReplyDropped:
			s.counters.RepliesDropped++
		}
		s.mu.Unlock()
	}
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Port
	if port < 0 {
		s.log.Info("Gateway status server disabled")
		return
	}
	if port == 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}
	tasks := make(map[string]channelState, len(s.taskStates))
	for name, state := range s.taskStates {
		tasks[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      channels,
		Tasks:         tasks,
		Counters:      s.counters,
	}
}

// isReady requires every task to be running and ready, and at least one
// channel to be running.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, task := range s.tasks {
		if !s.taskStates[task.Name].Running {
			return false
		}
		if task.Ready != nil && !task.Ready() {
			return false
		}
	}

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}
	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func (s *Service) setTaskState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
