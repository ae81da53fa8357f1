package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/bus"
	"pearlbot/pkg/channel"
	"pearlbot/pkg/command"
	"pearlbot/pkg/config"
	"pearlbot/pkg/cooldown"
	"pearlbot/pkg/world"
)

const password = "hunter2"

var (
	alice = world.Player{UUID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Name: "Alice"}
	bob   = world.Player{UUID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), Name: "Bob"}
)

func newTestAdapter(t *testing.T, cfg config.HTTPConfig, opts channel.GateOptions) *Adapter {
	t.Helper()

	list, err := allowlist.Open(context.Background(), allowlist.NewMemoryStore(allowlist.Entry{Player: alice.UUID}))
	require.NoError(t, err)

	if cfg.Password == "" {
		cfg.Password = password
	}
	adapter, err := NewAdapter(cfg, channel.NewGate(command.NewRegistry("!"), list, cooldown.New(), opts), world.StaticRoster{alice, bob}, list, nil)
	require.NoError(t, err)
	return adapter
}

// echoSink answers every request through Deliver with the command name.
func echoSink(t *testing.T, adapter *Adapter, got chan<- bus.CommandRequest) channel.Sink {
	return func(ctx context.Context, req bus.CommandRequest) bool {
		if got != nil {
			got <- req
		}
		go func() {
			reply := req.Reply(req.Command.String(), http.StatusOK)
			if err := adapter.Deliver(ctx, reply); err != nil {
				t.Errorf("Deliver error: %v", err)
			}
		}()
		return true
	}
}

func doRequest(t *testing.T, server *httptest.Server, path string, auth func(*http.Request)) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
	require.NoError(t, err)
	if auth != nil {
		auth(req)
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func basic(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

func rawAuth(value string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", value) }
}

func TestAuthStatusCodes(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{})
	server := httptest.NewServer(adapter.Handler(echoSink(t, adapter, nil)))
	defer server.Close()

	cases := []struct {
		name string
		path string
		auth func(*http.Request)
		want int
	}{
		{name: "missing header", path: "/cmd/ping", want: http.StatusUnauthorized},
		{name: "not basic", path: "/cmd/ping", auth: rawAuth("Bearer abc"), want: http.StatusUnauthorized},
		{name: "bad base64", path: "/cmd/ping", auth: rawAuth("Basic !!!"), want: http.StatusNotAcceptable},
		{name: "no colon", path: "/cmd/ping", auth: rawAuth("Basic QWxpY2U="), want: http.StatusNotAcceptable},
		{name: "offline user", path: "/cmd/ping", auth: basic("Carol", password), want: http.StatusNotFound},
		{name: "not whitelisted", path: "/cmd/ping", auth: basic("Bob", password), want: http.StatusNotFound},
		{name: "wrong password", path: "/cmd/ping", auth: basic("Alice", "nope"), want: http.StatusUnauthorized},
		{name: "bad route", path: "/status", auth: basic("Alice", password), want: http.StatusInternalServerError},
		{name: "empty command", path: "/cmd/", auth: basic("Alice", password), want: http.StatusInternalServerError},
		{name: "unknown command", path: "/cmd/fly%20away", auth: basic("Alice", password), want: http.StatusNotFound},
		{name: "ok", path: "/cmd/ping", auth: basic("alice", password), want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := doRequest(t, server, tc.path, tc.auth)
			require.Equal(t, tc.want, status)
		})
	}
}

func TestCommandPathDecoding(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{})
	got := make(chan bus.CommandRequest, 1)
	server := httptest.NewServer(adapter.Handler(echoSink(t, adapter, got)))
	defer server.Close()

	status, body := doRequest(t, server, "/cmd/playtime%20Notch%21", basic("Alice", password))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "playtime", body)

	req := <-got
	require.Equal(t, command.Playtime, req.Command)
	require.Equal(t, []string{"Notch%21"}, req.Args)
	require.Equal(t, bus.HTTPAPI, req.Sender.Channel)
	require.Equal(t, alice.UUID.String(), req.Sender.ID)
	require.True(t, req.Valid())
}

func TestCooldownRejected(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{Cooldown: time.Hour})
	server := httptest.NewServer(adapter.Handler(echoSink(t, adapter, nil)))
	defer server.Close()

	status, _ := doRequest(t, server, "/cmd/ping", basic("Alice", password))
	require.Equal(t, http.StatusOK, status)

	status, body := doRequest(t, server, "/cmd/ping", basic("Alice", password))
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "[429] On cooldown", body)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/cmd/ping", nil)
	require.NoError(t, err)
	req.SetBasicAuth("Alice", password)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	retry, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	require.InDelta(t, 3600, retry, 60)
}

func TestReplyStatusPassedThrough(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{})
	sink := func(ctx context.Context, req bus.CommandRequest) bool {
		go func() { _ = adapter.Deliver(ctx, req.Reply("[404] Player not found", http.StatusNotFound)) }()
		return true
	}
	server := httptest.NewServer(adapter.Handler(sink))
	defer server.Close()

	status, body := doRequest(t, server, "/cmd/seen%20Nobody", basic("Alice", password))
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "[404] Player not found", body)
}

func TestReplyTimeout(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{})
	adapter.cfg.ReplyTimeoutSeconds = 1

	requests := make(chan bus.CommandRequest, 1)
	sink := func(_ context.Context, req bus.CommandRequest) bool {
		requests <- req
		return true
	}
	server := httptest.NewServer(adapter.Handler(sink))
	defer server.Close()

	status, _ := doRequest(t, server, "/cmd/ping", basic("Alice", password))
	require.Equal(t, http.StatusGatewayTimeout, status)

	// A late reply finds the slot taken and is dropped quietly.
	pending := <-requests
	require.NoError(t, adapter.Deliver(context.Background(), pending.Reply("late", http.StatusOK)))
	require.False(t, pending.Origin.Response.Deliver(bus.Response{Status: http.StatusOK}))
}

func TestSinkRefused(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{})
	server := httptest.NewServer(adapter.Handler(func(context.Context, bus.CommandRequest) bool { return false }))
	defer server.Close()

	status, _ := doRequest(t, server, "/cmd/ping", basic("Alice", password))
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestDeliverIsSingleUse(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{})

	slot := bus.NewResponseSlot()
	req := bus.CommandRequest{Sender: bus.HTTPSender(alice.UUID.String(), "Alice"), Origin: bus.HTTPOrigin(slot), Command: command.Ping}

	require.NoError(t, adapter.Deliver(context.Background(), req.Reply("first", http.StatusOK)))
	require.NoError(t, adapter.Deliver(context.Background(), req.Reply("second", http.StatusTeapot)))

	resp := <-slot.Done()
	require.Equal(t, "first", resp.Body)
	select {
	case extra := <-slot.Done():
		t.Fatalf("unexpected second response %+v", extra)
	default:
	}
}

func TestNewAdapterRequiresPassword(t *testing.T) {
	_, err := NewAdapter(config.HTTPConfig{}, channel.NewGate(command.NewRegistry("!"), nil, nil, channel.GateOptions{}), world.StaticRoster{}, nil, nil)
	require.Error(t, err)
}

func TestAddress(t *testing.T) {
	adapter := newTestAdapter(t, config.HTTPConfig{}, channel.GateOptions{})
	require.Equal(t, "127.0.0.1:18791", adapter.Address())

	adapter.cfg.Host, adapter.cfg.Port = "0.0.0.0", 9000
	require.Equal(t, "0.0.0.0:9000", adapter.Address())
}

func TestCommandText(t *testing.T) {
	text, ok := commandText("/cmd/whitelist%20add%20Bob")
	require.True(t, ok)
	require.Equal(t, "whitelist add Bob", text)

	_, ok = commandText("/other/ping")
	require.False(t, ok)
}
