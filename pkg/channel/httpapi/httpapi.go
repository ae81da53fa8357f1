// Package httpapi exposes commands over a local password-protected HTTP endpoint.
//
// Requests look like GET /cmd/<command and args> with Basic auth, where the
// user name is an online, allow-listed player and the password is the shared
// admin password. The handler's reply becomes the response body and status.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/bus"
	"pearlbot/pkg/channel"
	"pearlbot/pkg/config"
	"pearlbot/pkg/logger"
	"pearlbot/pkg/world"
)

const (
	channelName = "http"
	routePrefix = "/cmd/"

	defaultHost = "127.0.0.1"
	defaultPort = 18791
)

// Adapter serves the command endpoint.
type Adapter struct {
	cfg    config.HTTPConfig
	gate   *channel.Gate
	roster world.Roster
	allow  *allowlist.List
	log    *slog.Logger
}

// NewAdapter validates HTTP configuration and constructs an adapter instance.
func NewAdapter(cfg config.HTTPConfig, gate *channel.Gate, roster world.Roster, allow *allowlist.List, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Password) == "" {
		return nil, errors.New("channels.http.password is required")
	}
	if gate == nil || roster == nil || allow == nil {
		return nil, errors.New("gate, roster and allowlist are required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:    cfg,
		gate:   gate,
		roster: roster,
		allow:  allow,
		log:    log.With("component", "channel.http"),
	}, nil
}

// Name returns the channel identifier used in logs and status output.
func (a *Adapter) Name() string {
	return channelName
}

// Channel returns the pipeline channel this adapter serves.
func (a *Adapter) Channel() bus.Channel {
	return bus.HTTPAPI
}

// Address returns the listen address.
func (a *Adapter) Address() string {
	host := strings.TrimSpace(a.cfg.Host)
	if host == "" {
		host = defaultHost
	}
	port := a.cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	return host + ":" + strconv.Itoa(port)
}

// Run serves the endpoint until ctx ends.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	server := &http.Server{
		Addr:              a.Address(),
		Handler:           a.Handler(sink),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.log.Info("HTTP command channel started", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http commands: %w", err)
	}
	return nil
}

// Handler returns the request handler feeding sink.
func (a *Adapter) Handler(sink channel.Sink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.serve(w, r, sink)
	})
}

func (a *Adapter) serve(w http.ResponseWriter, r *http.Request, sink channel.Sink) {
	header := r.Header.Get("Authorization")
	encoded, ok := strings.CutPrefix(header, "Basic ")
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="pearlbot"`)
		respond(w, http.StatusUnauthorized, "[401] Authorization required")
		return
	}

	user, password, ok := parseCredentials(encoded)
	if !ok {
		respond(w, http.StatusNotAcceptable, "[406] Malformed credentials")
		return
	}

	player, online := a.roster.ByName(user)
	if !online || !a.allow.Contains(player.UUID) {
		respond(w, http.StatusNotFound, "[404] User not found")
		return
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) != 1 {
		a.log.Warn("Rejected HTTP command with wrong password", "user", player.Name, "remote", r.RemoteAddr)
		respond(w, http.StatusUnauthorized, "[401] Wrong password")
		return
	}

	text, ok := commandText(r.URL.EscapedPath())
	if !ok {
		respond(w, http.StatusInternalServerError, "[500] Invalid route")
		return
	}

	id, args, decision := a.gate.Resolve(a.gate.Registry().Prefix() + text)
	if decision != channel.Accept {
		respond(w, http.StatusNotFound, "[404] Command not found")
		return
	}

	if decision := a.gate.Authorize(id, args, player.UUID, player.UUID.String()); decision != channel.Accept {
		if decision == channel.OnCooldown {
			retry := int(math.Ceil(a.gate.Retry(player.UUID.String()).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			respond(w, http.StatusTooManyRequests, "[429] On cooldown")
			return
		}
		respond(w, http.StatusNotFound, "[404] User not found")
		return
	}

	slot := bus.NewResponseSlot()
	req := bus.CommandRequest{
		Sender:  bus.HTTPSender(player.UUID.String(), player.Name),
		Origin:  bus.HTTPOrigin(slot),
		Command: id,
		Args:    args,
	}

	a.log.Info("Received command", "user", player.Name, "command", id.String(), "content", logger.Preview(text))

	if !sink(r.Context(), req) {
		slot.Abandon()
		respond(w, http.StatusServiceUnavailable, "[503] Not accepting commands")
		return
	}

	resp, ok := a.await(r.Context(), slot)
	if !ok {
		respond(w, http.StatusGatewayTimeout, "[504] No reply")
		return
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	respond(w, status, resp.Body)
}

// await waits for the reply. A reply that lands while the wait is being
// abandoned still wins.
func (a *Adapter) await(ctx context.Context, slot *bus.ResponseSlot) (bus.Response, bool) {
	timer := time.NewTimer(a.cfg.ReplyTimeout())
	defer timer.Stop()

	select {
	case resp := <-slot.Done():
		return resp, true
	case <-timer.C:
	case <-ctx.Done():
	}

	if slot.Abandon() {
		return bus.Response{}, false
	}
	return <-slot.Done(), true
}

// Deliver answers the pending request. A second reply for the same request is
// dropped.
func (a *Adapter) Deliver(_ context.Context, reply bus.ReplyEvent) error {
	if reply.Origin.Response == nil {
		return errors.New("http reply without response handle")
	}

	if !reply.Origin.Response.Deliver(bus.Response{Status: reply.Status, Body: reply.Content}) {
		a.log.Debug("Dropping reply, request already answered", "user", reply.Sender.Name, "status", reply.Status)
	}
	return nil
}

// parseCredentials decodes a Basic auth payload into user and password.
func parseCredentials(encoded string) (string, string, bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	user, password, ok := strings.Cut(string(raw), ":")
	if !ok || user == "" {
		return "", "", false
	}
	return user, password, true
}

// commandText extracts the command line from the escaped request path. Only
// %20 is decoded.
func commandText(escapedPath string) (string, bool) {
	rest, ok := strings.CutPrefix(escapedPath, routePrefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(strings.ReplaceAll(rest, "%20", " "))
	if rest == "" {
		return "", false
	}
	return rest, true
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
