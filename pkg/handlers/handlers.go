// Package handlers implements the built-in commands.
//
// A handler answers with a Result: an immediate reply, deferred work whose
// reply arrives later, or both. Deferred work performs network or game I/O and
// is run off the dispatch loop by the caller.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/bus"
	"pearlbot/pkg/command"
	"pearlbot/pkg/lookup"
	"pearlbot/pkg/world"
)

// StatsLookup fetches player statistics from the third-party API.
type StatsLookup interface {
	Playtime(ctx context.Context, name string) (lookup.Playtime, error)
	Seen(ctx context.Context, name string) (lookup.Seen, error)
}

// AccountLinker redeems group-chat link codes.
type AccountLinker interface {
	Exchange(ctx context.Context, code string) (uuid.UUID, error)
}

// Env holds everything handlers read or act on. Game handles may be nil when
// the game link is disabled.
type Env struct {
	Registry  *command.Registry
	Allow     *allowlist.List
	Roster    world.Roster
	Stasis    world.StasisTracker
	Navigator world.Navigator
	Lookup    StatsLookup
	Linker    AccountLinker
	Now       func() time.Time
}

// Set is the handler collection bound to one Env.
type Set struct {
	env Env
}

// New binds handlers to env.
func New(env Env) *Set {
	if env.Registry == nil {
		env.Registry = command.NewRegistry("")
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	return &Set{env: env}
}

// Result is a handler's answer.
type Result struct {
	// Reply is sent right away when set.
	Reply *bus.ReplyEvent
	// Later runs on the worker pool; its reply follows Reply.
	Later func(ctx context.Context) bus.ReplyEvent
}

// Now wraps an immediate reply.
func Now(reply bus.ReplyEvent) Result {
	return Result{Reply: &reply}
}

// Deferred wraps work whose reply is produced off the dispatch loop.
func Deferred(fn func(ctx context.Context) bus.ReplyEvent) Result {
	return Result{Later: fn}
}

// respond builds a reply. Anything other than 200 is prefixed with its status
// code so chat users see it too.
func respond(req bus.CommandRequest, status int, text string) bus.ReplyEvent {
	if status != http.StatusOK {
		text = fmt.Sprintf("[%d] %s", status, text)
	}
	return req.Reply(text, status)
}

func (s *Set) usage(req bus.CommandRequest) bus.ReplyEvent {
	return respond(req, http.StatusBadRequest, "Usage: "+s.env.Registry.Prefix()+req.Command.Usage())
}

// senderPlayer resolves the player behind a request. Group-chat accounts map
// through their allow-list link.
func (s *Set) senderPlayer(req bus.CommandRequest) (uuid.UUID, bool) {
	switch req.Sender.Channel {
	case bus.GroupChat:
		if s.env.Allow == nil {
			return uuid.Nil, false
		}
		return s.env.Allow.FindByLinked(req.Sender.ID)
	default:
		id, err := uuid.Parse(req.Sender.ID)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	}
}

// senderName returns the sender's in-game name when it can be resolved.
func (s *Set) senderName(req bus.CommandRequest) (string, bool) {
	id, ok := s.senderPlayer(req)
	if !ok || s.env.Roster == nil {
		return "", false
	}
	player, online := s.env.Roster.ByUUID(id)
	if !online {
		return "", false
	}
	return player.Name, true
}
