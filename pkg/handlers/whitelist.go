package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/authlink"
	"pearlbot/pkg/bus"
)

// Whitelist manages the allow-list: add and remove players, and link a
// secondary account to the sender's player.
func (s *Set) Whitelist(req bus.CommandRequest) Result {
	if s.env.Allow == nil {
		return Now(respond(req, http.StatusServiceUnavailable, "Whitelist unavailable"))
	}
	if len(req.Args) < 2 {
		return Now(s.usage(req))
	}

	switch strings.ToLower(req.Args[0]) {
	case "add":
		return s.whitelistAdd(req, req.Args[1])
	case "remove", "rm":
		return s.whitelistRemove(req, req.Args[1])
	case "link":
		return s.whitelistLink(req, req.Args[1])
	default:
		return Now(s.usage(req))
	}
}

func (s *Set) whitelistAdd(req bus.CommandRequest, target string) Result {
	if !s.senderAllowed(req) {
		return Now(respond(req, http.StatusForbidden, "Not whitelisted"))
	}

	id, name, ok := s.resolvePlayer(target)
	if !ok {
		return Now(respond(req, http.StatusNotFound, "Player not found"))
	}

	switch err := s.env.Allow.Add(context.Background(), id); {
	case err == nil:
		return Now(respond(req, http.StatusOK, "Added "+name+" to the whitelist"))
	case errors.Is(err, allowlist.ErrExists):
		return Now(respond(req, http.StatusConflict, name+" is already whitelisted"))
	default:
		return Now(respond(req, http.StatusInternalServerError, "Failed to save whitelist"))
	}
}

func (s *Set) whitelistRemove(req bus.CommandRequest, target string) Result {
	if !s.senderAllowed(req) {
		return Now(respond(req, http.StatusForbidden, "Not whitelisted"))
	}

	id, name, ok := s.resolvePlayer(target)
	if !ok {
		return Now(respond(req, http.StatusNotFound, "Player not found"))
	}

	switch err := s.env.Allow.Remove(context.Background(), id); {
	case err == nil:
		return Now(respond(req, http.StatusOK, "Removed "+name+" from the whitelist"))
	case errors.Is(err, allowlist.ErrNotFound):
		return Now(respond(req, http.StatusNotFound, name+" is not whitelisted"))
	default:
		return Now(respond(req, http.StatusInternalServerError, "Failed to save whitelist"))
	}
}

// whitelistLink behaves per channel. Game-chat senders record the given
// account id against themselves. Group-chat senders redeem a code with the auth
// service, which names the player the account belongs to.
func (s *Set) whitelistLink(req bus.CommandRequest, arg string) Result {
	switch req.Sender.Channel {
	case bus.GameChat:
		player, ok := s.senderPlayer(req)
		if !ok || !s.env.Allow.Contains(player) {
			return Now(respond(req, http.StatusForbidden, "Not whitelisted"))
		}
		if err := s.env.Allow.Link(context.Background(), player, arg); err != nil {
			return Now(respond(req, http.StatusInternalServerError, "Failed to save whitelist"))
		}
		return Now(respond(req, http.StatusOK, "Linked account "+arg))

	case bus.GroupChat:
		return Deferred(func(ctx context.Context) bus.ReplyEvent {
			return s.redeemLink(ctx, req, arg)
		})

	default:
		return Now(respond(req, http.StatusBadRequest, "Linking is not available on this channel"))
	}
}

func (s *Set) redeemLink(ctx context.Context, req bus.CommandRequest, code string) bus.ReplyEvent {
	if s.env.Linker == nil {
		return respond(req, http.StatusServiceUnavailable, "Linking is not configured")
	}

	player, err := s.env.Linker.Exchange(ctx, code)
	switch {
	case err == nil:
	case errors.Is(err, authlink.ErrInvalidCode):
		return respond(req, http.StatusBadRequest, "Invalid or expired code")
	case errors.Is(err, authlink.ErrNotConfigured):
		return respond(req, http.StatusServiceUnavailable, "Linking is not configured")
	default:
		return respond(req, http.StatusBadGateway, "Auth service unavailable")
	}

	if !s.env.Allow.Contains(player) {
		return respond(req, http.StatusForbidden, "Player is not whitelisted")
	}
	if err := s.env.Allow.Link(context.Background(), player, req.Sender.ID); err != nil {
		return respond(req, http.StatusInternalServerError, "Failed to save whitelist")
	}

	name := player.String()
	if s.env.Roster != nil {
		if p, online := s.env.Roster.ByUUID(player); online {
			name = p.Name
		}
	}
	return respond(req, http.StatusOK, "Linked to "+name)
}

func (s *Set) senderAllowed(req bus.CommandRequest) bool {
	player, ok := s.senderPlayer(req)
	return ok && s.env.Allow.Contains(player)
}

// resolvePlayer accepts a UUID or the name of an online player.
func (s *Set) resolvePlayer(target string) (uuid.UUID, string, bool) {
	if id, err := uuid.Parse(target); err == nil {
		name := id.String()
		if s.env.Roster != nil {
			if p, online := s.env.Roster.ByUUID(id); online {
				name = p.Name
			}
		}
		return id, name, true
	}

	if s.env.Roster == nil {
		return uuid.Nil, "", false
	}
	player, online := s.env.Roster.ByName(target)
	if !online {
		return uuid.Nil, "", false
	}
	return player.UUID, player.Name, true
}
