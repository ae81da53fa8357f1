package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"pearlbot/pkg/bus"
	"pearlbot/pkg/command"
)

// Help lists every command, or shows usage and aliases for one.
func (s *Set) Help(req bus.CommandRequest) Result {
	prefix := s.env.Registry.Prefix()

	if len(req.Args) == 0 {
		usages := make([]string, 0, len(command.All()))
		for _, id := range command.All() {
			usages = append(usages, prefix+id.Usage())
		}
		return Now(respond(req, http.StatusOK, "Commands: "+strings.Join(usages, ", ")))
	}

	name := strings.TrimPrefix(req.Args[0], prefix)
	id, ok := s.env.Registry.Find(prefix + name)
	if !ok {
		return Now(respond(req, http.StatusNotFound, "Command not found"))
	}

	text := prefix + id.Usage()
	if aliases := id.Aliases()[1:]; len(aliases) > 0 {
		text += " (aliases: " + strings.Join(aliases, ", ") + ")"
	}
	return Now(respond(req, http.StatusOK, text))
}

// Ping reports a player's latency. Without an argument it reports the sender's.
func (s *Set) Ping(req bus.CommandRequest) Result {
	if s.env.Roster == nil {
		return Now(respond(req, http.StatusServiceUnavailable, "Game link unavailable"))
	}

	target := ""
	if len(req.Args) > 0 {
		target = req.Args[0]
	} else if name, ok := s.senderName(req); ok {
		target = name
	} else {
		return Now(s.usage(req))
	}

	player, online := s.env.Roster.ByName(target)
	if !online {
		return Now(respond(req, http.StatusNotFound, "Player not found"))
	}

	return Now(respond(req, http.StatusOK, fmt.Sprintf("%s's ping latency is %dms, %s", player.Name, player.Latency, latencyQuality(player.Latency))))
}

func latencyQuality(ms int) string {
	switch {
	case ms <= 0:
		return "unknown"
	case ms < 50:
		return "excellent"
	case ms < 150:
		return "good"
	case ms < 300:
		return "fair"
	default:
		return "poor"
	}
}
