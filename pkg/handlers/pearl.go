package handlers

import (
	"context"
	"net/http"

	"pearlbot/pkg/bus"
	"pearlbot/pkg/world"
)

// Pearl walks the bot to the sender's stasis chamber and flips the trapdoor.
// The sender hears "on my way" at once and the outcome when the bot arrives.
func (s *Set) Pearl(req bus.CommandRequest) Result {
	if s.env.Stasis == nil || s.env.Navigator == nil {
		return Now(respond(req, http.StatusServiceUnavailable, "Game link unavailable"))
	}

	owner, ok := s.senderPlayer(req)
	if !ok {
		return Now(respond(req, http.StatusForbidden, "Account not linked"))
	}

	pearl, found := world.SelectPearl(owner, s.env.Stasis.Pearls(), s.env.Navigator.Position())
	if !found {
		return Now(respond(req, http.StatusNotFound, "Pearl not found"))
	}

	result := Now(respond(req, http.StatusAccepted, "On my way"))
	result.Later = func(ctx context.Context) bus.ReplyEvent {
		if err := s.env.Navigator.ActivateAt(ctx, pearl.Position); err != nil {
			return respond(req, http.StatusInternalServerError, "Failed to reach pearl")
		}
		return respond(req, http.StatusOK, "OK")
	}
	return result
}
