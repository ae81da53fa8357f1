package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pearlbot/pkg/bus"
	"pearlbot/pkg/lookup"
)

// Playtime reports a player's total time online.
func (s *Set) Playtime(req bus.CommandRequest) Result {
	if len(req.Args) == 0 {
		return Now(s.usage(req))
	}
	name := req.Args[0]

	return Deferred(func(ctx context.Context) bus.ReplyEvent {
		if s.env.Lookup == nil {
			return respond(req, http.StatusServiceUnavailable, "Lookup unavailable")
		}
		pt, err := s.env.Lookup.Playtime(ctx, name)
		if err != nil {
			return lookupFailure(req, err)
		}
		return respond(req, http.StatusOK, fmt.Sprintf("%s has played for %s", name, formatDuration(pt.Duration())))
	})
}

// Seen reports when a player was last and first seen.
func (s *Set) Seen(req bus.CommandRequest) Result {
	if len(req.Args) == 0 {
		return Now(s.usage(req))
	}
	name := req.Args[0]

	return Deferred(func(ctx context.Context) bus.ReplyEvent {
		if s.env.Lookup == nil {
			return respond(req, http.StatusServiceUnavailable, "Lookup unavailable")
		}
		seen, err := s.env.Lookup.Seen(ctx, name)
		if err != nil {
			return lookupFailure(req, err)
		}

		now := s.env.Now()
		text := fmt.Sprintf("%s was last seen %s (%s ago)", name, formatDate(seen.LastSeen), formatDuration(now.Sub(seen.LastSeen)))
		if !seen.FirstSeen.IsZero() {
			text += ", first seen " + formatDate(seen.FirstSeen)
		}
		return respond(req, http.StatusOK, text)
	})
}

func lookupFailure(req bus.CommandRequest, err error) bus.ReplyEvent {
	switch {
	case errors.Is(err, lookup.ErrNotFound):
		return respond(req, http.StatusNotFound, "Player not found")
	case errors.Is(err, lookup.ErrMalformed):
		return respond(req, http.StatusInternalServerError, "Unreadable lookup response")
	default:
		return respond(req, http.StatusBadGateway, "Lookup failed")
	}
}

// formatDuration renders d as days, hours and minutes, dropping leading zero
// units.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if days > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
