package channel

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/command"
	"pearlbot/pkg/cooldown"
)

// Decision is the outcome of resolving and authorizing one inbound message.
type Decision int

const (
	Accept Decision = iota
	NoAlias
	NoMatch
	NotWhitelisted
	OnCooldown
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case NoAlias:
		return "no_alias"
	case NoMatch:
		return "no_match"
	case NotWhitelisted:
		return "not_whitelisted"
	case OnCooldown:
		return "on_cooldown"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Gate applies the same resolution and authorization rules on every channel.
type Gate struct {
	registry  *command.Registry
	allow     *allowlist.List
	cooldowns *cooldown.Tracker

	whitelist bool
	interval  time.Duration
}

// GateOptions configures a Gate.
type GateOptions struct {
	// Whitelist requires senders to be on the allow-list.
	Whitelist bool
	// Cooldown is the minimum interval between commands per sender; zero disables it.
	Cooldown time.Duration
}

// NewGate builds a gate over shared registry, allow-list and cooldown state.
func NewGate(registry *command.Registry, allow *allowlist.List, cooldowns *cooldown.Tracker, opts GateOptions) *Gate {
	if cooldowns == nil {
		cooldowns = cooldown.New()
	}
	return &Gate{
		registry:  registry,
		allow:     allow,
		cooldowns: cooldowns,
		whitelist: opts.Whitelist,
		interval:  opts.Cooldown,
	}
}

// Registry returns the command registry the gate resolves against.
func (g *Gate) Registry() *command.Registry {
	return g.registry
}

// Resolve tokenizes text and resolves its first token.
func (g *Gate) Resolve(text string) (command.ID, []string, Decision) {
	if strings.TrimSpace(text) == "" {
		return 0, nil, NoAlias
	}

	id, args, ok := g.registry.Parse(text)
	if !ok {
		return 0, nil, NoMatch
	}

	return id, args, Accept
}

// Authorize checks the allow-list, then the sender's cooldown. player is the
// sender's player id when known (uuid.Nil otherwise); senderKey keys the
// cooldown. The whitelist link sub-command skips the allow-list so unlinked
// senders can onboard.
func (g *Gate) Authorize(id command.ID, args []string, player uuid.UUID, senderKey string) Decision {
	if g.whitelist && !Exempt(id, args) {
		if player == uuid.Nil || g.allow == nil || !g.allow.Contains(player) {
			return NotWhitelisted
		}
	}

	if g.cooldowns.Check(senderKey, g.interval) {
		return OnCooldown
	}

	return Accept
}

// Retry returns how long senderKey must wait before its next command is
// allowed. Zero means it may send now.
func (g *Gate) Retry(senderKey string) time.Duration {
	return g.cooldowns.Remaining(senderKey, g.interval)
}

// Exempt reports whether a command bypasses the allow-list.
func Exempt(id command.ID, args []string) bool {
	return id == command.Whitelist && len(args) > 0 && strings.EqualFold(args[0], "link")
}
