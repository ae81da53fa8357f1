// Package command holds the fixed command set and resolves chat tokens to it.
package command

import (
	"fmt"
	"strings"
)

// ID identifies one built-in command. The set is closed; dispatchers switch over it.
type ID int

const (
	Help ID = iota
	Ping
	Pearl
	Playtime
	Seen
	Whitelist
)

var all = []ID{Help, Ping, Pearl, Playtime, Seen, Whitelist}

// All returns every command in enumeration order.
func All() []ID {
	return append([]ID(nil), all...)
}

func (id ID) String() string {
	switch id {
	case Help:
		return "help"
	case Ping:
		return "ping"
	case Pearl:
		return "pearl"
	case Playtime:
		return "playtime"
	case Seen:
		return "seen"
	case Whitelist:
		return "whitelist"
	default:
		return fmt.Sprintf("command(%d)", int(id))
	}
}

// Aliases lists every token that resolves to the command, canonical name first.
func (id ID) Aliases() []string {
	switch id {
	case Help:
		return []string{"help", "commands"}
	case Ping:
		return []string{"ping", "latency"}
	case Pearl:
		return []string{"pearl", "tp", "teleport"}
	case Playtime:
		return []string{"playtime", "pt"}
	case Seen:
		return []string{"seen", "lastseen"}
	case Whitelist:
		return []string{"whitelist", "wl"}
	default:
		return nil
	}
}

// Usage is the argument synopsis shown by help, without the prefix.
func (id ID) Usage() string {
	switch id {
	case Help:
		return "help [command]"
	case Ping:
		return "ping [player]"
	case Pearl:
		return "pearl"
	case Playtime:
		return "playtime <player>"
	case Seen:
		return "seen <player>"
	case Whitelist:
		return "whitelist <add|remove|link> <player|code>"
	default:
		return ""
	}
}

// Blocking reports whether the handler performs network I/O and must run off
// the dispatch loop.
func (id ID) Blocking() bool {
	switch id {
	case Playtime, Seen:
		return true
	default:
		return false
	}
}

// Registry resolves prefixed tokens against the command aliases.
type Registry struct {
	prefix string
}

// NewRegistry returns a registry for the given prefix. An empty prefix means
// bare aliases resolve.
func NewRegistry(prefix string) *Registry {
	return &Registry{prefix: prefix}
}

// Prefix returns the configured command prefix.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Find resolves one token. The prefix must match exactly; aliases are case sensitive.
func (r *Registry) Find(token string) (ID, bool) {
	if !strings.HasPrefix(token, r.prefix) {
		return 0, false
	}
	alias := token[len(r.prefix):]
	if alias == "" {
		return 0, false
	}

	for _, id := range all {
		for _, candidate := range id.Aliases() {
			if candidate == alias {
				return id, true
			}
		}
	}

	return 0, false
}

// Parse splits a message on whitespace and resolves the first token. ok is
// false when the message is empty or the token does not resolve.
func (r *Registry) Parse(text string) (id ID, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, nil, false
	}

	id, ok = r.Find(fields[0])
	if !ok {
		return 0, nil, false
	}

	return id, fields[1:], true
}

// Collisions reports aliases claimed by more than one command. Find keeps the
// first command in enumeration order.
func (r *Registry) Collisions() []string {
	owner := make(map[string]ID)
	var out []string
	for _, id := range all {
		for _, alias := range id.Aliases() {
			if prev, ok := owner[alias]; ok {
				out = append(out, fmt.Sprintf("%s: %s shadows %s", alias, prev, id))
				continue
			}
			owner[alias] = id
		}
	}
	return out
}
