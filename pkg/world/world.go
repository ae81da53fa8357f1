// Package world describes the game-state handles command handlers read and act on.
// Implementations live with the game client; handlers only see these interfaces.
package world

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Player is one entry of the online roster.
type Player struct {
	UUID    uuid.UUID `json:"uuid"`
	Name    string    `json:"name"`
	Latency int       `json:"latency"`
}

// Roster is the live online-player list.
type Roster interface {
	ByName(name string) (Player, bool)
	ByUUID(id uuid.UUID) (Player, bool)
	Online() []Player
}

// Position is a block position.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Manhattan returns the taxicab distance between p and o.
func (p Position) Manhattan(o Position) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y) + abs(p.Z-o.Z)
}

// Pearl is a tracked stasis chamber holding a pearl thrown by Owner.
type Pearl struct {
	Owner    uuid.UUID `json:"owner"`
	Position Position  `json:"position"`
}

// StasisTracker reports every tracked pearl.
type StasisTracker interface {
	Pearls() []Pearl
}

// Navigator moves the bot and triggers the trapdoor at a position.
type Navigator interface {
	Position() Position
	ActivateAt(ctx context.Context, pos Position) error
}

// ChatMessage is one line of in-game chat. Sender and SenderName are empty
// when the game client could not attribute the line; Raw then holds the
// formatted text as the server sent it.
type ChatMessage struct {
	Sender     uuid.UUID `json:"sender_uuid"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Whisper    bool      `json:"whisper"`
	Raw        string    `json:"raw"`
}

// Chat is the game client's chat stream and command sender.
type Chat interface {
	Messages() <-chan ChatMessage
	SendCommand(ctx context.Context, command string) error
}

// SelectPearl picks the pearl owner most likely means. Candidates are ranked by
// how many other owners share the chamber, then by distance from from.
func SelectPearl(owner uuid.UUID, pearls []Pearl, from Position) (Pearl, bool) {
	owners := make(map[Position]map[uuid.UUID]struct{})
	for _, p := range pearls {
		set, ok := owners[p.Position]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			owners[p.Position] = set
		}
		set[p.Owner] = struct{}{}
	}

	var candidates []Pearl
	for _, p := range pearls {
		if p.Owner == owner {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Pearl{}, false
	}

	others := func(p Pearl) int {
		n := len(owners[p.Position])
		if _, ok := owners[p.Position][owner]; ok {
			n--
		}
		return n
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		oi, oj := others(candidates[i]), others(candidates[j])
		if oi != oj {
			return oi < oj
		}
		return candidates[i].Position.Manhattan(from) < candidates[j].Position.Manhattan(from)
	})

	return candidates[0], true
}

// StaticRoster is a fixed Roster, handy for tests and offline tooling.
type StaticRoster []Player

func (r StaticRoster) ByName(name string) (Player, bool) {
	for _, p := range r {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Player{}, false
}

func (r StaticRoster) ByUUID(id uuid.UUID) (Player, bool) {
	for _, p := range r {
		if p.UUID == id {
			return p, true
		}
	}
	return Player{}, false
}

func (r StaticRoster) Online() []Player {
	return append([]Player(nil), r...)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
