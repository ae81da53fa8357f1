package gamelink

import (
	"strings"

	"github.com/google/uuid"

	"pearlbot/pkg/world"
)

// Frame types exchanged with the game client.
const (
	frameChat     = "chat"
	frameRoster   = "roster"
	framePearls   = "pearls"
	framePosition = "position"
	frameAck      = "ack"
	frameCommand  = "command"
	frameActivate = "activate"
)

// inboundFrame is every message the game client sends. Only the fields
// matching Type are set.
type inboundFrame struct {
	Type     string          `json:"type"`
	Chat     *chatFrame      `json:"chat,omitempty"`
	Players  []world.Player  `json:"players,omitempty"`
	Pearls   []world.Pearl   `json:"pearls,omitempty"`
	Position *world.Position `json:"position,omitempty"`
	ID       uint64          `json:"id,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// chatFrame carries the sender id as a string so unattributed lines can
// leave it empty.
type chatFrame struct {
	SenderUUID string `json:"sender_uuid"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Whisper    bool   `json:"whisper"`
	Raw        string `json:"raw"`
}

func (f chatFrame) message() world.ChatMessage {
	msg := world.ChatMessage{
		SenderName: strings.TrimSpace(f.SenderName),
		Content:    f.Content,
		Whisper:    f.Whisper,
		Raw:        f.Raw,
	}
	if id, err := uuid.Parse(strings.TrimSpace(f.SenderUUID)); err == nil {
		msg.Sender = id
	}
	return msg
}

// outboundFrame is every message sent to the game client.
type outboundFrame struct {
	Type     string          `json:"type"`
	ID       uint64          `json:"id"`
	Text     string          `json:"text,omitempty"`
	Position *world.Position `json:"position,omitempty"`
}
