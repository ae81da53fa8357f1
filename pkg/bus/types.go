package bus

import (
	"sync/atomic"

	"pearlbot/pkg/command"
	"pearlbot/pkg/ncr"
)

// Channel names the transport a request arrived on.
type Channel string

const (
	GameChat  Channel = "game"
	GroupChat Channel = "telegram"
	HTTPAPI   Channel = "http"
)

// Sender identifies who issued a command. ID is the player UUID for game chat
// and HTTP, and the account id for group chat.
type Sender struct {
	Channel Channel `json:"channel"`
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
}

// Origin carries what the originating adapter needs to address the reply.
type Origin struct {
	Channel Channel `json:"channel"`

	// Variant is the cipher variant the inbound game-chat message used, if any.
	Variant *ncr.Variant `json:"variant,omitempty"`
	// ChatID is the group-chat channel to answer in.
	ChatID string `json:"chat_id,omitempty"`
	// Response is the pending HTTP response.
	Response *ResponseSlot `json:"-"`
}

// GameChatSender builds a game-chat sender.
func GameChatSender(playerID, name string) Sender {
	return Sender{Channel: GameChat, ID: playerID, Name: name}
}

// GameChatOrigin builds a game-chat origin mirroring variant on reply.
func GameChatOrigin(variant *ncr.Variant) Origin {
	return Origin{Channel: GameChat, Variant: variant}
}

// GroupChatSender builds a group-chat sender.
func GroupChatSender(accountID, name string) Sender {
	return Sender{Channel: GroupChat, ID: accountID, Name: name}
}

// GroupChatOrigin builds a group-chat origin answering in chatID.
func GroupChatOrigin(chatID string) Origin {
	return Origin{Channel: GroupChat, ChatID: chatID}
}

// HTTPSender builds an HTTP API sender.
func HTTPSender(playerID, name string) Sender {
	return Sender{Channel: HTTPAPI, ID: playerID, Name: name}
}

// HTTPOrigin builds an HTTP origin owning slot.
func HTTPOrigin(slot *ResponseSlot) Origin {
	return Origin{Channel: HTTPAPI, Response: slot}
}

// CommandRequest is the channel-independent form of one command invocation.
type CommandRequest struct {
	Sender    Sender     `json:"sender"`
	Origin    Origin     `json:"origin"`
	Command   command.ID `json:"command"`
	Args      []string   `json:"args,omitempty"`
	IsWhisper bool       `json:"is_whisper"`
}

// Valid reports whether sender and origin belong to the same channel.
func (r CommandRequest) Valid() bool {
	return r.Sender.Channel != "" && r.Sender.Channel == r.Origin.Channel
}

// Reply builds the reply event for this request.
func (r CommandRequest) Reply(content string, status int) ReplyEvent {
	return ReplyEvent{Origin: r.Origin, Sender: r.Sender, Content: content, Status: status}
}

// ReplyEvent is one reply on its way back to the originating channel. Status
// uses HTTP codes on every channel.
type ReplyEvent struct {
	Origin  Origin `json:"origin"`
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
	Status  int    `json:"status"`
}

// Response is what an HTTP request is answered with.
type Response struct {
	Status int
	Body   string
}

// ResponseSlot is a single-use response handle. Exactly one Deliver or Abandon
// wins; every later call is a no-op.
type ResponseSlot struct {
	taken atomic.Bool
	ch    chan Response
}

// NewResponseSlot returns an empty slot.
func NewResponseSlot() *ResponseSlot {
	return &ResponseSlot{ch: make(chan Response, 1)}
}

// Deliver hands resp to the waiting request. It returns false when the slot
// was already used.
func (s *ResponseSlot) Deliver(resp Response) bool {
	if s == nil || !s.taken.CompareAndSwap(false, true) {
		return false
	}
	s.ch <- resp
	return true
}

// Abandon marks the slot used without a response, for requests that gave up
// waiting. It returns false when a response already won the race.
func (s *ResponseSlot) Abandon() bool {
	if s == nil {
		return false
	}
	return s.taken.CompareAndSwap(false, true)
}

// Done yields the delivered response.
func (s *ResponseSlot) Done() <-chan Response {
	return s.ch
}
