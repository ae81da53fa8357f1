// Package game adapts in-game chat into the command pipeline.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"pearlbot/pkg/bus"
	"pearlbot/pkg/channel"
	"pearlbot/pkg/logger"
	"pearlbot/pkg/ncr"
	"pearlbot/pkg/world"
)

const channelName = "game"

// Options configures the game-chat adapter.
type Options struct {
	Mode ncr.Mode
	Key  ncr.Key
	// WhispersOnly drops commands typed in public chat.
	WhispersOnly bool
	// ChatPattern parses unattributed chat lines. It needs three groups:
	// sender name, whisper marker, content.
	ChatPattern string
	// Self is the bot's own player name; its lines are never treated as commands.
	Self string
}

// Adapter reads commands from game chat and whispers replies back.
type Adapter struct {
	chat    world.Chat
	roster  world.Roster
	gate    *channel.Gate
	opts    Options
	pattern *regexp.Regexp
	log     *slog.Logger
}

// NewAdapter validates the chat pattern and builds the adapter.
func NewAdapter(chat world.Chat, roster world.Roster, gate *channel.Gate, opts Options, log *slog.Logger) (*Adapter, error) {
	if chat == nil || roster == nil {
		return nil, errors.New("game chat and roster are required")
	}
	if gate == nil {
		return nil, errors.New("gate is required")
	}

	pattern, err := regexp.Compile(opts.ChatPattern)
	if err != nil {
		return nil, fmt.Errorf("compile chat pattern: %w", err)
	}
	if pattern.NumSubexp() < 3 {
		return nil, fmt.Errorf("chat pattern needs 3 groups (name, whisper, content), has %d", pattern.NumSubexp())
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		chat:    chat,
		roster:  roster,
		gate:    gate,
		opts:    opts,
		pattern: pattern,
		log:     log.With("component", "channel.game"),
	}, nil
}

// Name returns the channel identifier used in logs and status output.
func (a *Adapter) Name() string {
	return channelName
}

// Channel returns the pipeline channel this adapter serves.
func (a *Adapter) Channel() bus.Channel {
	return bus.GameChat
}

// Run forwards accepted chat commands into sink until ctx ends or the chat
// stream closes.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	messages := a.chat.Messages()
	a.log.Info("Game chat channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("game chat stream closed")
			}

			req, ok := a.ingest(msg)
			if !ok {
				continue
			}
			if !sink(ctx, req) {
				a.log.Warn("Dropped command, pipeline is not accepting requests", "sender", req.Sender.Name)
			}
		}
	}
}

// ingest turns one chat line into a request. Anything that is not an
// authorized command is dropped without a reply.
func (a *Adapter) ingest(msg world.ChatMessage) (bus.CommandRequest, bool) {
	sender, name, content, whisper, ok := a.split(msg)
	if !ok {
		return bus.CommandRequest{}, false
	}

	if a.opts.Self != "" && strings.EqualFold(name, a.opts.Self) {
		return bus.CommandRequest{}, false
	}

	variant, content := ncr.FindDecryption(content, a.opts.Key)

	if a.opts.WhispersOnly && !whisper {
		return bus.CommandRequest{}, false
	}

	id, args, decision := a.gate.Resolve(content)
	if decision != channel.Accept {
		return bus.CommandRequest{}, false
	}

	if sender == uuid.Nil {
		player, online := a.roster.ByName(name)
		if !online {
			a.log.Debug("Ignoring command from player missing in roster", "name", name)
			return bus.CommandRequest{}, false
		}
		sender, name = player.UUID, player.Name
	}

	if decision := a.gate.Authorize(id, args, sender, sender.String()); decision != channel.Accept {
		a.log.Debug("Rejected command", "sender", name, "command", id.String(), "reason", decision.String())
		return bus.CommandRequest{}, false
	}

	a.log.Info("Received command", "sender", name, "command", id.String(), "whisper", whisper, "encrypted", variant != nil, "content", logger.Preview(content))

	return bus.CommandRequest{
		Sender:    bus.GameChatSender(sender.String(), name),
		Origin:    bus.GameChatOrigin(variant),
		Command:   id,
		Args:      args,
		IsWhisper: whisper,
	}, true
}

// split extracts sender, content and the whisper flag, preferring the game
// client's attribution and falling back to the configured chat pattern.
func (a *Adapter) split(msg world.ChatMessage) (uuid.UUID, string, string, bool, bool) {
	if msg.Sender != uuid.Nil || strings.TrimSpace(msg.SenderName) != "" {
		return msg.Sender, strings.TrimSpace(msg.SenderName), strings.TrimSpace(msg.Content), msg.Whisper, true
	}

	line := msg.Raw
	if line == "" {
		line = msg.Content
	}

	m := a.pattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return uuid.Nil, "", "", false, false
	}

	return uuid.Nil, m[1], strings.TrimSpace(m[3]), m[2] != "", true
}

// Deliver whispers the reply to the sender, one whisper per line. Replies to
// players who went offline are dropped.
func (a *Adapter) Deliver(ctx context.Context, reply bus.ReplyEvent) error {
	id, err := uuid.Parse(reply.Sender.ID)
	if err != nil {
		return fmt.Errorf("parse sender id: %w", err)
	}

	player, online := a.roster.ByUUID(id)
	if !online {
		a.log.Debug("Dropping reply, sender is offline", "sender", reply.Sender.Name)
		return nil
	}

	for _, line := range strings.Split(reply.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		content := ncr.ApplyEncryption(a.opts.Mode, reply.Origin.Variant, line, a.opts.Key)
		if err := a.chat.SendCommand(ctx, "w "+player.Name+" "+content); err != nil {
			return fmt.Errorf("whisper %s: %w", player.Name, err)
		}
	}

	a.log.Info("Sent reply", "recipient", player.Name, "status", reply.Status, "content", logger.Preview(reply.Content))
	return nil
}
