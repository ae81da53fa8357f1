package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/bus"
	"pearlbot/pkg/channel"
	"pearlbot/pkg/config"
	"pearlbot/pkg/logger"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"

const defaultLinkHelp = "Your account is not linked to a whitelisted player. Join the auth server, then send %swhitelist link <code>."

// messenger is the slice of the Telegram bot API the adapter uses.
type messenger interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Adapter bridges Telegram chats into the command pipeline.
type Adapter struct {
	cfg   config.TelegramConfig
	gate  *channel.Gate
	allow *allowlist.List
	log   *slog.Logger

	mu  sync.RWMutex
	bot messenger

	// outbound tracks notices sent off the polling loop.
	outbound sync.WaitGroup
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, gate *channel.Gate, allow *allowlist.List, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}
	if gate == nil {
		return nil, errors.New("gate is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:   cfg,
		gate:  gate,
		allow: allow,
		log:   log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in logs and status output.
func (a *Adapter) Name() string {
	return channelName
}

// Channel returns the pipeline channel this adapter serves.
func (a *Adapter) Channel() bus.Channel {
	return bus.GroupChat
}

// Run starts Telegram long polling and forwards accepted commands into sink.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}
	a.setBot(bot)
	defer a.outbound.Wait()

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			if update.Message == nil {
				continue
			}
			a.handle(ctx, sink, update.Message)
		}
	}
}

// handle feeds one message through ingest and into sink without waiting on the
// Bot API.
func (a *Adapter) handle(ctx context.Context, sink channel.Sink, message *telego.Message) {
	req, ok := a.ingest(ctx, message)
	if !ok {
		return
	}
	if !sink(ctx, req) {
		a.log.Warn("Dropped command, pipeline is not accepting requests", "sender_id", req.Sender.ID)
		return
	}
	if req.Command.Blocking() {
		chatID := message.Chat.ID
		a.async(func() { a.sendTyping(ctx, chatID) })
	}
}

// ingest normalizes one Telegram message. Unlinked senders get the link help
// text in the background; every other rejection is silent.
func (a *Adapter) ingest(ctx context.Context, message *telego.Message) (bus.CommandRequest, bool) {
	content := strings.TrimSpace(message.Text)
	if content == "" {
		return bus.CommandRequest{}, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return bus.CommandRequest{}, false
	}

	id, args, decision := a.gate.Resolve(content)
	if decision != channel.Accept {
		return bus.CommandRequest{}, false
	}

	accountID := strconv.FormatInt(message.From.ID, 10)
	chatID := strconv.FormatInt(message.Chat.ID, 10)

	player := uuid.Nil
	if a.allow != nil {
		player, _ = a.allow.FindByLinked(accountID)
	}

	switch decision := a.gate.Authorize(id, args, player, sessionKey(accountID)); decision {
	case channel.Accept:
	case channel.NotWhitelisted:
		a.log.Debug("Rejected unlinked sender", "sender_id", accountID, "command", id.String())
		chatID, help := message.Chat.ID, a.linkHelp()
		a.async(func() { a.send(ctx, chatID, help) })
		return bus.CommandRequest{}, false
	default:
		a.log.Debug("Rejected command", "sender_id", accountID, "command", id.String(), "reason", decision.String())
		return bus.CommandRequest{}, false
	}

	a.log.Info("Received command", "chat_id", chatID, "sender_id", accountID, "command", id.String(), "content", logger.Preview(content))

	return bus.CommandRequest{
		Sender:  bus.GroupChatSender(accountID, displayName(message.From)),
		Origin:  bus.GroupChatOrigin(chatID),
		Command: id,
		Args:    args,
	}, true
}

// Deliver posts the reply into the originating chat. Send failures are logged
// and not returned.
func (a *Adapter) Deliver(ctx context.Context, reply bus.ReplyEvent) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(reply.Origin.ChatID), 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", reply.Origin.ChatID, err)
	}

	text := strings.TrimSpace(reply.Content)
	if text == "" {
		return nil
	}

	a.log.Info("Sending message", "chat_id", chatID, "status", reply.Status, "content", logger.Preview(text))
	a.send(ctx, chatID, text)
	return nil
}

func (a *Adapter) async(fn func()) {
	a.outbound.Add(1)
	go func() {
		defer a.outbound.Done()
		fn()
	}()
}

func (a *Adapter) send(ctx context.Context, chatID int64, text string) {
	bot := a.currentBot()
	if bot == nil {
		a.log.Error("Failed to send telegram message", "chat_id", chatID, "error", "bot is not running")
		return
	}
	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		a.log.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

// sendTyping shows a typing indicator while a slow command is in flight.
func (a *Adapter) sendTyping(ctx context.Context, chatID int64) {
	bot := a.currentBot()
	if bot == nil {
		return
	}
	if err := bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && ctx.Err() == nil {
		a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) linkHelp() string {
	if help := strings.TrimSpace(a.cfg.LinkHelp); help != "" {
		return help
	}
	return fmt.Sprintf(defaultLinkHelp, a.gate.Registry().Prefix())
}

func (a *Adapter) setBot(bot messenger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bot = bot
}

func (a *Adapter) currentBot() messenger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bot
}

// sessionKey keys per-account cooldowns apart from game player ids.
func sessionKey(accountID string) string {
	return "telegram:" + strings.TrimSpace(accountID)
}

func displayName(user *telego.User) string {
	if user.Username != "" {
		return user.Username
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}
