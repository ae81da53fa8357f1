package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/authlink"
	"pearlbot/pkg/bus"
	"pearlbot/pkg/channel"
	"pearlbot/pkg/channel/game"
	"pearlbot/pkg/channel/httpapi"
	"pearlbot/pkg/channel/telegram"
	"pearlbot/pkg/command"
	"pearlbot/pkg/config"
	"pearlbot/pkg/cooldown"
	"pearlbot/pkg/gamelink"
	"pearlbot/pkg/gateway"
	"pearlbot/pkg/handlers"
	"pearlbot/pkg/logger"
	"pearlbot/pkg/lookup"
	"pearlbot/pkg/ncr"
	"pearlbot/pkg/world"

	"github.com/spf13/cobra"
)

const (
	gameChannelName     = "game"
	telegramChannelName = "telegram"
	httpChannelName     = "http"
	gameLinkTaskName    = "gamelink"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the command bot",
	Long:  "Runs PearlBot on every enabled channel with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := allowlist.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			log.Error("Failed to open whitelist store", "path", cfg.Store.Path, "error", err)
			return
		}
		defer store.Close()

		allow, err := allowlist.Open(runCtx, store)
		if err != nil {
			log.Error("Failed to load whitelist", "error", err)
			return
		}

		svc, adapters, err := buildGateway(cfg, allow, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "prefix", cfg.Commands.Prefix, "whitelisted", allow.Len())
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

// gatewayDeps are the shared pieces every channel adapter is built from.
type gatewayDeps struct {
	gate   *channel.Gate
	allow  *allowlist.List
	link   *gamelink.Client
	roster world.Roster
	mode   ncr.Mode
	key    ncr.Key
}

// buildGateway wires the registry, game link, handlers and adapters into a
// service ready to run.
func buildGateway(cfg *config.Config, allow *allowlist.List, log *slog.Logger) (*gateway.Service, []channel.Adapter, error) {
	if log == nil {
		log = slog.Default()
	}

	mode, err := cfg.Encryption.ResolveMode()
	if err != nil {
		return nil, nil, fmt.Errorf("encryption mode: %w", err)
	}
	key, err := cfg.Encryption.ResolveKey()
	if err != nil {
		return nil, nil, fmt.Errorf("encryption key: %w", err)
	}

	registry := command.NewRegistry(cfg.Commands.Prefix)
	for _, collision := range registry.Collisions() {
		log.Warn("Command alias collision", "collision", collision)
	}

	deps := gatewayDeps{
		gate: channel.NewGate(registry, allow, cooldown.New(), channel.GateOptions{
			Whitelist: cfg.Commands.Whitelist,
			Cooldown:  cfg.Commands.Cooldown(),
		}),
		allow:  allow,
		roster: world.StaticRoster{},
		mode:   mode,
		key:    key,
	}

	env := handlers.Env{
		Registry: registry,
		Allow:    allow,
		Lookup:   lookup.NewClient(cfg.Lookup.BaseURL, cfg.Lookup.Timeout()),
		Linker:   authlink.NewClient(cfg.AuthLink.BaseURL, cfg.AuthLink.Timeout()),
	}

	var tasks []gateway.Task
	if cfg.Channels.Game.Enabled {
		link, err := gamelink.New(cfg.Channels.Game.URL, cfg.Channels.Game.Reconnect(), log)
		if err != nil {
			return nil, nil, fmt.Errorf("configure game link: %w", err)
		}
		deps.link = link
		deps.roster = link
		env.Roster = link
		env.Stasis = link
		env.Navigator = link
		tasks = append(tasks, gateway.Task{Name: gameLinkTaskName, Run: link.Run, Ready: link.Connected})
	} else {
		log.Warn("Game link disabled, game commands and HTTP logins are unavailable")
	}

	adapters, err := enabledAdapters(cfg, deps, log)
	if err != nil {
		return nil, nil, err
	}

	mb := bus.NewMessageBus()
	dispatcher := gateway.NewDispatcher(handlers.New(env), mb, cfg.Gateway.Workers, log)
	svc, err := gateway.NewService(cfg.Gateway, mb, dispatcher, adapters, tasks, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize gateway service: %w", err)
	}

	return svc, adapters, nil
}

func enabledAdapters(cfg *config.Config, deps gatewayDeps, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 3)

	if cfg.Channels.Game.Enabled {
		if deps.link == nil {
			return nil, fmt.Errorf("configure %s channel: game link is not configured", gameChannelName)
		}
		adapter, err := game.NewAdapter(deps.link, deps.link, deps.gate, game.Options{
			Mode:         deps.mode,
			Key:          deps.key,
			WhispersOnly: cfg.Channels.Game.WhispersOnly,
			ChatPattern:  cfg.Channels.Game.ChatPattern,
			Self:         cfg.Channels.Game.Username,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", gameChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, deps.gate, deps.allow, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.HTTP.Enabled {
		adapter, err := httpapi.NewAdapter(cfg.Channels.HTTP, deps.gate, deps.roster, deps.allow, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", httpChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
