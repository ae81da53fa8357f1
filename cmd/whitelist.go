package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"pearlbot/pkg/allowlist"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist <list|add|remove> [uuid]",
	Short: "Inspect or edit the whitelist store",
	Long:  "Edits the whitelist database directly. Stop the gateway first; it only reads the store at startup.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := allowlist.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		return runWhitelist(cmd.Context(), store, args, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(whitelistCmd)
}

func runWhitelist(ctx context.Context, store allowlist.Store, args []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	list, err := allowlist.Open(ctx, store)
	if err != nil {
		return err
	}

	action := strings.ToLower(args[0])
	if action == "list" {
		for _, entry := range list.Entries() {
			if entry.Linked != "" {
				fmt.Fprintf(out, "%s\t%s\n", entry.Player, entry.Linked)
				continue
			}
			fmt.Fprintln(out, entry.Player)
		}
		return nil
	}

	if len(args) < 2 {
		return fmt.Errorf("%s needs a player uuid", action)
	}
	player, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("parse player uuid: %w", err)
	}

	switch action {
	case "add":
		if err := list.Add(ctx, player); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %s\n", player)
	case "remove", "rm":
		if err := list.Remove(ctx, player); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %s\n", player)
	default:
		return fmt.Errorf("unknown whitelist action %q", action)
	}
	return nil
}
