// cmd/client is the CLI entry-point for one shopping-list device.
//
// Usage:
//
//	shoplist-client add-item <list-id> <item> <needed> --actor phone-1 --proxies 127.0.0.1:9000
//	shoplist-client remove-item <list-id> <item>
//	shoplist-client sync <list-id>
//	shoplist-client daemon
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shoplist/internal/client"
	"shoplist/internal/config"
	"shoplist/internal/crdt"
)

var (
	cfgPath string
	actorID string
	proxies string
	dataDir string
)

func main() {
	root := &cobra.Command{
		Use:   "shoplist-client",
		Short: "CLI client for a shopping-list device",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "optional YAML config file")
	root.PersistentFlags().StringVar(&actorID, "actor", "", "stable per-device actor id (never the list uuid)")
	root.PersistentFlags().StringVar(&proxies, "proxies", "127.0.0.1:9000", "comma-separated proxy dealer addresses")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "/tmp/shoplist-client", "local storage directory")

	root.AddCommand(newListCmd(), addItemCmd(), removeItemCmd(), updateNeededCmd(), updateAcquiredCmd(), syncCmd(), viewCmd(), daemonCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openClient() (*client.Client, func(), error) {
	cfg, err := config.LoadClient(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if actorID != "" {
		cfg.ActorID = actorID
	}
	if proxies != "127.0.0.1:9000" {
		cfg.Proxies = strings.Split(proxies, ",")
	}
	if dataDir != "/tmp/shoplist-client" {
		cfg.DataDir = dataDir
	}
	if cfg.ActorID == "" {
		return nil, nil, fmt.Errorf("--actor is required")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("actor", cfg.ActorID).Logger()
	c, err := client.New(cfg.DataDir, cfg.ActorID, cfg.Proxies, log)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-list <name>",
		Short: "Create a new shopping list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			list, err := c.NewList(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(list.UUID)
			return nil
		},
	}
}

func addItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-item <list-id> <item> <needed> [acquired]",
		Short: "Add or bump an item on a list",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			needed, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return err
			}
			var acquired int64
			if len(args) == 4 {
				acquired, err = strconv.ParseInt(args[3], 10, 64)
				if err != nil {
					return err
				}
			}
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			list, err := c.AddItem(context.Background(), args[0], args[1], needed, acquired)
			if err != nil {
				return err
			}
			printVisible(list.GetVisibleItems())
			return nil
		},
	}
}

func removeItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-item <list-id> <item>",
		Short: "Remove an item from a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			list, err := c.RemoveItem(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			printVisible(list.GetVisibleItems())
			return nil
		},
	}
}

func updateNeededCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-needed <list-id> <item> <delta>",
		Short: "Adjust an item's needed quantity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return err
			}
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			list, err := c.UpdateNeeded(context.Background(), args[0], args[1], delta)
			if err != nil {
				return err
			}
			printVisible(list.GetVisibleItems())
			return nil
		},
	}
}

func updateAcquiredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-acquired <list-id> <item> <delta>",
		Short: "Adjust an item's acquired quantity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return err
			}
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			list, err := c.UpdateAcquired(context.Background(), args[0], args[1], delta)
			if err != nil {
				return err
			}
			printVisible(list.GetVisibleItems())
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <list-id>",
		Short: "Fetch the cluster's authoritative state for a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			list, err := c.Sync(context.Background(), args[0])
			if err != nil {
				return err
			}
			printVisible(list.GetVisibleItems())
			return nil
		},
	}
}

func viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <list-id>",
		Short: "Print the locally cached state of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			items, err := c.ViewItems(args[0])
			if err != nil {
				return err
			}
			printVisible(items)
			return nil
		},
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the background heartbeat loop, retrying queued writes forever",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closer, err := openClient()
			if err != nil {
				return err
			}
			defer closer()
			c.RunBackground(context.Background())
			return nil
		},
	}
}

func printVisible(items map[string]crdt.VisibleItem) {
	for name, item := range items {
		fmt.Printf("%-20s needed=%-4d acquired=%-4d\n", name, item.Needed, item.Acquired)
	}
}
