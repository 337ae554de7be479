// cmd/admin is the bootstrap and server-removal tool for a cluster (spec
// §6.2). It never touches list data: it only writes the known_servers.txt /
// known_proxies.txt files servers and proxies read at boot, and sends the
// occasional control-plane request a human operator triggers by hand.
//
// Usage:
//
//	admin bootstrap --servers web1:9100,web2:9101 --proxies p1:9000 --out .
//	admin add-server --name web3 --port 9103 --file known_servers.txt
//	admin remove-server --addr 127.0.0.1:9102
//	admin setup-db
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shoplist/internal/wire"
)

func main() {
	root := &cobra.Command{
		Use:   "admin",
		Short: "Cluster bootstrap and admin control plane",
	}
	root.AddCommand(bootstrapCmd(), addServerCmd(), removeServerCmd(), setupDBCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrapCmd() *cobra.Command {
	var servers, proxies, outDir string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Write known_servers.txt and known_proxies.txt (spec's initial_setup)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeEntriesFile(filepath.Join(outDir, "known_servers.txt"), splitNonEmpty(servers)); err != nil {
				return err
			}
			if err := writeEntriesFile(filepath.Join(outDir, "known_proxies.txt"), splitNonEmpty(proxies)); err != nil {
				return err
			}
			fmt.Printf("wrote %s and %s\n", filepath.Join(outDir, "known_servers.txt"), filepath.Join(outDir, "known_proxies.txt"))
			return nil
		},
	}
	cmd.Flags().StringVar(&servers, "servers", "", "comma-separated name:port server entries")
	cmd.Flags().StringVar(&proxies, "proxies", "", "comma-separated name:port proxy entries")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the bootstrap files into")
	return cmd
}

func addServerCmd() *cobra.Command {
	var name, port, file string
	cmd := &cobra.Command{
		Use:   "add-server",
		Short: "Append one name:port entry to a known-servers file (spec's add_server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || port == "" {
				return fmt.Errorf("--name and --port are required")
			}
			return appendEntry(file, fmt.Sprintf("%s:%s", name, port))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "server name")
	cmd.Flags().StringVar(&port, "port", "", "server port")
	cmd.Flags().StringVar(&file, "file", "known_servers.txt", "file to append to")
	return cmd
}

func removeServerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "remove-server",
		Short: "Send REMOVE_SERVER and wait for its acknowledgement (spec §4.4.7)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return fmt.Errorf("--addr is required")
			}
			log := zerolog.New(os.Stderr).With().Timestamp().Logger()
			req := wire.NewMessage(wire.RemoveServer, struct{}{})
			reply, err := wire.Call(context.Background(), log, addr, req, wire.RemoveServerBackoff())
			if err != nil {
				return fmt.Errorf("remove-server: %w", err)
			}
			if reply.Type != wire.RemoveServerAck {
				return fmt.Errorf("remove-server: unexpected reply %s", reply.Type)
			}
			fmt.Printf("%s acknowledged removal\n", addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "host:port of the server to remove")
	return cmd
}

func setupDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-db",
		Short: "No-op: relational/database provisioning is out of scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("setup-db: database provisioning is an external concern of this system, nothing to do here")
			return nil
		},
	}
}

func writeEntriesFile(path string, entries []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
	return w.Flush()
}

func appendEntry(path, entry string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, entry)
	return err
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
