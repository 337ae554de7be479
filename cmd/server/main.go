// cmd/server is the main entrypoint for a shopping-list storage node.
//
// A server owns a shard of the consistent-hash ring, holds primary and
// replica copies of whatever lists land on it, gossips membership with its
// peers, and repairs data placement via hinted handoff — all entirely
// independent of any other server's availability (spec §2).
//
// Example — three-node cluster:
//
//	./server --port 9100 --data-dir /tmp/n1 --known-servers 9101,9102
//	./server --port 9101 --data-dir /tmp/n2 --known-servers 9100,9102
//	./server --port 9102 --data-dir /tmp/n3 --known-servers 9100,9101
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"shoplist/internal/api"
	"shoplist/internal/config"
	"shoplist/internal/dispatcher"
	"shoplist/internal/membership"
	"shoplist/internal/store"
	"shoplist/internal/wire"
)

func main() {
	cfgPath := flag.String("config", "", "optional YAML config file")
	port := flag.String("port", "", "DEALER listen port")
	dataDir := flag.String("data-dir", "", "directory for the bbolt database")
	knownServers := flag.String("known-servers", "", "comma-separated peer server ports")
	knownProxies := flag.String("known-proxies", "", "comma-separated known proxy ports")
	serversFile := flag.String("servers-file", "", "known_servers.txt written by admin bootstrap")
	proxiesFile := flag.String("proxies-file", "", "known_proxies.txt written by admin bootstrap")
	opsAddr := flag.String("ops-addr", "", "host:port for the health/metrics HTTP surface")
	flag.Parse()

	cfg, err := config.LoadServer(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *serversFile != "" {
		ports, err := config.ReadPortsFile(*serversFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.KnownServers = ports
	}
	if *proxiesFile != "" {
		ports, err := config.ReadPortsFile(*proxiesFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.KnownProxies = ports
	}
	if *knownServers != "" {
		cfg.KnownServers = splitNonEmpty(*knownServers)
	}
	if *knownProxies != "" {
		cfg.KnownProxies = splitNonEmpty(*knownProxies)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("node", cfg.Port).Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	nodeDataDir := fmt.Sprintf("%s/%s", cfg.DataDir, cfg.Port)
	s, err := store.New(nodeDataDir, cfg.Port)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage failed")
	}
	defer s.Close()

	m := membership.New(cfg.Port, false, cfg.KnownServers, cfg.KnownProxies)
	gossiper := membership.NewGossiper(m, log)
	srv := dispatcher.NewServer(cfg.Port, s, m, log)

	listenAddr := ":" + cfg.Port
	router := wire.NewRouter(listenAddr, 8, log)
	router.Handle(wire.SentFullList, srv.HandleSentFullList)
	router.Handle(wire.RequestFullList, srv.HandleRequestFullList)
	router.Handle(wire.Replica, srv.HandleReplica)
	router.Handle(wire.HintedHandoff, srv.HandleHintedHandoff)
	router.Handle(wire.RemoveServer, func(ctx context.Context, req wire.Message) wire.Message {
		reply := srv.HandleRemoveServer(ctx, req)
		go func() {
			time.Sleep(200 * time.Millisecond)
			log.Info().Msg("removed by admin, exiting")
			os.Exit(0)
		}()
		return reply
	})
	router.Handle(wire.Gossip, gossiper.HandleGossip(false))
	router.Handle(wire.GossipIntroduction, gossiper.HandleGossip(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Serve(ctx); err != nil {
			log.Fatal().Err(err).Msg("router exited")
		}
	}()
	go gossiper.Run(ctx)
	go srv.RunHintedHandoff(ctx)
	go s.RunSnapshotLoop(ctx, filepath.Join(cfg.DataDir, "snapshots"), func(path string) {
		log.Info().Str("path", path).Msg("snapshot written")
	}, func(err error) {
		log.Warn().Err(err).Msg("snapshot failed")
	})

	if *opsAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		ginRouter := gin.New()
		ginRouter.Use(api.Logger(log), api.Recovery(log))
		api.NewHandler(m, s, cfg.Port).Register(ginRouter)
		opsSrv := &http.Server{Addr: *opsAddr, Handler: ginRouter, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
		go func() {
			if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("ops server error")
			}
		}()
	}

	log.Info().Str("listen", listenAddr).Int("known_servers", len(cfg.KnownServers)).Msg("server up")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	cancel()
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
