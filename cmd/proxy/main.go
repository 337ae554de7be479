// cmd/proxy is the entrypoint for a proxy node: the client-facing half of
// the dispatcher that routes SENT_FULL_LIST/REQUEST_FULL_LIST to the right
// server(s) on the ring and publishes LIST_UPDATE fan-out (spec §4.4.1,
// §4.4.2). A proxy holds no list state of its own.
//
// Example — a proxy in front of a three-node cluster:
//
//	./proxy --port 9000 --known-servers 9100,9101,9102
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"shoplist/internal/api"
	"shoplist/internal/config"
	"shoplist/internal/dispatcher"
	"shoplist/internal/membership"
	"shoplist/internal/wire"
)

func main() {
	cfgPath := flag.String("config", "", "optional YAML config file")
	port := flag.String("port", "", "DEALER listen port (PUB binds port+1)")
	knownServers := flag.String("known-servers", "", "comma-separated known server ports")
	knownProxies := flag.String("known-proxies", "", "comma-separated peer proxy ports")
	serversFile := flag.String("servers-file", "", "known_servers.txt written by admin bootstrap")
	proxiesFile := flag.String("proxies-file", "", "known_proxies.txt written by admin bootstrap")
	opsAddr := flag.String("ops-addr", "", "host:port for the health/metrics HTTP surface")
	flag.Parse()

	cfg, err := config.LoadProxy(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
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

	m := membership.New(cfg.Port, true, cfg.KnownServers, cfg.KnownProxies)
	gossiper := membership.NewGossiper(m, log)

	pubPort, err := nextPort(cfg.Port)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid port")
	}
	publisher := wire.NewPublisher(":"+pubPort, log)
	proxy := dispatcher.NewProxy(m, publisher, log)

	dealerAddr := ":" + cfg.Port
	router := wire.NewRouter(dealerAddr, 8, log)
	router.Handle(wire.SentFullList, proxy.HandleSentFullList)
	router.Handle(wire.RequestFullList, proxy.HandleRequestFullList)
	router.Handle(wire.Gossip, gossiper.HandleGossip(false))
	router.Handle(wire.GossipIntroduction, gossiper.HandleGossip(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Serve(ctx); err != nil {
			log.Fatal().Err(err).Msg("router exited")
		}
	}()
	go func() {
		if err := publisher.Serve(ctx); err != nil {
			log.Fatal().Err(err).Msg("publisher exited")
		}
	}()
	go gossiper.Run(ctx)

	if *opsAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		ginRouter := gin.New()
		ginRouter.Use(api.Logger(log), api.Recovery(log))
		api.NewHandler(m, nil, cfg.Port).Register(ginRouter)
		opsSrv := &http.Server{Addr: *opsAddr, Handler: ginRouter, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
		go func() {
			if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("ops server error")
			}
		}()
	}

	log.Info().Str("dealer", dealerAddr).Str("pub", pubPort).Msg("proxy up")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	cancel()
}

// nextPort returns port+1 as a string, the PUB-follows-DEALER convention
// named in spec §6.1.
func nextPort(port string) (string, error) {
	n, err := strconv.Atoi(port)
	if err != nil {
		return "", fmt.Errorf("parse port %q: %w", port, err)
	}
	return strconv.Itoa(n + 1), nil
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
