// Package config loads the YAML configuration each binary starts from,
// overridden by command-line flags — the ambient pattern every node in this
// system follows instead of threading a pile of individual flags through
// main(). An empty path is not an error: every Load function returns usable
// defaults so a binary never needs a config file to start.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Server is cmd/server's configuration.
type Server struct {
	Port         string   `yaml:"port"`
	DataDir      string   `yaml:"data_dir"`
	KnownServers []string `yaml:"known_servers"`
	KnownProxies []string `yaml:"known_proxies"`
	LogLevel     string   `yaml:"log_level"`
}

// Proxy is cmd/proxy's configuration.
type Proxy struct {
	Port         string   `yaml:"port"`
	KnownServers []string `yaml:"known_servers"`
	KnownProxies []string `yaml:"known_proxies"`
	LogLevel     string   `yaml:"log_level"`
}

// Client is cmd/client's configuration.
type Client struct {
	ActorID  string   `yaml:"actor_id"`
	Proxies  []string `yaml:"proxies"`
	DataDir  string   `yaml:"data_dir"`
	LogLevel string   `yaml:"log_level"`
}

func defaultServer() Server {
	return Server{Port: "9100", DataDir: "/tmp/shoplist-server", LogLevel: "info"}
}

func defaultProxy() Proxy {
	return Proxy{Port: "9000", LogLevel: "info"}
}

func defaultClient() Client {
	return Client{DataDir: "/tmp/shoplist-client", Proxies: []string{"127.0.0.1:9000"}, LogLevel: "info"}
}

// LoadServer reads path (if non-empty) over defaultServer.
func LoadServer(path string) (Server, error) {
	cfg := defaultServer()
	if path == "" {
		return cfg, nil
	}
	if err := readYAML(path, &cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// LoadProxy reads path (if non-empty) over defaultProxy.
func LoadProxy(path string) (Proxy, error) {
	cfg := defaultProxy()
	if path == "" {
		return cfg, nil
	}
	if err := readYAML(path, &cfg); err != nil {
		return Proxy{}, err
	}
	return cfg, nil
}

// LoadClient reads path (if non-empty) over defaultClient.
func LoadClient(path string) (Client, error) {
	cfg := defaultClient()
	if path == "" {
		return cfg, nil
	}
	if err := readYAML(path, &cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// ReadPortsFile reads a bootstrap file of `name:port` lines (the shape
// cmd/admin bootstrap writes, spec.md §6.2) and returns the port half of
// each entry, the shape internal/membership keys its ring on.
func ReadPortsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var ports []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		_, port, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("config: malformed entry %q in %s", line, path)
		}
		ports = append(ports, port)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan %s: %w", path, err)
	}
	return ports, nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
