// Command dyscypliner-hub runs the device status hub.
//
// The hub accepts liveness reports from devices over plain HTTP GET requests
// and pushes status announcements to observers over WebSocket. Devices that
// stop reporting are marked OFFLINE after the report grace period.
//
// Usage:
//
//	dyscypliner-hub [flags]
//
// Flags:
//
//	-addr string       Listen address (default ":8080")
//	-config string     Configuration file path (YAML)
//	-login string      Observer login (default "admin")
//	-password string   Observer password (default "admin")
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-log-file string   Append structured CBOR event log to this file
//	-mdns              Advertise the hub via mDNS (default true)
//
// Examples:
//
//	# Start with defaults on port 8080
//	dyscypliner-hub
//
//	# Start with custom credentials and an event log
//	dyscypliner-hub -addr :9000 -login ops -password s3cret -log-file hub.cborlog
//
//	# Start from a configuration file
//	dyscypliner-hub -config /etc/dyscypliner/hub.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gopkg.in/yaml.v3"

	hublog "github.com/dyscypliner/dyscypliner-go/pkg/log"

	"github.com/dyscypliner/dyscypliner-go/pkg/discovery"
	"github.com/dyscypliner/dyscypliner-go/pkg/hub"
	"github.com/dyscypliner/dyscypliner-go/pkg/server"
)

// protocolVersion is advertised over mDNS.
const protocolVersion = "1"

// Config holds the daemon configuration.
type Config struct {
	Addr     string
	Login    string
	Password string
	LogLevel string
	LogFile  string
	MDNS     bool
}

var (
	config     Config
	configFile string
)

func init() {
	flag.StringVar(&config.Addr, "addr", ":8080", "Listen address")
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.Login, "login", "admin", "Observer login")
	flag.StringVar(&config.Password, "password", "admin", "Observer password")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFile, "log-file", "", "Append structured CBOR event log to this file")
	flag.BoolVar(&config.MDNS, "mdns", true, "Advertise the hub via mDNS")
}

func main() {
	flag.Parse()

	if configFile != "" {
		if err := loadConfigFile(configFile, &config); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	logger, closeLogger, err := setupLogger(config)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLogger()

	log.Println("Dyscypliner Hub")
	log.Printf("Listen address: %s", config.Addr)

	hubConfig := hub.DefaultConfig()
	hubConfig.Logger = logger

	h, err := hub.New(hubConfig)
	if err != nil {
		log.Fatalf("Failed to create hub: %v", err)
	}

	srv, err := server.New(server.Config{
		Address:  config.Addr,
		Login:    config.Login,
		Password: config.Password,
		Logger:   logger,
	}, h)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.Start(ctx); err != nil {
		log.Fatalf("Failed to start hub: %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Serving on %s", srv.Addr())

	var advertiser *discovery.Advertiser
	if config.MDNS {
		advertiser = discovery.NewAdvertiser(discovery.DefaultAdvertiserConfig())
		if err := advertiser.Advertise(discovery.HubInfo{
			InstanceName: "dyscypliner-hub",
			Port:         listenPort(srv.Addr()),
			Version:      protocolVersion,
			DeviceCount:  h.DeviceCount(),
		}); err != nil {
			// Advertising is best effort; the hub keeps serving.
			log.Printf("Warning: mDNS advertising failed: %v", err)
			advertiser = nil
		} else {
			log.Printf("Advertising as %s.%s", discovery.ServiceType, discovery.Domain)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	if advertiser != nil {
		advertiser.Stop()
	}
	if err := srv.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
	if err := h.Stop(); err != nil {
		log.Printf("Error stopping hub: %v", err)
	}

	log.Println("Goodbye!")
}

// loadConfigFile overlays YAML settings onto flag defaults. Flags given on
// the command line win over the file.
func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileConfig struct {
		Addr     string `yaml:"addr"`
		Login    string `yaml:"login"`
		Password string `yaml:"password"`
		LogLevel string `yaml:"log_level"`
		LogFile  string `yaml:"log_file"`
		MDNS     *bool  `yaml:"mdns"`
	}
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if fileConfig.Addr != "" && !explicit["addr"] {
		config.Addr = fileConfig.Addr
	}
	if fileConfig.Login != "" && !explicit["login"] {
		config.Login = fileConfig.Login
	}
	if fileConfig.Password != "" && !explicit["password"] {
		config.Password = fileConfig.Password
	}
	if fileConfig.LogLevel != "" && !explicit["log-level"] {
		config.LogLevel = fileConfig.LogLevel
	}
	if fileConfig.LogFile != "" && !explicit["log-file"] {
		config.LogFile = fileConfig.LogFile
	}
	if fileConfig.MDNS != nil && !explicit["mdns"] {
		config.MDNS = *fileConfig.MDNS
	}
	return nil
}

// setupLogger builds the event logger: slog to stderr, plus a CBOR file
// logger when -log-file is set.
func setupLogger(config Config) (hublog.Logger, func(), error) {
	var level slog.Level
	switch config.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", config.LogLevel)
	}

	console := hublog.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	if config.LogFile == "" {
		return console, func() {}, nil
	}

	fileLogger, err := hublog.NewFileLogger(config.LogFile)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := fileLogger.Close(); err != nil {
			log.Printf("Error closing event log: %v", err)
		}
	}
	return hublog.NewMultiLogger(console, fileLogger), closer, nil
}

// listenPort extracts the TCP port from a bound address.
func listenPort(addr net.Addr) int {
	if addr == nil {
		return 0
	}
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
