package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tinytelemetry/displaylog/internal/socketrpc"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var socketPath string
	var tail int
	var asJSON bool
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/displaylog/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to displaylog service")
	flag.IntVar(&tail, "n", 0, "number of newest records to show (0 uses status-tail from config)")
	flag.BoolVar(&asJSON, "json", false, "print records as JSON instead of a table")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("displaylog-status - Log Status Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if tail > 0 {
		cfg.Tail = tail
	}

	if err := runStatus(cfg, asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(cfg cliConfig, asJSON bool) error {
	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to displaylog service at %s: %w\nIs the displaylog service running? Start it with: displaylog", cfg.SocketPath, err)
	}
	defer client.Close()

	total, err := client.RecordCount()
	if err != nil {
		return fmt.Errorf("record count: %w", err)
	}
	records, err := client.Tail(cfg.Tail)
	if err != nil {
		return fmt.Errorf("tail: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	fmt.Println(renderStatus(records, total))
	return nil
}
