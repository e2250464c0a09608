package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/displaylog/internal/backup"
	"github.com/tinytelemetry/displaylog/internal/httpserver"
	"github.com/tinytelemetry/displaylog/internal/ingest"
	"github.com/tinytelemetry/displaylog/internal/logstore"
	"github.com/tinytelemetry/displaylog/internal/socketrpc"
)

// runServer starts the upload endpoint and its supporting services.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg.LogLevel)
	defer cleanupLogger()

	store, err := logstore.New(logstore.Config{
		Path:            cfg.LogPath,
		MaxEntries:      cfg.MaxEntries,
		SerializeWrites: cfg.SerializeWrites,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize log store: %w", err)
	}
	if count, err := store.RecordCount(); err == nil {
		log.Info().Str("path", store.Path()).Int("records", count).Int("max_entries", store.MaxEntries()).Msg("server: log store ready")
	}

	processor := ingest.NewProcessor(store, cfg.policy())

	// Start periodic backups when enabled.
	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	httpServer := httpserver.NewServer(httpserver.Config{
		Addr:           cfg.HTTPAddr,
		TrustedProxies: cfg.TrustedProxies,
		StaticDir:      cfg.StaticDir,
	}, store, processor)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer httpServer.Stop()

	// Socket RPC for the status CLI.
	socketUp := false
	if cfg.SocketEnabled {
		sockServer := socketrpc.NewServer(cfg.SocketPath, store)
		if err := sockServer.Start(); err != nil {
			log.Warn().Err(err).Msg("server: failed to start socket server")
		} else {
			socketUp = true
			defer sockServer.Stop()
		}
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		if socketUp {
			cleanupSocket(cfg.SocketPath)
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, socketUp, processor.Policy())
	log.Info().Str("addr", cfg.HTTPAddr).Str("policy", string(processor.Policy())).Msg("server: accepting uploads")

	g, gctx := errgroup.WithContext(ctx)

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server: errgroup exited with error")
	}

	// If we reach here, graceful shutdown is in progress; deferred Stops run now.
	signal.Stop(sigCh)
	log.Info().Msg("server: shutting down")
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func printStartupBanner(cfg appConfig, socketUp bool, policy ingest.Policy) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔╦╗╦╔═╗╔═╗╦  ╔═╗╦ ╦  ╦  ╔═╗╔═╗
     ║║║╚═╗╠═╝║  ╠═╣╚╦╝  ║  ║ ║║ ╦
    ═╩╝╩╚═╝╩  ╩═╝╩ ╩ ╩   ╩═╝╚═╝╚═╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")

	lines = append(lines, fmt.Sprintf("    %s  Upload         %s", check, cyan.Render(cfg.HTTPAddr+"/upload.php")))
	if len(cfg.TrustedProxies) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Proxies        %s", check, dim.Render(strings.Join(cfg.TrustedProxies, ", "))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Proxies        %s", dot, dim.Render("none trusted")))
	}
	if cfg.StaticDir != "" {
		lines = append(lines, fmt.Sprintf("    %s  Static Assets  %s", check, dim.Render(shortenPath(cfg.StaticDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Static Assets  %s", dot, dim.Render("disabled")))
	}
	if socketUp {
		lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	// Storage
	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")

	lines = append(lines, fmt.Sprintf("    %s  Log File       %s", check, dim.Render(shortenPath(cfg.LogPath))))
	lines = append(lines, fmt.Sprintf("    %s  Max Entries    %s", check, dim.Render(strconv.Itoa(cfg.MaxEntries))))
	if cfg.BackupEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, "")

	// Runtime
	lines = append(lines, bold.Render("    Runtime"))
	lines = append(lines, "")

	lines = append(lines, fmt.Sprintf("    %s  Validation     %s", check, dim.Render(string(policy))))
	if cfg.SerializeWrites {
		lines = append(lines, fmt.Sprintf("    %s  Writes         %s", check, dim.Render("serialized")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Writes         %s", dot, dim.Render("unserialized")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
