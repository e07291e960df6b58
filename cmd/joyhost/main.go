package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"joyhost/internal/ble"
	"joyhost/internal/ble/protocol"
	"joyhost/internal/config"
	"joyhost/internal/state"
	"joyhost/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/joyhost/config.yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	printBanner(cfg)

	// The TUI owns the terminal, so structured logs go to a file.
	logger, closeLog, err := setupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("log setup: %v", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	mirror := state.NewMirror()

	var sup *ble.Supervisor
	sessOpts := ble.DefaultSessionOptions()
	sessOpts.DeviceName = cfg.Device.Name
	sessOpts.ScanTimeout = cfg.Device.ScanTimeout()
	sessOpts.ConnectTimeout = cfg.Device.ConnectTimeout()
	sessOpts.ShutdownGrace = cfg.Device.ShutdownGrace()
	sessOpts.Logger = logger
	sessOpts.OnConnectionLost = func() { sup.OnConnectionLost() }
	if cfg.Device.SubscribeButtonA {
		// The session subscribes in registry order regardless of where
		// this lands in the slice.
		sessOpts.Subscriptions = append(sessOpts.Subscriptions, protocol.ButtonA)
	}

	session := ble.NewSession(ble.NewNativeAdapter(), mirror, sessOpts)

	supOpts := ble.DefaultSupervisorOptions()
	supOpts.ReconnectMax = cfg.Device.ReconnectMax
	supOpts.Logger = logger
	sup = ble.NewSupervisor(session, supOpts)
	defer sup.Close()

	results := make(chan ble.CommandResult, 16)
	dispOpts := ble.DefaultDispatcherOptions()
	dispOpts.RatePerSecond = cfg.Commands.RatePerSecond
	dispOpts.Burst = cfg.Commands.Burst
	dispOpts.RejectionWindow = cfg.Commands.RejectionWindow()
	dispOpts.Logger = logger
	dispOpts.OnResult = func(r ble.CommandResult) {
		select {
		case results <- r:
		default: // UI is behind, drop rather than stall the dispatcher
		}
	}
	dispatcher := ble.NewDispatcher(session, mirror, dispOpts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	model := ui.New(ui.Deps{
		Session:    session,
		Dispatcher: dispatcher,
		Mirror:     mirror,
		Results:    results,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("ui: %v", err)
	}

	cancel()
	session.Disconnect()
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// setupLogger writes structured logs next to the config file so they do
// not fight the TUI for the terminal.
func setupLogger(level string) (*slog.Logger, func(), error) {
	dir := config.DefaultConfigDir()
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "joyhost.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	}))
	return logger, func() { f.Close() }, nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== joyhost ===")
	fmt.Printf("  Device:   %s\n", cfg.Device.Name)
	fmt.Printf("  Scan:     %s, connect %s\n", cfg.Device.ScanTimeout(), cfg.Device.ConnectTimeout())
	fmt.Printf("  Commands: %.0f/s (burst %d)\n", cfg.Commands.RatePerSecond, cfg.Commands.Burst)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
