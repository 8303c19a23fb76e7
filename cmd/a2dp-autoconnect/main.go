package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/a2dp-autoconnect/internal/audio"
	"github.com/chaz8081/a2dp-autoconnect/internal/bluez"
	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
	"github.com/chaz8081/a2dp-autoconnect/internal/config"
	"github.com/chaz8081/a2dp-autoconnect/internal/hotkey"
	"github.com/chaz8081/a2dp-autoconnect/internal/status"
)

// setupTimeout bounds the adapter checks done before the session starts.
const setupTimeout = 10 * time.Second

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/a2dp-autoconnect/config.yaml)")
	device := flag.String("device", "", "address of the device to connect (overrides config)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *device != "" {
		cfg.Device = *device
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	if cfg.Device == "" {
		log.Fatalf("No device to connect. Pass -device AA:BB:CC:DD:EE:FF or set device in %s", config.DefaultConfigPath())
	}

	slog.SetLogLoggerLevel(config.ParseLogLevel(cfg.LogLevel))
	printBanner(cfg)

	platform, err := bluez.Open(cfg.Adapter)
	if err != nil {
		log.Fatalf("Failed to reach BlueZ: %v\n\nIs bluetoothd running?", err)
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	if err := platform.EnsurePowered(setupCtx); err != nil {
		cancel()
		log.Fatalf("Bluetooth is not available: %v", err)
	}
	target, err := platform.RemoteDevice(setupCtx, cfg.Device)
	cancel()
	if err != nil {
		log.Fatalf("Failed to resolve %s: %v", cfg.Device, err)
	}
	log.Printf("Target: %s", target)

	binder, err := platform.NewBinder(cfg.Binder)
	if err != nil {
		log.Fatalf("binder: %v", err)
	}

	waiter := status.NewWaiter(8)
	sinks := status.Multi{status.NewPrinter(os.Stdout), waiter}

	var (
		chime  *status.Chime
		player *audio.Player
	)
	if cfg.Chime.Enabled {
		player, err = audio.NewPlayer()
		if err != nil {
			log.Printf("WARNING: chime disabled: %v", err)
			player = nil
		} else {
			chime = status.NewChime(player, loadChime(cfg.Chime.Path))
			sinks = append(sinks, chime)
		}
	}

	session, err := bt.NewSession(platform, binder, sinks, cfg.SessionOptions())
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	shutdown := func() {
		if err := session.Destroy(); err != nil {
			log.Printf("ERROR: session teardown: %v", err)
		}
		if chime != nil {
			chime.Close()
		}
		if player != nil {
			player.Close()
		}
		platform.Close()
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	id := session.StartConnect(target)

	if !cfg.Hotkey.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), attemptBudget(cfg))
		go func() {
			select {
			case sig := <-sigCh:
				log.Printf("Received %s, shutting down...", sig)
				cancel()
			case <-ctx.Done():
			}
		}()

		out, err := waiter.Wait(ctx, id)
		cancel()
		shutdown()
		if err != nil {
			log.Printf("No result: %v", err)
			os.Exit(1)
		}
		if !out.OK() {
			os.Exit(1)
		}
		return
	}

	listener := hotkey.NewListener(cfg.Hotkey.Keys, 0)
	go listener.Start()
	log.Println("Ready! Press", strings.Join(cfg.Hotkey.Keys, "+"), "to reconnect. Ctrl+C to quit.")

	// Main event loop
	events := listener.Events()
	for {
		select {
		case _, ok := <-events:
			if !ok {
				log.Println("Hotkey listener stopped")
				shutdown()
				return
			}
			if _, err := session.Reconnect(); err != nil {
				log.Printf("ERROR: reconnect: %v", err)
			}

		case <-waiter.Outcomes():
			// Printed by the status printer.

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			shutdown()
			log.Println("Goodbye!")
			// Exit directly to avoid gohook's C cleanup crash.
			// The OS reclaims the event hook on process exit.
			os.Exit(0)
		}
	}
}

// attemptBudget is how long a single attempt may take end to end.
func attemptBudget(cfg *config.Config) time.Duration {
	return cfg.Profile.BindTimeout + cfg.Pairing.Timeout + cfg.Pairing.Interval + 30*time.Second
}

// loadChime returns the configured chime, falling back to the built-in tone.
func loadChime(path string) *audio.Clip {
	if path == "" {
		return audio.DefaultChime()
	}
	clip, err := audio.LoadClip(path)
	if err != nil {
		log.Printf("WARNING: %v, using built-in chime", err)
		return audio.DefaultChime()
	}
	return clip
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== a2dp-autoconnect ===")
	fmt.Printf("  Adapter: %s\n", cfg.Adapter)
	fmt.Printf("  Device:  %s\n", cfg.Device)
	fmt.Printf("  Binder:  %s\n", cfg.Binder)
	if cfg.Hotkey.Enabled {
		fmt.Printf("  Hotkey:  %s\n", strings.Join(cfg.Hotkey.Keys, "+"))
	}
	fmt.Printf("  Chime:   %v\n", cfg.Chime.Enabled)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("========================")
}
