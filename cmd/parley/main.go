// Command parley runs a spoken practice interview in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio/device"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to a dotenv file with provider keys")
	flag.Usage = usage
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if flag.Arg(0) == "voices" {
		return listVoices(ctx, cfg, reg)
	}

	slog.Info("parley starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, release, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer release()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	in, out := device.Default()
	application, err := app.New(cfg, providers, app.Devices{Input: in, Output: out})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(level, application, old, new)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	fmt.Println("Goodbye.")
	return 0
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: parley [flags] [voices]\n\n")
	fmt.Fprintf(flag.CommandLine.Output(), "Without a command parley starts the interview screen.\n")
	fmt.Fprintf(flag.CommandLine.Output(), "The voices command lists the voices of the configured TTS provider.\n\n")
	flag.PrintDefaults()
}

// applyConfigChange reacts to an edited config file. The log level applies at
// once, interview settings from the next session on.
func applyConfigChange(level *slog.LevelVar, a *app.App, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.InterviewChanged() {
		slog.Info("interview settings changed", "fields", strings.Join(d.InterviewFields, ","))
		a.ApplyInterview(new.Interview)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config change needs a restart", "sections", strings.Join(d.RestartRequired, ","))
	}
}

// ── Voices ────────────────────────────────────────────────────────────────────

func listVoices(ctx context.Context, cfg *config.Config, reg *config.Registry) int {
	p, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		return 1
	}
	lister, ok := p.(tts.VoiceLister)
	if !ok {
		fmt.Fprintf(os.Stderr, "parley: tts provider %q cannot list voices\n", cfg.Providers.TTS.Name)
		return 1
	}
	voices, err := lister.ListVoices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		return 1
	}
	for _, v := range voices {
		fmt.Printf("%-28s %s\n", v.ID, v.Name)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Parley  startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerValue(cfg.Providers.STT))
	printRow("LLM", providerValue(cfg.Providers.LLM))
	printRow("TTS", providerValue(cfg.Providers.TTS))
	if cfg.Providers.TTSSecondary.Configured() {
		printRow("TTS fallback", providerValue(cfg.Providers.TTSSecondary))
	}
	printRow("VAD", providerValue(cfg.Providers.VAD))
	printRow("Quota", string(cfg.Quota.Backend))
	printRow("Persona", cfg.Interview.Persona)
	printRow("Account", cfg.Interview.Account)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerValue(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
