// Command murmur captures a microphone, cuts the audio into speech segments
// and publishes their transcripts to log output and websocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/listen"
	"github.com/MrWong99/murmur/internal/notify"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/resilience"
	"github.com/MrWong99/murmur/internal/transcript"
	"github.com/MrWong99/murmur/pkg/audio/capture"
	"github.com/MrWong99/murmur/pkg/audio/capture/malgo"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/stt/deepgram"
	"github.com/MrWong99/murmur/pkg/provider/stt/openai"
	"github.com/MrWong99/murmur/pkg/provider/stt/whisper"
	"github.com/MrWong99/murmur/pkg/provider/vad"
	"github.com/MrWong99/murmur/pkg/provider/vad/energy"
	"github.com/MrWong99/murmur/pkg/provider/vad/webrtc"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "print the available input devices and exit")
	flag.Parse()

	if *listDevices {
		return printDevices(os.Stdout)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "murmur: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("murmur starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	tr, closers, err := buildTranscriber(cfg.Providers, reg, metrics)
	defer closeAll(closers)
	if err != nil {
		slog.Error("failed to build transcriber", "err", err)
		return 1
	}
	engine, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		slog.Error("failed to build voice activity classifier", "err", err)
		return 1
	}

	host, err := malgo.New(malgo.WithRealtimePriority())
	if err != nil {
		slog.Error("failed to initialise audio", "err", err)
		return 1
	}
	defer host.Close()

	// ── Notifications ─────────────────────────────────────────────────────────
	// Transcripts are always logged unless websocket clients receive them.
	var sinks notify.Multi
	if cfg.Notify.Log || !cfg.Notify.WebSocket {
		sinks = append(sinks, notify.LogSink{})
	}
	var hub *notify.Hub
	if cfg.Notify.WebSocket {
		var hubOpts []notify.HubOption
		if cfg.Notify.ClientBuffer > 0 {
			hubOpts = append(hubOpts, notify.WithClientBuffer(cfg.Notify.ClientBuffer))
		}
		if len(cfg.Notify.Origins) > 0 {
			hubOpts = append(hubOpts, notify.WithOriginPatterns(cfg.Notify.Origins...))
		}
		hub = notify.NewHub(hubOpts...)
		defer hub.Close()
		sinks = append(sinks, hub)
	}

	// ── Listener ──────────────────────────────────────────────────────────────
	corrector := transcript.NewCorrector(cfg.Vocabulary)
	listener, err := listen.New(host, engine, tr, sinks,
		listen.WithCorrector(corrector),
		listen.WithMetrics(metrics),
		listen.WithProviderName(cfg.Providers.STT.Name),
		listen.WithKeywordBoost(cfg.Notify.KeywordBoost),
	)
	if err != nil {
		slog.Error("failed to create listener", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config, diff config.ConfigDiff) {
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
		}
		if diff.VocabularyChanged {
			listener.UpdateVocabulary(newCfg.Vocabulary)
		}
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP ──────────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.Flag("transcriber", func() bool {
			if f, ok := tr.(*resilience.TranscriberFallback); ok {
				return f.Available()
			}
			return true
		}, "all transcribers are unavailable"),
		health.Flag("session", listener.Active, "no capture session running"),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	if hub != nil {
		mux.Handle("GET /events", hub)
	}
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		err := listener.Run(gctx, listen.Config{
			Device:       cfg.Capture.Device,
			MaxBuffer:    time.Duration(cfg.Capture.BufferMS) * time.Millisecond,
			EndSilence:   cfg.Segmenter.EndSilence(),
			Linger:       cfg.Segmenter.Linger(),
			MaxSegment:   segmentLimit(cfg.Segmenter),
			VADMode:      cfg.Providers.VAD.IntOption("mode", 0),
			VADThreshold: cfg.Providers.VAD.FloatOption("threshold", 0),
		})
		if err != nil {
			return fmt.Errorf("capture session: %w", err)
		}
		// The session only returns nil once gctx is done.
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if entry.BoolOption("translate", false) {
			opts = append(opts, whisper.WithNativeTranslate(true))
		}
		return whisper.NewNative(entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if entry.BoolOption("translate", false) {
			opts = append(opts, whisper.WithTranslate(true))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, openai.WithLanguage(lang))
		}
		if entry.BoolOption("translate", false) {
			opts = append(opts, openai.WithTranslate(true))
		}
		if secs := entry.IntOption("timeout_seconds", 0); secs > 0 {
			opts = append(opts, openai.WithTimeout(time.Duration(secs)*time.Second))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(entry config.ProviderEntry) (vad.Engine, error) {
		e, err := webrtc.New(webrtc.WithDefaultMode(entry.IntOption("mode", 0)))
		if err != nil {
			return nil, err
		}
		return e, nil
	})

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// buildTranscriber creates the primary transcriber and wraps it with the
// configured fallbacks. The returned closers must be closed at shutdown even
// when err is non-nil.
func buildTranscriber(pc config.ProvidersConfig, reg *config.Registry, m *observe.Metrics) (stt.Transcriber, []io.Closer, error) {
	var closers []io.Closer
	create := func(entry config.ProviderEntry) (stt.Transcriber, error) {
		t, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("stt provider %q: %w", entry.Name, err)
		}
		if c, ok := t.(io.Closer); ok {
			closers = append(closers, c)
		}
		return t, nil
	}

	primary, err := create(pc.STT)
	if err != nil {
		return nil, closers, err
	}
	if len(pc.STTFallbacks) == 0 {
		return primary, closers, nil
	}

	fb := resilience.NewTranscriberFallback(primary, pc.STT.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	})
	for _, entry := range pc.STTFallbacks {
		t, err := create(entry)
		if err != nil {
			return nil, closers, err
		}
		fb.AddFallback(entry.Name, t)
	}
	return fb, closers, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// segmentLimit maps the configured limit onto listen.Config, where zero
// selects the default and a negative value disables the limit.
func segmentLimit(s config.SegmenterConfig) time.Duration {
	if d := s.MaxSegment(); d > 0 {
		return d
	}
	return -1
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
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

// ── Device listing ────────────────────────────────────────────────────────────

func printDevices(w io.Writer) int {
	host, err := malgo.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	defer host.Close()

	devs, err := host.InputDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	if len(devs) == 0 {
		fmt.Fprintln(w, "no input devices found")
		return 0
	}
	for _, d := range devs {
		fmt.Fprintf(w, "%s%s\n", d.Name, defaultMarker(d))
		fmt.Fprintf(w, "    formats: %s\n", formatList(d.Formats))
	}
	return 0
}

func defaultMarker(d capture.DeviceInfo) string {
	if d.Default {
		return " (default)"
	}
	return ""
}

func formatList(fs []capture.Format) string {
	if len(fs) == 0 {
		return "any"
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = fmt.Sprintf("%d Hz/%dch", f.SampleRate, f.Channels)
	}
	return strings.Join(parts, ", ")
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           murmur startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	device := cfg.Capture.Device
	if device == "" {
		device = "(default)"
	}
	fmt.Printf("║  Device          : %-19s ║\n", device)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	for _, e := range cfg.Providers.STTFallbacks {
		printProvider("STT fallback", e.Name, e.Model)
	}
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	fmt.Printf("║  End silence     : %-19s ║\n", cfg.Segmenter.EndSilence().String())
	fmt.Printf("║  Vocabulary      : %-19d ║\n", len(cfg.Vocabulary))
	if cfg.Notify.WebSocket {
		fmt.Printf("║  Events          : %-19s ║\n", "/events")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if model != "" {
		value = name + " / " + filepath.Base(model)
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-16s: %-19s ║\n", kind, value)
}
