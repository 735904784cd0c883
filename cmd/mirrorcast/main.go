// Command mirrorcast is the conversational avatar gateway server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirrorcast/mirrorcast/internal/assetstore"
	"github.com/mirrorcast/mirrorcast/internal/chunker"
	"github.com/mirrorcast/mirrorcast/internal/config"
	"github.com/mirrorcast/mirrorcast/internal/health"
	"github.com/mirrorcast/mirrorcast/internal/history"
	"github.com/mirrorcast/mirrorcast/internal/observe"
	"github.com/mirrorcast/mirrorcast/internal/pipeline"
	"github.com/mirrorcast/mirrorcast/internal/resilience"
	"github.com/mirrorcast/mirrorcast/internal/server"
	"github.com/mirrorcast/mirrorcast/pkg/provider/asr"
	"github.com/mirrorcast/mirrorcast/pkg/provider/asr/whisper"
	"github.com/mirrorcast/mirrorcast/pkg/provider/lipsync"
	"github.com/mirrorcast/mirrorcast/pkg/provider/lipsync/ditto"
	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
	oaillm "github.com/mirrorcast/mirrorcast/pkg/provider/llm/openai"
	"github.com/mirrorcast/mirrorcast/pkg/provider/tts"
	"github.com/mirrorcast/mirrorcast/pkg/provider/tts/xtts"
)

// defaultGracePeriod is how long served artifacts stay on disk before the
// eviction sweeper may remove them. Long enough for a player to re-request
// any range of a finished turn.
const defaultGracePeriod = 10 * time.Minute

// sweepInterval is how often the eviction sweeper runs.
const sweepInterval = time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mirrorcast: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mirrorcast: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mirrorcast starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "mirrorcast"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sdCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Asset store ───────────────────────────────────────────────────────────
	storeDir := cfg.AssetStore.Dir
	if storeDir == "" {
		storeDir = os.TempDir() + "/mirrorcast-artifacts"
	}
	store, err := assetstore.New(assetstore.Config{
		Dir:          storeDir,
		StablePoll:   cfg.AssetStore.StablePoll,
		StableBudget: cfg.AssetStore.StableBudget,
	})
	if err != nil {
		slog.Error("failed to open asset store", "err", err, "dir", storeDir)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	split := chunker.New(chunker.Config{
		MaxChars:            cfg.Chunker.MaxChars,
		FirstChunkHardLimit: cfg.Chunker.FirstChunkHardLimit,
	})
	hist := history.New(history.WithMaxMessages(cfg.Pipeline.HistoryLength))

	pipe := pipeline.New(providers.asr, providers.llm, providers.tts, providers.lipsync,
		split, store,
		pipeline.Config{
			SystemPrompt: cfg.Pipeline.SystemPrompt,
			Portrait:     cfg.Pipeline.PortraitImage,
			Voice:        tts.VoiceRef{SpeakerSample: cfg.Pipeline.VoiceSample},
			Render: lipsync.Options{
				FPS:            cfg.Video.FPS,
				Resolution:     cfg.Video.Resolution,
				DiffusionSteps: cfg.Video.DiffusionSteps,
			},
			Timeouts: pipeline.Timeouts{
				ASR:     cfg.Providers.ASR.Timeout,
				LLM:     cfg.Providers.LLM.Timeout,
				TTS:     cfg.Providers.TTS.Timeout,
				LipSync: cfg.Providers.LipSync.Timeout,
			},
			StableBudget: cfg.AssetStore.StableBudget,
		},
		pipeline.WithHistory(hist),
	)

	// ── Health ────────────────────────────────────────────────────────────────
	checkers := []health.Checker{
		reachabilityChecker("asr", cfg.Providers.ASR.BaseURL),
		reachabilityChecker("tts", cfg.Providers.TTS.BaseURL),
		reachabilityChecker("lipsync", cfg.Providers.LipSync.BaseURL),
	}
	healthH := health.New(checkers...)
	healthH.SetReady()

	// ── Server ────────────────────────────────────────────────────────────────
	srv := server.New(cfg.Server, pipe, store, healthH,
		server.WithAssetDirs(cfg.Pipeline.PortraitsDir, cfg.Pipeline.VoicesDir))

	slog.Info("server ready — press Ctrl+C to shut down")

	grace := cfg.AssetStore.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return runSweeper(gctx, store, grace)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runSweeper evicts artifacts older than grace on a fixed interval.
func runSweeper(ctx context.Context, store *assetstore.Store, grace time.Duration) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := store.EvictBefore(time.Now().Add(-grace)); n > 0 {
				slog.Debug("evicted expired artifacts", "count", n)
			}
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

type providerSet struct {
	asr     asr.Provider
	llm     llm.Provider
	tts     tts.Provider
	lipsync lipsync.Provider
}

// buildProviders instantiates the four inference backends from cfg. The
// dialogue model is wrapped in a canned fallback so a model outage degrades
// to an apology instead of a dead turn.
func buildProviders(cfg *config.Config) (*providerSet, error) {
	ps := &providerSet{}

	entry := cfg.Providers.ASR
	if entry.BaseURL == "" {
		return nil, errors.New("providers.asr.base_url is required")
	}
	var asrOpts []whisper.Option
	if entry.Model != "" {
		asrOpts = append(asrOpts, whisper.WithModel(entry.Model))
	}
	if entry.Timeout > 0 {
		asrOpts = append(asrOpts, whisper.WithTimeout(entry.Timeout))
	}
	ps.asr = whisper.New(entry.BaseURL, asrOpts...)
	slog.Info("provider created", "kind", "asr", "name", "whisper", "base_url", entry.BaseURL)

	entry = cfg.Providers.LLM
	var llmOpts []oaillm.Option
	if entry.BaseURL != "" {
		llmOpts = append(llmOpts, oaillm.WithBaseURL(entry.BaseURL))
	}
	if entry.Timeout > 0 {
		llmOpts = append(llmOpts, oaillm.WithTimeout(entry.Timeout))
	}
	primary, err := oaillm.New(entry.APIKey, entry.Model, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	ps.llm = resilience.NewCannedFallback(primary,
		resilience.WithCannedText(cfg.Pipeline.FallbackText))
	slog.Info("provider created", "kind", "llm", "name", "openai", "model", entry.Model)

	entry = cfg.Providers.TTS
	if entry.BaseURL == "" {
		return nil, errors.New("providers.tts.base_url is required")
	}
	var ttsOpts []xtts.Option
	if entry.Timeout > 0 {
		ttsOpts = append(ttsOpts, xtts.WithTimeout(entry.Timeout))
	}
	ps.tts = xtts.New(entry.BaseURL, ttsOpts...)
	slog.Info("provider created", "kind", "tts", "name", "xtts", "base_url", entry.BaseURL)

	entry = cfg.Providers.LipSync
	if entry.BaseURL == "" {
		return nil, errors.New("providers.lipsync.base_url is required")
	}
	var syncOpts []ditto.Option
	if entry.Timeout > 0 {
		syncOpts = append(syncOpts, ditto.WithTimeout(entry.Timeout))
	}
	ps.lipsync = ditto.New(entry.BaseURL, syncOpts...)
	slog.Info("provider created", "kind", "lipsync", "name", "ditto", "base_url", entry.BaseURL)

	return ps, nil
}

// reachabilityChecker probes a backend's base URL. Any HTTP response counts
// as reachable; inference backends routinely 404 their root path.
func reachabilityChecker(name, baseURL string) health.Checker {
	return health.Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		},
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
